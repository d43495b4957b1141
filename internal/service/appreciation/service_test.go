package appreciation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository/memory"
	"github.com/splax/skillsync/internal/ws"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events [][]byte
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, payload)
	return p.err
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	now := time.Now().UTC()
	require.NoError(t, store.CreateTeam(context.Background(), &domain.Team{
		ID:        "t1",
		Name:      "Atlas",
		CreatorID: "a",
		Members: []domain.Member{
			{UserID: "a", Name: "Ada", JoinedAt: now},
			{UserID: "b", Name: "Ben", JoinedAt: now},
		},
		Capacity:     3,
		MentorID:     "m1",
		ReviewStatus: domain.StatusForming,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
	return store
}

func newService(t *testing.T, pub *recordingPublisher) (Service, *memory.Store) {
	t.Helper()
	store := seed(t)
	var publisher ws.Publisher
	if pub != nil {
		publisher = pub
	}
	return New(store, publisher, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

var (
	ada = domain.Actor{UserID: "a", Role: domain.RoleStudent}
	ben = domain.Actor{UserID: "b", Role: domain.RoleStudent}
	eve = domain.Actor{UserID: "e", Role: domain.RoleStudent}
)

func TestSendPublishesToRecipient(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newService(t, pub)

	note, err := svc.Send(context.Background(), ada, "t1", "b", "  great demo  ")
	require.NoError(t, err)
	require.Equal(t, "great demo", note.Message)
	require.Equal(t, []string{"user:b"}, pub.topics)

	var event map[string]any
	require.NoError(t, json.Unmarshal(pub.events[0], &event))
	require.Equal(t, "appreciation", event["type"])
	require.Equal(t, "a", event["from_user"])
}

func TestSendValidation(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		actor domain.Actor
		to    string
		msg   string
		want  error
	}{
		{"blank message", ada, "b", "   ", domain.ErrValidation},
		{"self", ada, "a", "me", domain.ErrValidation},
		{"recipient outside team", ada, "e", "hi", domain.ErrValidation},
		{"sender outside team", eve, "b", "hi", domain.ErrPermission},
		{"mentor is not a member", domain.Actor{UserID: "m1", Role: domain.RoleMentor}, "b", "hi", domain.ErrPermission},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Send(ctx, tc.actor, "t1", tc.to, tc.msg)
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := svc.Send(ctx, ada, "missing", "b", "hi")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPushFailureDoesNotFailSend(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("relay down")}
	svc, _ := newService(t, pub)

	_, err := svc.Send(context.Background(), ada, "t1", "b", "thanks")
	require.NoError(t, err)

	got, err := svc.ListReceived(context.Background(), ben, "t1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestListReceivedOnlyShowsOwnNotes(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Send(ctx, ada, "t1", "b", "first")
	require.NoError(t, err)
	_, err = svc.Send(ctx, ada, "t1", "b", "second")
	require.NoError(t, err)
	_, err = svc.Send(ctx, ben, "t1", "a", "back at you")
	require.NoError(t, err)

	got, err := svc.ListReceived(ctx, ben, "t1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "second", got[0].Message)
	for _, note := range got {
		require.Equal(t, "b", note.ToUser)
	}

	_, err = svc.ListReceived(ctx, eve, "t1")
	require.ErrorIs(t, err, domain.ErrPermission)
}

func TestListAllReceivedSpansTeams(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateTeam(ctx, &domain.Team{
		ID:           "t2",
		Name:         "Borealis",
		CreatorID:    "c",
		Members:      []domain.Member{{UserID: "c", Name: "Cy", JoinedAt: base}, {UserID: "b", Name: "Ben", JoinedAt: base}},
		Capacity:     2,
		MentorID:     "m2",
		ReviewStatus: domain.StatusForming,
		CreatedAt:    base,
		UpdatedAt:    base,
	}))
	notes := []domain.Appreciation{
		{ID: "n1", TeamID: "t1", FromUser: "a", ToUser: "b", Message: "clean schema", CreatedAt: base},
		{ID: "n2", TeamID: "t2", FromUser: "c", ToUser: "b", Message: "fast fix", CreatedAt: base.Add(time.Minute)},
		{ID: "n3", TeamID: "t1", FromUser: "b", ToUser: "a", Message: "thanks", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "n4", TeamID: "t1", FromUser: "a", ToUser: "b", Message: "great demo", CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range notes {
		require.NoError(t, store.CreateAppreciation(ctx, &notes[i]))
	}

	all, err := svc.ListAllReceived(ctx, ben)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "n4", all[0].ID)
	require.Equal(t, "n2", all[1].ID)
	require.Equal(t, "n1", all[2].ID)

	inTeam, err := svc.ListReceived(ctx, ben, "t1")
	require.NoError(t, err)
	require.Len(t, inTeam, 2)

	after, err := svc.ReceivedAfter(ctx, ben, "n1")
	require.NoError(t, err)
	require.Len(t, after, 2)
	require.Equal(t, "n2", after[0].ID)
	require.Equal(t, "n4", after[1].ID)

	latest, err := svc.ReceivedAfter(ctx, ben, "n4")
	require.NoError(t, err)
	require.Empty(t, latest)

	unknown, err := svc.ReceivedAfter(ctx, ben, "n3")
	require.NoError(t, err)
	require.Empty(t, unknown)

	_, err = svc.ListAllReceived(ctx, domain.Actor{})
	require.ErrorIs(t, err, domain.ErrPermission)
}
