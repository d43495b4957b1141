package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository/memory"
	"github.com/splax/skillsync/internal/teamlock"
	"github.com/splax/skillsync/internal/ws"
)

var (
	alice    = domain.Actor{UserID: "alice", Name: "Alice", Role: domain.RoleStudent}
	bob      = domain.Actor{UserID: "bob", Name: "Bob", Role: domain.RoleStudent}
	outsider = domain.Actor{UserID: "eve", Role: domain.RoleStudent}
	mentor   = domain.Actor{UserID: "mentor-1", Role: domain.RoleMentor}
)

type capture struct {
	mu       sync.Mutex
	payloads [][]byte
	got      chan struct{}
}

func (c *capture) Send(p []byte) error {
	c.mu.Lock()
	c.payloads = append(c.payloads, p)
	c.mu.Unlock()
	c.got <- struct{}{}
	return nil
}

func (c *capture) Close() {}

type brokenPublisher struct{}

func (brokenPublisher) Publish(context.Context, string, []byte) error {
	return errors.New("redis unavailable")
}

func seed(t *testing.T, store *memory.Store, ids ...string) {
	t.Helper()
	now := time.Now().UTC()
	for _, id := range ids {
		require.NoError(t, store.CreateTeam(context.Background(), &domain.Team{
			ID:           id,
			Name:         id,
			CreatorID:    alice.UserID,
			Members:      []domain.Member{{UserID: alice.UserID, JoinedAt: now}, {UserID: bob.UserID, JoinedAt: now}},
			Capacity:     2,
			MentorID:     mentor.UserID,
			ReviewStatus: domain.StatusActive,
			CreatedAt:    now,
		}))
	}
}

func newService(t *testing.T, publisher ws.Publisher) (Service, *ws.Hub) {
	t.Helper()
	store := memory.New()
	seed(t, store, "t1", "t2")
	hub := ws.NewHub()
	t.Cleanup(hub.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, teamlock.NewLocal(), hub, publisher, Config{MaxMessageRunes: 10}, logger), hub
}

func TestSendValidation(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Send(ctx, alice, "t1", "   ")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Send(ctx, alice, "t1", strings.Repeat("é", 11))
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Send(ctx, alice, "t1", strings.Repeat("é", 10))
	require.NoError(t, err)

	_, err = svc.Send(ctx, outsider, "t1", "hi")
	require.ErrorIs(t, err, domain.ErrPermission)

	_, err = svc.Send(ctx, mentor, "t1", "hi")
	require.ErrorIs(t, err, domain.ErrPermission)

	_, err = svc.Send(ctx, alice, "nope", "hi")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchIsIdempotentAndOrdered(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.Send(ctx, bob, "t1", text)
		require.NoError(t, err)
	}

	first, err := svc.Fetch(ctx, alice, "t1", 0, 0)
	require.NoError(t, err)
	second, err := svc.Fetch(ctx, alice, "t1", 0, 0)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 3)
	require.Equal(t, "Bob", first[0].SenderName)

	sent, err := svc.Send(ctx, alice, "t1", "four")
	require.NoError(t, err)
	after, err := svc.Fetch(ctx, mentor, "t1", 0, 0)
	require.NoError(t, err)
	require.Equal(t, sent.ID, after[len(after)-1].ID)

	tail, err := svc.Fetch(ctx, alice, "t1", first[2].Seq, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, "four", tail[0].Text)

	_, err = svc.Fetch(ctx, alice, "t1", -1, 0)
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.Fetch(ctx, outsider, "t1", 0, 0)
	require.ErrorIs(t, err, domain.ErrPermission)
}

func TestConcurrentSendsGetDistinctSequences(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		teamID := "t1"
		if i%2 == 1 {
			teamID = "t2"
		}
		g.Go(func() error {
			_, err := svc.Send(gctx, alice, teamID, "msg")
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, teamID := range []string{"t1", "t2"} {
		msgs, err := svc.Fetch(ctx, alice, teamID, 0, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 10)
		for i, msg := range msgs {
			require.EqualValues(t, i+1, msg.Seq)
		}
	}
}

func TestSubscribersReceivePush(t *testing.T) {
	svc, hub := newService(t, nil)
	ctx := context.Background()

	sub := &capture{got: make(chan struct{}, 4)}
	unsubscribe, err := svc.Subscribe(ctx, bob, "t1", sub)
	require.NoError(t, err)
	require.Equal(t, 1, hub.Subscribers(Topic("t1")))

	sent, err := svc.Send(ctx, alice, "t1", "ping")
	require.NoError(t, err)
	select {
	case <-sub.got:
	case <-time.After(time.Second):
		t.Fatal("push not delivered")
	}

	var pushed struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Seq  int64  `json:"seq"`
	}
	sub.mu.Lock()
	require.NoError(t, json.Unmarshal(sub.payloads[0], &pushed))
	sub.mu.Unlock()
	require.Equal(t, "chat.message", pushed.Type)
	require.Equal(t, sent.ID, pushed.ID)
	require.Equal(t, sent.Seq, pushed.Seq)

	unsubscribe()
	require.Zero(t, hub.Subscribers(Topic("t1")))

	_, err = svc.Subscribe(ctx, outsider, "t1", sub)
	require.ErrorIs(t, err, domain.ErrPermission)
}

func TestPushFailureDoesNotFailSend(t *testing.T) {
	svc, _ := newService(t, brokenPublisher{})
	ctx := context.Background()

	msg, err := svc.Send(ctx, alice, "t1", "stored")
	require.NoError(t, err)

	msgs, err := svc.Fetch(ctx, bob, "t1", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, msg.ID, msgs[0].ID)
}
