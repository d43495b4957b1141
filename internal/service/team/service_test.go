package team

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository/memory"
	"github.com/splax/skillsync/internal/teamlock"
)

func student(id string) domain.Actor {
	return domain.Actor{UserID: id, Name: "Student " + id, Role: domain.RoleStudent}
}

var mentor = domain.Actor{UserID: "mentor-1", Name: "Mina", Role: domain.RoleMentor}

func newService(limit int) (Service, *memory.Store) {
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, teamlock.NewLocal(), Config{MentorTeamLimit: limit}, logger), store
}

func createInput(capacity int) CreateInput {
	return CreateInput{Name: "Graph Builders", Capacity: capacity, RequiredSkills: []string{"go", " Go ", "react"}, MentorID: mentor.UserID}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(0)
	ctx := context.Background()

	cases := map[string]CreateInput{
		"blank name":  {Name: " ", Capacity: 2, RequiredSkills: []string{"go"}, MentorID: "m"},
		"no mentor":   {Name: "x", Capacity: 2, RequiredSkills: []string{"go"}},
		"no capacity": {Name: "x", Capacity: 0, RequiredSkills: []string{"go"}, MentorID: "m"},
		"no skills":   {Name: "x", Capacity: 2, RequiredSkills: []string{" "}, MentorID: "m"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, student("a"), in)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	_, err := svc.Create(ctx, mentor, createInput(2))
	require.ErrorIs(t, err, domain.ErrPermission)
}

func TestCreate(t *testing.T) {
	svc, _ := newService(0)
	team, err := svc.Create(context.Background(), student("a"), createInput(3))
	require.NoError(t, err)
	require.Equal(t, domain.StatusForming, team.ReviewStatus)
	require.Equal(t, []string{"a"}, team.MemberIDs())
	require.Equal(t, "a", team.CreatorID)
	require.Equal(t, []string{"go", "react"}, team.RequiredSkills)

	solo, err := svc.Create(context.Background(), student("b"), createInput(1))
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, solo.ReviewStatus)
}

func TestMentorTeamLimit(t *testing.T) {
	svc, _ := newService(2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := svc.Create(ctx, student(fmt.Sprint(i)), createInput(2))
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, student("late"), createInput(2))
	require.ErrorIs(t, err, domain.ErrCapacity)
}

func TestJoinCapacityScenario(t *testing.T) {
	svc, store := newService(0)
	ctx := context.Background()
	team, err := svc.Create(ctx, student("a"), createInput(3))
	require.NoError(t, err)

	joined, err := svc.Join(ctx, student("b"), team.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusForming, joined.ReviewStatus)

	_, err = svc.Join(ctx, student("b"), team.ID)
	require.ErrorIs(t, err, domain.ErrConflict)

	joined, err = svc.Join(ctx, student("c"), team.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, joined.ReviewStatus)
	require.Equal(t, []string{"a", "b", "c"}, joined.MemberIDs())

	_, err = svc.Join(ctx, student("d"), team.ID)
	require.ErrorIs(t, err, domain.ErrCapacity)

	_, err = svc.Join(ctx, mentor, team.ID)
	require.ErrorIs(t, err, domain.ErrPermission)

	_, err = svc.Join(ctx, student("d"), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	stored, err := store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, stored.Members, 3)
}

func TestJoinLockedTeam(t *testing.T) {
	svc, store := newService(0)
	ctx := context.Background()
	team, err := svc.Create(ctx, student("a"), createInput(3))
	require.NoError(t, err)

	team.ReviewStatus = domain.StatusSubmitted
	require.NoError(t, store.SaveTeam(ctx, team))

	_, err = svc.Join(ctx, student("b"), team.ID)
	require.ErrorIs(t, err, domain.ErrState)
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	svc, store := newService(0)
	ctx := context.Background()
	team, err := svc.Create(ctx, student("creator"), createInput(4))
	require.NoError(t, err)

	var g errgroup.Group
	results := make([]error, 10)
	for i := range results {
		g.Go(func() error {
			_, results[i] = svc.Join(ctx, student(fmt.Sprintf("s%d", i)), team.ID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	ok, full := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrCapacity):
			full++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	require.Equal(t, 3, ok)
	require.Equal(t, 7, full)

	stored, err := store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, stored.Members, 4)
	require.Equal(t, domain.StatusActive, stored.ReviewStatus)
}

func TestListings(t *testing.T) {
	svc, _ := newService(0)
	ctx := context.Background()
	mine, err := svc.Create(ctx, student("a"), createInput(3))
	require.NoError(t, err)
	open, err := svc.Create(ctx, student("b"), createInput(3))
	require.NoError(t, err)
	_, err = svc.Create(ctx, student("c"), createInput(1))
	require.NoError(t, err)

	joinable, err := svc.ListJoinable(ctx, student("a"))
	require.NoError(t, err)
	require.Len(t, joinable, 1, "full and own teams are excluded")
	require.Equal(t, open.ID, joinable[0].ID)

	teams, err := svc.ListMine(ctx, student("a"))
	require.NoError(t, err)
	require.Len(t, teams, 1)
	require.Equal(t, mine.ID, teams[0].ID)

	assigned, err := svc.ListMine(ctx, mentor)
	require.NoError(t, err)
	require.Len(t, assigned, 3)
}

func TestDetail(t *testing.T) {
	svc, store := newService(0)
	ctx := context.Background()
	team, err := svc.Create(ctx, student("a"), createInput(3))
	require.NoError(t, err)

	detail, err := svc.Detail(ctx, mentor, team.ID)
	require.NoError(t, err)
	require.Nil(t, detail.Submission)

	require.NoError(t, store.CreateSubmission(ctx, &domain.Submission{ID: "s1", TeamID: team.ID, Attempt: 1, Status: domain.StatusSubmitted}))
	detail, err = svc.Detail(ctx, student("a"), team.ID)
	require.NoError(t, err)
	require.Equal(t, "s1", detail.Submission.ID)

	_, err = svc.Detail(ctx, student("stranger"), team.ID)
	require.ErrorIs(t, err, domain.ErrPermission)
}

func TestUpdateProjectMeta(t *testing.T) {
	svc, store := newService(0)
	ctx := context.Background()
	team, err := svc.Create(ctx, student("a"), createInput(3))
	require.NoError(t, err)
	_, err = svc.Join(ctx, student("b"), team.ID)
	require.NoError(t, err)

	meta := domain.ProjectMeta{Title: " Skill Graph ", TechStack: []string{"go"}, RepoURL: "https://example.com/repo"}
	updated, err := svc.UpdateProjectMeta(ctx, student("a"), team.ID, meta)
	require.NoError(t, err)
	require.Equal(t, "Skill Graph", updated.ProjectMeta.Title)
	require.NotNil(t, updated.ProjectMeta.UpdatedAt)

	_, err = svc.UpdateProjectMeta(ctx, student("b"), team.ID, meta)
	require.ErrorIs(t, err, domain.ErrPermission)

	_, err = svc.UpdateProjectMeta(ctx, student("a"), team.ID, domain.ProjectMeta{RepoURL: "ftp://nope"})
	require.ErrorIs(t, err, domain.ErrValidation)

	stored, err := store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	stored.ReviewStatus = domain.StatusApproved
	require.NoError(t, store.SaveTeam(ctx, stored))
	_, err = svc.UpdateProjectMeta(ctx, student("a"), team.ID, meta)
	require.ErrorIs(t, err, domain.ErrState)
}
