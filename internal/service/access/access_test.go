package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
	"github.com/splax/skillsync/internal/repository/memory"
)

type failingLocker struct{ err error }

func (f failingLocker) Lock(context.Context, string) (func(), error) { return nil, f.err }

func TestTranslate(t *testing.T) {
	require.NoError(t, Translate(nil, "x"))
	require.ErrorIs(t, Translate(repository.ErrNotFound, "team t1"), domain.ErrNotFound)
	require.ErrorIs(t, Translate(repository.ErrConflict, "team t1"), domain.ErrConflict)
	require.ErrorIs(t, Translate(repository.ErrDuplicate, "team t1"), domain.ErrConflict)

	other := errors.New("disk full")
	require.Same(t, other, Translate(other, "x"))
}

func TestLoadTeam(t *testing.T) {
	store := memory.New()
	_, err := LoadTeam(context.Background(), store, " ")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = LoadTeam(context.Background(), store, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockErrors(t *testing.T) {
	_, err := Lock(context.Background(), failingLocker{err: errors.New("redis down")}, "t1")
	require.ErrorIs(t, err, domain.ErrTransport)

	_, err = Lock(context.Background(), failingLocker{err: context.Canceled}, "t1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestCapabilityChecks(t *testing.T) {
	team := &domain.Team{
		ID:        "t1",
		CreatorID: "alice",
		MentorID:  "mentor",
		Members:   []domain.Member{{UserID: "alice"}, {UserID: "bob"}},
	}
	alice := domain.Actor{UserID: "alice", Role: domain.RoleStudent}
	bob := domain.Actor{UserID: "bob", Role: domain.RoleStudent}
	mentor := domain.Actor{UserID: "mentor", Role: domain.RoleMentor}
	outsider := domain.Actor{UserID: "eve", Role: domain.RoleMentor}

	require.NoError(t, RequireStudent(alice))
	require.ErrorIs(t, RequireStudent(mentor), domain.ErrPermission)
	require.NoError(t, RequireMentor(mentor))
	require.ErrorIs(t, RequireMentor(bob), domain.ErrPermission)

	require.NoError(t, RequireMember(bob, team))
	require.ErrorIs(t, RequireMember(mentor, team), domain.ErrPermission)

	require.NoError(t, RequireViewer(mentor, team))
	require.ErrorIs(t, RequireViewer(outsider, team), domain.ErrPermission)

	require.NoError(t, RequireAssignedMentor(mentor, team))
	require.ErrorIs(t, RequireAssignedMentor(outsider, team), domain.ErrPermission)
	require.ErrorIs(t, RequireAssignedMentor(domain.Actor{UserID: "mentor", Role: domain.RoleStudent}, team), domain.ErrPermission)

	require.NoError(t, RequireCreator(alice, team))
	require.ErrorIs(t, RequireCreator(bob, team), domain.ErrPermission)
}
