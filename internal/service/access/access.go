// Package access centralizes the capability checks and error translation
// shared by the engine services.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
	"github.com/splax/skillsync/internal/teamlock"
)

// Translate maps repository sentinels onto domain error kinds.
func Translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", domain.ErrNotFound, what)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s was modified concurrently", domain.ErrConflict, what)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %s already exists", domain.ErrConflict, what)
	default:
		return err
	}
}

// LoadTeam fetches a team by id.
func LoadTeam(ctx context.Context, repo repository.TeamRepository, teamID string) (*domain.Team, error) {
	if strings.TrimSpace(teamID) == "" {
		return nil, fmt.Errorf("%w: team id is required", domain.ErrValidation)
	}
	team, err := repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, Translate(err, "team "+teamID)
	}
	return team, nil
}

// Lock acquires the per-team lock. Failures other than cancellation are
// reported as transport errors.
func Lock(ctx context.Context, locker teamlock.Locker, key string) (func(), error) {
	release, err := locker.Lock(ctx, key)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
}

// RequireStudent rejects mentors from student-only operations.
func RequireStudent(actor domain.Actor) error {
	if !actor.IsStudent() {
		return fmt.Errorf("%w: students only", domain.ErrPermission)
	}
	return nil
}

// RequireMentor rejects students from mentor-only operations.
func RequireMentor(actor domain.Actor) error {
	if !actor.IsMentor() {
		return fmt.Errorf("%w: mentors only", domain.ErrPermission)
	}
	return nil
}

// RequireMember allows current members only.
func RequireMember(actor domain.Actor, team *domain.Team) error {
	if !team.HasMember(actor.UserID) {
		return fmt.Errorf("%w: not a member of team %s", domain.ErrPermission, team.ID)
	}
	return nil
}

// RequireViewer allows members and the assigned mentor.
func RequireViewer(actor domain.Actor, team *domain.Team) error {
	if !team.CanView(actor.UserID) {
		return fmt.Errorf("%w: no access to team %s", domain.ErrPermission, team.ID)
	}
	return nil
}

// RequireAssignedMentor allows only the team's mentor.
func RequireAssignedMentor(actor domain.Actor, team *domain.Team) error {
	if !actor.IsMentor() || team.MentorID != actor.UserID {
		return fmt.Errorf("%w: only the assigned mentor may review team %s", domain.ErrPermission, team.ID)
	}
	return nil
}

// RequireCreator allows only the team creator.
func RequireCreator(actor domain.Actor, team *domain.Team) error {
	if team.CreatorID != actor.UserID {
		return fmt.Errorf("%w: only the team creator may do this", domain.ErrPermission)
	}
	return nil
}
