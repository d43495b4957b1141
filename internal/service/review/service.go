// Package review is the mentor-facing surface: rubric grading, decisions,
// private notes and the pending review queue.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
	"github.com/splax/skillsync/internal/service/access"
	"github.com/splax/skillsync/internal/teamlock"
)

const maxNoteRunes = 10000

// Store is the persistence review needs.
type Store interface {
	repository.TeamRepository
	repository.SubmissionRepository
}

// Decider applies review outcomes; workflow.Service implements it.
type Decider interface {
	Decide(ctx context.Context, actor domain.Actor, teamID string, outcome domain.ReviewStatus, feedback string) (*domain.Submission, error)
}

// Service handles mentor review actions.
type Service struct {
	store   Store
	locker  teamlock.Locker
	decider Decider
	logger  *slog.Logger
}

// New constructs a Service. locker must be the team aggregate locker.
func New(store Store, locker teamlock.Locker, decider Decider, logger *slog.Logger) Service {
	return Service{store: store, locker: locker, decider: decider, logger: logger.With("component", "review")}
}

// PostRubric grades the current submission.
func (s Service) PostRubric(ctx context.Context, actor domain.Actor, teamID string, rubric domain.Rubric) (*domain.Submission, error) {
	for _, score := range rubric.Scores() {
		if score < 0 || score > domain.MaxRubricScore {
			return nil, fmt.Errorf("%w: rubric scores must be between 0 and %d", domain.ErrValidation, domain.MaxRubricScore)
		}
	}
	release, err := access.Lock(ctx, s.locker, teamID)
	if err != nil {
		return nil, err
	}
	defer release()

	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireAssignedMentor(actor, team); err != nil {
		return nil, err
	}
	if team.ReviewStatus != domain.StatusSubmitted {
		return nil, fmt.Errorf("%w: rubric can only be posted while the team is submitted", domain.ErrState)
	}
	sub, err := s.store.LatestSubmission(ctx, team.ID)
	if err != nil {
		return nil, access.Translate(err, "submission for team "+team.ID)
	}

	now := time.Now().UTC()
	total := rubric.Total()
	sub.Rubric = &rubric
	sub.FinalScore = &total
	sub.GradedAt = &now
	if err := s.store.UpdateSubmission(ctx, sub); err != nil {
		return nil, access.Translate(err, "submission "+sub.ID)
	}
	s.logger.Info("rubric posted", "team_id", team.ID, "mentor_id", actor.UserID, "final_score", total, "attempt", sub.Attempt)
	return sub, nil
}

// PostDecision forwards the outcome to the state machine.
func (s Service) PostDecision(ctx context.Context, actor domain.Actor, teamID string, outcome domain.ReviewStatus, feedback string) (*domain.Submission, error) {
	return s.decider.Decide(ctx, actor, teamID, outcome, feedback)
}

// SaveNotes replaces the mentor's private notes for a team.
func (s Service) SaveNotes(ctx context.Context, actor domain.Actor, teamID, notes string) error {
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > maxNoteRunes {
		return fmt.Errorf("%w: notes exceed %d characters", domain.ErrValidation, maxNoteRunes)
	}
	release, err := access.Lock(ctx, s.locker, teamID)
	if err != nil {
		return err
	}
	defer release()

	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return err
	}
	if err := access.RequireAssignedMentor(actor, team); err != nil {
		return err
	}
	team.MentorNotes = notes
	return access.Translate(s.store.SaveTeam(ctx, team), "team "+team.ID)
}

// Notes returns the mentor's private notes.
func (s Service) Notes(ctx context.Context, actor domain.Actor, teamID string) (string, error) {
	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return "", err
	}
	if err := access.RequireAssignedMentor(actor, team); err != nil {
		return "", err
	}
	return team.MentorNotes, nil
}

// Pending lists the mentor's teams awaiting a decision, oldest update first.
func (s Service) Pending(ctx context.Context, actor domain.Actor) ([]domain.Team, error) {
	if err := access.RequireMentor(actor); err != nil {
		return nil, err
	}
	teams, err := s.store.ListTeamsByMentor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	teams = slices.DeleteFunc(teams, func(t domain.Team) bool { return t.ReviewStatus != domain.StatusSubmitted })
	slices.SortStableFunc(teams, func(a, b domain.Team) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	return teams, nil
}

// Submissions lists every review attempt of a team, newest first.
func (s Service) Submissions(ctx context.Context, actor domain.Actor, teamID string) ([]domain.Submission, error) {
	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireViewer(actor, team); err != nil {
		return nil, err
	}
	return s.store.ListSubmissions(ctx, team.ID)
}
