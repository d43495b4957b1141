package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
	"github.com/splax/skillsync/internal/service/access"
	"github.com/splax/skillsync/internal/teamlock"
)

// Store is the persistence the state machine reads and writes.
type Store interface {
	repository.TeamRepository
	repository.FileRepository
	repository.SubmissionRepository
}

// Config holds lifecycle policy.
type Config struct {
	ResubmissionLimit int
}

// Service applies review transitions under the team lock.
type Service struct {
	store  Store
	locker teamlock.Locker
	cfg    Config
	logger *slog.Logger
}

// New constructs a Service.
func New(store Store, locker teamlock.Locker, cfg Config, logger *slog.Logger) Service {
	if cfg.ResubmissionLimit < 0 {
		cfg.ResubmissionLimit = 0
	}
	return Service{store: store, locker: locker, cfg: cfg, logger: logger.With("component", "workflow")}
}

// Submit moves an open team to submitted and records a new attempt with the
// current file set.
func (s Service) Submit(ctx context.Context, actor domain.Actor, teamID string) (*domain.Submission, error) {
	release, err := access.Lock(ctx, s.locker, teamID)
	if err != nil {
		return nil, err
	}
	defer release()

	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireCreator(actor, team); err != nil {
		return nil, err
	}
	if !IsOpen(team) {
		return nil, fmt.Errorf("%w: team is already %s", domain.ErrState, team.ReviewStatus)
	}
	resubmission := team.ReviewStatus == domain.StatusRejected
	if resubmission && team.Resubmissions >= s.cfg.ResubmissionLimit {
		return nil, fmt.Errorf("%w: resubmission limit of %d reached", domain.ErrState, s.cfg.ResubmissionLimit)
	}

	files, err := s.store.ListFiles(ctx, team.ID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: upload at least one file before submitting", domain.ErrState)
	}

	attempt := 1
	latest, err := s.store.LatestSubmission(ctx, team.ID)
	switch {
	case err == nil:
		attempt = latest.Attempt + 1
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	fileIDs := make([]string, 0, len(files))
	for _, f := range files {
		fileIDs = append(fileIDs, f.ID)
	}
	sub := &domain.Submission{
		ID:          uuid.NewString(),
		TeamID:      team.ID,
		Attempt:     attempt,
		Status:      domain.StatusSubmitted,
		FileIDs:     fileIDs,
		SubmittedAt: time.Now().UTC(),
	}
	if resubmission {
		team.Resubmissions++
	}
	from := team.ReviewStatus
	team.ReviewStatus = domain.StatusSubmitted
	if err := s.store.RecordSubmission(ctx, team, sub); err != nil {
		return nil, access.Translate(err, "team "+team.ID)
	}
	s.logger.Info("team submitted", "team_id", team.ID, "from", from, "attempt", attempt, "files", len(fileIDs))
	return sub, nil
}

// Decide applies the assigned mentor's outcome to a submitted team.
func (s Service) Decide(ctx context.Context, actor domain.Actor, teamID string, outcome domain.ReviewStatus, feedback string) (*domain.Submission, error) {
	if !validOutcome(outcome) {
		return nil, fmt.Errorf("%w: outcome must be approved or rejected", domain.ErrValidation)
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
		return nil, fmt.Errorf("%w: team is %s, not submitted", domain.ErrState, team.ReviewStatus)
	}

	sub, err := s.store.LatestSubmission(ctx, team.ID)
	if err != nil {
		return nil, access.Translate(err, "submission for team "+team.ID)
	}
	now := time.Now().UTC()
	sub.Status = outcome
	sub.MentorFeedback = strings.TrimSpace(feedback)
	sub.DecidedAt = &now
	team.ReviewStatus = outcome
	if err := s.store.RecordDecision(ctx, team, sub); err != nil {
		return nil, access.Translate(err, "team "+team.ID)
	}
	s.logger.Info("review decided", "team_id", team.ID, "mentor_id", actor.UserID, "outcome", outcome, "attempt", sub.Attempt)
	return sub, nil
}
