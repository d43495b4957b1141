// Package session schedules mentor meetings with teams.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
	"github.com/splax/skillsync/internal/service/access"
)

// Store is the persistence sessions need.
type Store interface {
	repository.TeamRepository
	repository.SessionRepository
}

// Service handles mentor sessions.
type Service struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// New constructs a Service.
func New(store Store, logger *slog.Logger) Service {
	return Service{store: store, now: time.Now, logger: logger.With("component", "session")}
}

// Schedule books a session for a team. Only the assigned mentor may do this.
func (s Service) Schedule(ctx context.Context, actor domain.Actor, teamID string, at time.Time, link string) (*domain.Session, error) {
	if at.IsZero() {
		return nil, fmt.Errorf("%w: scheduled time is required", domain.ErrValidation)
	}
	link, err := normalizeLink(link)
	if err != nil {
		return nil, err
	}
	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireAssignedMentor(actor, team); err != nil {
		return nil, err
	}

	sess := &domain.Session{
		ID:          uuid.NewString(),
		TeamID:      team.ID,
		MentorID:    actor.UserID,
		ScheduledAt: at.UTC(),
		MeetingLink: link,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, access.Translate(err, "session")
	}
	s.logger.Info("session scheduled", "team_id", team.ID, "mentor_id", actor.UserID, "at", sess.ScheduledAt)
	out := sess.WithStatus(s.now())
	return &out, nil
}

// UpdateLink replaces the meeting link of a session the actor owns.
func (s Service) UpdateLink(ctx context.Context, actor domain.Actor, sessionID, link string) (*domain.Session, error) {
	link, err := normalizeLink(link)
	if err != nil {
		return nil, err
	}
	sess, err := s.owned(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateSessionLink(ctx, sess.ID, link); err != nil {
		return nil, access.Translate(err, "session "+sess.ID)
	}
	sess.MeetingLink = link
	out := sess.WithStatus(s.now())
	return &out, nil
}

// Delete cancels a session the actor owns.
func (s Service) Delete(ctx context.Context, actor domain.Actor, sessionID string) error {
	sess, err := s.owned(ctx, actor, sessionID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, sess.ID); err != nil {
		return access.Translate(err, "session "+sess.ID)
	}
	s.logger.Info("session deleted", "session_id", sess.ID, "team_id", sess.TeamID)
	return nil
}

// ListForTeam returns a team's sessions to its members and mentor.
func (s Service) ListForTeam(ctx context.Context, actor domain.Actor, teamID string) ([]domain.Session, error) {
	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireViewer(actor, team); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessionsByTeam(ctx, team.ID)
	if err != nil {
		return nil, err
	}
	return s.withStatus(sessions), nil
}

// ListForMentor returns every session the mentor owns.
func (s Service) ListForMentor(ctx context.Context, actor domain.Actor) ([]domain.Session, error) {
	if err := access.RequireMentor(actor); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessionsByMentor(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return s.withStatus(sessions), nil
}

func (s Service) owned(ctx context.Context, actor domain.Actor, sessionID string) (*domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, access.Translate(err, "session "+sessionID)
	}
	if !actor.IsMentor() || sess.MentorID != actor.UserID {
		return nil, fmt.Errorf("%w: only the owning mentor may change session %s", domain.ErrPermission, sessionID)
	}
	return sess, nil
}

func (s Service) withStatus(sessions []domain.Session) []domain.Session {
	now := s.now()
	for i := range sessions {
		sessions[i] = sessions[i].WithStatus(now)
	}
	return sessions
}

func normalizeLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", nil
	}
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: meeting link must be an http(s) url", domain.ErrValidation)
	}
	return link, nil
}
