// Package appreciation delivers private peer notes between teammates.
package appreciation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
	"github.com/splax/skillsync/internal/service/access"
	"github.com/splax/skillsync/internal/ws"
)

const (
	maxMessageRunes = 1000
	publishTimeout  = 2 * time.Second
)

// Store is the persistence appreciation needs.
type Store interface {
	repository.TeamRepository
	repository.AppreciationRepository
}

// Service handles peer appreciation.
type Service struct {
	store     Store
	publisher ws.Publisher
	logger    *slog.Logger
}

// New constructs a Service. publisher may be nil when live delivery is off.
func New(store Store, publisher ws.Publisher, logger *slog.Logger) Service {
	return Service{store: store, publisher: publisher, logger: logger.With("component", "appreciation")}
}

// UserTopic is the push topic for notes addressed to userID.
func UserTopic(userID string) string {
	return "user:" + userID
}

// Send records a note from the actor to a teammate and pushes it to the recipient.
func (s Service) Send(ctx context.Context, actor domain.Actor, teamID, toUser, message string) (*domain.Appreciation, error) {
	message = strings.TrimSpace(message)
	toUser = strings.TrimSpace(toUser)
	switch {
	case message == "":
		return nil, fmt.Errorf("%w: message is required", domain.ErrValidation)
	case utf8.RuneCountInString(message) > maxMessageRunes:
		return nil, fmt.Errorf("%w: message exceeds %d characters", domain.ErrValidation, maxMessageRunes)
	case toUser == "":
		return nil, fmt.Errorf("%w: recipient is required", domain.ErrValidation)
	case toUser == actor.UserID:
		return nil, fmt.Errorf("%w: cannot appreciate yourself", domain.ErrValidation)
	}

	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireMember(actor, team); err != nil {
		return nil, err
	}
	if !team.HasMember(toUser) {
		return nil, fmt.Errorf("%w: %s is not a member of team %s", domain.ErrValidation, toUser, team.ID)
	}

	note := &domain.Appreciation{
		ID:        uuid.NewString(),
		TeamID:    team.ID,
		FromUser:  actor.UserID,
		ToUser:    toUser,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAppreciation(ctx, note); err != nil {
		return nil, fmt.Errorf("%w: store appreciation: %v", domain.ErrTransport, err)
	}
	s.logger.Info("appreciation sent", "team_id", team.ID, "from", actor.UserID, "to", toUser)
	s.push(ctx, note)
	return note, nil
}

func (s Service) push(ctx context.Context, note *domain.Appreciation) {
	if s.publisher == nil {
		return
	}
	payload, err := MarshalNote(*note)
	if err != nil {
		s.logger.Error("encode appreciation", "error", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, UserTopic(note.ToUser), payload); err != nil {
		s.logger.Warn("appreciation push failed", "to", note.ToUser, "error", err)
	}
}

// ListReceived returns the notes addressed to the actor within a team, newest first.
func (s Service) ListReceived(ctx context.Context, actor domain.Actor, teamID string) ([]domain.Appreciation, error) {
	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireMember(actor, team); err != nil {
		return nil, err
	}
	return s.store.ListAppreciationsTo(ctx, team.ID, actor.UserID)
}

// ListAllReceived returns every note addressed to the actor across teams,
// newest first.
func (s Service) ListAllReceived(ctx context.Context, actor domain.Actor) ([]domain.Appreciation, error) {
	if actor.UserID == "" {
		return nil, fmt.Errorf("%w: caller identity is required", domain.ErrPermission)
	}
	return s.store.ListAppreciationsReceived(ctx, actor.UserID)
}

// ReceivedAfter returns the actor's notes newer than the note lastID, oldest
// first, for resuming a notification stream. An unknown lastID yields
// nothing: the caller has no usable cursor and should list instead.
func (s Service) ReceivedAfter(ctx context.Context, actor domain.Actor, lastID string) ([]domain.Appreciation, error) {
	if lastID == "" {
		return nil, nil
	}
	all, err := s.ListAllReceived(ctx, actor)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(all, func(a domain.Appreciation) bool { return a.ID == lastID })
	if idx < 0 {
		s.logger.Debug("unknown resume cursor", "user_id", actor.UserID, "last_event_id", lastID)
		return nil, nil
	}
	newer := slices.Clone(all[:idx])
	slices.Reverse(newer)
	return newer, nil
}

// MarshalNote encodes a note as a typed push event.
func MarshalNote(note domain.Appreciation) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		domain.Appreciation
	}{Type: "appreciation", Appreciation: note})
}
