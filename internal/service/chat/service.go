// Package chat persists per-team message logs and pushes new messages to
// connected members. The store is the system of record; push is best-effort.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/repository"
	"github.com/splax/skillsync/internal/service/access"
	"github.com/splax/skillsync/internal/teamlock"
	"github.com/splax/skillsync/internal/ws"
)

const (
	// DefaultMaxMessageRunes bounds a single message.
	DefaultMaxMessageRunes = 2000
	// DefaultHistoryLimit caps one fetch page.
	DefaultHistoryLimit = 200

	publishTimeout = 2 * time.Second
)

// Store is the persistence chat needs.
type Store interface {
	repository.TeamRepository
	repository.ChatRepository
}

// Config holds message limits.
type Config struct {
	MaxMessageRunes int
	HistoryLimit    int
}

// Service handles team chat.
type Service struct {
	store     Store
	locker    teamlock.Locker
	hub       *ws.Hub
	publisher ws.Publisher
	cfg       Config
	logger    *slog.Logger
}

// New constructs a Service. locker must not be shared with the team
// aggregate lock. publisher may be the hub itself or a relay feeding it.
func New(store Store, locker teamlock.Locker, hub *ws.Hub, publisher ws.Publisher, cfg Config, logger *slog.Logger) Service {
	if cfg.MaxMessageRunes <= 0 {
		cfg.MaxMessageRunes = DefaultMaxMessageRunes
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if publisher == nil {
		publisher = hub
	}
	return Service{store: store, locker: locker, hub: hub, publisher: publisher, cfg: cfg, logger: logger.With("component", "chat")}
}

// Topic is the push topic for a team's chat.
func Topic(teamID string) string {
	return "chat:" + teamID
}

// Send appends a message to the team log and pushes it to subscribers.
func (s Service) Send(ctx context.Context, actor domain.Actor, teamID, text string) (*domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", domain.ErrValidation)
	}
	if n := utf8.RuneCountInString(text); n > s.cfg.MaxMessageRunes {
		return nil, fmt.Errorf("%w: message is %d characters, limit is %d", domain.ErrValidation, n, s.cfg.MaxMessageRunes)
	}
	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireMember(actor, team); err != nil {
		return nil, err
	}

	msg, err := s.append(ctx, actor, team.ID, text)
	if err != nil {
		return nil, err
	}
	s.push(ctx, msg)
	return msg, nil
}

func (s Service) append(ctx context.Context, actor domain.Actor, teamID, text string) (*domain.ChatMessage, error) {
	release, err := access.Lock(ctx, s.locker, teamID)
	if err != nil {
		return nil, err
	}
	defer release()

	msg := &domain.ChatMessage{
		ID:         uuid.NewString(),
		TeamID:     teamID,
		SenderID:   actor.UserID,
		SenderName: actor.DisplayName(),
		Text:       text,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, access.Translate(err, "chat message")
	}
	return msg, nil
}

func (s Service) push(ctx context.Context, msg *domain.ChatMessage) {
	payload, err := MarshalMessage(*msg)
	if err != nil {
		s.logger.Warn("failed to marshal chat payload", "error", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, Topic(msg.TeamID), payload); err != nil {
		s.logger.Warn("chat push failed", "team_id", msg.TeamID, "seq", msg.Seq, "error", err)
	}
}

// Fetch returns up to limit messages with seq greater than since, oldest
// first. A limit <= 0 uses the configured page size.
func (s Service) Fetch(ctx context.Context, actor domain.Actor, teamID string, since int64, limit int) ([]domain.ChatMessage, error) {
	if since < 0 {
		return nil, fmt.Errorf("%w: since must not be negative", domain.ErrValidation)
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireViewer(actor, team); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, team.ID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch chat: %v", domain.ErrTransport, err)
	}
	return msgs, nil
}

// Subscribe registers sub for pushes on the team's chat. The returned func
// unsubscribes.
func (s Service) Subscribe(ctx context.Context, actor domain.Actor, teamID string, sub ws.Subscriber) (func(), error) {
	team, err := access.LoadTeam(ctx, s.store, teamID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireViewer(actor, team); err != nil {
		return nil, err
	}
	topic := Topic(team.ID)
	s.hub.Register(topic, sub)
	s.logger.Debug("chat subscriber joined", "team_id", team.ID, "user_id", actor.UserID)
	return func() { s.hub.Unregister(topic, sub) }, nil
}

// MarshalMessage formats a message for push payloads.
func MarshalMessage(msg domain.ChatMessage) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		domain.ChatMessage
	}{Type: "chat.message", ChatMessage: msg})
}
