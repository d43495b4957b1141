package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/splax/skillsync/internal/domain"
)

// DefaultPollInterval is how often a watcher reconciles with the server.
const DefaultPollInterval = 5 * time.Second

// ChatWatcher keeps a local view of a team chat. Periodic fetches are the
// system of record; the websocket push stream only shortens latency.
type ChatWatcher struct {
	client   *Client
	token    string
	teamID   string
	interval time.Duration
	push     bool
	dialer   *websocket.Dialer
	logger   *slog.Logger

	mu   sync.Mutex
	view []domain.ChatMessage
	keys map[string]struct{}
	// fetched is the highest seq returned by a fetch. Pushes never move it,
	// so a dropped push is still picked up by the next poll.
	fetched int64
}

// WatchOption customises a ChatWatcher.
type WatchOption func(*ChatWatcher)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) WatchOption {
	return func(w *ChatWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithPush enables the websocket push stream.
func WithPush(enabled bool) WatchOption {
	return func(w *ChatWatcher) { w.push = enabled }
}

// WithLogger routes watcher diagnostics.
func WithLogger(logger *slog.Logger) WatchOption {
	return func(w *ChatWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewChatWatcher builds a watcher for one team.
func NewChatWatcher(c *Client, token, teamID string, opts ...WatchOption) *ChatWatcher {
	w := &ChatWatcher{
		client:   c,
		token:    token,
		teamID:   teamID,
		interval: DefaultPollInterval,
		dialer:   websocket.DefaultDialer,
		logger:   slog.Default(),
		keys:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls, and optionally listens for pushes, until ctx is cancelled.
// onUpdate receives the full merged view whenever it changes.
func (w *ChatWatcher) Run(ctx context.Context, onUpdate func([]domain.ChatMessage)) error {
	if onUpdate == nil {
		onUpdate = func([]domain.ChatMessage) {}
	}
	var wg sync.WaitGroup
	defer wg.Wait()

	if w.push {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.listen(ctx, onUpdate)
		}()
	}

	w.poll(ctx, onUpdate)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll(ctx, onUpdate)
		}
	}
}

// Messages returns a copy of the current view.
func (w *ChatWatcher) Messages() []domain.ChatMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.view)
}

// cursor is the highest seq covered by fetches so far.
func (w *ChatWatcher) cursor() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fetched
}

func (w *ChatWatcher) poll(ctx context.Context, onUpdate func([]domain.ChatMessage)) {
	msgs, err := w.client.FetchChat(ctx, w.token, w.teamID, w.cursor())
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Debug("chat poll failed; keeping last view", "team_id", w.teamID, "error", err)
		}
		return
	}
	w.advance(msgs)
	if w.merge(msgs...) {
		onUpdate(w.Messages())
	}
}

func (w *ChatWatcher) advance(msgs []domain.ChatMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, msg := range msgs {
		w.fetched = max(w.fetched, msg.Seq)
	}
}

// listen keeps a push stream open, reconnecting after failures, until ctx ends.
func (w *ChatWatcher) listen(ctx context.Context, onUpdate func([]domain.ChatMessage)) {
	for ctx.Err() == nil {
		if err := w.stream(ctx, onUpdate); err != nil && ctx.Err() == nil {
			w.logger.Debug("chat push stream dropped", "team_id", w.teamID, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

func (w *ChatWatcher) stream(ctx context.Context, onUpdate func([]domain.ChatMessage)) error {
	endpoint, err := w.streamURL()
	if err != nil {
		return err
	}
	conn, _, err := w.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var frame struct {
			Type string `json:"type"`
			domain.ChatMessage
		}
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "chat.message" {
			continue
		}
		if w.merge(frame.ChatMessage) {
			onUpdate(w.Messages())
		}
	}
}

func (w *ChatWatcher) streamURL() (string, error) {
	base, err := url.Parse(w.client.BaseURL())
	if err != nil {
		return "", err
	}
	switch base.Scheme {
	case "https":
		base.Scheme = "wss"
	default:
		base.Scheme = "ws"
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/teams/" + url.PathEscape(w.teamID) + "/chat/stream"
	query := url.Values{}
	query.Set("token", w.token)
	query.Set("since", fmt.Sprint(w.cursor()))
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// merge folds msgs into the view and reports whether anything new arrived.
func (w *ChatWatcher) merge(msgs ...domain.ChatMessage) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	added := false
	for _, msg := range msgs {
		key := identity(msg)
		if _, seen := w.keys[key]; seen {
			continue
		}
		w.keys[key] = struct{}{}
		w.view = append(w.view, msg)
		added = true
	}
	if added {
		slices.SortStableFunc(w.view, compareMessages)
	}
	return added
}

// identity is the message id, or the sender and timestamp when no id exists.
func identity(msg domain.ChatMessage) string {
	if msg.ID != "" {
		return "id:" + msg.ID
	}
	return "sender:" + msg.SenderID + "@" + msg.CreatedAt.UTC().Format(time.RFC3339Nano)
}

func compareMessages(a, b domain.ChatMessage) int {
	switch {
	case a.Seq != b.Seq && a.Seq != 0 && b.Seq != 0:
		if a.Seq < b.Seq {
			return -1
		}
		return 1
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
