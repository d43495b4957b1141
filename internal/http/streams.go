package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/splax/skillsync/internal/domain"
	"github.com/splax/skillsync/internal/service/appreciation"
	"github.com/splax/skillsync/internal/service/chat"
	"github.com/splax/skillsync/internal/ws"
)

const (
	streamBacklogLimit = 200
	sseRetry           = 3 * time.Second
)

// handleChatStream upgrades to a websocket that receives every new message of
// the team. Text frames of the form {"text": "..."} are sent as chat messages.
// The optional since query replays stored messages after that seq first.
func (r *Router) handleChatStream(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	since, err := parseInt64(req.URL.Query().Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be an integer")
		return
	}
	backlog, err := r.svc.Chat.Fetch(req.Context(), actor, teamID, since, streamBacklogLimit)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	ctx := req.Context()
	unsubscribe, err := r.svc.Chat.Subscribe(ctx, actor, teamID, client)
	if err != nil {
		r.logger.Warn("chat subscribe failed", "team_id", teamID, "error", err)
		client.Close()
		return
	}
	done := r.trackStream("chat")
	defer func() {
		unsubscribe()
		client.Close()
		done()
	}()

	// Messages appended between the first fetch and Subscribe are caught up here.
	last := since
	if n := len(backlog); n > 0 {
		last = backlog[n-1].Seq
	}
	if gap, err := r.svc.Chat.Fetch(ctx, actor, teamID, last, streamBacklogLimit); err == nil {
		backlog = append(backlog, gap...)
	}
	for _, msg := range backlog {
		payload, err := chat.MarshalMessage(msg)
		if err != nil {
			continue
		}
		if err := client.Send(payload); err != nil {
			return
		}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					client.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &frame); err != nil || frame.Text == "" {
			continue
		}
		if _, err := r.svc.Chat.Send(ctx, actor, teamID, frame.Text); err != nil {
			kind := domain.Kind(err)
			r.recordDomainError(kind)
			errPayload, _ := json.Marshal(map[string]string{"type": "error", "error": err.Error(), "kind": kind})
			_ = client.Send(errPayload)
		}
	}
}

// handleNotificationStream sends appreciations addressed to the caller as
// typed server-sent events. A reconnect carrying Last-Event-ID first replays
// the notes that arrived after that event.
func (r *Router) handleNotificationStream(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	ctx := req.Context()
	cursor := ws.LastEventID(req)
	missed, err := r.svc.Appreciation.ReceivedAfter(ctx, actor, cursor)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	client, err := ws.OpenSSE(w, sseRetry, r.logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	topic := appreciation.UserTopic(actor.UserID)
	r.svc.Hub.Register(topic, client)
	done := r.trackStream("notifications")
	defer func() {
		r.svc.Hub.Unregister(topic, client)
		client.Close()
		done()
	}()

	// Notes stored between the lookup above and Register are caught by a
	// second lookup; the client drops ids it has already written.
	if n := len(missed); n > 0 {
		cursor = missed[n-1].ID
	}
	if cursor != "" {
		if gap, err := r.svc.Appreciation.ReceivedAfter(ctx, actor, cursor); err == nil {
			missed = append(missed, gap...)
		}
	}
	for _, note := range missed {
		payload, err := appreciation.MarshalNote(note)
		if err != nil {
			continue
		}
		if err := client.Send(payload); err != nil {
			return
		}
	}

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(client.LastActivity()) < r.heartbeat/2 {
				continue
			}
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
