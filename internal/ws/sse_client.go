package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrStreamingUnsupported is returned by OpenSSE when the response writer
// cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Event is one server-sent event frame.
type Event struct {
	ID   string
	Type string
	Data []byte
}

// SSEClient writes typed events to one text/event-stream response. Every
// event carrying an id is written at most once per stream, so a replay and
// a live push of the same note collapse into one frame.
type SSEClient struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	log     *slog.Logger
	sent    map[string]struct{}
	closed  bool
	last    time.Time
}

// OpenSSE sends the event-stream headers and, when retry is positive, the
// reconnect delay browsers should use.
func OpenSSE(w http.ResponseWriter, retry time.Duration, logger *slog.Logger) (*SSEClient, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if retry > 0 {
		if _, err := fmt.Fprintf(w, "retry: %d\n\n", retry.Milliseconds()); err != nil {
			return nil, err
		}
	}
	flusher.Flush()
	return &SSEClient{
		w:       w,
		flusher: flusher,
		log:     logger,
		sent:    make(map[string]struct{}),
		last:    time.Now().UTC(),
	}, nil
}

// LastEventID is the resume cursor of a stream request. EventSource sends the
// Last-Event-ID header on reconnects; first connects may pass last_event_id.
func LastEventID(req *http.Request) string {
	if id := strings.TrimSpace(req.Header.Get("Last-Event-ID")); id != "" {
		return id
	}
	return strings.TrimSpace(req.URL.Query().Get("last_event_id"))
}

// Send implements Subscriber. The frame takes its id and event name from the
// payload's "id" and "type" fields when present.
func (c *SSEClient) Send(payload []byte) error {
	var head struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	_ = json.Unmarshal(payload, &head)
	return c.SendEvent(Event{ID: head.ID, Type: head.Type, Data: payload})
}

// SendEvent writes ev, skipping ids this stream has already carried.
func (c *SSEClient) SendEvent(ev Event) error {
	if strings.ContainsAny(ev.ID+ev.Type, "\r\n") {
		return errors.New("sse: event id and type must be single line")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	if ev.ID != "" {
		if _, dup := c.sent[ev.ID]; dup {
			return nil
		}
	}

	var frame bytes.Buffer
	if ev.ID != "" {
		frame.WriteString("id: " + ev.ID + "\n")
	}
	if ev.Type != "" {
		frame.WriteString("event: " + ev.Type + "\n")
	}
	for _, line := range bytes.Split(ev.Data, []byte("\n")) {
		frame.WriteString("data: ")
		frame.Write(line)
		frame.WriteByte('\n')
	}
	frame.WriteByte('\n')
	if err := c.write(frame.Bytes()); err != nil {
		c.log.Warn("sse event failed", "event", ev.Type, "error", err)
		return err
	}
	if ev.ID != "" {
		c.sent[ev.ID] = struct{}{}
	}
	return nil
}

// Heartbeat writes a comment frame.
func (c *SSEClient) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.EOF
	}
	return c.write([]byte(": keepalive\n\n"))
}

// write must be called with mu held.
func (c *SSEClient) write(frame []byte) error {
	if _, err := c.w.Write(frame); err != nil {
		c.closed = true
		return err
	}
	c.flusher.Flush()
	c.last = time.Now().UTC()
	return nil
}

// Close marks the stream closed; later writes return io.EOF.
func (c *SSEClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// LastActivity reports when the last frame went out.
func (c *SSEClient) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
