package ws

import (
	"context"
	"errors"
	"sync"
)

// ErrHubClosed is returned by Publish after Close.
var ErrHubClosed = errors.New("hub closed")

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Publisher delivers a payload to every subscriber of a topic. Delivery is
// best-effort; callers treat errors as a degraded push channel, never as a
// failed write.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// sendQueueSize bounds how many payloads may wait for one subscriber. A
// subscriber that falls this far behind is dropped.
const sendQueueSize = 64

// Hub manages stream subscriptions by topic. Each subscriber gets its own
// writer goroutine, so a stalled connection never holds up the run loop.
type Hub struct {
	clients   map[string]map[Subscriber]chan []byte
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countRequest
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// message couples payload with its topic.
type message struct {
	topic   string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	topic  string
	client Subscriber
}

type countRequest struct {
	topic string
	reply chan int
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]chan []byte),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
		count:     make(chan countRequest),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case sub := <-h.register:
			clients, ok := h.clients[sub.topic]
			if !ok {
				clients = make(map[Subscriber]chan []byte)
				h.clients[sub.topic] = clients
			}
			if _, dup := clients[sub.client]; dup {
				continue
			}
			queue := make(chan []byte, sendQueueSize)
			clients[sub.client] = queue
			go h.write(sub.topic, sub.client, queue)
		case sub := <-h.unreg:
			h.drop(sub.topic, sub.client, false)
		case msg := <-h.broadcast:
			for c, queue := range h.clients[msg.topic] {
				select {
				case queue <- msg.payload:
				default:
					h.drop(msg.topic, c, true)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.topic])
		case <-h.done:
			for _, clients := range h.clients {
				for c, queue := range clients {
					close(queue)
					c.Close()
				}
			}
			h.clients = nil
			return
		}
	}
}

// drop closes the subscriber's queue and forgets it. Only the run loop
// sends on or closes a queue.
func (h *Hub) drop(topic string, c Subscriber, closeClient bool) {
	clients, ok := h.clients[topic]
	if !ok {
		return
	}
	queue, ok := clients[c]
	if !ok {
		return
	}
	close(queue)
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.clients, topic)
	}
	if closeClient {
		c.Close()
	}
}

// write drains one subscriber's queue. A failed send closes the subscriber
// and removes it from the hub.
func (h *Hub) write(topic string, c Subscriber, queue <-chan []byte) {
	for payload := range queue {
		if err := c.Send(payload); err != nil {
			c.Close()
			h.Unregister(topic, c)
			return
		}
	}
}

// Register adds a client to a topic.
func (h *Hub) Register(topic string, client Subscriber) {
	select {
	case h.register <- subscription{topic: topic, client: client}:
	case <-h.stopped:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(topic string, client Subscriber) {
	select {
	case h.unreg <- subscription{topic: topic, client: client}:
	case <-h.stopped:
	}
}

// Broadcast sends payload to all topic clients.
func (h *Hub) Broadcast(topic string, payload []byte) {
	_ = h.Publish(context.Background(), topic, payload)
}

// Publish implements Publisher for in-process delivery.
func (h *Hub) Publish(ctx context.Context, topic string, payload []byte) error {
	select {
	case h.broadcast <- message{topic: topic, payload: payload}:
		return nil
	case <-h.stopped:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribers reports how many clients listen on topic.
func (h *Hub) Subscribers(topic string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{topic: topic, reply: reply}:
		return <-reply
	case <-h.stopped:
		return 0
	}
}

// Close disconnects every subscriber and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
	<-h.stopped
}
