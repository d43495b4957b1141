package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// RedisRelay fans topic events out to every replica's Hub through one Redis
// pub/sub channel. Publish never delivers locally on success: the relay's own
// subscription does, so each replica sees every event exactly once.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
	log     *slog.Logger
}

type relayEnvelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// NewRedisRelay wires hub to channel on client.
func NewRedisRelay(client redis.UniversalClient, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{client: client, channel: channel, hub: hub, log: logger}
}

// Publish sends the event through Redis, falling back to local delivery when
// Redis is unreachable.
func (r *RedisRelay) Publish(ctx context.Context, topic string, payload []byte) error {
	raw, err := json.Marshal(relayEnvelope{Topic: topic, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, raw).Err(); err != nil {
		r.log.Warn("redis relay publish failed, delivering locally", "topic", topic, "error", err)
		return r.hub.Publish(ctx, topic, payload)
	}
	return nil
}

// Run consumes the channel until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("discarding malformed relay event", "error", err)
				continue
			}
			if err := r.hub.Publish(ctx, env.Topic, env.Payload); err != nil {
				return nil
			}
		}
	}
}
