package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher publishes lifecycle events on a redis pub/sub channel so
// every instance's hub can forward them to its own clients.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev LifecycleEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish lifecycle event: %w", err)
	}
	return nil
}

// Relay forwards messages from a redis channel into a local hub.
type Relay struct {
	pubsub *redis.PubSub
	logger *zap.Logger
}

// NewRelay subscribes to channel and waits for redis to confirm the
// subscription, so no message published after it returns is missed.
func NewRelay(ctx context.Context, rdb *redis.Client, channel string, logger *zap.Logger) (*Relay, error) {
	pubsub := rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}
	return &Relay{pubsub: pubsub, logger: logger.Named("event_relay")}, nil
}

// Run copies payloads into hub until ctx is done or the subscription closes.
// Malformed payloads are skipped.
func (r *Relay) Run(ctx context.Context, hub *Hub) {
	defer r.pubsub.Close()

	ch := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev LifecycleEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn("skipping malformed lifecycle event", zap.Error(err))
				continue
			}
			hub.deliver([]byte(msg.Payload))
		}
	}
}
