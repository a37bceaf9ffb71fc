package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/k9quest/progression-hub/internal/domain/shared"
	"github.com/k9quest/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS RELAY
// Engine outcomes (badges, bonuses, stages, daily tasks, coin credits) are
// re-published on a Redis channel for out-of-process consumers. Inbound
// user-action events stay local.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultRelayChannel is the Redis channel engine events are published to.
const DefaultRelayChannel = "progression:events"

// RedisPublisher is the subset of go-redis used by the relay.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Envelope is the wire format of a relayed event.
type Envelope struct {
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// RedisRelay forwards engine events to a Redis channel.
type RedisRelay struct {
	client  RedisPublisher
	channel string
	logger  *logger.Logger
}

// NewRedisRelay creates a relay. An empty channel selects DefaultRelayChannel.
func NewRedisRelay(client RedisPublisher, channel string, log *logger.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisRelay{client: client, channel: channel, logger: log.With(logger.Component("redis_relay"))}
}

// Attach subscribes the relay to every event on the bus.
func (r *RedisRelay) Attach(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(r.Handle)
}

// Handle publishes an engine event. Failures are logged and swallowed so a
// Redis outage never fails the user action that produced the event.
func (r *RedisRelay) Handle(ctx context.Context, event shared.Event) error {
	if !IsEngineEvent(event.EventType()) {
		return nil
	}

	data, err := json.Marshal(Envelope{
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn("failed to relay event",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
	return nil
}

// IsEngineEvent reports whether the event is produced by a progression engine.
func IsEngineEvent(t shared.EventType) bool {
	if t == shared.EventCoinsCredited {
		return true
	}
	for _, prefix := range []string{"badge.", "scoring.", "path.", "challenge."} {
		if strings.HasPrefix(string(t), prefix) {
			return true
		}
	}
	return false
}
