package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Domain event types published on state changes
const (
	EventPullPaymentCreated  = "pull_payment.created"
	EventPullPaymentArchived = "pull_payment.archived"
	EventPayoutCreated       = "payout.created"
	EventPayoutApproved      = "payout.approved"
	EventPayoutCancelled     = "payout.cancelled"
	EventPayoutCompleted     = "payout.completed"
)

// Event is a typed domain event
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// EventPublisher publishes domain events to interested subscribers
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// RedisEventPublisher publishes events as JSON on redis pub/sub channels,
// one channel per event type
type RedisEventPublisher struct {
	client        *redis.Client
	channelPrefix string
}

// NewRedisEventPublisher creates a redis-backed event publisher
func NewRedisEventPublisher(client *redis.Client, channelPrefix string) EventPublisher {
	if channelPrefix == "" {
		channelPrefix = "susanoo:events:"
	}
	return &RedisEventPublisher{
		client:        client,
		channelPrefix: channelPrefix,
	}
}

// Publish sends the event; subscribers that miss it miss it, pub/sub carries
// no replay guarantee
func (p *RedisEventPublisher) Publish(ctx context.Context, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channelPrefix+event.Type, raw).Err()
}

// NopEventPublisher drops all events; used when redis is not configured
type NopEventPublisher struct{}

func (NopEventPublisher) Publish(ctx context.Context, event Event) error { return nil }
