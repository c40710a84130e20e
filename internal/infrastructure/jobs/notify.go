package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"larder/internal/infrastructure/storage/postgres"
	"larder/pkg/logger"
)

// NotificationChannel is the redis pub/sub channel delivery notifications are published on.
const NotificationChannel = "larder:notifications"

// Notification is the envelope published for every outbox event.
type Notification struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	EventType   string          `json:"eventType"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// NotificationPublisher forwards outbox messages to redis pub/sub.
type NotificationPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewNotificationPublisher creates a publisher on NotificationChannel.
func NewNotificationPublisher(client redis.UniversalClient) *NotificationPublisher {
	return &NotificationPublisher{client: client, channel: NotificationChannel}
}

// WithChannel publishes on channel instead of NotificationChannel.
func (p *NotificationPublisher) WithChannel(channel string) *NotificationPublisher {
	if channel != "" {
		p.channel = channel
	}
	return p
}

var _ postgres.OutboxHandler = (*NotificationPublisher)(nil)

// Handle publishes one outbox message.
func (p *NotificationPublisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	body, err := json.Marshal(Notification{
		ID:          msg.ID.String(),
		TenantID:    msg.TenantID,
		EventType:   msg.EventType,
		AggregateID: msg.AggregateID,
		Payload:     msg.Payload,
		OccurredAt:  msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// OutboxDrainer is satisfied by *postgres.OutboxRelay.
type OutboxDrainer interface {
	ProcessBatch(ctx context.Context) (int, error)
	MoveToDLQ(ctx context.Context) (int64, error)
}

// RunOutboxRelay drains the outbox every interval until ctx is done.
func RunOutboxRelay(ctx context.Context, relay OutboxDrainer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for {
			n, err := relay.ProcessBatch(ctx)
			if err != nil {
				logger.Error(ctx, "outbox relay batch failed", "error", err)
				break
			}
			if n == 0 {
				break
			}
			logger.Debug(ctx, "outbox relay published", "count", n)
		}
		if moved, err := relay.MoveToDLQ(ctx); err != nil {
			logger.Error(ctx, "outbox dlq move failed", "error", err)
		} else if moved > 0 {
			logger.Warn(ctx, "outbox messages moved to dlq", "count", moved)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
