// Package redisx contains Redis-backed implementations of collaborator
// interfaces, currently the real-time notification transport.
package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes notification payloads to a Redis pub/sub channel.
// The connected-client fan-out on the other side of the channel is outside
// this subsystem.
type Notifier struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// notificationEnvelope is the wire format published to the channel.
type notificationEnvelope struct {
	TargetID int64       `json:"target_id"`
	Payload  interface{} `json:"payload"`
	SentAt   time.Time   `json:"sent_at"`
}

// NewNotifier creates a Notifier publishing to the given channel.
func NewNotifier(client *redis.Client, channel string, logger *slog.Logger) *Notifier {
	return &Notifier{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "redis_notifier"),
	}
}

// Send publishes a notification for the target user.
func (n *Notifier) Send(ctx context.Context, targetID int64, payload interface{}) error {
	data, err := json.Marshal(notificationEnvelope{
		TargetID: targetID,
		Payload:  payload,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Debug("notification published",
		"channel", n.channel,
		"target_id", targetID)
	return nil
}

// LogNotifier is a fallback notifier used when Redis is not configured.
// It records the notification in the log and drops it.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "log_notifier")}
}

// Send logs the notification.
func (n *LogNotifier) Send(ctx context.Context, targetID int64, payload interface{}) error {
	n.logger.Info("notification (no transport configured)",
		"target_id", targetID)
	return nil
}
