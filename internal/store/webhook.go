package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeskhq/opsdesk/internal/domain"
)

// WebhookStore defines the persistence interface for webhook endpoints.
type WebhookStore interface {
	// GetByID retrieves a webhook by its ID.
	// Returns ErrWebhookNotFound if the webhook does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error)

	// ListEnabledByTrigger returns all enabled webhooks subscribed to the
	// given trigger type.
	ListEnabledByTrigger(ctx context.Context, trigger string) ([]*domain.Webhook, error)
}

// WebhookLogStore defines the persistence interface for webhook delivery
// logs. The delete methods back the retention sweep and are bounded so one
// pass never holds locks on an unbounded row set.
type WebhookLogStore interface {
	// Create persists a new log row before the first delivery attempt.
	Create(ctx context.Context, log *domain.WebhookLog) error

	// Update persists the final outcome of a delivery attempt-set.
	Update(ctx context.Context, log *domain.WebhookLog) error

	// Count returns the total number of log rows.
	Count(ctx context.Context) (int, error)

	// DeleteOlderThan deletes up to limit rows created before the cutoff,
	// oldest first, and returns how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error)

	// DeleteOldest deletes the n oldest rows and returns how many were
	// deleted.
	DeleteOldest(ctx context.Context, n int) (int, error)
}
