package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opsdeskhq/opsdesk/internal/events"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// WebhookFanoutHandler reacts to domain events by enqueuing one webhook
// delivery task per enabled webhook subscribed to the event's trigger
// type. Delivery itself, including retry, happens in the webhook handler
// once the dispatcher picks the task up.
type WebhookFanoutHandler struct {
	webhooks store.WebhookStore
	enqueuer *Enqueuer
	logger   *slog.Logger
}

// NewWebhookFanoutHandler creates a new WebhookFanoutHandler.
func NewWebhookFanoutHandler(
	webhooks store.WebhookStore,
	enqueuer *Enqueuer,
	logger *slog.Logger,
) *WebhookFanoutHandler {
	return &WebhookFanoutHandler{
		webhooks: webhooks,
		enqueuer: enqueuer,
		logger:   logger.With("component", "webhook_fanout"),
	}
}

// HandleEvent enqueues a webhook_delivery task for each subscribed
// webhook. Failing to enqueue for one webhook does not stop fan-out to
// the others; the first error is returned.
func (h *WebhookFanoutHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	subscribed, err := h.webhooks.ListEnabledByTrigger(ctx, event.Type)
	if err != nil {
		return fmt.Errorf("failed to list webhooks for trigger %q: %w", event.Type, err)
	}

	var firstErr error
	for _, wh := range subscribed {
		payload := map[string]interface{}{
			"webhook_id": wh.ID,
			"trigger":    event.Type,
			"payload":    event.Payload,
		}

		taskID, err := h.enqueuer.Enqueue(ctx, TypeWebhookDelivery, payload)
		if err != nil {
			h.logger.Error("failed to enqueue webhook delivery",
				"error", err,
				"webhook_id", wh.ID,
				"event_id", event.ID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		h.logger.Debug("webhook delivery enqueued",
			"task_id", taskID,
			"webhook_id", wh.ID,
			"event_type", event.Type)
	}

	return firstErr
}

// Ensure WebhookFanoutHandler implements events.Handler
var _ events.Handler = (*WebhookFanoutHandler)(nil)
