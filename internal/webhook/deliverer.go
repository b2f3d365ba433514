// Package webhook implements outbound webhook delivery with bounded retry.
// Each delivery task posts the event payload to one endpoint, retrying on
// transient failures and recording the full attempt-set in a log row.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

const (
	// maxAttempts bounds the attempt-set; a delivery never makes more than
	// this many HTTP requests.
	maxAttempts = 3

	// requestTimeout bounds one HTTP request, not the whole attempt-set.
	requestTimeout = 30 * time.Second

	// Persisted response bodies and error messages are truncated so one
	// misbehaving endpoint cannot bloat the log table.
	maxResponseBody = 1000
	maxErrorMessage = 500

	eventHeader = "X-OpsDesk-Event"
	userAgent   = "OpsDesk-Webhook/1.0"
)

// Payload is the task argument payload for a webhook delivery, produced by
// the event fan-out handler.
type Payload struct {
	WebhookID uuid.UUID       `json:"webhook_id"`
	Trigger   string          `json:"trigger"`
	Payload   json.RawMessage `json:"payload"`
}

// Deliverer executes webhook_delivery tasks. It implements task.Handler.
type Deliverer struct {
	webhooks store.WebhookStore
	logs     store.WebhookLogStore
	client   *http.Client
	logger   *slog.Logger

	// sleep is swapped out in tests so retry backoff does not wall-block.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDeliverer creates a Deliverer with a client bounded by the per-request
// timeout.
func NewDeliverer(
	webhooks store.WebhookStore,
	logs store.WebhookLogStore,
	logger *slog.Logger,
) *Deliverer {
	return &Deliverer{
		webhooks: webhooks,
		logs:     logs,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger.With("component", "webhook_delivery"),
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Handle delivers one webhook payload, retrying transient failures up to
// the attempt ceiling. The task itself only fails for infrastructure
// errors (missing webhook, log persistence); an endpoint that keeps
// refusing the payload yields a completed task with a failed log row.
func (d *Deliverer) Handle(ctx context.Context, payload json.RawMessage) error {
	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal webhook delivery payload: %w", err)
	}

	wh, err := d.webhooks.GetByID(ctx, p.WebhookID)
	if err != nil {
		return fmt.Errorf("failed to load webhook %s: %w", p.WebhookID, err)
	}
	if !wh.Enabled {
		d.logger.Info("skipping delivery to disabled webhook", "webhook_id", wh.ID)
		return nil
	}

	// The log row exists before the first network call so a crash
	// mid-delivery is visible.
	log := domain.NewWebhookLog(wh.ID, p.Trigger, p.Payload)
	if err := d.logs.Create(ctx, log); err != nil {
		return fmt.Errorf("failed to create webhook log: %w", err)
	}

	start := time.Now()
	d.deliver(ctx, wh, p, log)

	now := time.Now().UTC()
	log.DurationMs = time.Since(start).Milliseconds()
	log.CompletedAt = &now
	if err := d.logs.Update(ctx, log); err != nil {
		return fmt.Errorf("failed to finalize webhook log: %w", err)
	}

	if log.Success {
		d.logger.Info("webhook delivered",
			"webhook_id", wh.ID,
			"trigger", p.Trigger,
			"attempts", log.AttemptCount,
			"status", log.StatusCode)
	} else {
		d.logger.Warn("webhook delivery failed",
			"webhook_id", wh.ID,
			"trigger", p.Trigger,
			"attempts", log.AttemptCount,
			"status", log.StatusCode,
			"error", log.ErrorMessage)
	}
	return nil
}

// deliver runs the attempt loop, mutating the log row with the outcome of
// the final attempt.
func (d *Deliverer) deliver(ctx context.Context, wh *domain.Webhook, p Payload, log *domain.WebhookLog) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log.AttemptCount = attempt

		status, body, err := d.attempt(ctx, wh, p)
		log.StatusCode = status
		log.ResponseBody = truncate(body, maxResponseBody)

		if err != nil {
			log.ErrorMessage = truncate(err.Error(), maxErrorMessage)
		} else if status >= 200 && status < 300 {
			log.Success = true
			log.ErrorMessage = ""
			return
		} else {
			log.ErrorMessage = truncate(fmt.Sprintf("endpoint returned status %d", status), maxErrorMessage)
		}

		if !Retryable(status, err) {
			return
		}
		if attempt == maxAttempts {
			return
		}

		if err := d.sleep(ctx, Backoff(attempt)); err != nil {
			log.ErrorMessage = truncate(err.Error(), maxErrorMessage)
			return
		}
	}
}

// attempt makes one HTTP POST. A zero status with a non-nil error means the
// request never produced a response.
func (d *Deliverer) attempt(ctx context.Context, wh *domain.Webhook, p Payload) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(p.Payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(eventHeader, p.Trigger)
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	// Read a bounded prefix; anything past the persistence cap is discarded.
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if readErr != nil {
		return resp.StatusCode, "", readErr
	}
	return resp.StatusCode, string(body), nil
}

// Retryable decides whether another attempt is worthwhile: network-level
// failures and 5xx responses are transient, 4xx responses mean the endpoint
// understood the request and rejected it.
func Retryable(status int, err error) bool {
	if err != nil {
		return true
	}
	return status >= 500
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
