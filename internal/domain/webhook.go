package domain

import (
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Webhook-specific validation errors
var (
	// ErrWebhookIDEmpty is returned when a webhook ID is empty or nil.
	ErrWebhookIDEmpty = errors.New("webhook ID cannot be empty")

	// ErrWebhookURLInvalid is returned when a webhook URL is empty or unparsable.
	ErrWebhookURLInvalid = errors.New("webhook URL must be a valid http(s) URL")
)

// Webhook represents a configured outbound webhook endpoint.
type Webhook struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	URL     string    `json:"url"`
	Enabled bool      `json:"enabled"`

	// Triggers lists the event types this webhook subscribes to.
	Triggers []string `json:"triggers"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the Webhook has valid data.
func (w *Webhook) Validate() error {
	if w.ID == uuid.Nil {
		return ErrWebhookIDEmpty
	}
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrWebhookURLInvalid
	}
	return nil
}

// WebhookLog records one delivery attempt-set for a webhook: it is created
// before the first network call and updated once after the final outcome,
// so a crash mid-delivery leaves an unfinished log row rather than none.
type WebhookLog struct {
	ID        uuid.UUID `json:"id"`
	WebhookID uuid.UUID `json:"webhook_id"`
	Trigger   string    `json:"trigger"`

	Payload json.RawMessage `json:"payload"`

	AttemptCount int  `json:"attempt_count"`
	Success      bool `json:"success"`

	// StatusCode is the HTTP status of the final attempt, zero when the
	// request never produced a response.
	StatusCode int `json:"status_code"`

	// ResponseBody holds the final response body truncated to a bounded
	// length.
	ResponseBody string `json:"response_body"`
	ErrorMessage string `json:"error_message"`

	// DurationMs is the wall-clock time of the whole attempt-set,
	// including backoff waits.
	DurationMs int64 `json:"duration_ms"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// NewWebhookLog creates a log row for a delivery that is about to start.
func NewWebhookLog(webhookID uuid.UUID, trigger string, payload json.RawMessage) *WebhookLog {
	return &WebhookLog{
		ID:        uuid.New(),
		WebhookID: webhookID,
		Trigger:   trigger,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
