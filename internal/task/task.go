package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the execution state of a queued task. The task row
// tracks execution only; business progress (row counters, stages) lives on
// the associated job record so it stays visible while the task is still
// processing.
type Status string

// Possible task status values
const (
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Task type tags. The set is closed: the registry maps exactly these tags
// to handler instances and the enqueuer rejects anything else.
const (
	TypeContactImport   = "contact_import"
	TypeTicketExport    = "ticket_export"
	TypeContactExport   = "contact_export"
	TypeWebhookDelivery = "webhook_delivery"
)

// Record is a unit of deferred work tracked by the durable queue.
type Record struct {
	ID      uuid.UUID       `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Status  Status          `json:"status"`

	RetryCount   int    `json:"retry_count"`
	ErrorMessage string `json:"error_message"`
	Percent      int    `json:"percent"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// NewRecord creates an enqueued task record for the given type tag with the
// payload serialized as JSON.
func NewRecord(taskType string, payload interface{}) (*Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Record{
		ID:        uuid.New(),
		Type:      taskType,
		Payload:   raw,
		Status:    StatusEnqueued,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Handler executes one task type. Implementations receive the task's
// deserialized argument payload and the dispatcher loop's cancellation
// signal. A returned error marks the task as errored; business-level
// failure is recorded on the associated job instead and the handler
// returns nil.
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage) error {
	return f(ctx, payload)
}

// Store defines the interface for persisting tasks.
type Store interface {
	// Enqueue persists a new task record.
	Enqueue(ctx context.Context, rec *Record) error

	// ClaimNext atomically claims the oldest enqueued task, transitioning
	// it to processing, and returns it. Rows locked by concurrent
	// claimants are skipped rather than waited on, so at most one claimant
	// ever receives a given task. Returns (nil, nil) when the queue is
	// empty.
	ClaimNext(ctx context.Context) (*Record, error)

	// MarkComplete transitions a task to complete with 100% progress and a
	// completion timestamp.
	MarkComplete(ctx context.Context, id uuid.UUID) error

	// MarkError transitions a task to error with the given message.
	MarkError(ctx context.Context, id uuid.UUID, message string) error

	// SetProgress updates the task's percent-complete.
	SetProgress(ctx context.Context, id uuid.UUID, percent int) error

	// CountByStatus returns the number of tasks per status.
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
