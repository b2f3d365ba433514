package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Domain event types emitted by the background-job subsystem.
const (
	// EventTicketUnsnoozed is emitted when a ticket's snooze window
	// expires. The payload records whether the unsnooze was automatic so
	// downstream notification and SLA-extension handling can distinguish
	// it from a manual unsnooze.
	EventTicketUnsnoozed = "ticket_unsnoozed"
)

// Event represents something that happened in the domain, carried to
// handlers without the emitter knowing who consumes it.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type identifies the kind of event
	Type string `json:"type"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified type and payload.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// TicketUnsnoozedPayload is the payload of an EventTicketUnsnoozed event.
type TicketUnsnoozedPayload struct {
	TicketID    int64 `json:"ticket_id"`
	Automatic   bool  `json:"automatic"`
	DueExtended bool  `json:"due_extended"`
}

// Handler defines an interface for components that can handle events.
type Handler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// Emitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type Emitter interface {
	// Emit publishes the given event to all registered handlers.
	Emit(ctx context.Context, event *Event) error
}
