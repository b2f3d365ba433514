package domain

import (
	"errors"
	"time"
)

// Ticket-specific validation errors
var (
	// ErrTicketIDInvalid is returned when a ticket ID is zero or negative.
	ErrTicketIDInvalid = errors.New("ticket ID must be a positive integer")

	// ErrTicketSubjectEmpty is returned when a ticket subject is empty.
	ErrTicketSubjectEmpty = errors.New("ticket subject cannot be empty")

	// ErrTicketStatusInvalid is returned when a ticket status is not a known value.
	ErrTicketStatusInvalid = errors.New("ticket status is not a valid status")
)

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

// Possible ticket status values
const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusClosed   TicketStatus = "closed"
)

// IsOpen reports whether the status counts as an active, workable state.
// Resolved and closed tickets are excluded from SLA, snooze, and reminder
// evaluation.
func (s TicketStatus) IsOpen() bool {
	return s == TicketStatusOpen || s == TicketStatusPending
}

// Ticket represents a helpdesk ticket. Tickets carry the time-based state
// (due date, snooze window, SLA assignment) that the periodic evaluators
// scan and mutate.
type Ticket struct {
	ID          int64        `json:"id"`
	Subject     string       `json:"subject"`
	Status      TicketStatus `json:"status"`
	Priority    string       `json:"priority"`
	RequesterID int64        `json:"requester_id"`
	AssigneeID  int64        `json:"assignee_id"`

	// SLAPolicyID is nil when no SLA policy is assigned to the ticket.
	SLAPolicyID *int64 `json:"sla_policy_id"`
	SLABreached bool   `json:"sla_breached"`

	DueAt *time.Time `json:"due_at"`

	// SnoozedAt and SnoozedUntil are set together when a ticket is snoozed
	// and cleared together when the snooze expires.
	SnoozedAt    *time.Time `json:"snoozed_at"`
	SnoozedUntil *time.Time `json:"snoozed_until"`

	// ReminderSentAt is stamped by the reminder evaluator so a ticket is
	// reminded at most once per due date.
	ReminderSentAt *time.Time `json:"reminder_sent_at"`

	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the Ticket has valid data.
func (t *Ticket) Validate() error {
	if t.ID <= 0 {
		return ErrTicketIDInvalid
	}
	if t.Subject == "" {
		return ErrTicketSubjectEmpty
	}
	switch t.Status {
	case TicketStatusOpen, TicketStatusPending, TicketStatusResolved, TicketStatusClosed:
	default:
		return ErrTicketStatusInvalid
	}
	return nil
}

// IsSnoozed reports whether the ticket currently carries a snooze window.
func (t *Ticket) IsSnoozed() bool {
	return t.SnoozedUntil != nil
}

// ClearSnooze removes the snooze window. Callers decide separately whether
// the due date is extended by the elapsed snooze duration.
func (t *Ticket) ClearSnooze() {
	t.SnoozedAt = nil
	t.SnoozedUntil = nil
}
