package store

import (
	"context"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/domain"
)

// TicketFilter restricts ticket queries for export. CreatedBefore is the
// snapshot cutoff: records created after it are excluded regardless of when
// the query runs.
type TicketFilter struct {
	Status        string
	CreatedBefore time.Time

	// SortField orders export pages; supported values are "created_at"
	// (default) and "id". The primary key is always appended as a
	// tie-breaker so keyset batch boundaries stay deterministic.
	SortField string
}

// TicketCursor is the keyset pagination position for export page queries:
// the (created_at, id) pair of the last row of the previous page.
type TicketCursor struct {
	CreatedAt time.Time
	ID        int64
}

// TicketStore defines the persistence interface for tickets. List methods
// are bulk scans and must read without holding session state across calls.
type TicketStore interface {
	// GetByID retrieves a ticket by its ID.
	// Returns ErrTicketNotFound if the ticket does not exist.
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)

	// Update persists all mutable fields of the ticket.
	Update(ctx context.Context, ticket *domain.Ticket) error

	// ListSLACandidates returns up to limit open, non-breached tickets that
	// carry an SLA policy assignment, oldest due date first.
	ListSLACandidates(ctx context.Context, limit int) ([]*domain.Ticket, error)

	// ListSnoozeExpired returns up to limit tickets whose snooze window has
	// passed at the given instant, oldest snooze expiry first.
	ListSnoozeExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Ticket, error)

	// ListDueForReminder returns up to limit open tickets whose due date
	// falls within [from, to] and that have no reminder stamp yet, oldest
	// due date first.
	ListDueForReminder(ctx context.Context, from, to time.Time, limit int) ([]*domain.Ticket, error)

	// SetReminderSent stamps the reminder timestamp on a ticket.
	SetReminderSent(ctx context.Context, id int64, at time.Time) error

	// CountForExport returns the number of tickets matching the filter.
	CountForExport(ctx context.Context, filter TicketFilter) (int, error)

	// ListForExport returns the next page of tickets matching the filter,
	// ordered by (created_at, id) ascending, strictly after the cursor.
	ListForExport(
		ctx context.Context,
		filter TicketFilter,
		cursor TicketCursor,
		limit int,
	) ([]*domain.Ticket, error)
}
