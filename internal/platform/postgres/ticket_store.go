package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// TicketStore implements store.TicketStore using PostgreSQL.
type TicketStore struct {
	db store.DBTX
}

// NewTicketStore creates a new TicketStore.
func NewTicketStore(db store.DBTX) *TicketStore {
	return &TicketStore{db: db}
}

const ticketColumns = `
	id, subject, status, priority, requester_id, assignee_id,
	sla_policy_id, sla_breached, due_at,
	snoozed_at, snoozed_until, reminder_sent_at,
	tags, created_at, updated_at
`

// GetByID retrieves a ticket by its ID.
func (s *TicketStore) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	ticket, err := scanTicket(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", MapError(err))
	}
	return ticket, nil
}

// Update persists all mutable fields of the ticket.
func (s *TicketStore) Update(ctx context.Context, ticket *domain.Ticket) error {
	tags, err := json.Marshal(ticket.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket tags: %w", err)
	}

	query := `
		UPDATE tickets
		SET subject = $1, status = $2, priority = $3,
		    requester_id = $4, assignee_id = $5,
		    sla_policy_id = $6, sla_breached = $7, due_at = $8,
		    snoozed_at = $9, snoozed_until = $10, reminder_sent_at = $11,
		    tags = $12, updated_at = $13
		WHERE id = $14
	`
	result, err := s.db.ExecContext(ctx, query,
		ticket.Subject,
		ticket.Status,
		ticket.Priority,
		ticket.RequesterID,
		ticket.AssigneeID,
		ticket.SLAPolicyID,
		ticket.SLABreached,
		ticket.DueAt,
		ticket.SnoozedAt,
		ticket.SnoozedUntil,
		ticket.ReminderSentAt,
		tags,
		time.Now().UTC(),
		ticket.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "ticket"); err != nil {
		return store.ErrTicketNotFound
	}
	return nil
}

// ListSLACandidates returns open, non-breached tickets carrying an SLA
// policy assignment.
func (s *TicketStore) ListSLACandidates(ctx context.Context, limit int) ([]*domain.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE status IN ('open', 'pending')
		  AND sla_breached = FALSE
		  AND sla_policy_id IS NOT NULL
		ORDER BY due_at ASC NULLS LAST
		LIMIT $1
	`
	return s.list(ctx, query, limit)
}

// ListSnoozeExpired returns tickets whose snooze window has passed.
func (s *TicketStore) ListSnoozeExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE snoozed_until IS NOT NULL
		  AND snoozed_until <= $1
		ORDER BY snoozed_until ASC
		LIMIT $2
	`
	return s.list(ctx, query, now, limit)
}

// ListDueForReminder returns open tickets due within [from, to] that have
// no reminder stamp.
func (s *TicketStore) ListDueForReminder(ctx context.Context, from, to time.Time, limit int) ([]*domain.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE status IN ('open', 'pending')
		  AND due_at IS NOT NULL
		  AND due_at >= $1 AND due_at <= $2
		  AND reminder_sent_at IS NULL
		ORDER BY due_at ASC
		LIMIT $3
	`
	return s.list(ctx, query, from, to, limit)
}

// SetReminderSent stamps the reminder timestamp on a ticket.
func (s *TicketStore) SetReminderSent(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE tickets SET reminder_sent_at = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, at, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to stamp reminder: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "ticket"); err != nil {
		return store.ErrTicketNotFound
	}
	return nil
}

// CountForExport returns the number of tickets matching the filter.
func (s *TicketStore) CountForExport(ctx context.Context, filter store.TicketFilter) (int, error) {
	query := `
		SELECT COUNT(*) FROM tickets
		WHERE created_at <= $1
		  AND ($2 = '' OR status = $2)
	`
	var n int
	err := s.db.QueryRowContext(ctx, query, filter.CreatedBefore, filter.Status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tickets for export: %w", MapError(err))
	}
	return n, nil
}

// ListForExport returns the next export page strictly after the cursor.
// Ordering is keyset-based on the sort field with id as tie-breaker, so
// pages stay consistent while the underlying table keeps changing.
func (s *TicketStore) ListForExport(
	ctx context.Context,
	filter store.TicketFilter,
	cursor store.TicketCursor,
	limit int,
) ([]*domain.Ticket, error) {
	var query string
	var args []interface{}

	if filter.SortField == "id" {
		query = `
			SELECT ` + ticketColumns + `
			FROM tickets
			WHERE created_at <= $1
			  AND ($2 = '' OR status = $2)
			  AND id > $3
			ORDER BY id ASC
			LIMIT $4
		`
		args = []interface{}{filter.CreatedBefore, filter.Status, cursor.ID, limit}
	} else {
		query = `
			SELECT ` + ticketColumns + `
			FROM tickets
			WHERE created_at <= $1
			  AND ($2 = '' OR status = $2)
			  AND (created_at, id) > ($3, $4)
			ORDER BY created_at ASC, id ASC
			LIMIT $5
		`
		args = []interface{}{filter.CreatedBefore, filter.Status, cursor.CreatedAt, cursor.ID, limit}
	}

	return s.list(ctx, query, args...)
}

func (s *TicketStore) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var tickets []*domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket row: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket rows: %w", err)
	}
	return tickets, nil
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var t domain.Ticket
	var slaPolicyID sql.NullInt64
	var dueAt, snoozedAt, snoozedUntil, reminderSentAt sql.NullTime
	var tags []byte

	err := row.Scan(
		&t.ID,
		&t.Subject,
		&t.Status,
		&t.Priority,
		&t.RequesterID,
		&t.AssigneeID,
		&slaPolicyID,
		&t.SLABreached,
		&dueAt,
		&snoozedAt,
		&snoozedUntil,
		&reminderSentAt,
		&tags,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if slaPolicyID.Valid {
		v := slaPolicyID.Int64
		t.SLAPolicyID = &v
	}
	t.DueAt = nullTimePtr(dueAt)
	t.SnoozedAt = nullTimePtr(snoozedAt)
	t.SnoozedUntil = nullTimePtr(snoozedUntil)
	t.ReminderSentAt = nullTimePtr(reminderSentAt)

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &t.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ticket tags: %w", err)
		}
	}
	return &t, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ store.TicketStore = (*TicketStore)(nil)
