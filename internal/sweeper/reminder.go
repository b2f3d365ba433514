package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/clock"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// Notifier delivers a notification to a target user. The Redis-backed
// implementation lives in platform/redisx.
type Notifier interface {
	Send(ctx context.Context, targetID int64, payload interface{}) error
}

// reminderPayload is the notification body for a due-date reminder.
type reminderPayload struct {
	Kind     string    `json:"kind"`
	TicketID int64     `json:"ticket_id"`
	Subject  string    `json:"subject"`
	DueAt    time.Time `json:"due_at"`
}

// ReminderSweeper notifies assignees about tickets coming up on their due
// date. The reminder stamp makes each ticket remind at most once per due
// date; the stamp is only written after the notification went out.
type ReminderSweeper struct {
	tickets  store.TicketStore
	notifier Notifier
	clock    clock.Clock

	lead      time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewReminderSweeper creates a ReminderSweeper with the given lead window.
func NewReminderSweeper(
	tickets store.TicketStore,
	notifier Notifier,
	clk clock.Clock,
	lead time.Duration,
	batchSize int,
	logger *slog.Logger,
) *ReminderSweeper {
	return &ReminderSweeper{
		tickets:   tickets,
		notifier:  notifier,
		clock:     clk,
		lead:      lead,
		batchSize: batchSize,
		logger:    logger.With("sweeper", "reminder"),
	}
}

// Name implements Sweeper.
func (s *ReminderSweeper) Name() string { return "reminder" }

// Sweep notifies one batch of tickets due within the lead window.
func (s *ReminderSweeper) Sweep(ctx context.Context) error {
	now := s.clock.Now()

	due, err := s.tickets.ListDueForReminder(ctx, now, now.Add(s.lead), s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list reminder candidates: %w", err)
	}

	var firstErr error
	sent := 0
	for _, ticket := range due {
		if ticket.DueAt == nil || ticket.AssigneeID == 0 {
			continue
		}

		payload := reminderPayload{
			Kind:     "ticket_due_reminder",
			TicketID: ticket.ID,
			Subject:  ticket.Subject,
			DueAt:    *ticket.DueAt,
		}
		if err := s.notifier.Send(ctx, ticket.AssigneeID, payload); err != nil {
			s.logger.Error("failed to send reminder", "ticket_id", ticket.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := s.tickets.SetReminderSent(ctx, ticket.ID, now); err != nil {
			// Unstamped but notified: the next pass may remind again, which
			// beats silently never reminding.
			s.logger.Error("failed to stamp reminder", "ticket_id", ticket.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sent++
	}

	if sent > 0 {
		s.logger.Info("reminder pass complete", "sent", sent)
	}
	return firstErr
}

var _ Sweeper = (*ReminderSweeper)(nil)
