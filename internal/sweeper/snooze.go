package sweeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opsdeskhq/opsdesk/internal/clock"
	"github.com/opsdeskhq/opsdesk/internal/events"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// SnoozeSweeper wakes tickets whose snooze window has passed. When the
// pause-due-on-snooze setting is on, the due date is pushed out by exactly
// the time the ticket spent snoozed, so snoozing never costs SLA time.
type SnoozeSweeper struct {
	tickets store.TicketStore
	emitter events.Emitter
	clock   clock.Clock

	pauseDue  bool
	batchSize int
	logger    *slog.Logger
}

// NewSnoozeSweeper creates a SnoozeSweeper.
func NewSnoozeSweeper(
	tickets store.TicketStore,
	emitter events.Emitter,
	clk clock.Clock,
	pauseDue bool,
	batchSize int,
	logger *slog.Logger,
) *SnoozeSweeper {
	return &SnoozeSweeper{
		tickets:   tickets,
		emitter:   emitter,
		clock:     clk,
		pauseDue:  pauseDue,
		batchSize: batchSize,
		logger:    logger.With("sweeper", "snooze"),
	}
}

// Name implements Sweeper.
func (s *SnoozeSweeper) Name() string { return "snooze" }

// Sweep wakes one batch of expired snoozes, emitting a ticket_unsnoozed
// event per woken ticket.
func (s *SnoozeSweeper) Sweep(ctx context.Context) error {
	now := s.clock.Now()

	expired, err := s.tickets.ListSnoozeExpired(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list expired snoozes: %w", err)
	}

	var firstErr error
	for _, ticket := range expired {
		if ticket.SnoozedUntil == nil {
			continue
		}

		// The extension is the time actually spent snoozed, measured from
		// snoozed_at to the wake. The sweeper always wakes tickets some
		// time after snoozed_until passes; that overshoot is part of the
		// snoozed period and must not eat into the SLA either.
		dueExtended := false
		if s.pauseDue && ticket.DueAt != nil && ticket.SnoozedAt != nil {
			elapsed := now.Sub(*ticket.SnoozedAt)
			if elapsed > 0 {
				extended := ticket.DueAt.Add(elapsed)
				ticket.DueAt = &extended
				dueExtended = true
			}
		}

		ticket.ClearSnooze()

		if err := s.tickets.Update(ctx, ticket); err != nil {
			s.logger.Error("failed to wake snoozed ticket", "ticket_id", ticket.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		s.logger.Info("ticket unsnoozed",
			"ticket_id", ticket.ID,
			"due_extended", dueExtended)

		event, err := events.NewEvent(events.EventTicketUnsnoozed, events.TicketUnsnoozedPayload{
			TicketID:    ticket.ID,
			Automatic:   true,
			DueExtended: dueExtended,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.emitter.Emit(ctx, event); err != nil {
			// The ticket is already woken; event delivery failure only
			// loses the downstream notification.
			s.logger.Error("failed to emit unsnooze event", "ticket_id", ticket.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

var _ Sweeper = (*SnoozeSweeper)(nil)
