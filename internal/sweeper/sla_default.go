package sweeper

import (
	"context"

	"github.com/opsdeskhq/opsdesk/internal/clock"
	"github.com/opsdeskhq/opsdesk/internal/domain"
)

// DueDateEvaluator is the built-in SLAEvaluator: a ticket with a policy
// assignment breaches once its due date has passed. Snoozed tickets are
// exempt; their clock is effectively paused until the snooze sweeper wakes
// them.
type DueDateEvaluator struct {
	clock clock.Clock
}

// NewDueDateEvaluator creates a DueDateEvaluator.
func NewDueDateEvaluator(clk clock.Clock) *DueDateEvaluator {
	return &DueDateEvaluator{clock: clk}
}

// Recompute implements SLAEvaluator.
func (e *DueDateEvaluator) Recompute(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	if ticket.SLABreached || ticket.IsSnoozed() {
		return false, nil
	}
	if ticket.DueAt == nil || ticket.DueAt.After(e.clock.Now()) {
		return false, nil
	}

	ticket.SLABreached = true
	return true, nil
}

var _ SLAEvaluator = (*DueDateEvaluator)(nil)
