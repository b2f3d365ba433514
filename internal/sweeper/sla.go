package sweeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// SLAEvaluator recomputes a ticket's SLA state in place. The policy math
// lives behind this interface; the sweeper only cares whether anything
// changed.
type SLAEvaluator interface {
	// Recompute updates the ticket's SLA-derived fields (due date, breach
	// flag) and reports whether anything changed.
	Recompute(ctx context.Context, ticket *domain.Ticket) (changed bool, err error)
}

// SLASweeper recomputes SLA state for open tickets carrying a policy
// assignment. Only tickets the evaluator actually changed are written back.
type SLASweeper struct {
	tickets   store.TicketStore
	evaluator SLAEvaluator
	batchSize int
	logger    *slog.Logger
}

// NewSLASweeper creates an SLASweeper.
func NewSLASweeper(
	tickets store.TicketStore,
	evaluator SLAEvaluator,
	batchSize int,
	logger *slog.Logger,
) *SLASweeper {
	return &SLASweeper{
		tickets:   tickets,
		evaluator: evaluator,
		batchSize: batchSize,
		logger:    logger.With("sweeper", "sla"),
	}
}

// Name implements Sweeper.
func (s *SLASweeper) Name() string { return "sla" }

// Sweep evaluates one batch of SLA candidates. A failure on one ticket is
// logged and the pass continues; the first error is returned after the
// batch finishes.
func (s *SLASweeper) Sweep(ctx context.Context) error {
	candidates, err := s.tickets.ListSLACandidates(ctx, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list SLA candidates: %w", err)
	}

	var firstErr error
	changedCount := 0
	for _, ticket := range candidates {
		changed, err := s.evaluator.Recompute(ctx, ticket)
		if err != nil {
			s.logger.Error("SLA recompute failed", "ticket_id", ticket.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !changed {
			continue
		}

		if err := s.tickets.Update(ctx, ticket); err != nil {
			s.logger.Error("failed to persist SLA update", "ticket_id", ticket.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		changedCount++
	}

	if changedCount > 0 {
		s.logger.Info("SLA pass complete",
			"evaluated", len(candidates),
			"changed", changedCount)
	}
	return firstErr
}

var _ Sweeper = (*SLASweeper)(nil)
