// Package sweeper contains the periodic evaluators: SLA recomputation,
// snooze expiry, due-date reminders, and retention cleanup. Each sweeper
// owns one concern and runs on its own interval so a slow pass in one never
// delays the others.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sweeper is one periodic evaluation pass.
type Sweeper interface {
	// Name identifies the sweeper in logs.
	Name() string

	// Sweep runs one evaluation pass.
	Sweep(ctx context.Context) error
}

// Loop runs a Sweeper on a fixed interval until the context is cancelled.
// A panicking or failing pass is logged and the loop keeps going; one bad
// pass must not take the evaluator down for good.
type Loop struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger
}

// NewLoop creates a Loop for the given sweeper.
func NewLoop(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *Loop {
	return &Loop{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.With("sweeper", sweeper.Name()),
	}
}

// Run blocks until ctx is cancelled, running one pass per interval tick.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("sweeper started", "interval", l.interval)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			if err := l.runOnce(ctx); err != nil {
				l.logger.Error("sweep pass failed", "error", err)
			}
		}
	}
}

func (l *Loop) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep pass panicked: %v", r)
		}
	}()
	return l.sweeper.Sweep(ctx)
}
