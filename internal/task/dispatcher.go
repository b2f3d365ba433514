package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/platform/logger"
)

// DispatcherConfig holds configuration for the dispatcher loop.
type DispatcherConfig struct {
	// PollInterval determines how long the loop sleeps between wakes.
	// If zero, defaults to 1 second.
	PollInterval time.Duration
}

// DefaultDispatcherConfig returns a DispatcherConfig with reasonable defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PollInterval: time.Second,
	}
}

// Dispatcher polls the durable queue, claims at most one task per wake,
// resolves its handler through the registry, and invokes it. Multiple
// dispatcher processes can run against the same queue: the store's
// skip-locked claim guarantees each task is executed by at most one of
// them.
type Dispatcher struct {
	store    Store
	registry *Registry
	config   DispatcherConfig
	logger   *slog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(store Store, registry *Registry, config DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}

	return &Dispatcher{
		store:    store,
		registry: registry,
		config:   config,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Run executes the dispatch loop until the context is cancelled. A claimed
// task finishes its handler before cancellation is observed at the next
// wake; there is no preemption mid-task.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started",
		"poll_interval", d.config.PollInterval,
		"registered_types", d.registry.Types())

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case <-ticker.C:
			d.DispatchOne(ctx)
		}
	}
}

// DispatchOne claims and executes at most one task. It reports whether a
// task was claimed. Handler failures never propagate: they are recorded on
// the task row and logged.
func (d *Dispatcher) DispatchOne(ctx context.Context) bool {
	rec, err := d.store.ClaimNext(ctx)
	if err != nil {
		d.logger.Error("failed to claim task", "error", err)
		return false
	}
	if rec == nil {
		return false
	}

	taskLogger := d.logger.With(
		"task_id", rec.ID,
		"task_type", rec.Type)
	taskCtx := logger.WithLogger(ctx, taskLogger)

	// Handlers report business progress through the context; it lands on
	// the task row so /stats and the queue table see a live percentage.
	taskCtx = WithProgressReporter(taskCtx, func(percent int) {
		if err := d.store.SetProgress(ctx, rec.ID, percent); err != nil {
			taskLogger.Warn("failed to record task progress", "error", err)
		}
	})

	handler, err := d.registry.Resolve(rec.Type)
	if err != nil {
		// Unknown tags are a fatal dispatch error for this task, never
		// retried. The enqueuer rejects them up front, so reaching this
		// point means the row predates the current registry.
		taskLogger.Error("no handler registered for task type")
		d.markError(ctx, rec, err.Error())
		return true
	}

	taskLogger.Info("processing task")

	if err := d.invoke(taskCtx, handler, rec); err != nil {
		taskLogger.Error("task execution failed", "error", err)
		d.markError(ctx, rec, err.Error())
		return true
	}

	// Execution succeeded; a business failure, if any, is recorded on the
	// associated job record, not here.
	if err := d.store.MarkComplete(ctx, rec.ID); err != nil {
		taskLogger.Error("failed to mark task complete", "error", err)
	} else {
		taskLogger.Info("task completed")
	}
	return true
}

// invoke runs the handler, converting a panic into an error so a broken
// handler cannot take down the dispatch loop.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, rec *Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task handler panicked: %v", p)
		}
	}()

	return handler.Handle(ctx, rec.Payload)
}

func (d *Dispatcher) markError(ctx context.Context, rec *Record, message string) {
	if err := d.store.MarkError(ctx, rec.ID, message); err != nil {
		d.logger.Error("failed to mark task as errored",
			"task_id", rec.ID,
			"error", err)
	}
}
