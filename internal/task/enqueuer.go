package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Enqueuer creates task records for producers. It validates the type tag
// against the registry so unknown tags are rejected at enqueue time rather
// than surfacing as a dispatch error later.
type Enqueuer struct {
	store    Store
	registry *Registry
	logger   *slog.Logger
}

// NewEnqueuer creates a new Enqueuer.
func NewEnqueuer(store Store, registry *Registry, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{
		store:    store,
		registry: registry,
		logger:   logger.With("component", "task_enqueuer"),
	}
}

// Enqueue persists a new task of the given type with the payload
// serialized as JSON and returns its ID.
func (e *Enqueuer) Enqueue(ctx context.Context, taskType string, payload interface{}) (uuid.UUID, error) {
	if _, err := e.registry.Resolve(taskType); err != nil {
		return uuid.Nil, err
	}

	rec, err := NewRecord(taskType, payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	if err := e.store.Enqueue(ctx, rec); err != nil {
		return uuid.Nil, fmt.Errorf("failed to save task: %w", err)
	}

	e.logger.Debug("task enqueued",
		"task_id", rec.ID,
		"task_type", rec.Type)

	return rec.ID, nil
}
