package task

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestDispatcher_DispatchOne(t *testing.T) {
	t.Parallel()

	t.Run("successful dispatch marks task complete", func(t *testing.T) {
		t.Parallel()

		store := NewMockStore()
		registry := NewRegistry()

		var gotPayload json.RawMessage
		registry.Register("noop", HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
			gotPayload = payload
			return nil
		}))

		enqueuer := NewEnqueuer(store, registry, discardLogger())
		id, err := enqueuer.Enqueue(context.Background(), "noop", map[string]string{"key": "value"})
		require.NoError(t, err)

		d := NewDispatcher(store, registry, DefaultDispatcherConfig(), discardLogger())
		claimed := d.DispatchOne(context.Background())

		assert.True(t, claimed)
		assert.JSONEq(t, `{"key":"value"}`, string(gotPayload))

		rec := store.Get(id)
		require.NotNil(t, rec)
		assert.Equal(t, StatusComplete, rec.Status)
		assert.Equal(t, 100, rec.Percent)
		assert.NotNil(t, rec.CompletedAt)
	})

	t.Run("handler progress lands on the task row", func(t *testing.T) {
		t.Parallel()

		store := NewMockStore()
		registry := NewRegistry()

		var midFlight int
		var taskID uuid.UUID
		registry.Register("slow", HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
			ReportProgress(ctx, 42)
			if rec := store.Get(taskID); rec != nil {
				midFlight = rec.Percent
			}
			return nil
		}))

		enqueuer := NewEnqueuer(store, registry, discardLogger())
		id, err := enqueuer.Enqueue(context.Background(), "slow", nil)
		require.NoError(t, err)
		taskID = id

		d := NewDispatcher(store, registry, DefaultDispatcherConfig(), discardLogger())
		require.True(t, d.DispatchOne(context.Background()))

		// The reported percent was visible while the task was still
		// processing; completion then takes it to 100.
		assert.Equal(t, 42, midFlight)
		assert.Equal(t, 100, store.Get(id).Percent)
	})

	t.Run("progress report outside a dispatch is a no-op", func(t *testing.T) {
		t.Parallel()

		assert.NotPanics(t, func() {
			ReportProgress(context.Background(), 50)
		})
	})

	t.Run("handler error marks task errored", func(t *testing.T) {
		t.Parallel()

		store := NewMockStore()
		registry := NewRegistry()
		registry.Register("failing", HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
			return errors.New("boom")
		}))

		enqueuer := NewEnqueuer(store, registry, discardLogger())
		id, err := enqueuer.Enqueue(context.Background(), "failing", nil)
		require.NoError(t, err)

		d := NewDispatcher(store, registry, DefaultDispatcherConfig(), discardLogger())
		claimed := d.DispatchOne(context.Background())

		assert.True(t, claimed)
		rec := store.Get(id)
		require.NotNil(t, rec)
		assert.Equal(t, StatusError, rec.Status)
		assert.Equal(t, "boom", rec.ErrorMessage)
	})

	t.Run("handler panic is contained and recorded", func(t *testing.T) {
		t.Parallel()

		store := NewMockStore()
		registry := NewRegistry()
		registry.Register("panicking", HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
			panic("unexpected state")
		}))

		enqueuer := NewEnqueuer(store, registry, discardLogger())
		id, err := enqueuer.Enqueue(context.Background(), "panicking", nil)
		require.NoError(t, err)

		d := NewDispatcher(store, registry, DefaultDispatcherConfig(), discardLogger())

		assert.NotPanics(t, func() {
			d.DispatchOne(context.Background())
		})

		rec := store.Get(id)
		require.NotNil(t, rec)
		assert.Equal(t, StatusError, rec.Status)
		assert.Contains(t, rec.ErrorMessage, "task handler panicked")
	})

	t.Run("unknown type tag is a fatal dispatch error", func(t *testing.T) {
		t.Parallel()

		store := NewMockStore()

		// Bypass the enqueuer so a record with an unregistered tag lands in
		// the queue, simulating a row written by an older deployment.
		rec, err := NewRecord("retired_type", nil)
		require.NoError(t, err)
		require.NoError(t, store.Enqueue(context.Background(), rec))

		d := NewDispatcher(store, NewRegistry(), DefaultDispatcherConfig(), discardLogger())
		claimed := d.DispatchOne(context.Background())

		assert.True(t, claimed)
		got := store.Get(rec.ID)
		require.NotNil(t, got)
		assert.Equal(t, StatusError, got.Status)
		assert.Contains(t, got.ErrorMessage, "unknown task type")
	})

	t.Run("empty queue claims nothing", func(t *testing.T) {
		t.Parallel()

		store := NewMockStore()
		d := NewDispatcher(store, NewRegistry(), DefaultDispatcherConfig(), discardLogger())

		assert.False(t, d.DispatchOne(context.Background()))
	})

	t.Run("claim error does not crash the loop", func(t *testing.T) {
		t.Parallel()

		store := NewMockStore()
		store.ClaimNextFn = func(ctx context.Context) (*Record, error) {
			return nil, errors.New("connection refused")
		}

		d := NewDispatcher(store, NewRegistry(), DefaultDispatcherConfig(), discardLogger())
		assert.False(t, d.DispatchOne(context.Background()))
	})
}

func TestDispatcher_ClaimOrdering(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	registry := NewRegistry()

	var executed []string
	registry.Register("record", HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
		var p struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		executed = append(executed, p.Name)
		return nil
	}))

	enqueuer := NewEnqueuer(store, registry, discardLogger())
	for _, name := range []string{"first", "second", "third"} {
		_, err := enqueuer.Enqueue(context.Background(), "record", map[string]string{"name": name})
		require.NoError(t, err)
	}

	d := NewDispatcher(store, registry, DefaultDispatcherConfig(), discardLogger())
	for d.DispatchOne(context.Background()) {
	}

	// Oldest-enqueued-first among unclaimed tasks.
	assert.Equal(t, []string{"first", "second", "third"}, executed)
}

func TestEnqueuer_RejectsUnknownType(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	enqueuer := NewEnqueuer(store, NewRegistry(), discardLogger())

	_, err := enqueuer.Enqueue(context.Background(), "nonexistent", nil)

	assert.ErrorIs(t, err, ErrUnknownTaskType)

	counts, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestEnqueuer_StoreError(t *testing.T) {
	t.Parallel()

	store := NewMockStore()
	store.EnqueueFn = func(ctx context.Context, rec *Record) error {
		return errors.New("mock store error")
	}

	registry := NewRegistry()
	registry.Register("noop", HandlerFunc(func(ctx context.Context, payload json.RawMessage) error {
		return nil
	}))

	enqueuer := NewEnqueuer(store, registry, discardLogger())
	_, err := enqueuer.Enqueue(context.Background(), "noop", nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save task")
}
