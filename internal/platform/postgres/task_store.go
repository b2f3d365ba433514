package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeskhq/opsdesk/internal/store"
	"github.com/opsdeskhq/opsdesk/internal/task"
)

// TaskStore implements task.Store using PostgreSQL. Claiming uses
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never hand the
// same task to two dispatchers and never block each other on the queue
// head.
type TaskStore struct {
	db *sql.DB
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// Enqueue persists a new task record.
func (s *TaskStore) Enqueue(ctx context.Context, rec *task.Record) error {
	query := `
		INSERT INTO tasks (id, type, payload, status, retry_count, error_message, percent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Type,
		[]byte(rec.Payload),
		rec.Status,
		rec.RetryCount,
		rec.ErrorMessage,
		rec.Percent,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", MapError(err))
	}
	return nil
}

// ClaimNext atomically claims the oldest enqueued task. The row lock, the
// skip of already-locked rows, and the transition to processing happen in
// one transaction, so a task is observed as claimed by exactly one worker.
// Returns (nil, nil) when the queue is empty.
func (s *TaskStore) ClaimNext(ctx context.Context) (*task.Record, error) {
	var rec *task.Record

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		query := `
			SELECT id, type, payload, status, retry_count, error_message, percent, created_at, completed_at
			FROM tasks
			WHERE status = $1
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`
		row := tx.QueryRowContext(ctx, query, task.StatusEnqueued)

		candidate, err := scanTask(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to select claimable task: %w", MapError(err))
		}

		update := `UPDATE tasks SET status = $1 WHERE id = $2`
		if _, err := tx.ExecContext(ctx, update, task.StatusProcessing, candidate.ID); err != nil {
			return fmt.Errorf("failed to mark task processing: %w", MapError(err))
		}

		candidate.Status = task.StatusProcessing
		rec = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// MarkComplete transitions a task to complete with full progress.
func (s *TaskStore) MarkComplete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tasks
		SET status = $1, percent = 100, error_message = '', completed_at = $2
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, task.StatusComplete, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark task complete: %w", MapError(err))
	}
	return CheckRowsAffected(result, "task")
}

// MarkError transitions a task to error with the given message.
func (s *TaskStore) MarkError(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE tasks
		SET status = $1, error_message = $2, completed_at = $3
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query, task.StatusError, message, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark task errored: %w", MapError(err))
	}
	return CheckRowsAffected(result, "task")
}

// SetProgress updates the task's percent-complete.
func (s *TaskStore) SetProgress(ctx context.Context, id uuid.UUID, percent int) error {
	query := `UPDATE tasks SET percent = $1 WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, percent, id)
	if err != nil {
		return fmt.Errorf("failed to set task progress: %w", MapError(err))
	}
	return CheckRowsAffected(result, "task")
}

// CountByStatus returns the number of tasks per status.
func (s *TaskStore) CountByStatus(ctx context.Context) (map[task.Status]int, error) {
	query := `SELECT status, COUNT(*) FROM tasks GROUP BY status`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by status: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[task.Status]int)
	for rows.Next() {
		var status task.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count row: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task count rows: %w", err)
	}
	return counts, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*task.Record, error) {
	var rec task.Record
	var payload []byte
	var errorMessage sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.Type,
		&payload,
		&rec.Status,
		&rec.RetryCount,
		&errorMessage,
		&rec.Percent,
		&rec.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Payload = payload
	rec.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

var _ task.Store = (*TaskStore)(nil)
