package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// WebhookLogStore implements store.WebhookLogStore using PostgreSQL.
type WebhookLogStore struct {
	db store.DBTX
}

// NewWebhookLogStore creates a new WebhookLogStore.
func NewWebhookLogStore(db store.DBTX) *WebhookLogStore {
	return &WebhookLogStore{db: db}
}

// Create persists a new log row before the first delivery attempt.
func (s *WebhookLogStore) Create(ctx context.Context, log *domain.WebhookLog) error {
	query := `
		INSERT INTO webhook_logs
			(id, webhook_id, trigger, payload, attempt_count, success,
			 status_code, response_body, error_message, duration_ms,
			 created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		log.ID, log.WebhookID, log.Trigger, []byte(log.Payload),
		log.AttemptCount, log.Success,
		log.StatusCode, log.ResponseBody, log.ErrorMessage, log.DurationMs,
		log.CreatedAt, log.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook log: %w", MapError(err))
	}
	return nil
}

// Update persists the final outcome of a delivery attempt-set.
func (s *WebhookLogStore) Update(ctx context.Context, log *domain.WebhookLog) error {
	query := `
		UPDATE webhook_logs
		SET attempt_count = $1, success = $2, status_code = $3,
		    response_body = $4, error_message = $5, duration_ms = $6,
		    completed_at = $7
		WHERE id = $8
	`
	result, err := s.db.ExecContext(ctx, query,
		log.AttemptCount, log.Success, log.StatusCode,
		log.ResponseBody, log.ErrorMessage, log.DurationMs,
		log.CompletedAt,
		log.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook log: %w", MapError(err))
	}
	return CheckRowsAffected(result, "webhook log")
}

// Count returns the total number of log rows.
func (s *WebhookLogStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count webhook logs: %w", MapError(err))
	}
	return n, nil
}

// DeleteOlderThan deletes up to limit rows created before the cutoff,
// oldest first.
func (s *WebhookLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	query := `
		DELETE FROM webhook_logs
		WHERE id IN (
			SELECT id FROM webhook_logs
			WHERE created_at < $1
			ORDER BY created_at ASC
			LIMIT $2
		)
	`
	result, err := s.db.ExecContext(ctx, query, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete aged webhook logs: %w", MapError(err))
	}
	return deletedCount(result)
}

// DeleteOldest deletes the n oldest rows.
func (s *WebhookLogStore) DeleteOldest(ctx context.Context, n int) (int, error) {
	query := `
		DELETE FROM webhook_logs
		WHERE id IN (
			SELECT id FROM webhook_logs
			ORDER BY created_at ASC
			LIMIT $1
		)
	`
	result, err := s.db.ExecContext(ctx, query, n)
	if err != nil {
		return 0, fmt.Errorf("failed to delete oldest webhook logs: %w", MapError(err))
	}
	return deletedCount(result)
}

func deletedCount(result sql.Result) (int, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

var _ store.WebhookLogStore = (*WebhookLogStore)(nil)
