package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// ExportJobStore implements store.ExportJobStore using PostgreSQL.
type ExportJobStore struct {
	db store.DBTX
}

// NewExportJobStore creates a new ExportJobStore.
func NewExportJobStore(db store.DBTX) *ExportJobStore {
	return &ExportJobStore{db: db}
}

const exportJobColumns = `
	id, requester_id, requested_at, params,
	status, stage, percent, row_count,
	output_key, output_url, error_message,
	expires_at, is_cleaned_up,
	created_at, updated_at, completed_at
`

// Create persists a new export job.
func (s *ExportJobStore) Create(ctx context.Context, job *domain.ExportJob) error {
	query := `
		INSERT INTO export_jobs (` + exportJobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.RequesterID, job.RequestedAt, []byte(job.Params),
		job.Status, job.Stage, job.Percent, job.RowCount,
		job.OutputKey, job.OutputURL, job.ErrorMessage,
		job.ExpiresAt, job.IsCleanedUp,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create export job: %w", MapError(err))
	}
	return nil
}

// GetByID retrieves an export job by its ID.
func (s *ExportJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExportJob, error) {
	query := `SELECT ` + exportJobColumns + ` FROM export_jobs WHERE id = $1`
	job, err := scanExportJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrExportJobNotFound
		}
		return nil, fmt.Errorf("failed to get export job: %w", MapError(err))
	}
	return job, nil
}

// Update persists all mutable fields of the job.
func (s *ExportJobStore) Update(ctx context.Context, job *domain.ExportJob) error {
	query := `
		UPDATE export_jobs
		SET status = $1, stage = $2, percent = $3, row_count = $4,
		    output_key = $5, output_url = $6, error_message = $7,
		    is_cleaned_up = (is_cleaned_up OR $8),
		    updated_at = $9, completed_at = $10
		WHERE id = $11
	`
	result, err := s.db.ExecContext(ctx, query,
		job.Status, job.Stage, job.Percent, job.RowCount,
		job.OutputKey, job.OutputURL, job.ErrorMessage,
		job.IsCleanedUp,
		time.Now().UTC(), job.CompletedAt,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update export job: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "export job"); err != nil {
		return store.ErrExportJobNotFound
	}
	return nil
}

// ListExpired returns jobs past their expiry that have not been cleaned up.
func (s *ExportJobStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ExportJob, error) {
	query := `
		SELECT ` + exportJobColumns + `
		FROM export_jobs
		WHERE expires_at < $1 AND is_cleaned_up = FALSE
		ORDER BY expires_at ASC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired export jobs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.ExportJob
	for rows.Next() {
		job, err := scanExportJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating export job rows: %w", err)
	}
	return jobs, nil
}

// MarkCleanedUp sets the cleaned-up flag.
func (s *ExportJobStore) MarkCleanedUp(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE export_jobs SET is_cleaned_up = TRUE, updated_at = $1 WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark export job cleaned up: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "export job"); err != nil {
		return store.ErrExportJobNotFound
	}
	return nil
}

func scanExportJob(row rowScanner) (*domain.ExportJob, error) {
	var j domain.ExportJob
	var params []byte
	var completedAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.RequesterID, &j.RequestedAt, &params,
		&j.Status, &j.Stage, &j.Percent, &j.RowCount,
		&j.OutputKey, &j.OutputURL, &j.ErrorMessage,
		&j.ExpiresAt, &j.IsCleanedUp,
		&j.CreatedAt, &j.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Params = params
	j.CompletedAt = nullTimePtr(completedAt)
	return &j, nil
}

var _ store.ExportJobStore = (*ExportJobStore)(nil)
