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

// ImportJobStore implements store.ImportJobStore using PostgreSQL.
type ImportJobStore struct {
	db store.DBTX
}

// NewImportJobStore creates a new ImportJobStore.
func NewImportJobStore(db store.DBTX) *ImportJobStore {
	return &ImportJobStore{db: db}
}

const importJobColumns = `
	id, requester_id, entity, mode, dry_run, source_key,
	status, stage, percent,
	total_rows, processed_rows, inserted_rows, updated_rows, skipped_rows, errored_rows,
	error_file_key, error_message,
	expires_at, is_cleaned_up,
	created_at, updated_at, completed_at
`

// Create persists a new import job.
func (s *ImportJobStore) Create(ctx context.Context, job *domain.ImportJob) error {
	query := `
		INSERT INTO import_jobs (` + importJobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.RequesterID, job.Entity, job.Mode, job.DryRun, job.SourceKey,
		job.Status, job.Stage, job.Percent,
		job.TotalRows, job.ProcessedRows, job.InsertedRows, job.UpdatedRows, job.SkippedRows, job.ErroredRows,
		job.ErrorFileKey, job.ErrorMessage,
		job.ExpiresAt, job.IsCleanedUp,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", MapError(err))
	}
	return nil
}

// GetByID retrieves an import job by its ID.
func (s *ImportJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ImportJob, error) {
	query := `SELECT ` + importJobColumns + ` FROM import_jobs WHERE id = $1`
	job, err := scanImportJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrImportJobNotFound
		}
		return nil, fmt.Errorf("failed to get import job: %w", MapError(err))
	}
	return job, nil
}

// Update persists all mutable fields of the job. The cleaned-up flag is
// monotonic: the guard in the WHERE clause never lets it revert.
func (s *ImportJobStore) Update(ctx context.Context, job *domain.ImportJob) error {
	query := `
		UPDATE import_jobs
		SET status = $1, stage = $2, percent = $3,
		    total_rows = $4, processed_rows = $5, inserted_rows = $6,
		    updated_rows = $7, skipped_rows = $8, errored_rows = $9,
		    error_file_key = $10, error_message = $11,
		    is_cleaned_up = (is_cleaned_up OR $12),
		    updated_at = $13, completed_at = $14
		WHERE id = $15
	`
	result, err := s.db.ExecContext(ctx, query,
		job.Status, job.Stage, job.Percent,
		job.TotalRows, job.ProcessedRows, job.InsertedRows,
		job.UpdatedRows, job.SkippedRows, job.ErroredRows,
		job.ErrorFileKey, job.ErrorMessage,
		job.IsCleanedUp,
		time.Now().UTC(), job.CompletedAt,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update import job: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "import job"); err != nil {
		return store.ErrImportJobNotFound
	}
	return nil
}

// ListExpired returns jobs past their expiry that have not been cleaned up.
func (s *ImportJobStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ImportJob, error) {
	query := `
		SELECT ` + importJobColumns + `
		FROM import_jobs
		WHERE expires_at < $1 AND is_cleaned_up = FALSE
		ORDER BY expires_at ASC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired import jobs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.ImportJob
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import job rows: %w", err)
	}
	return jobs, nil
}

// MarkCleanedUp sets the cleaned-up flag.
func (s *ImportJobStore) MarkCleanedUp(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE import_jobs SET is_cleaned_up = TRUE, updated_at = $1 WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark import job cleaned up: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "import job"); err != nil {
		return store.ErrImportJobNotFound
	}
	return nil
}

func scanImportJob(row rowScanner) (*domain.ImportJob, error) {
	var j domain.ImportJob
	var completedAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.RequesterID, &j.Entity, &j.Mode, &j.DryRun, &j.SourceKey,
		&j.Status, &j.Stage, &j.Percent,
		&j.TotalRows, &j.ProcessedRows, &j.InsertedRows, &j.UpdatedRows, &j.SkippedRows, &j.ErroredRows,
		&j.ErrorFileKey, &j.ErrorMessage,
		&j.ExpiresAt, &j.IsCleanedUp,
		&j.CreatedAt, &j.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	j.CompletedAt = nullTimePtr(completedAt)
	return &j, nil
}

var _ store.ImportJobStore = (*ImportJobStore)(nil)
