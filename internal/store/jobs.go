package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeskhq/opsdesk/internal/domain"
)

// ImportJobStore defines the persistence interface for import jobs.
type ImportJobStore interface {
	// Create persists a new import job.
	Create(ctx context.Context, job *domain.ImportJob) error

	// GetByID retrieves an import job by its ID.
	// Returns ErrImportJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ImportJob, error)

	// Update persists all mutable fields of the job, including status,
	// stage, percent, and the row counters.
	Update(ctx context.Context, job *domain.ImportJob) error

	// ListExpired returns up to limit jobs whose ExpiresAt has passed and
	// that have not been cleaned up yet, oldest expiry first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ImportJob, error)

	// MarkCleanedUp sets the cleaned-up flag. The flag is monotonic: the
	// store never clears it once set.
	MarkCleanedUp(ctx context.Context, id uuid.UUID) error
}

// ExportJobStore defines the persistence interface for export jobs.
type ExportJobStore interface {
	// Create persists a new export job.
	Create(ctx context.Context, job *domain.ExportJob) error

	// GetByID retrieves an export job by its ID.
	// Returns ErrExportJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExportJob, error)

	// Update persists all mutable fields of the job.
	Update(ctx context.Context, job *domain.ExportJob) error

	// ListExpired returns up to limit jobs whose ExpiresAt has passed and
	// that have not been cleaned up yet, oldest expiry first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ExportJob, error)

	// MarkCleanedUp sets the cleaned-up flag. The flag is monotonic.
	MarkCleanedUp(ctx context.Context, id uuid.UUID) error
}
