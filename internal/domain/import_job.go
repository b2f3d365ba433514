package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ImportJob-specific validation errors
var (
	// ErrImportJobIDEmpty is returned when an import job ID is empty or nil.
	ErrImportJobIDEmpty = errors.New("import job ID cannot be empty")

	// ErrImportJobSourceEmpty is returned when an import job has no source file.
	ErrImportJobSourceEmpty = errors.New("import job source file key cannot be empty")

	// ErrImportModeInvalid is returned when an import mode is not a known value.
	ErrImportModeInvalid = errors.New("import mode is not a valid mode")
)

// ImportMode controls how existing rows are treated during an import.
type ImportMode string

// Possible import modes
const (
	// ImportModeInsert inserts rows that do not exist yet and skips rows
	// that do.
	ImportModeInsert ImportMode = "insert_if_not_exists"

	// ImportModeUpdate updates rows that already exist, applying only the
	// fields present and non-empty in the CSV row, and skips rows that do
	// not exist.
	ImportModeUpdate ImportMode = "update_existing_only"

	// ImportModeUpsert updates existing rows and inserts missing ones.
	ImportModeUpsert ImportMode = "upsert"
)

// JobStatus represents the business lifecycle of an import or export job.
// It is distinct from the execution status of the task that runs the job:
// the task row tracks execution, the job row tracks user-visible progress.
type JobStatus string

// Possible job status values
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ImportJob tracks a bulk CSV import: the user-supplied parameters, the
// row counters mutated incrementally while the import runs, and the
// terminal outcome.
type ImportJob struct {
	ID          uuid.UUID  `json:"id"`
	RequesterID int64      `json:"requester_id"`
	Entity      string     `json:"entity"`
	Mode        ImportMode `json:"mode"`
	DryRun      bool       `json:"dry_run"`

	// SourceKey is the blob storage key of the uploaded CSV file.
	SourceKey string `json:"source_key"`

	Status  JobStatus `json:"status"`
	Stage   string    `json:"stage"`
	Percent int       `json:"percent"`

	TotalRows     int `json:"total_rows"`
	ProcessedRows int `json:"processed_rows"`
	InsertedRows  int `json:"inserted_rows"`
	UpdatedRows   int `json:"updated_rows"`
	SkippedRows   int `json:"skipped_rows"`
	ErroredRows   int `json:"errored_rows"`

	// ErrorFileKey is the blob storage key of the companion error file,
	// empty when every row succeeded.
	ErrorFileKey string `json:"error_file_key"`
	ErrorMessage string `json:"error_message"`

	// ExpiresAt and IsCleanedUp form a monotonic pair: once the retention
	// sweep cleans a job up, the flag never reverts.
	ExpiresAt   time.Time `json:"expires_at"`
	IsCleanedUp bool      `json:"is_cleaned_up"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// NewImportJob creates a new pending ImportJob for the given requester,
// entity, mode, and source file. Returns an error if validation fails.
func NewImportJob(
	requesterID int64,
	entity string,
	mode ImportMode,
	dryRun bool,
	sourceKey string,
	ttl time.Duration,
) (*ImportJob, error) {
	now := time.Now().UTC()
	job := &ImportJob{
		ID:          uuid.New(),
		RequesterID: requesterID,
		Entity:      entity,
		Mode:        mode,
		DryRun:      dryRun,
		SourceKey:   sourceKey,
		Status:      JobStatusPending,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the ImportJob has valid data.
func (j *ImportJob) Validate() error {
	if j.ID == uuid.Nil {
		return ErrImportJobIDEmpty
	}
	if j.SourceKey == "" {
		return ErrImportJobSourceEmpty
	}
	switch j.Mode {
	case ImportModeInsert, ImportModeUpdate, ImportModeUpsert:
	default:
		return ErrImportModeInvalid
	}
	return nil
}
