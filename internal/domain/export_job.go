package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ExportJob-specific validation errors
var (
	// ErrExportJobIDEmpty is returned when an export job ID is empty or nil.
	ErrExportJobIDEmpty = errors.New("export job ID cannot be empty")

	// ErrExportEntityInvalid is returned when an export entity is not supported.
	ErrExportEntityInvalid = errors.New("export entity is not supported")
)

// Supported export entities
const (
	ExportEntityTickets  = "tickets"
	ExportEntityContacts = "contacts"
)

// ExportParams holds the serialized query parameters of an export: the
// filter, the sort, and the column selection. An empty Columns slice means
// the built-in default column set for the entity.
type ExportParams struct {
	Entity     string   `json:"entity"`
	Status     string   `json:"status,omitempty"`
	SortField  string   `json:"sort_field,omitempty"`
	SortOrder  string   `json:"sort_order,omitempty"`
	Columns    []string `json:"columns,omitempty"`
}

// ExportJob tracks a bulk CSV export. RequestedAt is the snapshot cutoff:
// the export only includes records created at or before this instant, so
// writes arriving during a long-running export cannot change the result.
type ExportJob struct {
	ID          uuid.UUID `json:"id"`
	RequesterID int64     `json:"requester_id"`

	RequestedAt time.Time       `json:"requested_at"`
	Params      json.RawMessage `json:"params"`

	Status  JobStatus `json:"status"`
	Stage   string    `json:"stage"`
	Percent int       `json:"percent"`

	RowCount int `json:"row_count"`

	// OutputKey is the blob storage key of the generated file, empty until
	// the export completes.
	OutputKey    string `json:"output_key"`
	OutputURL    string `json:"output_url"`
	ErrorMessage string `json:"error_message"`

	// ExpiresAt and IsCleanedUp form a monotonic pair, same as on ImportJob.
	ExpiresAt   time.Time `json:"expires_at"`
	IsCleanedUp bool      `json:"is_cleaned_up"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// NewExportJob creates a new pending ExportJob with the snapshot cutoff set
// to the current instant. Returns an error if validation fails.
func NewExportJob(requesterID int64, params ExportParams, ttl time.Duration) (*ExportJob, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &ExportJob{
		ID:          uuid.New(),
		RequesterID: requesterID,
		RequestedAt: now,
		Params:      raw,
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

// Validate checks if the ExportJob has valid data.
func (j *ExportJob) Validate() error {
	if j.ID == uuid.Nil {
		return ErrExportJobIDEmpty
	}

	params, err := j.DecodeParams()
	if err != nil {
		return err
	}
	switch params.Entity {
	case ExportEntityTickets, ExportEntityContacts:
	default:
		return ErrExportEntityInvalid
	}
	return nil
}

// DecodeParams unmarshals the serialized query parameters.
func (j *ExportJob) DecodeParams() (ExportParams, error) {
	var params ExportParams
	if err := json.Unmarshal(j.Params, &params); err != nil {
		return ExportParams{}, err
	}
	return params, nil
}
