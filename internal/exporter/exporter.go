// Package exporter implements the bulk CSV export engine for tickets and
// contacts: snapshot-consistent queries against the job's request-time
// cutoff, batched keyset pagination, progress reporting, and upload of
// the generated file to object storage.
package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/platform/blob"
	"github.com/opsdeskhq/opsdesk/internal/store"
	"github.com/opsdeskhq/opsdesk/internal/task"
)

const (
	// batchSize is how many rows one page query returns. Batches are
	// written to the output buffer as they arrive; the full result set is
	// never materialized at once.
	batchSize = 500

	// Row emission occupies a fixed sub-range of the overall percent scale.
	rowPercentStart = 10
	rowPercentEnd   = 90
)

// Progress stages surfaced on the job.
const (
	StageQuerying  = "querying"
	StageWriting   = "writing"
	StageUploading = "uploading"
)

// Sanitized failure messages. Export failures are user-facing, so internal
// exception detail is mapped to canned category strings and the raw error
// goes to the log only.
const (
	msgQueryFailed  = "The export query failed. Please try again."
	msgWriteFailed  = "The export file could not be generated."
	msgUploadFailed = "The export file could not be stored."
)

// Payload is the task argument payload for an export.
type Payload struct {
	JobID uuid.UUID `json:"job_id"`
}

// Handler executes export jobs. It implements task.Handler and is
// registered once per export entity (ticket_export, contact_export); the
// entity in the job parameters decides the query path.
type Handler struct {
	jobs     store.ExportJobStore
	tickets  store.TicketStore
	contacts store.ContactStore
	blobs    blob.Store
	logger   *slog.Logger
}

// NewHandler creates a new export Handler.
func NewHandler(
	jobs store.ExportJobStore,
	tickets store.TicketStore,
	contacts store.ContactStore,
	blobs blob.Store,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		jobs:     jobs,
		tickets:  tickets,
		contacts: contacts,
		blobs:    blobs,
		logger:   logger.With("component", "export"),
	}
}

// Handle runs the export job referenced by the payload.
func (h *Handler) Handle(ctx context.Context, payload json.RawMessage) error {
	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal export payload: %w", err)
	}

	job, err := h.jobs.GetByID(ctx, p.JobID)
	if err != nil {
		return fmt.Errorf("failed to load export job: %w", err)
	}

	params, err := job.DecodeParams()
	if err != nil {
		h.fail(ctx, job, msgQueryFailed, err)
		return nil
	}

	logger := h.logger.With("job_id", job.ID, "entity", params.Entity)
	logger.Info("starting export", "cutoff", job.RequestedAt)

	job.Status = domain.JobStatusRunning
	h.setProgress(ctx, job, StageQuerying, 5)

	var result *exportResult
	switch params.Entity {
	case domain.ExportEntityTickets:
		result, err = h.exportTickets(ctx, job, params)
	case domain.ExportEntityContacts:
		result, err = h.exportContacts(ctx, job, params)
	default:
		err = fmt.Errorf("unsupported export entity %q", params.Entity)
	}
	if err != nil {
		msg := msgQueryFailed
		if errors.Is(err, errWrite) {
			msg = msgWriteFailed
		}
		h.fail(ctx, job, msg, err)
		return nil
	}

	h.setProgress(ctx, job, StageUploading, 95)

	ts := time.Now().UTC().Format("20060102-150405")
	filename := fmt.Sprintf("%s-%s.csv", params.Entity, ts)
	key := fmt.Sprintf("exports/%s/%s", job.ID, filename)

	url, err := h.blobs.Save(ctx, key, filename, "text/csv", result.data, job.ExpiresAt)
	if err != nil {
		h.fail(ctx, job, msgUploadFailed, err)
		return nil
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.Percent = 100
	job.RowCount = result.rowCount
	job.OutputKey = key
	job.OutputURL = url
	job.CompletedAt = &now
	if err := h.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to finalize export job: %w", err)
	}

	logger.Info("export completed", "rows", result.rowCount, "key", key)
	return nil
}

type exportResult struct {
	data     []byte
	rowCount int
}

// exportWriter accumulates CSV output batch by batch: a BOM, the header,
// then each page of rows as it is fetched.
type exportWriter struct {
	buf *bytes.Buffer
	w   *csv.Writer
}

func newExportWriter(header []string) (*exportWriter, error) {
	buf := &bytes.Buffer{}
	buf.Write([]byte{0xEF, 0xBB, 0xBF})

	w := csv.NewWriter(buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	return &exportWriter{buf: buf, w: w}, nil
}

func (ew *exportWriter) writeRow(row []string) error {
	return ew.w.Write(row)
}

func (ew *exportWriter) bytes() ([]byte, error) {
	ew.w.Flush()
	if err := ew.w.Error(); err != nil {
		return nil, err
	}
	return ew.buf.Bytes(), nil
}

func (h *Handler) exportTickets(
	ctx context.Context,
	job *domain.ExportJob,
	params domain.ExportParams,
) (*exportResult, error) {
	filter := store.TicketFilter{
		Status:        params.Status,
		CreatedBefore: job.RequestedAt,
		SortField:     normalizeSortField(params.SortField),
	}

	columns, err := resolveColumns(params.Columns, defaultTicketColumns, ticketColumnSet)
	if err != nil {
		return nil, err
	}

	total, err := h.tickets.CountForExport(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("ticket count query failed: %w", err)
	}

	writer, err := newExportWriter(columns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errWrite, err)
	}

	emitted := 0
	cursor := store.TicketCursor{}
	for {
		page, err := h.tickets.ListForExport(ctx, filter, cursor, batchSize)
		if err != nil {
			return nil, fmt.Errorf("ticket page query failed: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, t := range page {
			if err := writer.writeRow(ticketRow(t, columns)); err != nil {
				return nil, fmt.Errorf("%w: %v", errWrite, err)
			}
			emitted++
		}

		last := page[len(page)-1]
		cursor = store.TicketCursor{CreatedAt: last.CreatedAt, ID: last.ID}

		h.reportRows(ctx, job, emitted, total)

		if len(page) < batchSize {
			break
		}
	}

	data, err := writer.bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errWrite, err)
	}
	return &exportResult{data: data, rowCount: emitted}, nil
}

func (h *Handler) exportContacts(
	ctx context.Context,
	job *domain.ExportJob,
	params domain.ExportParams,
) (*exportResult, error) {
	filter := store.ContactFilter{
		CreatedBefore: job.RequestedAt,
		SortField:     normalizeSortField(params.SortField),
	}

	columns, err := resolveColumns(params.Columns, defaultContactColumns, contactColumnSet)
	if err != nil {
		return nil, err
	}

	total, err := h.contacts.CountForExport(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("contact count query failed: %w", err)
	}

	writer, err := newExportWriter(columns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errWrite, err)
	}

	emitted := 0
	cursor := store.ContactCursor{}
	for {
		page, err := h.contacts.ListForExport(ctx, filter, cursor, batchSize)
		if err != nil {
			return nil, fmt.Errorf("contact page query failed: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, c := range page {
			if err := writer.writeRow(contactRow(c, columns)); err != nil {
				return nil, fmt.Errorf("%w: %v", errWrite, err)
			}
			emitted++
		}

		last := page[len(page)-1]
		cursor = store.ContactCursor{CreatedAt: last.CreatedAt, ID: last.ID}

		h.reportRows(ctx, job, emitted, total)

		if len(page) < batchSize {
			break
		}
	}

	data, err := writer.bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errWrite, err)
	}
	return &exportResult{data: data, rowCount: emitted}, nil
}

// reportRows maps emitted rows onto the reserved percent band and persists
// progress.
func (h *Handler) reportRows(ctx context.Context, job *domain.ExportJob, emitted, total int) {
	percent := rowPercentEnd
	if total > 0 {
		percent = rowPercentStart + (emitted*(rowPercentEnd-rowPercentStart))/total
	}
	h.setProgress(ctx, job, StageWriting, percent)
}

// normalizeSortField maps the user-supplied sort field onto the keyset-safe
// orderings the stores support.
func normalizeSortField(field string) string {
	if field == "id" {
		return "id"
	}
	return "created_at"
}

// fail terminates the job with the sanitized user-facing message; the raw
// error is only logged.
func (h *Handler) fail(ctx context.Context, job *domain.ExportJob, message string, cause error) {
	h.logger.Error("export failed",
		"job_id", job.ID,
		"error", cause)

	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &now
	if err := h.jobs.Update(ctx, job); err != nil {
		h.logger.Error("failed to persist export job failure",
			"job_id", job.ID,
			"error", err)
	}
}

// setProgress persists stage and percent, mirroring the percent onto the
// task row, and swallows transient failures.
func (h *Handler) setProgress(ctx context.Context, job *domain.ExportJob, stage string, percent int) {
	job.Stage = stage
	job.Percent = percent
	task.ReportProgress(ctx, percent)
	if err := h.jobs.Update(ctx, job); err != nil {
		h.logger.Warn("failed to persist export progress",
			"job_id", job.ID,
			"stage", stage,
			"error", err)
	}
}
