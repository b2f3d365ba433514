// Package importer implements the bulk CSV contact import engine: mode
// resolution (insert / update / upsert), reference lookups, three-valued
// update semantics, per-row error collection, and the companion error
// file.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeskhq/opsdesk/internal/csvutil"
	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/platform/blob"
	"github.com/opsdeskhq/opsdesk/internal/store"
	"github.com/opsdeskhq/opsdesk/internal/task"
)

const (
	// maxFileSize is the fixed ceiling on import source files.
	maxFileSize = 30 << 20 // 30 MB

	// progressInterval is how many rows are processed between progress
	// writes, bounding write amplification on large files.
	progressInterval = 25

	// Row processing occupies a fixed sub-range of the overall percent
	// scale; parsing and finalizing take the bands on either side.
	rowPercentStart = 10
	rowPercentEnd   = 90
)

// Progress stages surfaced on the job.
const (
	StageParsing    = "parsing"
	StageProcessing = "processing"
	StageFinalizing = "finalizing"
)

// Payload is the task argument payload for a contact import.
type Payload struct {
	JobID uuid.UUID `json:"job_id"`
}

// Handler executes contact import jobs. It implements task.Handler.
type Handler struct {
	jobs      store.ImportJobStore
	contacts  store.ContactStore
	companies store.CompanyStore
	ids       store.IDGenerator
	blobs     blob.Store
	logger    *slog.Logger
}

// NewHandler creates a new import Handler.
func NewHandler(
	jobs store.ImportJobStore,
	contacts store.ContactStore,
	companies store.CompanyStore,
	ids store.IDGenerator,
	blobs blob.Store,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		jobs:      jobs,
		contacts:  contacts,
		companies: companies,
		ids:       ids,
		blobs:     blobs,
		logger:    logger.With("component", "contact_import"),
	}
}

// Handle runs the import job referenced by the payload. Business failures
// (oversize file, malformed CSV, row errors) are recorded on the job and
// do not error the task; only infrastructure problems that prevent the
// job from being processed at all are returned.
func (h *Handler) Handle(ctx context.Context, payload json.RawMessage) error {
	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal import payload: %w", err)
	}

	job, err := h.jobs.GetByID(ctx, p.JobID)
	if err != nil {
		return fmt.Errorf("failed to load import job: %w", err)
	}

	logger := h.logger.With("job_id", job.ID, "mode", job.Mode, "dry_run", job.DryRun)
	logger.Info("starting contact import")

	job.Status = domain.JobStatusRunning
	h.setProgress(ctx, job, StageParsing, 5)

	run, failMsg := h.prepare(ctx, job)
	if failMsg != "" {
		h.fail(ctx, job, failMsg)
		logger.Warn("contact import failed before row processing", "reason", failMsg)
		return nil
	}

	h.processRows(ctx, job, run)

	h.setProgress(ctx, job, StageFinalizing, 95)

	if len(run.errorRows) > 0 {
		h.writeErrorFile(ctx, job, run)
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.Percent = 100
	job.CompletedAt = &now
	if err := h.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to finalize import job: %w", err)
	}

	logger.Info("contact import completed",
		"total", job.TotalRows,
		"inserted", job.InsertedRows,
		"updated", job.UpdatedRows,
		"skipped", job.SkippedRows,
		"errored", job.ErroredRows)
	return nil
}

// importRun holds the parsed file and the reference lookups for one run.
type importRun struct {
	header []string
	index  map[string]int
	rows   [][]string

	contactIDs    map[int64]bool
	contactEmails map[string]int64
	companyByID   map[int64]*domain.Company
	companyByName map[string]*domain.Company

	errorRows    [][]string
	errorReasons []string
}

// prepare loads and parses the source file and builds the reference
// lookups. A non-empty failure message means the job must terminate as
// Failed before any row processing.
func (h *Handler) prepare(ctx context.Context, job *domain.ImportJob) (*importRun, string) {
	data, err := h.blobs.Get(ctx, job.SourceKey)
	if err != nil {
		return nil, fmt.Sprintf("source file could not be read: %v", err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Sprintf("file exceeds the %d MB import limit", maxFileSize>>20)
	}

	header, rows, err := csvutil.Decode(data)
	if err != nil {
		// Raw parse errors are preserved: import failures are
		// operator-facing.
		return nil, err.Error()
	}

	run := &importRun{
		header: header,
		index:  csvutil.HeaderIndex(header),
		rows:   rows,
	}

	// A name is required to create contacts; update-only mode instead
	// needs the identifier column to address existing rows.
	if job.Mode == domain.ImportModeUpdate {
		if _, ok := run.index["id"]; !ok {
			return nil, "missing required column: id"
		}
	} else {
		if _, ok := run.index["name"]; !ok {
			return nil, "missing required column: name"
		}
	}

	// Build reference lookups once, up front, so row processing never
	// issues per-row existence queries.
	refs, err := h.contacts.ListRefs(ctx)
	if err != nil {
		return nil, fmt.Sprintf("could not load contact references: %v", err)
	}
	run.contactIDs = make(map[int64]bool, len(refs))
	run.contactEmails = make(map[string]int64, len(refs))
	for _, ref := range refs {
		run.contactIDs[ref.ID] = true
		if ref.Email != "" {
			run.contactEmails[strings.ToLower(ref.Email)] = ref.ID
		}
	}

	companies, err := h.companies.ListAll(ctx)
	if err != nil {
		return nil, fmt.Sprintf("could not load company references: %v", err)
	}
	run.companyByID = make(map[int64]*domain.Company, len(companies))
	run.companyByName = make(map[string]*domain.Company, len(companies))
	for _, c := range companies {
		run.companyByID[c.ID] = c
		run.companyByName[strings.ToLower(c.Name)] = c
	}

	return run, ""
}

// processRows runs every data row through the mode branch, tallying
// outcomes. Row failures are collected, never aborting the batch.
func (h *Handler) processRows(ctx context.Context, job *domain.ImportJob, run *importRun) {
	job.TotalRows = len(run.rows)
	job.Stage = StageProcessing

	for i, row := range run.rows {
		outcome, reason := h.processRow(ctx, job, run, row)
		job.ProcessedRows++
		switch outcome {
		case outcomeInserted:
			job.InsertedRows++
		case outcomeUpdated:
			job.UpdatedRows++
		case outcomeSkipped:
			job.SkippedRows++
		case outcomeErrored:
			job.ErroredRows++
			run.errorRows = append(run.errorRows, row)
			run.errorReasons = append(run.errorReasons, reason)
		}

		if (i+1)%progressInterval == 0 {
			percent := rowPercentStart +
				(job.ProcessedRows*(rowPercentEnd-rowPercentStart))/job.TotalRows
			h.setProgress(ctx, job, StageProcessing, percent)
		}
	}
}

type rowOutcome int

const (
	outcomeInserted rowOutcome = iota
	outcomeUpdated
	outcomeSkipped
	outcomeErrored
)

// processRow applies one CSV row according to the job's import mode.
func (h *Handler) processRow(
	ctx context.Context,
	job *domain.ImportJob,
	run *importRun,
	row []string,
) (rowOutcome, string) {
	cell := func(column string) (string, bool) {
		idx, ok := run.index[column]
		if !ok || idx >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[idx]), true
	}

	// Resolve the optional explicit identifier.
	var explicitID int64
	if raw, ok := cell("id"); ok && raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return outcomeErrored, fmt.Sprintf("invalid id %q", raw)
		}
		explicitID = id
	}

	// Determine existence: by explicit identifier first, then by the
	// natural key (email).
	existingID := int64(0)
	if explicitID > 0 {
		if run.contactIDs[explicitID] {
			existingID = explicitID
		}
	} else if email, ok := cell("email"); ok && email != "" {
		if id, found := run.contactEmails[strings.ToLower(email)]; found {
			existingID = id
		}
	}

	switch job.Mode {
	case domain.ImportModeInsert:
		if existingID > 0 {
			return outcomeSkipped, ""
		}
		return h.insertRow(ctx, job, run, row, cell, explicitID)

	case domain.ImportModeUpdate:
		if existingID == 0 {
			return outcomeSkipped, ""
		}
		return h.updateRow(ctx, job, run, cell, existingID)

	case domain.ImportModeUpsert:
		if existingID > 0 {
			return h.updateRow(ctx, job, run, cell, existingID)
		}
		return h.insertRow(ctx, job, run, row, cell, explicitID)

	default:
		return outcomeErrored, fmt.Sprintf("unsupported import mode %q", job.Mode)
	}
}

// insertRow validates required fields and creates a new contact. In dry
// runs the write is skipped but the row still registers in the lookups so
// later rows observe it.
func (h *Handler) insertRow(
	ctx context.Context,
	job *domain.ImportJob,
	run *importRun,
	row []string,
	cell func(string) (string, bool),
	explicitID int64,
) (rowOutcome, string) {
	// The null indicator clears fields on existing records; a brand-new
	// contact has nothing to clear, so on insert it reads as empty and the
	// reserved literal never lands in stored data.
	field := func(column string) (string, bool) {
		value, ok := cell(column)
		if value == csvutil.NullIndicator {
			return "", ok
		}
		return value, ok
	}

	name, _ := field("name")
	if name == "" {
		return outcomeErrored, "missing required field: name"
	}

	companyID, reason := h.resolveCompany(run, cell)
	if reason != "" {
		return outcomeErrored, reason
	}

	id := explicitID
	if id == 0 {
		if job.DryRun {
			// Dry runs must not consume identifiers; a synthetic negative
			// ID keeps the row visible to later rows in this run.
			id = -int64(len(run.contactIDs) + 1)
		} else {
			allocated, err := h.ids.NextID(ctx, "contact")
			if err != nil {
				return outcomeErrored, fmt.Sprintf("could not allocate identifier: %v", err)
			}
			id = allocated
		}
	}

	contact := &domain.Contact{
		ID:        id,
		Name:      name,
		CompanyID: companyID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if email, ok := field("email"); ok {
		contact.Email = email
	}
	if phones, ok := field("phones"); ok {
		contact.Phones = csvutil.SplitMulti(phones)
	}
	if tags, ok := field("tags"); ok {
		contact.Tags = csvutil.SplitMulti(tags)
	}

	if !job.DryRun {
		// Each row commits on its own: later rows may reference rows
		// inserted earlier in the same run, and a crash mid-import must
		// leave completed rows applied.
		if err := h.contacts.Insert(ctx, contact); err != nil {
			return outcomeErrored, err.Error()
		}
	}

	run.contactIDs[contact.ID] = true
	if contact.Email != "" {
		run.contactEmails[strings.ToLower(contact.Email)] = contact.ID
	}
	return outcomeInserted, ""
}

// updateRow applies partial-update semantics to an existing contact. A
// cell set to the null indicator clears the field; an absent column or an
// empty cell leaves it unchanged.
func (h *Handler) updateRow(
	ctx context.Context,
	job *domain.ImportJob,
	run *importRun,
	cell func(string) (string, bool),
	id int64,
) (rowOutcome, string) {
	contact, err := h.contacts.GetByID(ctx, id)
	if err != nil {
		return outcomeErrored, fmt.Sprintf("could not load contact %d: %v", id, err)
	}

	applyString := func(column string, target *string) {
		value, present := cell(column)
		if !present || value == "" {
			return
		}
		if value == csvutil.NullIndicator {
			*target = ""
			return
		}
		*target = value
	}

	oldEmail := contact.Email
	applyString("name", &contact.Name)
	applyString("email", &contact.Email)

	if value, present := cell("phones"); present && value != "" {
		if value == csvutil.NullIndicator {
			contact.Phones = nil
		} else {
			contact.Phones = csvutil.SplitMulti(value)
		}
	}
	if value, present := cell("tags"); present && value != "" {
		if value == csvutil.NullIndicator {
			contact.Tags = nil
		} else {
			contact.Tags = csvutil.SplitMulti(value)
		}
	}

	if value, present := cell("company"); present && value != "" {
		if value == csvutil.NullIndicator {
			contact.CompanyID = nil
		} else {
			companyID, reason := h.resolveCompany(run, cell)
			if reason != "" {
				return outcomeErrored, reason
			}
			contact.CompanyID = companyID
		}
	}

	if contact.Name == "" {
		return outcomeErrored, "missing required field: name"
	}

	contact.UpdatedAt = time.Now().UTC()
	if !job.DryRun {
		if err := h.contacts.Update(ctx, contact); err != nil {
			return outcomeErrored, err.Error()
		}
	}

	if !strings.EqualFold(oldEmail, contact.Email) {
		delete(run.contactEmails, strings.ToLower(oldEmail))
		if contact.Email != "" {
			run.contactEmails[strings.ToLower(contact.Email)] = contact.ID
		}
	}
	return outcomeUpdated, ""
}

// resolveCompany resolves the optional company column by numeric ID or by
// name. Returns a row error reason when the reference cannot be resolved.
func (h *Handler) resolveCompany(
	run *importRun,
	cell func(string) (string, bool),
) (*int64, string) {
	value, present := cell("company")
	if !present || value == "" || value == csvutil.NullIndicator {
		return nil, ""
	}

	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		if company, ok := run.companyByID[id]; ok {
			return &company.ID, ""
		}
		return nil, fmt.Sprintf("company not found: %s", value)
	}

	if company, ok := run.companyByName[strings.ToLower(value)]; ok {
		return &company.ID, ""
	}
	return nil, fmt.Sprintf("company not found: %s", value)
}

// writeErrorFile emits the companion error file (original columns plus a
// reason column) and links it to the job. Failure to store the file is
// logged but does not fail the otherwise-finished job.
func (h *Handler) writeErrorFile(ctx context.Context, job *domain.ImportJob, run *importRun) {
	header := append(append([]string{}, run.header...), "error")
	rows := make([][]string, len(run.errorRows))
	for i, row := range run.errorRows {
		rows[i] = append(append([]string{}, row...), run.errorReasons[i])
	}

	data, err := csvutil.Encode(header, rows)
	if err != nil {
		h.logger.Error("failed to encode import error file", "job_id", job.ID, "error", err)
		return
	}

	ts := time.Now().UTC().Format("20060102-150405")
	filename := fmt.Sprintf("%s-import-errors-%s.csv", job.Entity, ts)
	key := fmt.Sprintf("imports/%s/errors/%s", job.ID, filename)

	if _, err := h.blobs.Save(ctx, key, filename, "text/csv", data, job.ExpiresAt); err != nil {
		h.logger.Error("failed to store import error file", "job_id", job.ID, "error", err)
		return
	}

	job.ErrorFileKey = key
}

// fail terminates the job with a Failed status and the given message.
// Import failure messages are operator-facing, so the raw message is
// preserved.
func (h *Handler) fail(ctx context.Context, job *domain.ImportJob, message string) {
	now := time.Now().UTC()
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	job.CompletedAt = &now
	if err := h.jobs.Update(ctx, job); err != nil {
		h.logger.Error("failed to persist import job failure",
			"job_id", job.ID,
			"error", err)
	}
}

// setProgress persists the job's stage and percent, mirroring the percent
// onto the task row through the dispatcher's reporter. Progress writes are
// not essential to correctness, so transient failures are logged and
// swallowed.
func (h *Handler) setProgress(ctx context.Context, job *domain.ImportJob, stage string, percent int) {
	job.Stage = stage
	job.Percent = percent
	task.ReportProgress(ctx, percent)
	if err := h.jobs.Update(ctx, job); err != nil {
		h.logger.Warn("failed to persist import progress",
			"job_id", job.ID,
			"stage", stage,
			"error", err)
	}
}
