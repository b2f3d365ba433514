package importer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeskhq/opsdesk/internal/csvutil"
	"github.com/opsdeskhq/opsdesk/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// importFixture wires a Handler with in-memory collaborators around one job.
type importFixture struct {
	handler  *Handler
	jobs     *mockJobStore
	contacts *mockContactStore
	blobs    *mockBlobStore
	job      *domain.ImportJob
}

func newImportFixture(
	t *testing.T,
	mode domain.ImportMode,
	dryRun bool,
	csv string,
	seed ...*domain.Contact,
) *importFixture {
	t.Helper()

	jobs := newMockJobStore()
	contacts := newMockContactStore(seed...)
	companies := &mockCompanyStore{companies: []*domain.Company{
		{ID: 7, Name: "Acme"},
	}}
	blobs := newMockBlobStore()

	job, err := domain.NewImportJob(1, "contact", mode, dryRun, "imports/src.csv", 24*time.Hour)
	require.NoError(t, err)
	require.NoError(t, jobs.Create(context.Background(), job))

	_, err = blobs.Save(context.Background(), "imports/src.csv", "src.csv", "text/csv", []byte(csv), job.ExpiresAt)
	require.NoError(t, err)

	handler := NewHandler(jobs, contacts, companies, &mockIDGenerator{next: 100}, blobs, discardLogger())

	return &importFixture{
		handler:  handler,
		jobs:     jobs,
		contacts: contacts,
		blobs:    blobs,
		job:      job,
	}
}

func (f *importFixture) run(t *testing.T) *domain.ImportJob {
	t.Helper()

	payload, err := json.Marshal(Payload{JobID: f.job.ID})
	require.NoError(t, err)
	require.NoError(t, f.handler.Handle(context.Background(), payload))

	job, err := f.jobs.GetByID(context.Background(), f.job.ID)
	require.NoError(t, err)
	return job
}

func TestImport_UpsertMixedOutcomes(t *testing.T) {
	t.Parallel()

	// Row 1 updates an existing contact by explicit identifier, row 2
	// inserts, row 3 fails required-field validation.
	existing := &domain.Contact{ID: 5, Name: "Old Name", Email: "old@example.com"}
	csv := "id,name,email\n" +
		"5,New Name,new@example.com\n" +
		",Fresh Contact,fresh@example.com\n" +
		",,nobody@example.com\n"

	f := newImportFixture(t, domain.ImportModeUpsert, false, csv, existing)
	job := f.run(t)

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.TotalRows)
	assert.Equal(t, 1, job.UpdatedRows)
	assert.Equal(t, 1, job.InsertedRows)
	assert.Equal(t, 0, job.SkippedRows)
	assert.Equal(t, 1, job.ErroredRows)

	updated, err := f.contacts.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)

	// The error file holds the failed row plus a reason column.
	key, found := f.blobs.findKey("import-errors")
	require.True(t, found)
	assert.Equal(t, key, job.ErrorFileKey)

	data, err := f.blobs.Get(context.Background(), key)
	require.NoError(t, err)
	header, rows, err := csvutil.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "email", "error"}, header)
	require.Len(t, rows, 1)
	assert.Equal(t, "missing required field: name", rows[0][3])
}

func TestImport_DryRunNeverMutates(t *testing.T) {
	t.Parallel()

	existing := &domain.Contact{ID: 5, Name: "Old Name", Email: "old@example.com"}
	csv := "id,name,email\n" +
		"5,New Name,new@example.com\n" +
		",Fresh Contact,fresh@example.com\n" +
		",,nobody@example.com\n"

	f := newImportFixture(t, domain.ImportModeUpsert, true, csv, existing)
	job := f.run(t)

	// Counts match a real run exactly.
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.UpdatedRows)
	assert.Equal(t, 1, job.InsertedRows)
	assert.Equal(t, 1, job.ErroredRows)

	// But the store saw no writes at all.
	assert.Equal(t, 0, f.contacts.mutationCount())
	unchanged, err := f.contacts.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Old Name", unchanged.Name)
}

func TestImport_CountsInvariant(t *testing.T) {
	t.Parallel()

	csv := "id,name,email\n" +
		"1,Keep,keep@example.com\n" + // exists: skipped in insert mode
		",New One,one@example.com\n" +
		",,broken@example.com\n" +
		",New Two,two@example.com\n"

	existing := &domain.Contact{ID: 1, Name: "Keep", Email: "keep@example.com"}
	f := newImportFixture(t, domain.ImportModeInsert, false, csv, existing)
	job := f.run(t)

	total := job.InsertedRows + job.UpdatedRows + job.SkippedRows + job.ErroredRows
	assert.Equal(t, job.TotalRows, total)
	assert.Equal(t, 1, job.SkippedRows)
	assert.Equal(t, 2, job.InsertedRows)
	assert.Equal(t, 1, job.ErroredRows)
}

func TestImport_UpdateFieldSemantics(t *testing.T) {
	t.Parallel()

	existing := &domain.Contact{
		ID:     3,
		Name:   "Ada",
		Email:  "ada@example.com",
		Phones: []string{"555-1111"},
		Tags:   []string{"vip"},
	}

	t.Run("empty cell leaves field unchanged", func(t *testing.T) {
		t.Parallel()

		csv := "id,name,email\n3,,changed@example.com\n"
		f := newImportFixture(t, domain.ImportModeUpdate, false, csv, existing)
		job := f.run(t)

		require.Equal(t, 1, job.UpdatedRows)
		got, err := f.contacts.GetByID(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, "Ada", got.Name)
		assert.Equal(t, "changed@example.com", got.Email)
	})

	t.Run("null indicator clears field", func(t *testing.T) {
		t.Parallel()

		csv := "id,email,phones\n3,[NULL],[NULL]\n"
		f := newImportFixture(t, domain.ImportModeUpdate, false, csv, existing)
		job := f.run(t)

		require.Equal(t, 1, job.UpdatedRows)
		got, err := f.contacts.GetByID(context.Background(), 3)
		require.NoError(t, err)
		assert.Empty(t, got.Email)
		assert.Nil(t, got.Phones)
		assert.Equal(t, []string{"vip"}, got.Tags) // absent column untouched
	})

	t.Run("absent row is skipped", func(t *testing.T) {
		t.Parallel()

		csv := "id,name\n999,Ghost\n"
		f := newImportFixture(t, domain.ImportModeUpdate, false, csv, existing)
		job := f.run(t)

		assert.Equal(t, 1, job.SkippedRows)
		assert.Equal(t, 0, job.UpdatedRows)
	})
}

func TestImport_NullIndicatorOnInsert(t *testing.T) {
	t.Parallel()

	// There is nothing to clear on a brand-new contact: the indicator reads
	// as empty, and an all-null name still fails validation. The reserved
	// literal must never land in stored data.
	csv := "name,email,phones,tags\n" +
		"Fresh Contact,[NULL],[NULL],[NULL]\n" +
		"[NULL],someone@example.com,,\n"
	f := newImportFixture(t, domain.ImportModeInsert, false, csv)
	job := f.run(t)

	require.Equal(t, 1, job.InsertedRows)
	assert.Equal(t, 1, job.ErroredRows)

	got, err := f.contacts.GetByID(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, "Fresh Contact", got.Name)
	assert.Empty(t, got.Email)
	assert.Nil(t, got.Phones)
	assert.Nil(t, got.Tags)
}

func TestImport_JobLevelFailures(t *testing.T) {
	t.Parallel()

	t.Run("update mode requires id column", func(t *testing.T) {
		t.Parallel()

		f := newImportFixture(t, domain.ImportModeUpdate, false, "name,email\nAda,a@example.com\n")
		job := f.run(t)

		assert.Equal(t, domain.JobStatusFailed, job.Status)
		assert.Contains(t, job.ErrorMessage, "missing required column: id")
		assert.Equal(t, 0, job.ProcessedRows)
	})

	t.Run("insert mode requires name column", func(t *testing.T) {
		t.Parallel()

		f := newImportFixture(t, domain.ImportModeInsert, false, "id,email\n1,a@example.com\n")
		job := f.run(t)

		assert.Equal(t, domain.JobStatusFailed, job.Status)
		assert.Contains(t, job.ErrorMessage, "missing required column: name")
	})

	t.Run("malformed csv aborts before row processing", func(t *testing.T) {
		t.Parallel()

		f := newImportFixture(t, domain.ImportModeInsert, false, "name\n\"unterminated\n")
		job := f.run(t)

		assert.Equal(t, domain.JobStatusFailed, job.Status)
		assert.Equal(t, 0, job.ProcessedRows)
	})

	t.Run("missing source file", func(t *testing.T) {
		t.Parallel()

		f := newImportFixture(t, domain.ImportModeInsert, false, "name\nAda\n")
		require.NoError(t, f.blobs.Delete(context.Background(), "imports/src.csv"))
		job := f.run(t)

		assert.Equal(t, domain.JobStatusFailed, job.Status)
		assert.Contains(t, job.ErrorMessage, "source file could not be read")
	})
}

func TestImport_CompanyResolution(t *testing.T) {
	t.Parallel()

	csv := "name,company\n" +
		"With Name,Acme\n" +
		"With ID,7\n" +
		"Bad Ref,Globex\n"

	f := newImportFixture(t, domain.ImportModeInsert, false, csv)
	job := f.run(t)

	assert.Equal(t, 2, job.InsertedRows)
	assert.Equal(t, 1, job.ErroredRows)

	refs, err := f.contacts.ListRefs(context.Background())
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestImport_LaterRowSeesEarlierInsert(t *testing.T) {
	t.Parallel()

	// The second row targets the email inserted by the first row, so in
	// insert mode it must be recognized as existing and skipped.
	csv := "name,email\n" +
		"First,shared@example.com\n" +
		"Second,shared@example.com\n"

	f := newImportFixture(t, domain.ImportModeInsert, false, csv)
	job := f.run(t)

	assert.Equal(t, 1, job.InsertedRows)
	assert.Equal(t, 1, job.SkippedRows)
}
