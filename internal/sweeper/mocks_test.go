package sweeper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/events"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// fixedClock serves a constant instant.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// mockTicketStore is an in-memory TicketStore serving the sweeper queries.
type mockTicketStore struct {
	mu      sync.Mutex
	tickets map[int64]*domain.Ticket

	UpdateFn func(ctx context.Context, ticket *domain.Ticket) error
}

func newMockTicketStore(seed ...*domain.Ticket) *mockTicketStore {
	s := &mockTicketStore{tickets: make(map[int64]*domain.Ticket)}
	for _, t := range seed {
		clone := *t
		s.tickets[t.ID] = &clone
	}
	return s
}

func (s *mockTicketStore) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, store.ErrTicketNotFound
	}
	clone := *t
	return &clone, nil
}

func (s *mockTicketStore) Update(ctx context.Context, ticket *domain.Ticket) error {
	if s.UpdateFn != nil {
		return s.UpdateFn(ctx, ticket)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticket.ID]; !ok {
		return store.ErrTicketNotFound
	}
	clone := *ticket
	s.tickets[ticket.ID] = &clone
	return nil
}

func (s *mockTicketStore) ListSLACandidates(ctx context.Context, limit int) ([]*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Ticket
	for _, t := range s.tickets {
		if t.Status.IsOpen() && !t.SLABreached && t.SLAPolicyID != nil {
			clone := *t
			out = append(out, &clone)
		}
	}
	sortByID(out)
	return capLimit(out, limit), nil
}

func (s *mockTicketStore) ListSnoozeExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Ticket
	for _, t := range s.tickets {
		if t.SnoozedUntil != nil && !t.SnoozedUntil.After(now) {
			clone := *t
			out = append(out, &clone)
		}
	}
	sortByID(out)
	return capLimit(out, limit), nil
}

func (s *mockTicketStore) ListDueForReminder(ctx context.Context, from, to time.Time, limit int) ([]*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Ticket
	for _, t := range s.tickets {
		if !t.Status.IsOpen() || t.DueAt == nil || t.ReminderSentAt != nil {
			continue
		}
		if t.DueAt.Before(from) || t.DueAt.After(to) {
			continue
		}
		clone := *t
		out = append(out, &clone)
	}
	sortByID(out)
	return capLimit(out, limit), nil
}

func (s *mockTicketStore) SetReminderSent(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return store.ErrTicketNotFound
	}
	stamp := at
	t.ReminderSentAt = &stamp
	return nil
}

func (s *mockTicketStore) CountForExport(ctx context.Context, filter store.TicketFilter) (int, error) {
	return 0, nil
}

func (s *mockTicketStore) ListForExport(
	ctx context.Context,
	filter store.TicketFilter,
	cursor store.TicketCursor,
	limit int,
) ([]*domain.Ticket, error) {
	return nil, nil
}

var _ store.TicketStore = (*mockTicketStore)(nil)

func sortByID(tickets []*domain.Ticket) {
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })
}

func capLimit(tickets []*domain.Ticket, limit int) []*domain.Ticket {
	if limit > 0 && len(tickets) > limit {
		return tickets[:limit]
	}
	return tickets
}

// recordingEmitter collects emitted events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.Event
}

func (e *recordingEmitter) Emit(ctx context.Context, event *events.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEmitter) all() []*events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*events.Event(nil), e.events...)
}

// recordingNotifier collects sent notifications.
type recordingNotifier struct {
	mu    sync.Mutex
	sends []int64

	SendErr error
}

func (n *recordingNotifier) Send(ctx context.Context, targetID int64, payload interface{}) error {
	if n.SendErr != nil {
		return n.SendErr
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, targetID)
	return nil
}

func (n *recordingNotifier) targets() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int64(nil), n.sends...)
}

// mockImportJobStore serves expired import jobs for cleanup tests.
type mockImportJobStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*domain.ImportJob
	cleaned map[uuid.UUID]bool
}

func newMockImportJobStore(seed ...*domain.ImportJob) *mockImportJobStore {
	s := &mockImportJobStore{
		jobs:    make(map[uuid.UUID]*domain.ImportJob),
		cleaned: make(map[uuid.UUID]bool),
	}
	for _, j := range seed {
		clone := *j
		s.jobs[j.ID] = &clone
	}
	return s
}

func (s *mockImportJobStore) Create(ctx context.Context, job *domain.ImportJob) error { return nil }

func (s *mockImportJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ImportJob, error) {
	return nil, store.ErrImportJobNotFound
}

func (s *mockImportJobStore) Update(ctx context.Context, job *domain.ImportJob) error { return nil }

func (s *mockImportJobStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ImportJob
	for _, j := range s.jobs {
		if !s.cleaned[j.ID] && j.ExpiresAt.Before(now) {
			clone := *j
			out = append(out, &clone)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *mockImportJobStore) MarkCleanedUp(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleaned[id] = true
	return nil
}

var _ store.ImportJobStore = (*mockImportJobStore)(nil)

// mockExportJobStore serves expired export jobs for cleanup tests.
type mockExportJobStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*domain.ExportJob
	cleaned map[uuid.UUID]bool
}

func newMockExportJobStore(seed ...*domain.ExportJob) *mockExportJobStore {
	s := &mockExportJobStore{
		jobs:    make(map[uuid.UUID]*domain.ExportJob),
		cleaned: make(map[uuid.UUID]bool),
	}
	for _, j := range seed {
		clone := *j
		s.jobs[j.ID] = &clone
	}
	return s
}

func (s *mockExportJobStore) Create(ctx context.Context, job *domain.ExportJob) error { return nil }

func (s *mockExportJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExportJob, error) {
	return nil, store.ErrExportJobNotFound
}

func (s *mockExportJobStore) Update(ctx context.Context, job *domain.ExportJob) error { return nil }

func (s *mockExportJobStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ExportJob
	for _, j := range s.jobs {
		if !s.cleaned[j.ID] && j.ExpiresAt.Before(now) {
			clone := *j
			out = append(out, &clone)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *mockExportJobStore) MarkCleanedUp(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleaned[id] = true
	return nil
}

var _ store.ExportJobStore = (*mockExportJobStore)(nil)

// mockLogStore tracks webhook log rows as timestamps for pruning tests.
type mockLogStore struct {
	mu   sync.Mutex
	rows []time.Time
}

func (s *mockLogStore) Create(ctx context.Context, log *domain.WebhookLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, log.CreatedAt)
	return nil
}

func (s *mockLogStore) Update(ctx context.Context, log *domain.WebhookLog) error { return nil }

func (s *mockLogStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows), nil
}

func (s *mockLogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(s.rows, func(i, j int) bool { return s.rows[i].Before(s.rows[j]) })
	deleted := 0
	var kept []time.Time
	for _, ts := range s.rows {
		if deleted < limit && ts.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ts)
	}
	s.rows = kept
	return deleted, nil
}

func (s *mockLogStore) DeleteOldest(ctx context.Context, n int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(s.rows, func(i, j int) bool { return s.rows[i].Before(s.rows[j]) })
	if n > len(s.rows) {
		n = len(s.rows)
	}
	s.rows = s.rows[n:]
	return n, nil
}

var _ store.WebhookLogStore = (*mockLogStore)(nil)

// mockBlobStore is an in-memory blob.Store for cleanup tests.
type mockBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	DeleteErr error
}

func newMockBlobStore(keys ...string) *mockBlobStore {
	s := &mockBlobStore{objects: make(map[string][]byte)}
	for _, k := range keys {
		s.objects[k] = []byte("data")
	}
	return s
}

func (s *mockBlobStore) Save(
	ctx context.Context,
	key, filename, contentType string,
	data []byte,
	expiry time.Time,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return "http://blob.local/" + key, nil
}

func (s *mockBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", key)
	}
	return data, nil
}

func (s *mockBlobStore) Delete(ctx context.Context, key string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *mockBlobStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}
