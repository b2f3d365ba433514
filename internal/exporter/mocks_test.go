package exporter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// mockJobStore is an in-memory ExportJobStore.
type mockJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.ExportJob
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{jobs: make(map[uuid.UUID]*domain.ExportJob)}
}

func (s *mockJobStore) Create(ctx context.Context, job *domain.ExportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *mockJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrExportJobNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *mockJobStore) Update(ctx context.Context, job *domain.ExportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *mockJobStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ExportJob, error) {
	return nil, nil
}

func (s *mockJobStore) MarkCleanedUp(ctx context.Context, id uuid.UUID) error {
	return nil
}

var _ store.ExportJobStore = (*mockJobStore)(nil)

// mockTicketStore serves export queries over a fixed ticket slice with the
// same filter and keyset semantics as the SQL store.
type mockTicketStore struct {
	tickets []*domain.Ticket
}

func (s *mockTicketStore) matching(filter store.TicketFilter) []*domain.Ticket {
	var out []*domain.Ticket
	for _, t := range s.tickets {
		if !filter.CreatedBefore.IsZero() && t.CreatedAt.After(filter.CreatedBefore) {
			continue
		}
		if filter.Status != "" && string(t.Status) != filter.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.SortField == "id" {
			return out[i].ID < out[j].ID
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *mockTicketStore) CountForExport(ctx context.Context, filter store.TicketFilter) (int, error) {
	return len(s.matching(filter)), nil
}

func (s *mockTicketStore) ListForExport(
	ctx context.Context,
	filter store.TicketFilter,
	cursor store.TicketCursor,
	limit int,
) ([]*domain.Ticket, error) {
	var out []*domain.Ticket
	for _, t := range s.matching(filter) {
		if !cursor.CreatedAt.IsZero() || cursor.ID != 0 {
			if filter.SortField == "id" {
				if t.ID <= cursor.ID {
					continue
				}
			} else if t.CreatedAt.Before(cursor.CreatedAt) ||
				(t.CreatedAt.Equal(cursor.CreatedAt) && t.ID <= cursor.ID) {
				continue
			}
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *mockTicketStore) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	return nil, store.ErrTicketNotFound
}

func (s *mockTicketStore) Update(ctx context.Context, ticket *domain.Ticket) error {
	return nil
}

func (s *mockTicketStore) ListSLACandidates(ctx context.Context, limit int) ([]*domain.Ticket, error) {
	return nil, nil
}

func (s *mockTicketStore) ListSnoozeExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Ticket, error) {
	return nil, nil
}

func (s *mockTicketStore) ListDueForReminder(ctx context.Context, from, to time.Time, limit int) ([]*domain.Ticket, error) {
	return nil, nil
}

func (s *mockTicketStore) SetReminderSent(ctx context.Context, id int64, at time.Time) error {
	return nil
}

var _ store.TicketStore = (*mockTicketStore)(nil)

// mockContactStore serves export queries over a fixed contact slice.
type mockContactStore struct {
	contacts []*domain.Contact
}

func (s *mockContactStore) matching(filter store.ContactFilter) []*domain.Contact {
	var out []*domain.Contact
	for _, c := range s.contacts {
		if !filter.CreatedBefore.IsZero() && c.CreatedAt.After(filter.CreatedBefore) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.SortField == "id" {
			return out[i].ID < out[j].ID
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *mockContactStore) CountForExport(ctx context.Context, filter store.ContactFilter) (int, error) {
	return len(s.matching(filter)), nil
}

func (s *mockContactStore) ListForExport(
	ctx context.Context,
	filter store.ContactFilter,
	cursor store.ContactCursor,
	limit int,
) ([]*domain.Contact, error) {
	var out []*domain.Contact
	for _, c := range s.matching(filter) {
		if !cursor.CreatedAt.IsZero() || cursor.ID != 0 {
			if filter.SortField == "id" {
				if c.ID <= cursor.ID {
					continue
				}
			} else if c.CreatedAt.Before(cursor.CreatedAt) ||
				(c.CreatedAt.Equal(cursor.CreatedAt) && c.ID <= cursor.ID) {
				continue
			}
		}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *mockContactStore) GetByID(ctx context.Context, id int64) (*domain.Contact, error) {
	return nil, store.ErrContactNotFound
}

func (s *mockContactStore) Insert(ctx context.Context, contact *domain.Contact) error {
	return nil
}

func (s *mockContactStore) Update(ctx context.Context, contact *domain.Contact) error {
	return nil
}

func (s *mockContactStore) ListRefs(ctx context.Context) ([]store.ContactRef, error) {
	return nil, nil
}

var _ store.ContactStore = (*mockContactStore)(nil)

// mockBlobStore is an in-memory blob.Store.
type mockBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	SaveErr error
}

func newMockBlobStore() *mockBlobStore {
	return &mockBlobStore{objects: make(map[string][]byte)}
}

func (s *mockBlobStore) Save(
	ctx context.Context,
	key, filename, contentType string,
	data []byte,
	expiry time.Time,
) (string, error) {
	if s.SaveErr != nil {
		return "", s.SaveErr
	}
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
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}
