package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// mockJobStore is an in-memory ImportJobStore.
type mockJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.ImportJob

	UpdateFn func(ctx context.Context, job *domain.ImportJob) error
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{jobs: make(map[uuid.UUID]*domain.ImportJob)}
}

func (s *mockJobStore) Create(ctx context.Context, job *domain.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *mockJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrImportJobNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *mockJobStore) Update(ctx context.Context, job *domain.ImportJob) error {
	if s.UpdateFn != nil {
		return s.UpdateFn(ctx, job)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *mockJobStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.ImportJob, error) {
	return nil, nil
}

func (s *mockJobStore) MarkCleanedUp(ctx context.Context, id uuid.UUID) error {
	return nil
}

var _ store.ImportJobStore = (*mockJobStore)(nil)

// mockContactStore is an in-memory ContactStore recording mutations.
type mockContactStore struct {
	mu       sync.Mutex
	contacts map[int64]*domain.Contact
	inserts  int
	updates  int
}

func newMockContactStore(seed ...*domain.Contact) *mockContactStore {
	s := &mockContactStore{contacts: make(map[int64]*domain.Contact)}
	for _, c := range seed {
		clone := *c
		s.contacts[c.ID] = &clone
	}
	return s
}

func (s *mockContactStore) GetByID(ctx context.Context, id int64) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, store.ErrContactNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *mockContactStore) Insert(ctx context.Context, contact *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contacts[contact.ID]; exists {
		return store.ErrDuplicate
	}
	clone := *contact
	s.contacts[contact.ID] = &clone
	s.inserts++
	return nil
}

func (s *mockContactStore) Update(ctx context.Context, contact *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contacts[contact.ID]; !exists {
		return store.ErrContactNotFound
	}
	clone := *contact
	s.contacts[contact.ID] = &clone
	s.updates++
	return nil
}

func (s *mockContactStore) ListRefs(ctx context.Context) ([]store.ContactRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]store.ContactRef, 0, len(s.contacts))
	for _, c := range s.contacts {
		refs = append(refs, store.ContactRef{ID: c.ID, Email: c.Email})
	}
	return refs, nil
}

func (s *mockContactStore) CountForExport(ctx context.Context, filter store.ContactFilter) (int, error) {
	return 0, nil
}

func (s *mockContactStore) ListForExport(
	ctx context.Context,
	filter store.ContactFilter,
	cursor store.ContactCursor,
	limit int,
) ([]*domain.Contact, error) {
	return nil, nil
}

func (s *mockContactStore) mutationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts + s.updates
}

var _ store.ContactStore = (*mockContactStore)(nil)

// mockCompanyStore serves a fixed company list.
type mockCompanyStore struct {
	companies []*domain.Company
}

func (s *mockCompanyStore) ListAll(ctx context.Context) ([]*domain.Company, error) {
	return s.companies, nil
}

var _ store.CompanyStore = (*mockCompanyStore)(nil)

// mockIDGenerator allocates sequential IDs from a starting point.
type mockIDGenerator struct {
	mu   sync.Mutex
	next int64
}

func (g *mockIDGenerator) NextID(ctx context.Context, kind string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return g.next, nil
}

var _ store.IDGenerator = (*mockIDGenerator)(nil)

// mockBlobStore is an in-memory blob.Store.
type mockBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
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

// findKey returns the first stored key containing the substring.
func (s *mockBlobStore) findKey(substr string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.objects {
		if strings.Contains(key, substr) {
			return key, true
		}
	}
	return "", false
}
