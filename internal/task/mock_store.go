package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for tests. Behavior can
// be overridden per method through the *Fn fields.
type MockStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
	order   []uuid.UUID

	EnqueueFn      func(ctx context.Context, rec *Record) error
	ClaimNextFn    func(ctx context.Context) (*Record, error)
	MarkCompleteFn func(ctx context.Context, id uuid.UUID) error
	MarkErrorFn    func(ctx context.Context, id uuid.UUID, message string) error
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		records: make(map[uuid.UUID]*Record),
	}
}

// Enqueue implements Store.
func (s *MockStore) Enqueue(ctx context.Context, rec *Record) error {
	if s.EnqueueFn != nil {
		return s.EnqueueFn(ctx, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	s.records[rec.ID] = &clone
	s.order = append(s.order, rec.ID)
	return nil
}

// ClaimNext implements Store. It claims the oldest enqueued record.
func (s *MockStore) ClaimNext(ctx context.Context) (*Record, error) {
	if s.ClaimNextFn != nil {
		return s.ClaimNextFn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		rec := s.records[id]
		if rec.Status == StatusEnqueued {
			rec.Status = StatusProcessing
			clone := *rec
			return &clone, nil
		}
	}
	return nil, nil
}

// MarkComplete implements Store.
func (s *MockStore) MarkComplete(ctx context.Context, id uuid.UUID) error {
	if s.MarkCompleteFn != nil {
		return s.MarkCompleteFn(ctx, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		now := time.Now().UTC()
		rec.Status = StatusComplete
		rec.Percent = 100
		rec.CompletedAt = &now
	}
	return nil
}

// MarkError implements Store.
func (s *MockStore) MarkError(ctx context.Context, id uuid.UUID, message string) error {
	if s.MarkErrorFn != nil {
		return s.MarkErrorFn(ctx, id, message)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.Status = StatusError
		rec.ErrorMessage = message
	}
	return nil
}

// SetProgress implements Store.
func (s *MockStore) SetProgress(ctx context.Context, id uuid.UUID, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.Percent = percent
	}
	return nil
}

// CountByStatus implements Store.
func (s *MockStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[Status]int)
	for _, rec := range s.records {
		counts[rec.Status]++
	}
	return counts, nil
}

// Get returns the stored record with the given ID, or nil.
func (s *MockStore) Get(id uuid.UUID) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		clone := *rec
		return &clone
	}
	return nil
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)
