package store

import (
	"context"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/domain"
)

// ContactRef is the slice of a contact used to build import reference
// lookups (existence by ID and by natural key) without loading full rows.
type ContactRef struct {
	ID    int64
	Email string
}

// ContactFilter restricts contact queries for export.
type ContactFilter struct {
	CreatedBefore time.Time

	// SortField orders export pages; supported values are "created_at"
	// (default) and "id".
	SortField string
}

// ContactCursor is the keyset pagination position for contact export pages.
type ContactCursor struct {
	CreatedAt time.Time
	ID        int64
}

// ContactStore defines the persistence interface for contacts.
type ContactStore interface {
	// GetByID retrieves a contact by its ID.
	// Returns ErrContactNotFound if the contact does not exist.
	GetByID(ctx context.Context, id int64) (*domain.Contact, error)

	// Insert creates a new contact. Returns ErrDuplicate if a contact with
	// the same ID already exists.
	Insert(ctx context.Context, contact *domain.Contact) error

	// Update persists all mutable fields of the contact.
	// Returns ErrContactNotFound if the contact does not exist.
	Update(ctx context.Context, contact *domain.Contact) error

	// ListRefs returns the (id, email) pairs of all contacts, used to build
	// the import engine's reference lookups in one query.
	ListRefs(ctx context.Context) ([]ContactRef, error)

	// CountForExport returns the number of contacts matching the filter.
	CountForExport(ctx context.Context, filter ContactFilter) (int, error)

	// ListForExport returns the next page of contacts matching the filter,
	// ordered by (created_at, id) ascending, strictly after the cursor.
	ListForExport(
		ctx context.Context,
		filter ContactFilter,
		cursor ContactCursor,
		limit int,
	) ([]*domain.Contact, error)
}

// CompanyStore defines the persistence interface for companies.
type CompanyStore interface {
	// ListAll returns every company. The table is expected to be small
	// relative to contacts; imports load it once per run.
	ListAll(ctx context.Context) ([]*domain.Company, error)
}

// IDGenerator allocates integer public identifiers for business entities,
// used when an import row supplies no explicit identifier.
type IDGenerator interface {
	// NextID returns the next identifier for the given entity kind.
	NextID(ctx context.Context, kind string) (int64, error)
}
