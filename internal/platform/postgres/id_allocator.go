package postgres

import (
	"context"
	"fmt"

	"github.com/opsdeskhq/opsdesk/internal/store"
)

// IDAllocator implements store.IDGenerator on a per-entity counter table.
// The upsert-and-return runs as a single statement, so concurrent imports
// never receive the same identifier.
type IDAllocator struct {
	db store.DBTX
}

// NewIDAllocator creates a new IDAllocator.
func NewIDAllocator(db store.DBTX) *IDAllocator {
	return &IDAllocator{db: db}
}

// NextID returns the next identifier for the given entity kind.
func (a *IDAllocator) NextID(ctx context.Context, kind string) (int64, error) {
	query := `
		INSERT INTO entity_counters (kind, next_id)
		VALUES ($1, 1)
		ON CONFLICT (kind)
		DO UPDATE SET next_id = entity_counters.next_id + 1
		RETURNING next_id
	`
	var id int64
	if err := a.db.QueryRowContext(ctx, query, kind).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", kind, MapError(err))
	}
	return id, nil
}

var _ store.IDGenerator = (*IDAllocator)(nil)
