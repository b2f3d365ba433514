package postgres

import (
	"context"
	"fmt"

	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// CompanyStore implements store.CompanyStore using PostgreSQL.
type CompanyStore struct {
	db store.DBTX
}

// NewCompanyStore creates a new CompanyStore.
func NewCompanyStore(db store.DBTX) *CompanyStore {
	return &CompanyStore{db: db}
}

// ListAll returns every company.
func (s *CompanyStore) ListAll(ctx context.Context) ([]*domain.Company, error) {
	query := `SELECT id, name, created_at, updated_at FROM companies ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var companies []*domain.Company
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan company row: %w", err)
		}
		companies = append(companies, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating company rows: %w", err)
	}
	return companies, nil
}

var _ store.CompanyStore = (*CompanyStore)(nil)
