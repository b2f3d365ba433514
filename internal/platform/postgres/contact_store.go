package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// ContactStore implements store.ContactStore using PostgreSQL.
type ContactStore struct {
	db store.DBTX
}

// NewContactStore creates a new ContactStore.
func NewContactStore(db store.DBTX) *ContactStore {
	return &ContactStore{db: db}
}

const contactColumns = `
	id, name, email, phones, tags, company_id, created_at, updated_at
`

// GetByID retrieves a contact by its ID.
func (s *ContactStore) GetByID(ctx context.Context, id int64) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	contact, err := scanContact(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrContactNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", MapError(err))
	}
	return contact, nil
}

// Insert creates a new contact.
func (s *ContactStore) Insert(ctx context.Context, contact *domain.Contact) error {
	phones, tags, err := marshalMulti(contact)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO contacts (id, name, email, phones, tags, company_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		contact.ID,
		contact.Name,
		contact.Email,
		phones,
		tags,
		contact.CompanyID,
		now,
		now,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: contact %d", store.ErrDuplicate, contact.ID)
		}
		return fmt.Errorf("failed to insert contact: %w", MapError(err))
	}
	return nil
}

// Update persists all mutable fields of the contact.
func (s *ContactStore) Update(ctx context.Context, contact *domain.Contact) error {
	phones, tags, err := marshalMulti(contact)
	if err != nil {
		return err
	}

	query := `
		UPDATE contacts
		SET name = $1, email = $2, phones = $3, tags = $4, company_id = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := s.db.ExecContext(ctx, query,
		contact.Name,
		contact.Email,
		phones,
		tags,
		contact.CompanyID,
		time.Now().UTC(),
		contact.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", MapError(err))
	}
	if err := CheckRowsAffected(result, "contact"); err != nil {
		return store.ErrContactNotFound
	}
	return nil
}

// ListRefs returns the (id, email) pairs of all contacts.
func (s *ContactStore) ListRefs(ctx context.Context) ([]store.ContactRef, error) {
	query := `SELECT id, email FROM contacts`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact refs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var refs []store.ContactRef
	for rows.Next() {
		var ref store.ContactRef
		var email sql.NullString
		if err := rows.Scan(&ref.ID, &email); err != nil {
			return nil, fmt.Errorf("failed to scan contact ref: %w", err)
		}
		ref.Email = email.String
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contact refs: %w", err)
	}
	return refs, nil
}

// CountForExport returns the number of contacts matching the filter.
func (s *ContactStore) CountForExport(ctx context.Context, filter store.ContactFilter) (int, error) {
	query := `SELECT COUNT(*) FROM contacts WHERE created_at <= $1`
	var n int
	if err := s.db.QueryRowContext(ctx, query, filter.CreatedBefore).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count contacts for export: %w", MapError(err))
	}
	return n, nil
}

// ListForExport returns the next export page strictly after the cursor.
func (s *ContactStore) ListForExport(
	ctx context.Context,
	filter store.ContactFilter,
	cursor store.ContactCursor,
	limit int,
) ([]*domain.Contact, error) {
	var query string
	var args []interface{}

	if filter.SortField == "id" {
		query = `
			SELECT ` + contactColumns + `
			FROM contacts
			WHERE created_at <= $1
			  AND id > $2
			ORDER BY id ASC
			LIMIT $3
		`
		args = []interface{}{filter.CreatedBefore, cursor.ID, limit}
	} else {
		query = `
			SELECT ` + contactColumns + `
			FROM contacts
			WHERE created_at <= $1
			  AND (created_at, id) > ($2, $3)
			ORDER BY created_at ASC, id ASC
			LIMIT $4
		`
		args = []interface{}{filter.CreatedBefore, cursor.CreatedAt, cursor.ID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts for export: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var contacts []*domain.Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact row: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contact rows: %w", err)
	}
	return contacts, nil
}

func marshalMulti(contact *domain.Contact) ([]byte, []byte, error) {
	phones, err := json.Marshal(contact.Phones)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal contact phones: %w", err)
	}
	tags, err := json.Marshal(contact.Tags)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal contact tags: %w", err)
	}
	return phones, tags, nil
}

func scanContact(row rowScanner) (*domain.Contact, error) {
	var c domain.Contact
	var email sql.NullString
	var companyID sql.NullInt64
	var phones, tags []byte

	err := row.Scan(
		&c.ID,
		&c.Name,
		&email,
		&phones,
		&tags,
		&companyID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Email = email.String
	if companyID.Valid {
		v := companyID.Int64
		c.CompanyID = &v
	}
	if len(phones) > 0 {
		if err := json.Unmarshal(phones, &c.Phones); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contact phones: %w", err)
		}
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &c.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contact tags: %w", err)
		}
	}
	return &c, nil
}

var _ store.ContactStore = (*ContactStore)(nil)
