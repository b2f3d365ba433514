package domain

import (
	"errors"
	"time"
)

// Contact-specific validation errors
var (
	// ErrContactIDInvalid is returned when a contact ID is zero or negative.
	ErrContactIDInvalid = errors.New("contact ID must be a positive integer")

	// ErrContactNameEmpty is returned when a contact name is empty.
	ErrContactNameEmpty = errors.New("contact name cannot be empty")
)

// Contact represents a person in the helpdesk address book. Contacts are
// the target entity of bulk CSV import and one of the export entities.
type Contact struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`

	// Phones and Tags are multi-valued; on CSV rows they are joined with
	// semicolons.
	Phones []string `json:"phones"`
	Tags   []string `json:"tags"`

	// CompanyID is nil when the contact is not linked to a company.
	CompanyID *int64 `json:"company_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewContact creates a new Contact with the given ID and name and sets the
// creation/update timestamps. Returns an error if validation fails.
func NewContact(id int64, name string) (*Contact, error) {
	contact := &Contact{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := contact.Validate(); err != nil {
		return nil, err
	}

	return contact, nil
}

// Validate checks if the Contact has valid data.
func (c *Contact) Validate() error {
	if c.ID <= 0 {
		return ErrContactIDInvalid
	}
	if c.Name == "" {
		return ErrContactNameEmpty
	}
	return nil
}

// Company represents an organization that contacts may belong to. Imports
// resolve company references by ID or by name.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
