package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrTicketNotFound, ErrContactNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a contact with the same email).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist or the update violates constraints.
	ErrUpdateFailed = errors.New("update failed")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrTicketNotFound indicates that the requested ticket does not exist in the store.
	ErrTicketNotFound = fmt.Errorf("%w: ticket", ErrNotFound)

	// ErrContactNotFound indicates that the requested contact does not exist in the store.
	ErrContactNotFound = fmt.Errorf("%w: contact", ErrNotFound)

	// ErrImportJobNotFound indicates that the requested import job does not exist in the store.
	ErrImportJobNotFound = fmt.Errorf("%w: import job", ErrNotFound)

	// ErrExportJobNotFound indicates that the requested export job does not exist in the store.
	ErrExportJobNotFound = fmt.Errorf("%w: export job", ErrNotFound)

	// ErrWebhookNotFound indicates that the requested webhook does not exist in the store.
	ErrWebhookNotFound = fmt.Errorf("%w: webhook", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
