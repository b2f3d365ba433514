// Package blob provides object storage for generated artifacts such as
// export files and import error files.
package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no object exists under the requested key.
var ErrNotFound = errors.New("blob not found")

// Store is the object storage interface consumed by the import and export
// engines and the retention sweep.
type Store interface {
	// Save stores the bytes under the given key and returns a download URL.
	// The filename and content type are delivery metadata; expiry is
	// advisory and enforced by the retention sweep, not the store.
	Save(
		ctx context.Context,
		key string,
		filename string,
		contentType string,
		data []byte,
		expiry time.Time,
	) (string, error)

	// Get returns the bytes stored under the key.
	// Returns ErrNotFound if no object exists.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object stored under the key. Deleting a missing
	// object is not an error.
	Delete(ctx context.Context, key string) error
}
