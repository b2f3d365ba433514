package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FilesystemStore implements Store on the local filesystem. Objects live
// under a root directory keyed by their storage key; a sidecar metadata
// file preserves the filename and content type for download serving.
type FilesystemStore struct {
	root    string
	baseURL string
	logger  *slog.Logger
}

// objectMeta is the sidecar metadata written next to each object.
type objectMeta struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewFilesystemStore creates a filesystem-backed Store rooted at the given
// directory. The directory is created if it does not exist.
func NewFilesystemStore(root, baseURL string, logger *slog.Logger) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root directory: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &FilesystemStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "blob_store"),
	}, nil
}

// Ensure FilesystemStore implements Store
var _ Store = (*FilesystemStore)(nil)

// Save implements Store.
func (s *FilesystemStore) Save(
	ctx context.Context,
	key string,
	filename string,
	contentType string,
	data []byte,
	expiry time.Time,
) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob %q: %w", key, err)
	}

	meta := objectMeta{
		Filename:    filename,
		ContentType: contentType,
		ExpiresAt:   expiry,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal blob metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaBytes, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob metadata for %q: %w", key, err)
	}

	s.logger.Debug("blob saved", "key", key, "size", len(data))

	return s.baseURL + "/" + key, nil
}

// Get implements Store.
func (s *FilesystemStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read blob %q: %w", key, err)
	}
	return data, nil
}

// Delete implements Store.
func (s *FilesystemStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %q: %w", key, err)
	}
	if err := os.Remove(path + ".meta"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob metadata for %q: %w", key, err)
	}

	s.logger.Debug("blob deleted", "key", key)
	return nil
}

// path resolves a storage key to a filesystem path, rejecting keys that
// would escape the root directory.
func (s *FilesystemStore) path(key string) (string, error) {
	cleaned := filepath.Clean("/" + key)
	if cleaned == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, cleaned), nil
}
