package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/opsdeskhq/opsdesk/internal/domain"
	"github.com/opsdeskhq/opsdesk/internal/store"
)

// WebhookStore implements store.WebhookStore using PostgreSQL.
type WebhookStore struct {
	db store.DBTX
}

// NewWebhookStore creates a new WebhookStore.
func NewWebhookStore(db store.DBTX) *WebhookStore {
	return &WebhookStore{db: db}
}

const webhookColumns = `
	id, name, url, enabled, triggers, created_at, updated_at
`

// GetByID retrieves a webhook by its ID.
func (s *WebhookStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = $1`
	wh, err := scanWebhook(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return nil, store.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("failed to get webhook: %w", MapError(err))
	}
	return wh, nil
}

// ListEnabledByTrigger returns all enabled webhooks subscribed to the given
// trigger. Triggers are stored as a JSONB array; the containment operator
// matches subscriptions without unpacking the document.
func (s *WebhookStore) ListEnabledByTrigger(ctx context.Context, trigger string) ([]*domain.Webhook, error) {
	query := `
		SELECT ` + webhookColumns + `
		FROM webhooks
		WHERE enabled = TRUE
		  AND triggers @> to_jsonb($1::text)
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhooks by trigger: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var webhooks []*domain.Webhook
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook row: %w", err)
		}
		webhooks = append(webhooks, wh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook rows: %w", err)
	}
	return webhooks, nil
}

func scanWebhook(row rowScanner) (*domain.Webhook, error) {
	var w domain.Webhook
	var triggers []byte

	err := row.Scan(
		&w.ID,
		&w.Name,
		&w.URL,
		&w.Enabled,
		&triggers,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(triggers) > 0 {
		if err := json.Unmarshal(triggers, &w.Triggers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal webhook triggers: %w", err)
		}
	}
	return &w, nil
}

var _ store.WebhookStore = (*WebhookStore)(nil)
