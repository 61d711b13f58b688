// api/store/entry_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"funnelsight/api/models"
)

type EntryStore struct {
	db *sql.DB
}

func NewEntryStore(db *sql.DB) *EntryStore {
	return &EntryStore{db: db}
}

// UpsertEntry records or refreshes the lightweight entry stub pushed by the
// webhook receiver. Entries never feed the daily aggregates; the sync job is
// the only writer of aggregate rows.
func (s *EntryStore) UpsertEntry(ctx context.Context, entry *models.Entry) error {
	query := `
		INSERT INTO entries (entry_token, form_id, completed, raw_payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entry_token) DO UPDATE SET
			completed = entries.completed OR EXCLUDED.completed,
			raw_payload = EXCLUDED.raw_payload,
			updated_at = now()
		RETURNING id, received_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query,
		entry.EntryToken, entry.FormID, entry.Completed, entry.RawPayload,
	).Scan(&entry.ID, &entry.ReceivedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert entry %q: %w", entry.EntryToken, err)
	}
	return nil
}

// GetEntryByToken looks up an entry stub.
func (s *EntryStore) GetEntryByToken(ctx context.Context, token string) (*models.Entry, error) {
	entry := &models.Entry{}
	query := `
		SELECT id, entry_token, form_id, completed, received_at, updated_at
		FROM entries
		WHERE entry_token = $1;
	`
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&entry.ID, &entry.EntryToken, &entry.FormID, &entry.Completed,
		&entry.ReceivedAt, &entry.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry %q not found", token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry by token: %w", err)
	}
	return entry, nil
}
