// api/store/funnel_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"funnelsight/api/models"
)

type FunnelStore struct {
	db *sql.DB
}

func NewFunnelStore(db *sql.DB) *FunnelStore {
	return &FunnelStore{db: db}
}

// GetOrCreateFunnel returns the funnel record for a form, creating it on
// first sight.
func (s *FunnelStore) GetOrCreateFunnel(ctx context.Context, name, formID string) (*models.Funnel, error) {
	funnel := &models.Funnel{}
	query := `
		INSERT INTO funnels (name, form_id)
		VALUES ($1, $2)
		ON CONFLICT (form_id) DO UPDATE SET updated_at = now()
		RETURNING id, name, form_id, is_active, created_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query, name, formID).Scan(
		&funnel.ID,
		&funnel.Name,
		&funnel.FormID,
		&funnel.IsActive,
		&funnel.CreatedAt,
		&funnel.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create funnel for form %q: %w", formID, err)
	}
	return funnel, nil
}

// ListActiveFunnels returns every funnel the detector should check.
func (s *FunnelStore) ListActiveFunnels(ctx context.Context) ([]models.Funnel, error) {
	query := `
		SELECT id, name, form_id, is_active, created_at, updated_at
		FROM funnels
		WHERE is_active
		ORDER BY id;
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active funnels: %w", err)
	}
	defer rows.Close()

	var funnels []models.Funnel
	for rows.Next() {
		var f models.Funnel
		if err := rows.Scan(&f.ID, &f.Name, &f.FormID, &f.IsActive, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan funnel row: %w", err)
		}
		funnels = append(funnels, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error listing funnels: %w", err)
	}
	return funnels, nil
}
