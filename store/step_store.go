// api/store/step_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"funnelsight/api/models"
)

type StepStore struct {
	db *sql.DB
}

func NewStepStore(db *sql.DB) *StepStore {
	return &StepStore{db: db}
}

// UpsertStep creates or updates a step definition keyed by (funnel,
// position). Catalog positions are stable across runs, so a renamed or
// re-keyed page updates in place instead of accumulating duplicates.
func (s *StepStore) UpsertStep(ctx context.Context, def models.StepDefinition) (*models.StepDefinition, error) {
	saved := &models.StepDefinition{}
	query := `
		INSERT INTO funnel_steps (funnel_id, step_key, name, position, category, is_purchase_complete, is_disqualification)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (funnel_id, position) DO UPDATE SET
			step_key = EXCLUDED.step_key,
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			is_purchase_complete = EXCLUDED.is_purchase_complete,
			is_disqualification = EXCLUDED.is_disqualification,
			updated_at = now()
		RETURNING id, funnel_id, step_key, name, position, category, is_purchase_complete, is_disqualification, created_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query,
		def.FunnelID, def.StepKey, def.Name, def.Position, def.Category, def.IsPurchaseComplete, def.IsDisqualification,
	).Scan(
		&saved.ID,
		&saved.FunnelID,
		&saved.StepKey,
		&saved.Name,
		&saved.Position,
		&saved.Category,
		&saved.IsPurchaseComplete,
		&saved.IsDisqualification,
		&saved.CreatedAt,
		&saved.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert step %q: %w", def.StepKey, err)
	}
	return saved, nil
}

// MaxDynamicPosition returns the highest position already assigned to a
// dynamically discovered step, or DynamicOrdinalBase-1 when none exist yet.
func (s *StepStore) MaxDynamicPosition(ctx context.Context, funnelID int) (int, error) {
	var max int
	query := `
		SELECT COALESCE(MAX(position), $2)
		FROM funnel_steps
		WHERE funnel_id = $1 AND position >= $2;
	`
	err := s.db.QueryRowContext(ctx, query, funnelID, models.DynamicOrdinalBase-1).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max dynamic step position: %w", err)
	}
	return max, nil
}

// GetStepsByFunnel returns all step definitions for a funnel in position
// order.
func (s *StepStore) GetStepsByFunnel(ctx context.Context, funnelID int) ([]models.StepDefinition, error) {
	query := `
		SELECT id, funnel_id, step_key, name, position, category, is_purchase_complete, is_disqualification, created_at, updated_at
		FROM funnel_steps
		WHERE funnel_id = $1
		ORDER BY position;
	`
	rows, err := s.db.QueryContext(ctx, query, funnelID)
	if err != nil {
		return nil, fmt.Errorf("failed to query funnel steps: %w", err)
	}
	defer rows.Close()

	var defs []models.StepDefinition
	for rows.Next() {
		var def models.StepDefinition
		if err := rows.Scan(
			&def.ID, &def.FunnelID, &def.StepKey, &def.Name, &def.Position,
			&def.Category, &def.IsPurchaseComplete, &def.IsDisqualification,
			&def.CreatedAt, &def.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error reading funnel steps: %w", err)
	}
	return defs, nil
}
