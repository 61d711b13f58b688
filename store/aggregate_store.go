// api/store/aggregate_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"funnelsight/api/models"
)

type AggregateStore struct {
	db *sql.DB
}

func NewAggregateStore(db *sql.DB) *AggregateStore {
	return &AggregateStore{db: db}
}

// ReplaceStepDay replaces all of one day's step aggregates in a single
// transaction: delete the day, then insert the recomputed rows. Incremental
// upserts double-count whenever a sync is re-run over the same events;
// replacing the whole day converges instead. A day is either fully replaced
// or untouched, never half-written.
func (s *AggregateStore) ReplaceStepDay(ctx context.Context, funnelID int, day time.Time, rows []models.DailyStepAggregate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin step aggregate transaction: %w", err)
	}
	defer tx.Rollback()

	// Deleting a day that has no rows yet is fine.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM daily_step_aggregates WHERE funnel_id = $1 AND day = $2;`,
		funnelID, day,
	); err != nil {
		return fmt.Errorf("failed to delete step aggregates for %s: %w", day.Format("2006-01-02"), err)
	}

	insert := `
		INSERT INTO daily_step_aggregates (funnel_id, step_key, day, views, exits, continues, drop_off_rate, conversion_rate, avg_time_on_step)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, insert,
			funnelID, row.StepKey, day, row.Views, row.Exits, row.Continues,
			row.DropOffRate, row.ConversionRate, row.AvgTimeOnStep,
		); err != nil {
			return fmt.Errorf("failed to insert step aggregate for %q on %s: %w", row.StepKey, day.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit step aggregates for %s: %w", day.Format("2006-01-02"), err)
	}
	return nil
}

// ReplaceFunnelDay replaces one day's funnel-level aggregate with the same
// delete-then-insert semantics as ReplaceStepDay.
func (s *AggregateStore) ReplaceFunnelDay(ctx context.Context, funnelID int, day time.Time, row models.DailyFunnelAggregate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin funnel aggregate transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM daily_funnel_aggregates WHERE funnel_id = $1 AND day = $2;`,
		funnelID, day,
	); err != nil {
		return fmt.Errorf("failed to delete funnel aggregate for %s: %w", day.Format("2006-01-02"), err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO daily_funnel_aggregates (funnel_id, day, starts, completions, drop_offs, conversion_rate)
		 VALUES ($1, $2, $3, $4, $5, $6);`,
		funnelID, day, row.Starts, row.Completions, row.DropOffs, row.ConversionRate,
	); err != nil {
		return fmt.Errorf("failed to insert funnel aggregate for %s: %w", day.Format("2006-01-02"), err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit funnel aggregate for %s: %w", day.Format("2006-01-02"), err)
	}
	return nil
}

// GetStepSeries returns step aggregates on or after since, oldest first.
func (s *AggregateStore) GetStepSeries(ctx context.Context, funnelID int, since time.Time) ([]models.DailyStepAggregate, error) {
	query := `
		SELECT id, funnel_id, step_key, day, views, exits, continues, drop_off_rate, conversion_rate, avg_time_on_step
		FROM daily_step_aggregates
		WHERE funnel_id = $1 AND day >= $2
		ORDER BY day, step_key;
	`
	rows, err := s.db.QueryContext(ctx, query, funnelID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query step aggregates: %w", err)
	}
	defer rows.Close()

	var result []models.DailyStepAggregate
	for rows.Next() {
		var a models.DailyStepAggregate
		if err := rows.Scan(
			&a.ID, &a.FunnelID, &a.StepKey, &a.Day, &a.Views, &a.Exits, &a.Continues,
			&a.DropOffRate, &a.ConversionRate, &a.AvgTimeOnStep,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step aggregate row: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error reading step aggregates: %w", err)
	}
	return result, nil
}

// GetFunnelSeries returns funnel aggregates on or after since, oldest first.
func (s *AggregateStore) GetFunnelSeries(ctx context.Context, funnelID int, since time.Time) ([]models.DailyFunnelAggregate, error) {
	query := `
		SELECT id, funnel_id, day, starts, completions, drop_offs, conversion_rate
		FROM daily_funnel_aggregates
		WHERE funnel_id = $1 AND day >= $2
		ORDER BY day;
	`
	rows, err := s.db.QueryContext(ctx, query, funnelID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query funnel aggregates: %w", err)
	}
	defer rows.Close()

	var result []models.DailyFunnelAggregate
	for rows.Next() {
		var a models.DailyFunnelAggregate
		if err := rows.Scan(&a.ID, &a.FunnelID, &a.Day, &a.Starts, &a.Completions, &a.DropOffs, &a.ConversionRate); err != nil {
			return nil, fmt.Errorf("failed to scan funnel aggregate row: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error reading funnel aggregates: %w", err)
	}
	return result, nil
}
