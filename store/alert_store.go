// api/store/alert_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"funnelsight/api/models"
)

type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

// CreateAlert persists a new alert, filling in its ID and timestamps.
func (s *AlertStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	query := `
		INSERT INTO alerts (id, funnel_id, step_position, step_name, severity, alert_type, current_value, previous_value, seven_day_avg, change_percent, message, recommendation, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query,
		alert.ID, alert.FunnelID, alert.StepPosition, alert.StepName,
		alert.Severity, alert.Type, alert.CurrentValue, alert.PreviousValue,
		alert.SevenDayAvg, alert.ChangePercent, alert.Message, alert.Recommendation,
		models.AlertActive,
	).Scan(&alert.CreatedAt, &alert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	alert.Status = models.AlertActive
	return nil
}

// HasRecentAlert reports whether an active alert with the same (funnel, step,
// type) identity was created after since. stepPosition nil matches
// funnel-level alerts only. Acknowledged or resolved alerts never suppress
// re-detection: an operator closing an alert is asking to be told if the
// anomaly is still there.
func (s *AlertStore) HasRecentAlert(ctx context.Context, funnelID int, stepPosition *int, alertType models.AlertType, since time.Time) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM alerts
		WHERE funnel_id = $1
		  AND alert_type = $2
		  AND created_at >= $3
		  AND status = 'active'
		  AND ($4::integer IS NULL AND step_position IS NULL OR step_position = $4);
	`
	err := s.db.QueryRowContext(ctx, query, funnelID, alertType, since, stepPosition).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent alerts: %w", err)
	}
	return count > 0, nil
}

// ListAlerts returns alerts for a funnel, optionally filtered by status,
// newest first.
func (s *AlertStore) ListAlerts(ctx context.Context, funnelID int, status models.AlertStatus) ([]models.Alert, error) {
	query := `
		SELECT id, funnel_id, step_position, step_name, severity, alert_type, current_value, previous_value, seven_day_avg, change_percent, message, recommendation, status, created_at, updated_at
		FROM alerts
		WHERE funnel_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT 200;
	`
	rows, err := s.db.QueryContext(ctx, query, funnelID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(
			&a.ID, &a.FunnelID, &a.StepPosition, &a.StepName, &a.Severity, &a.Type,
			&a.CurrentValue, &a.PreviousValue, &a.SevenDayAvg, &a.ChangePercent,
			&a.Message, &a.Recommendation, &a.Status, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error listing alerts: %w", err)
	}
	return alerts, nil
}

// UpdateAlertStatus applies a manual status transition (acknowledge/resolve).
func (s *AlertStore) UpdateAlertStatus(ctx context.Context, alertID string, status models.AlertStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET status = $2, updated_at = now() WHERE id = $1;`,
		alertID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
