// api/store/synclog_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"funnelsight/api/models"
)

type SyncLogStore struct {
	db *sql.DB
}

func NewSyncLogStore(db *sql.DB) *SyncLogStore {
	return &SyncLogStore{db: db}
}

// InsertSyncLog appends one run's audit record. Sync logs are write-once;
// there is deliberately no update path.
func (s *SyncLogStore) InsertSyncLog(ctx context.Context, entry models.SyncLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_logs (run_id, sync_type, status, records_processed, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`,
		entry.RunID, entry.SyncType, entry.Status, entry.RecordsProcessed,
		entry.ErrorMessage, entry.StartedAt, entry.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync log: %w", err)
	}
	return nil
}

// RecentSyncLogs returns the latest run records, newest first.
func (s *SyncLogStore) RecentSyncLogs(ctx context.Context, limit int) ([]models.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, sync_type, status, records_processed, error_message, started_at, completed_at
		FROM sync_logs
		ORDER BY started_at DESC
		LIMIT $1;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	var logs []models.SyncLog
	for rows.Next() {
		var l models.SyncLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.SyncType, &l.Status, &l.RecordsProcessed, &l.ErrorMessage, &l.StartedAt, &l.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log row: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error reading sync logs: %w", err)
	}
	return logs, nil
}
