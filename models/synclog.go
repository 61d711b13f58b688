// api/models/synclog.go
package models

import "time"

type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncPartial SyncStatus = "partial"
	SyncFailed  SyncStatus = "failed"
)

// SyncLog is the append-only audit record of one sync attempt. Each run
// writes exactly one row when it finishes, whatever the outcome.
type SyncLog struct {
	ID               int        `json:"id"`
	RunID            string     `json:"run_id"`
	SyncType         string     `json:"sync_type"`
	Status           SyncStatus `json:"status"`
	RecordsProcessed int        `json:"records_processed"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      time.Time  `json:"completed_at"`
}
