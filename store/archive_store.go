// api/store/archive_store.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"funnelsight/api/database"
	"funnelsight/api/models"
)

// ArchiveStore writes fetched raw events into ClickHouse, one row per page
// visit. The archive is append-only history for diagnostics; the relational
// aggregates remain the dashboard's source of truth.
type ArchiveStore struct {
	DB *database.ClickHouseClient
}

// VisitCountByDay is one row of the coverage diagnostic: how many page
// visits the archive holds per day.
type VisitCountByDay struct {
	Day   time.Time `json:"day"`
	Count uint64    `json:"count"`
}

func NewArchiveStore(chClient *database.ClickHouseClient) *ArchiveStore {
	return &ArchiveStore{DB: chClient}
}

// ArchiveEvents batch-inserts every page visit of the given events.
func (s *ArchiveStore) ArchiveEvents(ctx context.Context, events []models.RawEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO funnel_page_visits (
			entry_token, form_id, step_key, position, visited_at, url, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare archive batch: %w", err)
	}

	appended := 0
	for _, ev := range events {
		for _, v := range ev.PageVisits {
			if err := batch.Append(
				ev.EntryToken,
				ev.FormID,
				v.StepKey,
				int32(v.Position),
				v.VisitedAt,
				v.URL,
				ev.CreatedAt,
			); err != nil {
				log.Error().Err(err).Str("entry_token", ev.EntryToken).Msg("error appending visit to archive batch")
				continue
			}
			appended++
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send archive batch: %w", err)
	}

	log.Info().Int("visits", appended).Int("events", len(events)).Msg("archived raw page visits")
	return nil
}

// GetDailyVisitCounts returns archived visit counts bucketed per day, for the
// dashboard coverage diagnostic.
func (s *ArchiveStore) GetDailyVisitCounts(ctx context.Context, start, end time.Time) ([]VisitCountByDay, error) {
	query := `
		SELECT toStartOfDay(visited_at) AS day, count() AS visits
		FROM funnel_page_visits
		WHERE visited_at >= ? AND visited_at <= ?
		GROUP BY day
		ORDER BY day ASC
	`
	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily visit counts: %w", err)
	}
	defer rows.Close()

	var results []VisitCountByDay
	for rows.Next() {
		var r VisitCountByDay
		if err := rows.Scan(&r.Day, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan visit count row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error reading visit counts: %w", err)
	}
	return results, nil
}
