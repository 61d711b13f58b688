// api/handlers/stats_handlers.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"funnelsight/api/models"
	"funnelsight/api/store"
)

// AggregateReader serves the precomputed daily rollups to the dashboard.
type AggregateReader interface {
	GetStepSeries(ctx context.Context, funnelID int, since time.Time) ([]models.DailyStepAggregate, error)
	GetFunnelSeries(ctx context.Context, funnelID int, since time.Time) ([]models.DailyFunnelAggregate, error)
}

type StatsHandlers struct {
	Aggregates AggregateReader
	Archive    *store.ArchiveStore
	Funnels    FunnelLister
	SyncLogs   *store.SyncLogStore
}

func NewStatsHandlers(aggregates AggregateReader, archive *store.ArchiveStore, funnels FunnelLister, syncLogs *store.SyncLogStore) *StatsHandlers {
	return &StatsHandlers{Aggregates: aggregates, Archive: archive, Funnels: funnels, SyncLogs: syncLogs}
}

// parseRange reads optional start/end query params (RFC3339 or 2006-01-02),
// defaulting to the trailing 7 days like the rest of the dashboard.
func parseRange(c *gin.Context) (time.Time, time.Time, bool) {
	parse := func(s string) (time.Time, error) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, nil
		}
		return time.Parse("2006-01-02", s)
	}

	start := time.Now().UTC().Add(-7 * 24 * time.Hour)
	end := time.Now().UTC()

	if s := c.Query("start"); s != "" {
		t, err := parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'start' timestamp format. Use RFC3339 or YYYY-MM-DD"})
			return start, end, false
		}
		start = t
	}
	if s := c.Query("end"); s != "" {
		t, err := parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'end' timestamp format. Use RFC3339 or YYYY-MM-DD"})
			return start, end, false
		}
		end = t
	}
	return start, end, true
}

func (h *StatsHandlers) firstFunnel(c *gin.Context) (*models.Funnel, bool) {
	funnels, err := h.Funnels.ListActiveFunnels(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list funnels for stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list funnels"})
		return nil, false
	}
	if len(funnels) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No active funnel; run a sync first"})
		return nil, false
	}
	return &funnels[0], true
}

// GetStepStats returns the per-step daily aggregates in a date range.
func (h *StatsHandlers) GetStepStats(c *gin.Context) {
	start, _, ok := parseRange(c)
	if !ok {
		return
	}
	funnel, ok := h.firstFunnel(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	rows, err := h.Aggregates.GetStepSeries(ctx, funnel.ID, start)
	if err != nil {
		log.Error().Err(err).Msg("failed to read step aggregates")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve step statistics"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetFunnelStats returns the daily funnel aggregates in a date range.
func (h *StatsHandlers) GetFunnelStats(c *gin.Context) {
	start, _, ok := parseRange(c)
	if !ok {
		return
	}
	funnel, ok := h.firstFunnel(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	rows, err := h.Aggregates.GetFunnelSeries(ctx, funnel.ID, start)
	if err != nil {
		log.Error().Err(err).Msg("failed to read funnel aggregates")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve funnel statistics"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetCoverage reports archived raw visit counts per day from ClickHouse, so
// gaps between what the source sent and what the aggregates contain are
// visible.
func (h *StatsHandlers) GetCoverage(c *gin.Context) {
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	counts, err := h.Archive.GetDailyVisitCounts(ctx, start, end)
	if err != nil {
		log.Error().Err(err).Msg("failed to read visit counts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve coverage statistics"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

// GetSyncLogs returns the recent sync audit trail.
func (h *StatsHandlers) GetSyncLogs(c *gin.Context) {
	logs, err := h.SyncLogs.RecentSyncLogs(c.Request.Context(), 20)
	if err != nil {
		log.Error().Err(err).Msg("failed to read sync logs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sync logs"})
		return
	}
	c.JSON(http.StatusOK, logs)
}
