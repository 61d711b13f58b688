// api/sync/runner.go
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"funnelsight/api/models"
	"funnelsight/api/source"
)

// ErrSyncInProgress is returned when another run already holds the funnel's
// run lock.
var ErrSyncInProgress = errors.New("a sync run for this funnel is already in progress")

// EventSource produces the raw events to aggregate.
type EventSource interface {
	FetchAll(ctx context.Context) (*source.FetchResult, error)
}

// EventArchive receives the fetched raw events for append-only archival.
type EventArchive interface {
	ArchiveEvents(ctx context.Context, events []models.RawEvent) error
}

// FunnelResolver looks up (or lazily creates) the funnel record for a form.
type FunnelResolver interface {
	GetOrCreateFunnel(ctx context.Context, name, formID string) (*models.Funnel, error)
}

// AggregateWriter persists one day's aggregates with replace semantics.
type AggregateWriter interface {
	ReplaceStepDay(ctx context.Context, funnelID int, day time.Time, rows []models.DailyStepAggregate) error
	ReplaceFunnelDay(ctx context.Context, funnelID int, day time.Time, row models.DailyFunnelAggregate) error
}

// SyncLogWriter appends the audit record for a finished run.
type SyncLogWriter interface {
	InsertSyncLog(ctx context.Context, entry models.SyncLog) error
}

// RunLocker serializes runs per funnel. Acquire reports false when the lock
// is already held; the returned release function is non-nil iff acquired.
type RunLocker interface {
	Acquire(ctx context.Context, funnelID int, ttl time.Duration) (bool, func(), error)
}

// Runner drives one sync run end to end: lock, fetch, archive, fold,
// reconcile, write, audit. Everything is strictly sequential; the only
// concurrency concern is overlapping invocations, which the run lock handles.
type Runner struct {
	source     EventSource
	archive    EventArchive
	funnels    FunnelResolver
	steps      StepCatalog
	aggregates AggregateWriter
	syncLogs   SyncLogWriter
	locks      RunLocker
	funnelName string
	formID     string
	lockTTL    time.Duration
	logger     zerolog.Logger
}

// RunResult is the payload returned to the sync trigger endpoint.
type RunResult struct {
	EntriesProcessed int     `json:"entries_processed"`
	StepsTracked     int     `json:"steps_tracked"`
	DaysWritten      int     `json:"days_written"`
	Starts           int     `json:"starts"`
	Completions      int     `json:"completions"`
	ConversionRate   float64 `json:"conversion_rate"`
	Partial          bool    `json:"partial"`
	PagesFetched     int     `json:"pages_fetched"`
	StepsObserved    int     `json:"steps_observed"`
	StepsDiscovered  int     `json:"steps_discovered"`
	DurationMs       int64   `json:"duration_ms"`
}

func NewRunner(src EventSource, archive EventArchive, funnels FunnelResolver, steps StepCatalog, aggregates AggregateWriter, syncLogs SyncLogWriter, locks RunLocker, funnelName, formID string, lockTTL time.Duration, logger zerolog.Logger) *Runner {
	return &Runner{
		source:     src,
		archive:    archive,
		funnels:    funnels,
		steps:      steps,
		aggregates: aggregates,
		syncLogs:   syncLogs,
		locks:      locks,
		funnelName: funnelName,
		formID:     formID,
		lockTTL:    lockTTL,
		logger:     logger.With().Str("component", "sync").Logger(),
	}
}

// Run executes one sync. Fetch failures abort before any aggregate write;
// a spent fetch budget is a flagged partial success, not an error; a write
// failure can leave earlier days fully replaced and later days stale, but
// never a half-replaced day.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	startedAt := time.Now().UTC()
	runID := uuid.New().String()
	logger := r.logger.With().Str("run_id", runID).Logger()

	funnel, err := r.funnels.GetOrCreateFunnel(ctx, r.funnelName, r.formID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve funnel: %w", err)
	}

	acquired, release, err := r.locks.Acquire(ctx, funnel.ID, r.lockTTL)
	if err != nil {
		// A lock-store outage should not stop syncs entirely; overlapping
		// runs converge anyway under replace-per-day writes.
		logger.Warn().Err(err).Msg("run lock unavailable, continuing without exclusion")
	} else if !acquired {
		return nil, ErrSyncInProgress
	} else {
		defer release()
	}

	fetchRes, err := r.source.FetchAll(ctx)
	if err != nil {
		r.writeLog(ctx, runID, models.SyncFailed, 0, err, startedAt)
		return nil, fmt.Errorf("event fetch failed: %w", err)
	}

	if r.archive != nil && len(fetchRes.Events) > 0 {
		if err := r.archive.ArchiveEvents(ctx, fetchRes.Events); err != nil {
			logger.Warn().Err(err).Msg("failed to archive raw events")
		}
	}

	acc := NewAccumulator()
	purchaseKeys := models.PurchaseCompleteKeys()
	firstSeen := make(map[string]int)
	for _, ev := range fetchRes.Events {
		facts := NormalizeEntry(ev, purchaseKeys)
		acc.Add(ev, facts)
		for _, v := range ev.PageVisits {
			if v.StepKey == "" {
				continue
			}
			if _, seen := firstSeen[v.StepKey]; !seen {
				firstSeen[v.StepKey] = v.Position
			}
		}
	}

	observed := acc.StepKeys()
	defs, err := ReconcileSteps(ctx, r.steps, funnel.ID, observed, firstSeen, logger)
	if err != nil {
		r.writeLog(ctx, runID, models.SyncFailed, len(fetchRes.Events), err, startedAt)
		return nil, fmt.Errorf("step reconciliation failed: %w", err)
	}

	daysWritten := 0
	discovered := 0
	for _, key := range observed {
		if def, ok := defs[key]; ok && def.Position >= models.DynamicOrdinalBase {
			discovered++
		}
	}

	for _, day := range acc.Days() {
		rows := acc.StepRows(funnel.ID, day)
		kept := rows[:0]
		for _, row := range rows {
			if _, ok := defs[row.StepKey]; ok {
				kept = append(kept, row)
			} else {
				logger.Warn().
					Str("step_key", row.StepKey).
					Time("day", day).
					Msg("dropping aggregate row with no step definition")
			}
		}
		if err := r.aggregates.ReplaceStepDay(ctx, funnel.ID, day, kept); err != nil {
			r.writeLog(ctx, runID, models.SyncFailed, len(fetchRes.Events), err, startedAt)
			return nil, fmt.Errorf("failed to write step aggregates for %s: %w", day.Format("2006-01-02"), err)
		}
		if err := r.aggregates.ReplaceFunnelDay(ctx, funnel.ID, day, acc.FunnelRow(funnel.ID, day)); err != nil {
			r.writeLog(ctx, runID, models.SyncFailed, len(fetchRes.Events), err, startedAt)
			return nil, fmt.Errorf("failed to write funnel aggregate for %s: %w", day.Format("2006-01-02"), err)
		}
		daysWritten++
	}

	status := models.SyncSuccess
	if fetchRes.Partial {
		status = models.SyncPartial
	}
	r.writeLog(ctx, runID, status, len(fetchRes.Events), nil, startedAt)

	starts := acc.TotalStarts()
	completions := acc.TotalCompletions()
	result := &RunResult{
		EntriesProcessed: len(fetchRes.Events),
		StepsTracked:     len(defs),
		DaysWritten:      daysWritten,
		Starts:           starts,
		Completions:      completions,
		Partial:          fetchRes.Partial,
		PagesFetched:     fetchRes.Pages,
		StepsObserved:    len(observed),
		StepsDiscovered:  discovered,
		DurationMs:       time.Since(startedAt).Milliseconds(),
	}
	if starts > 0 {
		result.ConversionRate = float64(completions) / float64(starts) * 100
	}

	logger.Info().
		Int("entries", result.EntriesProcessed).
		Int("days", result.DaysWritten).
		Bool("partial", result.Partial).
		Int64("duration_ms", result.DurationMs).
		Msg("sync run finished")
	return result, nil
}

func (r *Runner) writeLog(ctx context.Context, runID string, status models.SyncStatus, records int, runErr error, startedAt time.Time) {
	entry := models.SyncLog{
		RunID:            runID,
		SyncType:         "funnel_events",
		Status:           status,
		RecordsProcessed: records,
		StartedAt:        startedAt,
		CompletedAt:      time.Now().UTC(),
	}
	if runErr != nil {
		entry.ErrorMessage = runErr.Error()
	}
	if err := r.syncLogs.InsertSyncLog(ctx, entry); err != nil {
		r.logger.Error().Err(err).Str("run_id", runID).Msg("failed to write sync log")
	}
}
