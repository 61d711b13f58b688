package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelsight/api/models"
	"funnelsight/api/source"
)

type stubSource struct {
	result *source.FetchResult
	err    error
}

func (s *stubSource) FetchAll(ctx context.Context) (*source.FetchResult, error) {
	return s.result, s.err
}

type stubArchive struct {
	archived [][]models.RawEvent
	err      error
}

func (s *stubArchive) ArchiveEvents(ctx context.Context, events []models.RawEvent) error {
	s.archived = append(s.archived, events)
	return s.err
}

type stubFunnels struct{}

func (s *stubFunnels) GetOrCreateFunnel(ctx context.Context, name, formID string) (*models.Funnel, error) {
	return &models.Funnel{ID: 1, Name: name, FormID: formID, IsActive: true}, nil
}

type writtenDay struct {
	stepRows  []models.DailyStepAggregate
	funnelRow models.DailyFunnelAggregate
}

type stubWriter struct {
	days    map[string]*writtenDay
	stepErr error
}

func newStubWriter() *stubWriter {
	return &stubWriter{days: make(map[string]*writtenDay)}
}

func (s *stubWriter) day(d time.Time) *writtenDay {
	key := d.Format("2006-01-02")
	if s.days[key] == nil {
		s.days[key] = &writtenDay{}
	}
	return s.days[key]
}

func (s *stubWriter) ReplaceStepDay(ctx context.Context, funnelID int, day time.Time, rows []models.DailyStepAggregate) error {
	if s.stepErr != nil {
		return s.stepErr
	}
	// Replace semantics: overwrite, never append.
	s.day(day).stepRows = rows
	return nil
}

func (s *stubWriter) ReplaceFunnelDay(ctx context.Context, funnelID int, day time.Time, row models.DailyFunnelAggregate) error {
	s.day(day).funnelRow = row
	return nil
}

type stubSyncLogs struct {
	entries []models.SyncLog
}

func (s *stubSyncLogs) InsertSyncLog(ctx context.Context, entry models.SyncLog) error {
	s.entries = append(s.entries, entry)
	return nil
}

type stubLocks struct {
	held     bool
	err      error
	released bool
}

func (s *stubLocks) Acquire(ctx context.Context, funnelID int, ttl time.Duration) (bool, func(), error) {
	if s.err != nil {
		return false, nil, s.err
	}
	if s.held {
		return false, nil, nil
	}
	return true, func() { s.released = true }, nil
}

func testEvents() []models.RawEvent {
	day := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return []models.RawEvent{
		entryOn(day, "tok-1", "landing", "checkout", "payment_successful"),
		entryOn(day, "tok-2", "landing", "checkout"),
		entryOn(day.AddDate(0, 0, 1), "tok-3", "landing"),
	}
}

func newTestRunner(src *stubSource, writer *stubWriter, logs *stubSyncLogs, locks *stubLocks, archive *stubArchive) *Runner {
	return NewRunner(
		src, archive, &stubFunnels{}, &stubCatalog{}, writer, logs, locks,
		"Quiz Funnel", "form-1", time.Minute, zerolog.Nop(),
	)
}

func TestRunner_RunWritesAggregatesAndAudit(t *testing.T) {
	writer := newStubWriter()
	logs := &stubSyncLogs{}
	locks := &stubLocks{}
	archive := &stubArchive{}
	runner := newTestRunner(&stubSource{result: &source.FetchResult{Events: testEvents(), Pages: 1}}, writer, logs, locks, archive)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.EntriesProcessed)
	assert.Equal(t, 2, result.DaysWritten)
	assert.Equal(t, 3, result.Starts)
	assert.Equal(t, 1, result.Completions)
	assert.False(t, result.Partial)
	assert.True(t, locks.released)
	assert.Len(t, archive.archived, 1)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.SyncSuccess, logs.entries[0].Status)
	assert.Equal(t, 3, logs.entries[0].RecordsProcessed)

	day1 := writer.days["2025-03-10"]
	require.NotNil(t, day1)
	assert.Equal(t, 2, day1.funnelRow.Starts)
	assert.Equal(t, 1, day1.funnelRow.Completions)
}

func TestRunner_ReSyncIsIdempotent(t *testing.T) {
	// The key regression property: running twice over identical fetched data
	// must leave identical stored rows, with no count doubling.
	writer := newStubWriter()
	logs := &stubSyncLogs{}
	src := &stubSource{result: &source.FetchResult{Events: testEvents(), Pages: 1}}
	runner := newTestRunner(src, writer, logs, &stubLocks{}, &stubArchive{})

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	firstRun := make(map[string]writtenDay, len(writer.days))
	for k, v := range writer.days {
		firstRun[k] = *v
	}

	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, writer.days, len(firstRun))
	for k, v := range writer.days {
		assert.Equal(t, firstRun[k], *v, "day %s changed between identical syncs", k)
	}
}

func TestRunner_LockHeldReturnsSyncInProgress(t *testing.T) {
	runner := newTestRunner(
		&stubSource{result: &source.FetchResult{}},
		newStubWriter(), &stubSyncLogs{}, &stubLocks{held: true}, &stubArchive{},
	)

	_, err := runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestRunner_LockErrorDoesNotBlockRun(t *testing.T) {
	logs := &stubSyncLogs{}
	runner := newTestRunner(
		&stubSource{result: &source.FetchResult{Events: testEvents(), Pages: 1}},
		newStubWriter(), logs, &stubLocks{err: errors.New("redis down")}, &stubArchive{},
	)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.EntriesProcessed)
}

func TestRunner_FetchFailureWritesFailedAuditAndNoAggregates(t *testing.T) {
	writer := newStubWriter()
	logs := &stubSyncLogs{}
	runner := newTestRunner(&stubSource{err: fmt.Errorf("%w: status 503: upstream down", source.ErrUpstream)}, writer, logs, &stubLocks{}, &stubArchive{})

	_, err := runner.Run(context.Background())
	require.Error(t, err)

	assert.Empty(t, writer.days, "no aggregate writes may happen when the fetch fails")
	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.SyncFailed, logs.entries[0].Status)
	assert.Contains(t, logs.entries[0].ErrorMessage, "503")
}

func TestRunner_PartialFetchIsFlaggedNotFailed(t *testing.T) {
	logs := &stubSyncLogs{}
	src := &stubSource{result: &source.FetchResult{Events: testEvents(), Pages: 2, Partial: true}}
	runner := newTestRunner(src, newStubWriter(), logs, &stubLocks{}, &stubArchive{})

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Partial)
	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.SyncPartial, logs.entries[0].Status)
}

func TestRunner_ArchiveFailureIsNonFatal(t *testing.T) {
	runner := newTestRunner(
		&stubSource{result: &source.FetchResult{Events: testEvents(), Pages: 1}},
		newStubWriter(), &stubSyncLogs{}, &stubLocks{},
		&stubArchive{err: errors.New("clickhouse unavailable")},
	)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.EntriesProcessed)
}

func TestRunner_WriteFailureMarksRunFailed(t *testing.T) {
	writer := newStubWriter()
	writer.stepErr = errors.New("connection reset")
	logs := &stubSyncLogs{}
	runner := newTestRunner(&stubSource{result: &source.FetchResult{Events: testEvents(), Pages: 1}}, writer, logs, &stubLocks{}, &stubArchive{})

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	require.Len(t, logs.entries, 1)
	assert.Equal(t, models.SyncFailed, logs.entries[0].Status)
}
