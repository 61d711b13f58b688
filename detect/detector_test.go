package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelsight/api/models"
)

var fixedNow = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

type stubAggReader struct {
	steps   []models.DailyStepAggregate
	funnels []models.DailyFunnelAggregate
}

func (s *stubAggReader) GetStepSeries(ctx context.Context, funnelID int, since time.Time) ([]models.DailyStepAggregate, error) {
	return s.steps, nil
}

func (s *stubAggReader) GetFunnelSeries(ctx context.Context, funnelID int, since time.Time) ([]models.DailyFunnelAggregate, error) {
	return s.funnels, nil
}

type stubStepReader struct {
	defs []models.StepDefinition
}

func (s *stubStepReader) GetStepsByFunnel(ctx context.Context, funnelID int) ([]models.StepDefinition, error) {
	return s.defs, nil
}

type stubAlertStore struct {
	saved  []models.Alert
	recent bool
}

func (s *stubAlertStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	alert.ID = "alert-id"
	alert.CreatedAt = fixedNow
	s.saved = append(s.saved, *alert)
	return nil
}

func (s *stubAlertStore) HasRecentAlert(ctx context.Context, funnelID int, stepPosition *int, alertType models.AlertType, since time.Time) (bool, error) {
	return s.recent, nil
}

type stubNotifier struct {
	sent []models.Alert
	err  error
}

func (s *stubNotifier) SendAlert(ctx context.Context, alert *models.Alert) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, *alert)
	return nil
}

func day(offset int) time.Time {
	return time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func stepRow(d time.Time, key string, dropOff float64) models.DailyStepAggregate {
	return models.DailyStepAggregate{FunnelID: 1, StepKey: key, Day: d, Views: 100, DropOffRate: dropOff}
}

func newTestDetector(agg *stubAggReader, alerts *stubAlertStore, notifier *stubNotifier) *Detector {
	steps := &stubStepReader{defs: []models.StepDefinition{
		{FunnelID: 1, StepKey: "checkout", Name: "Checkout", Position: 49},
		{FunnelID: 1, StepKey: "email_capture", Name: "Email Capture", Position: 43},
	}}
	d := NewDetector(agg, steps, alerts, notifier, DefaultThresholds(), zerolog.Nop())
	d.now = func() time.Time { return fixedNow }
	return d
}

func TestSeverityThresholds(t *testing.T) {
	d := newTestDetector(&stubAggReader{}, &stubAlertStore{}, &stubNotifier{})

	tests := []struct {
		name       string
		value      float64
		change     float64
		valueBased bool
		want       models.AlertSeverity
	}{
		{"high absolute drop-off is critical regardless of change", 55, 5, true, models.SeverityCritical},
		{"huge change is critical regardless of value", 10, 60, true, models.SeverityCritical},
		{"moderate absolute drop-off is warning", 30, 12, true, models.SeverityWarning},
		{"moderate change is warning", 10, 30, true, models.SeverityWarning},
		{"small value and change is info", 10, 2, true, models.SeverityInfo},
		{"change-only grading ignores the value", 80, -60, false, models.SeverityCritical},
		{"negative change uses magnitude", 0, -30, false, models.SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.severity(tt.value, tt.change, tt.valueBased))
		})
	}
}

func TestDetector_DropOffVsYesterday(t *testing.T) {
	agg := &stubAggReader{steps: []models.DailyStepAggregate{
		stepRow(day(-1), "checkout", 30),
		stepRow(day(0), "checkout", 50),
	}}
	alerts := &stubAlertStore{}
	notifier := &stubNotifier{}

	result, err := newTestDetector(agg, alerts, notifier).Run(context.Background(), &models.Funnel{ID: 1})
	require.NoError(t, err)

	require.Equal(t, 1, result.Saved)
	alert := alerts.saved[0]
	assert.Equal(t, models.AlertDropOff, alert.Type)
	assert.Equal(t, "Checkout", alert.StepName)
	require.NotNil(t, alert.StepPosition)
	assert.Equal(t, 49, *alert.StepPosition)
	assert.InDelta(t, 66.7, alert.ChangePercent, 0.1)
	// +66.7% change grades critical and critical alerts are pushed.
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Len(t, notifier.sent, 1)
	assert.Contains(t, alert.Recommendation, "payment", "checkout steps get payment-specific advice")
}

func TestDetector_WeekAverageSuppressedWhenYesterdayFired(t *testing.T) {
	// Both checks exceed their thresholds; only the vs-yesterday alert may
	// fire for the step in a single pass.
	rows := []models.DailyStepAggregate{
		stepRow(day(-3), "checkout", 10),
		stepRow(day(-2), "checkout", 10),
		stepRow(day(-1), "checkout", 10),
		stepRow(day(0), "checkout", 40),
	}
	alerts := &stubAlertStore{}

	result, err := newTestDetector(&stubAggReader{steps: rows}, alerts, &stubNotifier{}).Run(context.Background(), &models.Funnel{ID: 1})
	require.NoError(t, err)

	require.Equal(t, 1, result.Saved)
	assert.Equal(t, models.AlertDropOff, alerts.saved[0].Type)
}

func TestDetector_WeekAverageAnomalyFiresAlone(t *testing.T) {
	// Today matches yesterday (no vs-yesterday anomaly) but sits far above
	// the trailing average.
	rows := []models.DailyStepAggregate{
		stepRow(day(-6), "email_capture", 10),
		stepRow(day(-5), "email_capture", 10),
		stepRow(day(-4), "email_capture", 10),
		stepRow(day(-3), "email_capture", 10),
		stepRow(day(-2), "email_capture", 10),
		stepRow(day(-1), "email_capture", 40),
		stepRow(day(0), "email_capture", 40),
	}
	alerts := &stubAlertStore{}

	result, err := newTestDetector(&stubAggReader{steps: rows}, alerts, &stubNotifier{}).Run(context.Background(), &models.Funnel{ID: 1})
	require.NoError(t, err)

	require.Equal(t, 1, result.Saved)
	alert := alerts.saved[0]
	assert.Equal(t, models.AlertStepAnomaly, alert.Type)
	require.NotNil(t, alert.SevenDayAvg)
	assert.InDelta(t, 15.0, *alert.SevenDayAvg, 0.1)
	assert.Contains(t, alert.Recommendation, "email")
}

func TestDetector_RecentAlertSuppressesDuplicate(t *testing.T) {
	agg := &stubAggReader{steps: []models.DailyStepAggregate{
		stepRow(day(-1), "checkout", 30),
		stepRow(day(0), "checkout", 50),
	}}
	alerts := &stubAlertStore{recent: true}
	notifier := &stubNotifier{}

	result, err := newTestDetector(agg, alerts, notifier).Run(context.Background(), &models.Funnel{ID: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Detected)
	assert.Zero(t, result.Saved, "an alert raised within the last 24h must not be duplicated")
	assert.Empty(t, alerts.saved)
	assert.Empty(t, notifier.sent)
}

func TestDetector_ConversionAndVolumeAlerts(t *testing.T) {
	agg := &stubAggReader{funnels: []models.DailyFunnelAggregate{
		{FunnelID: 1, Day: day(-1), Starts: 1000, Completions: 500, ConversionRate: 50},
		{FunnelID: 1, Day: day(0), Starts: 500, Completions: 150, ConversionRate: 30},
	}}
	alerts := &stubAlertStore{}

	result, err := newTestDetector(agg, alerts, &stubNotifier{}).Run(context.Background(), &models.Funnel{ID: 1})
	require.NoError(t, err)

	require.Equal(t, 2, result.Saved)
	types := []models.AlertType{alerts.saved[0].Type, alerts.saved[1].Type}
	assert.Contains(t, types, models.AlertConversion)
	assert.Contains(t, types, models.AlertVolume)
	for _, a := range alerts.saved {
		assert.Nil(t, a.StepPosition, "funnel-level alerts carry no step")
		assert.Negative(t, a.ChangePercent)
	}
}

func TestDetector_NotifyFailureDoesNotFailThePass(t *testing.T) {
	agg := &stubAggReader{steps: []models.DailyStepAggregate{
		stepRow(day(-1), "checkout", 30),
		stepRow(day(0), "checkout", 50),
	}}
	alerts := &stubAlertStore{}
	notifier := &stubNotifier{err: errors.New("webhook unreachable")}

	result, err := newTestDetector(agg, alerts, notifier).Run(context.Background(), &models.Funnel{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Saved, "the alert stays saved even when the push fails")
}

func TestDetector_InfoAlertsAreStoredNotPushed(t *testing.T) {
	// 12 -> 14 drop-off: +16.7% clears the 15% detection threshold but stays
	// below every severity boundary, so it grades info.
	agg := &stubAggReader{steps: []models.DailyStepAggregate{
		stepRow(day(-1), "email_capture", 12),
		stepRow(day(0), "email_capture", 14),
	}}
	alerts := &stubAlertStore{}
	notifier := &stubNotifier{}

	result, err := newTestDetector(agg, alerts, notifier).Run(context.Background(), &models.Funnel{ID: 1})
	require.NoError(t, err)

	require.Equal(t, 1, result.Saved)
	assert.Equal(t, models.SeverityInfo, alerts.saved[0].Severity)
	assert.Empty(t, notifier.sent)
}

func TestPercentChange_ZeroBaseline(t *testing.T) {
	assert.Equal(t, 100.0, percentChange(0, 5))
	assert.Equal(t, 0.0, percentChange(0, 0))
	assert.InDelta(t, -50.0, percentChange(10, 5), 0.0001)
}
