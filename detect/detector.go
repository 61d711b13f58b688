// api/detect/detector.go
package detect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"funnelsight/api/models"
	"funnelsight/api/utils"
)

// Thresholds are the detection and severity knobs. All change values are
// relative percentages.
type Thresholds struct {
	DropOffVsYesterday float64 // drop-off rate increase vs yesterday
	DropOffVsWeekAvg   float64 // drop-off rate vs trailing 7-day average
	ConversionDrop     float64 // funnel conversion rate decrease vs yesterday
	VolumeDrop         float64 // funnel starts decrease vs yesterday

	CriticalValue  float64 // absolute drop-off rate above which an alert is critical
	WarningValue   float64 // absolute drop-off rate above which an alert is warning
	CriticalChange float64 // |change %| above which an alert is critical
	WarningChange  float64 // |change %| above which an alert is warning
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DropOffVsYesterday: 15,
		DropOffVsWeekAvg:   10,
		ConversionDrop:     20,
		VolumeDrop:         30,
		CriticalValue:      50,
		WarningValue:       25,
		CriticalChange:     50,
		WarningChange:      25,
	}
}

// AggregateReader supplies the stored aggregates the detector compares.
type AggregateReader interface {
	GetStepSeries(ctx context.Context, funnelID int, since time.Time) ([]models.DailyStepAggregate, error)
	GetFunnelSeries(ctx context.Context, funnelID int, since time.Time) ([]models.DailyFunnelAggregate, error)
}

// StepReader resolves observed step keys to their definitions, for alert
// step numbers/names and recommendation wording.
type StepReader interface {
	GetStepsByFunnel(ctx context.Context, funnelID int) ([]models.StepDefinition, error)
}

// AlertStore persists alerts and answers the 24h dedup lookup.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	HasRecentAlert(ctx context.Context, funnelID int, stepPosition *int, alertType models.AlertType, since time.Time) (bool, error)
}

// Notifier pushes a saved alert to the notification sink.
type Notifier interface {
	SendAlert(ctx context.Context, alert *models.Alert) error
}

// Detector is a single stateless pass over already-written aggregates. It
// never resolves alerts; status transitions are manual.
type Detector struct {
	aggregates AggregateReader
	steps      StepReader
	alerts     AlertStore
	notifier   Notifier
	thresholds Thresholds
	logger     zerolog.Logger

	now func() time.Time
}

// Result summarizes one detection pass.
type Result struct {
	Detected int            `json:"detected"`
	Saved    int            `json:"saved"`
	Alerts   []models.Alert `json:"alerts"`
}

func NewDetector(aggregates AggregateReader, steps StepReader, alerts AlertStore, notifier Notifier, thresholds Thresholds, logger zerolog.Logger) *Detector {
	return &Detector{
		aggregates: aggregates,
		steps:      steps,
		alerts:     alerts,
		notifier:   notifier,
		thresholds: thresholds,
		logger:     logger.With().Str("component", "detect").Logger(),
		now:        time.Now,
	}
}

// Run compares the funnel's most recent aggregates (today vs yesterday vs the
// trailing 7-day average) against the thresholds and persists the anomalies
// that survive 24h deduplication. Only critical and warning alerts are pushed
// to the notifier; a failed push never fails the pass.
func (d *Detector) Run(ctx context.Context, funnel *models.Funnel) (*Result, error) {
	since := utils.StartOfUTCDay(d.now()).AddDate(0, 0, -8)

	stepRows, err := d.aggregates.GetStepSeries(ctx, funnel.ID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load step aggregates: %w", err)
	}
	funnelRows, err := d.aggregates.GetFunnelSeries(ctx, funnel.ID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load funnel aggregates: %w", err)
	}
	defs, err := d.steps.GetStepsByFunnel(ctx, funnel.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load step definitions: %w", err)
	}
	defByKey := make(map[string]models.StepDefinition, len(defs))
	for _, def := range defs {
		defByKey[def.StepKey] = def
	}

	var candidates []models.Alert
	candidates = append(candidates, d.stepCandidates(stepRows, defByKey, funnel.ID)...)
	candidates = append(candidates, d.funnelCandidates(funnelRows, funnel.ID)...)

	result := &Result{Detected: len(candidates)}
	dedupSince := d.now().Add(-24 * time.Hour)
	for i := range candidates {
		alert := candidates[i]
		exists, err := d.alerts.HasRecentAlert(ctx, alert.FunnelID, alert.StepPosition, alert.Type, dedupSince)
		if err != nil {
			return result, fmt.Errorf("failed to check for recent alerts: %w", err)
		}
		if exists {
			d.logger.Debug().
				Str("type", string(alert.Type)).
				Str("step", alert.StepName).
				Msg("suppressing alert already raised in the last 24h")
			continue
		}
		if err := d.alerts.CreateAlert(ctx, &alert); err != nil {
			return result, fmt.Errorf("failed to save alert: %w", err)
		}
		result.Saved++
		result.Alerts = append(result.Alerts, alert)

		if alert.Severity == models.SeverityInfo || d.notifier == nil {
			continue
		}
		if err := d.notifier.SendAlert(ctx, &alert); err != nil {
			// Notification failures are isolated: the alert is already saved.
			d.logger.Error().Err(err).Str("type", string(alert.Type)).Msg("failed to push alert notification")
		}
	}

	d.logger.Info().
		Int("detected", result.Detected).
		Int("saved", result.Saved).
		Msg("alert check finished")
	return result, nil
}

// stepCandidates evaluates per-step drop-off anomalies. The vs-7-day-average
// check is suppressed for a step when the vs-yesterday check already fired
// for it this pass.
func (d *Detector) stepCandidates(rows []models.DailyStepAggregate, defByKey map[string]models.StepDefinition, funnelID int) []models.Alert {
	byKey := make(map[string][]models.DailyStepAggregate)
	for _, row := range rows {
		byKey[row.StepKey] = append(byKey[row.StepKey], row)
	}
	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var alerts []models.Alert
	for _, key := range keys {
		series := byKey[key]
		sort.Slice(series, func(i, j int) bool { return series[i].Day.Before(series[j].Day) })
		if len(series) < 2 {
			continue
		}
		today := series[len(series)-1]
		yesterday := series[len(series)-2]
		def, hasDef := defByKey[key]
		stepName := key
		var stepPos *int
		if hasDef {
			stepName = def.Name
			pos := def.Position
			stepPos = &pos
		}

		firedVsYesterday := false
		change := percentChange(yesterday.DropOffRate, today.DropOffRate)
		if change > d.thresholds.DropOffVsYesterday {
			prev := yesterday.DropOffRate
			alerts = append(alerts, models.Alert{
				FunnelID:       funnelID,
				StepPosition:   stepPos,
				StepName:       stepName,
				Severity:       d.severity(today.DropOffRate, change, true),
				Type:           models.AlertDropOff,
				CurrentValue:   today.DropOffRate,
				PreviousValue:  &prev,
				ChangePercent:  change,
				Message:        fmt.Sprintf("Drop-off rate at %q rose to %.1f%% (was %.1f%% yesterday, %+.1f%%)", stepName, today.DropOffRate, yesterday.DropOffRate, change),
				Recommendation: recommendFor(stepName, today.DropOffRate),
				Status:         models.AlertActive,
			})
			firedVsYesterday = true
		}

		prior := series[:len(series)-1]
		if len(prior) > 7 {
			prior = prior[len(prior)-7:]
		}
		avg := 0.0
		for _, row := range prior {
			avg += row.DropOffRate
		}
		avg /= float64(len(prior))
		avgChange := percentChange(avg, today.DropOffRate)
		if avgChange > d.thresholds.DropOffVsWeekAvg && !firedVsYesterday {
			weekAvg := avg
			alerts = append(alerts, models.Alert{
				FunnelID:       funnelID,
				StepPosition:   stepPos,
				StepName:       stepName,
				Severity:       d.severity(today.DropOffRate, avgChange, true),
				Type:           models.AlertStepAnomaly,
				CurrentValue:   today.DropOffRate,
				SevenDayAvg:    &weekAvg,
				ChangePercent:  avgChange,
				Message:        fmt.Sprintf("Drop-off rate at %q is %.1f%%, %.1f%% above its 7-day average of %.1f%%", stepName, today.DropOffRate, avgChange, avg),
				Recommendation: recommendFor(stepName, today.DropOffRate),
				Status:         models.AlertActive,
			})
		}
	}
	return alerts
}

// funnelCandidates evaluates funnel-level conversion and volume anomalies
// from the two most recent days.
func (d *Detector) funnelCandidates(rows []models.DailyFunnelAggregate, funnelID int) []models.Alert {
	if len(rows) < 2 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Day.Before(rows[j].Day) })
	today := rows[len(rows)-1]
	yesterday := rows[len(rows)-2]

	var alerts []models.Alert

	convChange := percentChange(yesterday.ConversionRate, today.ConversionRate)
	if convChange < -d.thresholds.ConversionDrop {
		prev := yesterday.ConversionRate
		alerts = append(alerts, models.Alert{
			FunnelID:       funnelID,
			Severity:       d.severity(0, convChange, false),
			Type:           models.AlertConversion,
			CurrentValue:   today.ConversionRate,
			PreviousValue:  &prev,
			ChangePercent:  convChange,
			Message:        fmt.Sprintf("Funnel conversion rate fell to %.1f%% (was %.1f%% yesterday, %.1f%%)", today.ConversionRate, yesterday.ConversionRate, convChange),
			Recommendation: "Review recent funnel changes and the payment flow for regressions.",
			Status:         models.AlertActive,
		})
	}

	volumeChange := percentChange(float64(yesterday.Starts), float64(today.Starts))
	if volumeChange < -d.thresholds.VolumeDrop {
		prev := float64(yesterday.Starts)
		alerts = append(alerts, models.Alert{
			FunnelID:       funnelID,
			Severity:       d.severity(0, volumeChange, false),
			Type:           models.AlertVolume,
			CurrentValue:   float64(today.Starts),
			PreviousValue:  &prev,
			ChangePercent:  volumeChange,
			Message:        fmt.Sprintf("Funnel volume fell to %d starts (was %d yesterday, %.1f%%)", today.Starts, yesterday.Starts, volumeChange),
			Recommendation: "Check traffic sources and ad campaigns feeding the funnel.",
			Status:         models.AlertActive,
		})
	}
	return alerts
}

// severity grades a candidate. valueBased alerts (drop-off style, where a
// high absolute value is itself bad) also compare against the absolute
// thresholds; funnel-level conversion/volume alerts grade on change alone.
func (d *Detector) severity(value, change float64, valueBased bool) models.AlertSeverity {
	abs := change
	if abs < 0 {
		abs = -abs
	}
	if (valueBased && value > d.thresholds.CriticalValue) || abs > d.thresholds.CriticalChange {
		return models.SeverityCritical
	}
	if (valueBased && value > d.thresholds.WarningValue) || abs > d.thresholds.WarningChange {
		return models.SeverityWarning
	}
	return models.SeverityInfo
}

// percentChange is the relative change from prev to cur. A zero baseline
// maps to +100 when cur is positive so new activity still registers.
func percentChange(prev, cur float64) float64 {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	return (cur - prev) / prev * 100
}

// recommendFor picks advice by keyword match on the step's human name,
// falling back to generic wording keyed on how bad the drop-off is.
func recommendFor(stepName string, dropOff float64) string {
	name := strings.ToLower(stepName)
	switch {
	case strings.Contains(name, "payment") || strings.Contains(name, "checkout") || strings.Contains(name, "billing"):
		return "Check the payment provider status and verify the checkout form submits correctly on mobile."
	case strings.Contains(name, "email"):
		return "Review the email capture copy and validation; aggressive validation rules often spike drop-off here."
	case strings.Contains(name, "upsell") || strings.Contains(name, "offer") || strings.Contains(name, "discount"):
		return "Review the offer pricing and copy; consider testing a softer upsell."
	case dropOff > 40:
		return "Drop-off at this step is unusually high; review the page for load errors, broken assets, or confusing copy."
	default:
		return "Review this step's recent changes and compare against the prior week's performance."
	}
}
