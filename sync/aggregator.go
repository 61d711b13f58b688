// api/sync/aggregator.go
package sync

import (
	"sort"
	"time"

	"funnelsight/api/models"
	"funnelsight/api/utils"
)

type stepCounts struct {
	views     int
	exits     int
	continues int
	timeSum   float64
	timeN     int
}

type funnelCounts struct {
	starts      int
	completions int
}

// Accumulator folds normalized entry facts into per-day buckets. It is plain
// local state threaded through a run, not shared between runs, so two folds
// over the same input always produce the same output.
type Accumulator struct {
	steps  map[time.Time]map[string]*stepCounts
	funnel map[time.Time]*funnelCounts
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		steps:  make(map[time.Time]map[string]*stepCounts),
		funnel: make(map[time.Time]*funnelCounts),
	}
}

// Add folds one entry into the accumulator, bucketed by the entry's creation
// date truncated to UTC midnight.
func (a *Accumulator) Add(ev models.RawEvent, facts EntryFacts) {
	day := utils.StartOfUTCDay(ev.CreatedAt)

	fc := a.funnel[day]
	if fc == nil {
		fc = &funnelCounts{}
		a.funnel[day] = fc
	}
	fc.starts++
	if facts.Completed {
		fc.completions++
	}

	if len(facts.Facts) == 0 {
		return
	}
	daySteps := a.steps[day]
	if daySteps == nil {
		daySteps = make(map[string]*stepCounts)
		a.steps[day] = daySteps
	}
	for _, f := range facts.Facts {
		sc := daySteps[f.StepKey]
		if sc == nil {
			sc = &stepCounts{}
			daySteps[f.StepKey] = sc
		}
		sc.views++
		if f.Exit {
			sc.exits++
		}
		if f.Continue {
			sc.continues++
		}
		if f.TimeOnStep > 0 {
			sc.timeSum += f.TimeOnStep
			sc.timeN++
		}
	}
}

// Days returns the UTC days touched by the fold, sorted ascending.
func (a *Accumulator) Days() []time.Time {
	days := make([]time.Time, 0, len(a.funnel))
	for d := range a.funnel {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// StepKeys returns every step key observed during the fold.
func (a *Accumulator) StepKeys() []string {
	seen := make(map[string]bool)
	for _, daySteps := range a.steps {
		for key := range daySteps {
			seen[key] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// StepRows computes the final step aggregate rows for one day. Rates are
// derived once from the final counts rather than accumulated, so repeated
// folds cannot drift through rounding. Rows are sorted by step key for
// deterministic output.
func (a *Accumulator) StepRows(funnelID int, day time.Time) []models.DailyStepAggregate {
	daySteps := a.steps[day]
	rows := make([]models.DailyStepAggregate, 0, len(daySteps))
	for key, sc := range daySteps {
		row := models.DailyStepAggregate{
			FunnelID:  funnelID,
			StepKey:   key,
			Day:       day,
			Views:     sc.views,
			Exits:     sc.exits,
			Continues: sc.continues,
		}
		if sc.views > 0 {
			row.DropOffRate = float64(sc.exits) / float64(sc.views) * 100
			row.ConversionRate = float64(sc.continues) / float64(sc.views) * 100
		}
		if sc.timeN > 0 {
			row.AvgTimeOnStep = sc.timeSum / float64(sc.timeN)
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StepKey < rows[j].StepKey })
	return rows
}

// FunnelRow computes the funnel-level aggregate row for one day.
func (a *Accumulator) FunnelRow(funnelID int, day time.Time) models.DailyFunnelAggregate {
	fc := a.funnel[day]
	row := models.DailyFunnelAggregate{FunnelID: funnelID, Day: day}
	if fc == nil {
		return row
	}
	row.Starts = fc.starts
	row.Completions = fc.completions
	row.DropOffs = fc.starts - fc.completions
	if fc.starts > 0 {
		row.ConversionRate = float64(fc.completions) / float64(fc.starts) * 100
	}
	return row
}

// TotalStarts sums starts across all days, for the sync response metrics.
func (a *Accumulator) TotalStarts() int {
	total := 0
	for _, fc := range a.funnel {
		total += fc.starts
	}
	return total
}

// TotalCompletions sums completions across all days.
func (a *Accumulator) TotalCompletions() int {
	total := 0
	for _, fc := range a.funnel {
		total += fc.completions
	}
	return total
}
