// api/models/aggregate.go
package models

import "time"

// DailyStepAggregate is one step's rollup for one UTC calendar day. Rows are
// recomputed and fully replaced on every sync run that touches the day, never
// incrementally patched, so repeated syncs converge instead of double
// counting.
type DailyStepAggregate struct {
	ID             int       `json:"id"`
	FunnelID       int       `json:"funnel_id"`
	StepKey        string    `json:"step_key"`
	Day            time.Time `json:"day"`
	Views          int       `json:"views"`
	Exits          int       `json:"exits"`
	Continues      int       `json:"continues"`
	DropOffRate    float64   `json:"drop_off_rate"`
	ConversionRate float64   `json:"conversion_rate"`
	AvgTimeOnStep  float64   `json:"avg_time_on_step_seconds"`
}

// DailyFunnelAggregate is the funnel-level rollup for one UTC calendar day,
// with the same replace-per-day lifecycle as DailyStepAggregate.
type DailyFunnelAggregate struct {
	ID             int       `json:"id"`
	FunnelID       int       `json:"funnel_id"`
	Day            time.Time `json:"day"`
	Starts         int       `json:"starts"`
	Completions    int       `json:"completions"`
	DropOffs       int       `json:"drop_offs"`
	ConversionRate float64   `json:"conversion_rate"`
}
