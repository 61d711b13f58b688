// api/models/alert.go
package models

import "time"

type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityWarning  AlertSeverity = "warning"
	SeverityInfo     AlertSeverity = "info"
)

type AlertType string

const (
	AlertDropOff     AlertType = "drop_off"
	AlertConversion  AlertType = "conversion"
	AlertVolume      AlertType = "volume"
	AlertStepAnomaly AlertType = "step_anomaly"
)

type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Alert is an anomaly flagged by the detector. StepPosition and StepName are
// nil for funnel-level alerts (conversion, volume). The detector only ever
// creates alerts; status transitions are manual via the dashboard.
type Alert struct {
	ID             string        `json:"id"`
	FunnelID       int           `json:"funnel_id"`
	StepPosition   *int          `json:"step_position,omitempty"`
	StepName       string        `json:"step_name,omitempty"`
	Severity       AlertSeverity `json:"severity"`
	Type           AlertType     `json:"type"`
	CurrentValue   float64       `json:"current_value"`
	PreviousValue  *float64      `json:"previous_value,omitempty"`
	SevenDayAvg    *float64      `json:"seven_day_avg,omitempty"`
	ChangePercent  float64       `json:"change_percent"`
	Message        string        `json:"message"`
	Recommendation string        `json:"recommendation,omitempty"`
	Status         AlertStatus   `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
