package models

import "time"

type AlertType string

const (
	AlertScaleUpFailed   AlertType = "scale_up_failed"
	AlertScaleDownFailed AlertType = "scale_down_failed"
	AlertSystemAnomaly   AlertType = "system_anomaly"
)

type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert is raised when a scaling operation degrades instead of completing.
// Alerts follow the same bounded-log discipline as scale events.
type Alert struct {
	ID        string                 `json:"id"`
	Type      AlertType              `json:"type"`
	Severity  AlertSeverity          `json:"severity"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func NewAlert(alertType AlertType, severity AlertSeverity, message string) *Alert {
	return &Alert{
		ID:        NewUUID(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func (a *Alert) WithDetails(details map[string]interface{}) *Alert {
	a.Details = details
	return a
}
