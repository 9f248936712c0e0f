package models

import "time"

// MetricsSnapshot is a point-in-time view of the load signals the autoscaler
// acts on. It is immutable after creation; consumers only read it.
type MetricsSnapshot struct {
	CPU         float64   `json:"cpu"`
	Memory      float64   `json:"memory"`
	RequestRate float64   `json:"request_rate"`
	ErrorRate   float64   `json:"error_rate"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsUnstable reports whether the fleet is under enough pressure that an
// in-flight scale-down should stop removing instances.
func (m MetricsSnapshot) IsUnstable() bool {
	return m.CPU > 0.9 || m.Memory > 0.9 || m.ErrorRate > 0.1
}
