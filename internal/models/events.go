package models

import "time"

// MetricsEventType names a change to the artifact cache
type MetricsEventType string

const (
	EventMetricsComputed MetricsEventType = "metrics_computed"
	EventMetricsFailed   MetricsEventType = "metrics_failed"
	EventMetricsEvicted  MetricsEventType = "metrics_evicted"
)

// MetricsEvent is pushed to event stream subscribers.
type MetricsEvent struct {
	Type       MetricsEventType `json:"type"`
	Ticker     string           `json:"ticker"`
	ComputedAt *time.Time       `json:"computed_at,omitempty"`
	MethodTag  string           `json:"method_tag,omitempty"`
	Error      string           `json:"error,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}
