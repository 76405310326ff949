package models

import "time"

// PollState is the lifecycle position of a polling session
type PollState string

const (
	PollIdle      PollState = "idle"
	PollFetching  PollState = "fetching"
	PollPolling   PollState = "polling"
	PollSucceeded PollState = "succeeded"
	PollFailed    PollState = "failed"
	PollCancelled PollState = "cancelled"
)

// Terminal reports whether no further transitions can happen
func (s PollState) Terminal() bool {
	return s == PollSucceeded || s == PollFailed || s == PollCancelled
}

// PollingSession is the client-local record of one polling run. It is never persisted.
type PollingSession struct {
	Ticker       string        `json:"ticker"`
	AttemptCount int           `json:"attempt_count"`
	MaxAttempts  int           `json:"max_attempts"`
	Interval     time.Duration `json:"interval"`
	StartedAt    time.Time     `json:"started_at"`
	State        PollState     `json:"state"`
}
