package model

import "time"

// BreakerState is one of the three circuit breaker states. It lives
// in model, not service, so a caller coding against the inbound
// EventService port can observe breaker health without importing the
// concrete service package.
type BreakerState int32

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MetricsSnapshot is an immutable point-in-time view of the fabric's
// counters, timing aggregates, and breaker state, safe to hand to
// callers without further locking.
type MetricsSnapshot struct {
	// StartTime is when the owning event service's Metrics was
	// created; TakenAt is when this snapshot was produced.
	StartTime time.Time
	TakenAt   time.Time

	EventsProcessed   int64
	EventsBroadcast   int64
	EventsReceived    int64
	EventsSuppressed  int64
	LocalDispatches   int64
	BroadcastFailures int64
	RetryAttempts     int64

	// CircuitBreakerOpens counts actual CLOSED/HALF_OPEN -> OPEN
	// transitions, not every failed broadcast.
	CircuitBreakerOpens int64

	// SuccessRatePercent is (EventsProcessed-BroadcastFailures)/
	// EventsProcessed*100. It reads 100 when no event has been
	// processed yet, since there have been zero observed failures.
	SuccessRatePercent float64

	AvgProcessingMs float64
	MinProcessingMs float64
	MaxProcessingMs float64

	// CircuitBreakerState and CircuitBreakerStateSince are the last
	// state the breaker reported through its state-change observer,
	// and when that state was entered.
	CircuitBreakerState      BreakerState
	CircuitBreakerStateSince time.Time

	BroadcastByType map[string]int64
	ReceivedByType  map[string]int64
	FailuresByType  map[string]int64
}
