package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodefleet/conexus/domain/model"
	"github.com/nodefleet/conexus/domain/port/outbound"
)

// MetricsSnapshot aliases model.MetricsSnapshot so this package's
// callers keep using the unqualified name, while the inbound port
// exposes the identical type under model.MetricsSnapshot.
type MetricsSnapshot = model.MetricsSnapshot

// Metrics aggregates fabric-wide counters and timing stats. Totals
// are lock-free atomic additions, since they're incremented on every
// broadcast and receive path; the per-type breakdowns are
// mutex-guarded maps, grounded on the teacher's MetricsStore
// (domainName -> queueName -> count counters guarded by a single
// mutex), generalized from per-queue keys to per-event-type keys.
type Metrics struct {
	startTime time.Time

	eventsProcessed     atomic.Int64
	eventsBroadcast     atomic.Int64
	eventsReceived      atomic.Int64
	eventsSuppressed    atomic.Int64
	localDispatches     atomic.Int64
	broadcastFailures   atomic.Int64
	retryAttempts       atomic.Int64
	circuitBreakerOpens atomic.Int64

	sumProcessingNanos atomic.Int64
	minProcessingNanos atomic.Int64
	maxProcessingNanos atomic.Int64

	breakerState      atomic.Int32
	breakerStateSince atomic.Int64

	mu              sync.Mutex
	broadcastByType map[string]int64
	receivedByType  map[string]int64
	failuresByType  map[string]int64

	logger outbound.Logger
}

func NewMetrics(logger outbound.Logger) *Metrics {
	m := &Metrics{
		startTime:       time.Now(),
		broadcastByType: make(map[string]int64),
		receivedByType:  make(map[string]int64),
		failuresByType:  make(map[string]int64),
		logger:          logger,
	}
	m.breakerState.Store(int32(model.StateClosed))
	m.breakerStateSince.Store(m.startTime.UnixNano())
	return m
}

func (m *Metrics) RecordBroadcast(eventType string) {
	m.eventsBroadcast.Add(1)
	m.mu.Lock()
	m.broadcastByType[eventType]++
	m.mu.Unlock()
}

func (m *Metrics) RecordReceived(eventType string) {
	m.eventsReceived.Add(1)
	m.mu.Lock()
	m.receivedByType[eventType]++
	m.mu.Unlock()
}

func (m *Metrics) RecordSuppressed() {
	m.eventsSuppressed.Add(1)
}

func (m *Metrics) RecordLocalDispatch() {
	m.localDispatches.Add(1)
}

// RecordBroadcastFailure records a network-phase failure for
// eventType, both in the overall total and the per-type breakdown
// spec.md §3 calls for alongside the existing per-type success counts.
func (m *Metrics) RecordBroadcastFailure(eventType string) {
	m.broadcastFailures.Add(1)
	m.mu.Lock()
	m.failuresByType[eventType]++
	m.mu.Unlock()
}

// RecordRetryAttempt counts one retried delivery attempt. It is wired
// as the RetryManager's onRetry hook, so it fires once per retry the
// manager actually issues, not once per Execute call.
func (m *Metrics) RecordRetryAttempt() {
	m.retryAttempts.Add(1)
}

// RecordProcessingTime folds one completed broadcastEvent's end-to-end
// duration into the running sum/min/max used to compute
// avg/min/maxProcessingMs on snapshot.
func (m *Metrics) RecordProcessingTime(d time.Duration) {
	m.eventsProcessed.Add(1)
	nanos := d.Nanoseconds()
	m.sumProcessingNanos.Add(nanos)
	casMin(&m.minProcessingNanos, nanos)
	casMax(&m.maxProcessingNanos, nanos)
}

// ObserveBreakerState is the CircuitBreaker's state-change observer:
// it records the state and the time it was entered, and counts actual
// transitions into OPEN — as opposed to every failed broadcast, which
// is what the pre-callback implementation conflated.
func (m *Metrics) ObserveBreakerState(state model.BreakerState) {
	m.breakerState.Store(int32(state))
	m.breakerStateSince.Store(time.Now().UnixNano())
	if state == model.StateOpen {
		m.circuitBreakerOpens.Add(1)
	}
}

// casMin atomically lowers *addr to n if n is smaller, or if *addr has
// never been set (zero). A CAS loop is used since atomic.Int64 has no
// built-in min primitive.
func casMin(addr *atomic.Int64, n int64) {
	for {
		cur := addr.Load()
		if cur != 0 && cur <= n {
			return
		}
		if addr.CompareAndSwap(cur, n) {
			return
		}
	}
}

func casMax(addr *atomic.Int64, n int64) {
	for {
		cur := addr.Load()
		if cur >= n {
			return
		}
		if addr.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Snapshot returns a copy of current counters and timing aggregates.
// The per-type maps are copied so callers can range over them without
// racing future writes.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	broadcastByType := make(map[string]int64, len(m.broadcastByType))
	for k, v := range m.broadcastByType {
		broadcastByType[k] = v
	}
	receivedByType := make(map[string]int64, len(m.receivedByType))
	for k, v := range m.receivedByType {
		receivedByType[k] = v
	}
	failuresByType := make(map[string]int64, len(m.failuresByType))
	for k, v := range m.failuresByType {
		failuresByType[k] = v
	}
	m.mu.Unlock()

	processed := m.eventsProcessed.Load()
	failures := m.broadcastFailures.Load()

	successRate := 100.0
	if processed > 0 {
		successRate = float64(processed-failures) / float64(processed) * 100
	}

	var avgMs float64
	if processed > 0 {
		avgMs = float64(m.sumProcessingNanos.Load()) / float64(processed) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		StartTime: m.startTime,
		TakenAt:   time.Now(),

		EventsProcessed:     processed,
		EventsBroadcast:     m.eventsBroadcast.Load(),
		EventsReceived:      m.eventsReceived.Load(),
		EventsSuppressed:    m.eventsSuppressed.Load(),
		LocalDispatches:     m.localDispatches.Load(),
		BroadcastFailures:   failures,
		RetryAttempts:       m.retryAttempts.Load(),
		CircuitBreakerOpens: m.circuitBreakerOpens.Load(),

		SuccessRatePercent: successRate,
		AvgProcessingMs:    avgMs,
		MinProcessingMs:    float64(m.minProcessingNanos.Load()) / float64(time.Millisecond),
		MaxProcessingMs:    float64(m.maxProcessingNanos.Load()) / float64(time.Millisecond),

		CircuitBreakerState:      model.BreakerState(m.breakerState.Load()),
		CircuitBreakerStateSince: time.Unix(0, m.breakerStateSince.Load()),

		BroadcastByType: broadcastByType,
		ReceivedByType:  receivedByType,
		FailuresByType:  failuresByType,
	}
}

// LogCurrent emits the current snapshot as a single structured log
// line, for periodic diagnostics without needing a metrics backend.
func (m *Metrics) LogCurrent() {
	snap := m.Snapshot()
	m.logger.Info("fabric metrics",
		"eventsProcessed", snap.EventsProcessed,
		"eventsBroadcast", snap.EventsBroadcast,
		"eventsReceived", snap.EventsReceived,
		"eventsSuppressed", snap.EventsSuppressed,
		"localDispatches", snap.LocalDispatches,
		"broadcastFailures", snap.BroadcastFailures,
		"retryAttempts", snap.RetryAttempts,
		"circuitBreakerOpens", snap.CircuitBreakerOpens,
		"successRatePercent", snap.SuccessRatePercent,
		"avgProcessingMs", snap.AvgProcessingMs,
		"circuitBreakerState", snap.CircuitBreakerState.String(),
	)
}
