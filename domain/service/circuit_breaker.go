// Package service holds the orchestration logic of the fabric: the
// circuit breaker, retry manager, metrics, event registry, messaging
// service and cross-server event service all live here, mirroring the
// teacher's domain/service package layout.
package service

import (
	"sync/atomic"
	"time"

	"github.com/nodefleet/conexus/domain/model"
	"github.com/nodefleet/conexus/domain/port/outbound"
)

// BreakerState aliases model.BreakerState so existing callers in this
// package keep referring to StateClosed/StateOpen/StateHalfOpen
// unqualified, while callers of the inbound port see the same type
// under model.BreakerState with no conversion needed.
type BreakerState = model.BreakerState

const (
	StateClosed   = model.StateClosed
	StateOpen     = model.StateOpen
	StateHalfOpen = model.StateHalfOpen
)

// CircuitBreaker is a three-state breaker guarding network broadcast.
// State lives in atomic fields with CAS transitions rather than a
// coarse mutex, since allowRequest is on the hot path of every
// broadcastEvent call and must never block on recordSuccess/
// recordFailure running concurrently from other goroutines.
type CircuitBreaker struct {
	name string

	failureThreshold int64
	openTimeout      time.Duration

	state           atomic.Int32
	failureCount    atomic.Int64
	successCount    atomic.Int64
	lastFailureUnix atomic.Int64

	onStateChange atomic.Pointer[func(model.BreakerState)]

	logger outbound.Logger
}

// SetOnStateChange registers fn to be called, synchronously, on every
// transition this breaker makes (including HALF_OPEN probes). Per
// spec.md §4.4, transitions are observable events a Metrics collector
// subscribes to; fn is invoked with the state just entered. A nil fn
// clears any previously registered observer.
func (b *CircuitBreaker) SetOnStateChange(fn func(model.BreakerState)) {
	if fn == nil {
		b.onStateChange.Store(nil)
		return
	}
	b.onStateChange.Store(&fn)
}

func (b *CircuitBreaker) notify(state model.BreakerState) {
	if fn := b.onStateChange.Load(); fn != nil {
		(*fn)(state)
	}
}

// NewCircuitBreaker builds a breaker that opens after failureThreshold
// consecutive failures and attempts a single half-open probe after
// openTimeout has elapsed.
func NewCircuitBreaker(name string, failureThreshold int64, openTimeout time.Duration, logger outbound.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
		logger:           logger,
	}
}

// AllowRequest reports whether the caller may proceed. A CLOSED
// breaker always allows. An OPEN breaker allows exactly one probe
// once openTimeout has elapsed since the last failure, transitioning
// itself to HALF_OPEN via CAS so concurrent callers racing this check
// only let a single probe through. A HALF_OPEN breaker allows nothing
// further until that probe resolves.
func (b *CircuitBreaker) AllowRequest() bool {
	switch BreakerState(b.state.Load()) {
	case StateClosed:
		return true
	case StateHalfOpen:
		return false
	case StateOpen:
		elapsed := time.Since(time.Unix(0, b.lastFailureUnix.Load()))
		if elapsed < b.openTimeout {
			return false
		}
		if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
			b.logger.Info("circuit breaker probing", "breaker", b.name)
			b.notify(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess reports a successful operation. From HALF_OPEN this
// closes the breaker and resets counters; from CLOSED it just clears
// the failure count so isolated failures don't accumulate toward the
// threshold.
func (b *CircuitBreaker) RecordSuccess() {
	b.successCount.Add(1)

	switch BreakerState(b.state.Load()) {
	case StateHalfOpen:
		if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
			b.failureCount.Store(0)
			b.logger.Info("circuit breaker closed", "breaker", b.name)
			b.notify(StateClosed)
		}
	case StateClosed:
		b.failureCount.Store(0)
	}
}

// RecordFailure reports a failed operation. From HALF_OPEN the probe
// failed, so the breaker reopens immediately. From CLOSED the failure
// count is incremented and the breaker opens once it reaches the
// configured threshold.
func (b *CircuitBreaker) RecordFailure() {
	b.lastFailureUnix.Store(time.Now().UnixNano())

	switch BreakerState(b.state.Load()) {
	case StateHalfOpen:
		if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen)) {
			b.logger.Warn("circuit breaker reopened", "breaker", b.name)
			b.notify(StateOpen)
		}
	case StateClosed:
		count := b.failureCount.Add(1)
		if count >= b.failureThreshold {
			if b.state.CompareAndSwap(int32(StateClosed), int32(StateOpen)) {
				b.logger.Warn("circuit breaker opened", "breaker", b.name, "failures", count)
				b.notify(StateOpen)
			}
		}
	}
}

// Reset forces the breaker back to CLOSED with cleared counters,
// for administrative recovery or test setup.
func (b *CircuitBreaker) Reset() {
	prev := BreakerState(b.state.Swap(int32(StateClosed)))
	b.failureCount.Store(0)
	b.successCount.Store(0)
	if prev != StateClosed {
		b.notify(StateClosed)
	}
}

func (b *CircuitBreaker) State() BreakerState {
	return BreakerState(b.state.Load())
}

func (b *CircuitBreaker) FailureCount() int64 {
	return b.failureCount.Load()
}

func (b *CircuitBreaker) SuccessCount() int64 {
	return b.successCount.Load()
}

func (b *CircuitBreaker) Name() string {
	return b.name
}
