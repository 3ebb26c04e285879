package inbound

import (
	"context"

	"github.com/nodefleet/conexus/domain/model"
)

// EventListener observes a NetworkEvent. When invoked through the
// network path, ctx carries the wrapper's priority; a local-phase
// invocation receives the broadcaster's ctx, which carries none. A
// returned error is logged and isolated from other listeners.
type EventListener func(ctx context.Context, event model.NetworkEvent) error

// EventDecoder decodes a fallback, non-JSON wire payload into a
// NetworkEvent for a registered variant.
type EventDecoder func(payload string) (model.NetworkEvent, error)

// EventService orchestrates cross-node broadcast of typed domain
// events: local listener fan-out, network broadcast gated by a
// circuit breaker and retried with backoff, loop prevention, and
// metrics. It is the core of the fabric.
type EventService interface {
	// Initialize installs the inbound NetworkEventMessage handler on
	// the messaging service. Idempotent.
	Initialize(ctx context.Context) error

	// Shutdown drains the retry scheduler with a bounded grace period
	// and clears registered listeners. Idempotent.
	Shutdown(ctx context.Context) error

	// BroadcastEvent fans event out to local listeners and, if
	// enabled, the network, at model.PriorityNormal. It returns once
	// both phases have settled.
	BroadcastEvent(ctx context.Context, event model.NetworkEvent) error

	// BroadcastEventPriority is BroadcastEvent with an explicit
	// priority carried on the wire wrapper.
	BroadcastEventPriority(ctx context.Context, event model.NetworkEvent, priority model.Priority) error

	// RegisterEventListener adds listener for every event assignable
	// to sampleType's concrete type.
	RegisterEventListener(sampleType model.NetworkEvent, listener EventListener)

	// UnregisterEventListener removes a listener previously registered
	// for sampleType. Listeners are identified by function pointer
	// identity, so closures captured at distinct call sites are
	// distinct even if structurally identical.
	UnregisterEventListener(sampleType model.NetworkEvent, listener EventListener)

	// RegisterEventType registers a host-defined NetworkEvent variant
	// with the service's registry, with an optional fallback decoder.
	RegisterEventType(typeName string, sampleType model.NetworkEvent, decoder EventDecoder)

	ListenerCount(sampleType model.NetworkEvent) int
	TotalListenerCount() int

	// SnapshotMetrics returns the current point-in-time view of fabric
	// counters and timing aggregates.
	SnapshotMetrics() model.MetricsSnapshot

	// BreakerState returns the network circuit breaker's current state.
	BreakerState() model.BreakerState
}
