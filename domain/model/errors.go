package model

import "errors"

// Error taxonomy for the messaging and event fabric. Callers should
// compare with errors.Is rather than string matching; wrapped causes
// (e.g. a transport dial failure) are attached with fmt.Errorf's %w.
var (
	// ErrTransportUnavailable means the broker connection is down or a
	// publish/subscribe/store call failed to reach it.
	ErrTransportUnavailable = errors.New("conexus: transport unavailable")

	// ErrSerialization means the codec could not turn a value into bytes.
	ErrSerialization = errors.New("conexus: serialization error")

	// ErrDeserialization means the codec could not turn bytes into a
	// known Message variant.
	ErrDeserialization = errors.New("conexus: deserialization error")

	// ErrUnknownEventType means no registry entry exists for a
	// received event wrapper's type name.
	ErrUnknownEventType = errors.New("conexus: unknown event type")

	// ErrCircuitBreakerOpen means the network phase was refused
	// because the breaker is open and graceful degradation is off.
	ErrCircuitBreakerOpen = errors.New("conexus: circuit breaker open")

	// ErrTimeout means a request/response exchange did not complete
	// before its deadline.
	ErrTimeout = errors.New("conexus: timeout")

	// ErrProtocolMismatch means a response's concrete type did not
	// match what the caller of sendRequest expected.
	ErrProtocolMismatch = errors.New("conexus: protocol mismatch")

	// ErrCancelled means a pending request or a pending retry was
	// cancelled by a service shutdown. Cancellation through the
	// caller's own context is reported as that context's error
	// (context.Canceled or context.DeadlineExceeded), not ErrCancelled.
	ErrCancelled = errors.New("conexus: cancelled")

	// ErrNotInitialized means an operation was invoked on a service
	// that has not completed initialize().
	ErrNotInitialized = errors.New("conexus: not initialized")

	// ErrOverloaded means the concurrent-event limit was exceeded.
	ErrOverloaded = errors.New("conexus: overloaded")

	// ErrSubscriptionNotFound means an unsubscribe/unregister call
	// referenced a channel or handler that was never registered.
	ErrSubscriptionNotFound = errors.New("conexus: subscription not found")

	// ErrInvalidConfiguration means a Configuration failed validation
	// at construction time.
	ErrInvalidConfiguration = errors.New("conexus: invalid configuration")
)
