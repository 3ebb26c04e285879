package outbound

import (
	"context"
	"time"
)

// ChannelHandler receives every future byte payload published on a
// subscribed channel. It runs on the transport's delivery goroutine;
// implementations must not block it for long.
type ChannelHandler func(ctx context.Context, payload []byte)

// Transport abstracts a pub/sub + key/value broker. Channel names and
// keys are opaque strings the caller chooses, except for the two
// reserved channel name shapes the core owns: "direct:<nodeId>" and
// "broadcast". No implementation here makes delivery, ordering, or
// durability guarantees beyond "at most once per channel per
// subscriber, in arrival order" (spec §4.1).
type Transport interface {
	// Connect establishes the backend connection. It is idempotent;
	// calling it again while already connected is a no-op. Fails with
	// model.ErrTransportUnavailable if the backend is unreachable.
	Connect(ctx context.Context) error

	// Disconnect tears down the backend connection. Idempotent.
	Disconnect(ctx context.Context) error

	// IsConnected reflects current backend health.
	IsConnected() bool

	// Publish delivers payload once to channel's subscribers. No
	// durability guarantee; fails with model.ErrTransportUnavailable
	// if the backend is down.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe registers handler to receive every future payload on
	// channel. Subscribing again on the same channel atomically
	// replaces the handler.
	Subscribe(ctx context.Context, channel string, handler ChannelHandler) error

	// Unsubscribe removes channel's handler; future payloads on it are
	// ignored. Unsubscribing an unknown channel is a no-op.
	Unsubscribe(ctx context.Context, channel string) error

	// Store writes value under key with no expiry.
	Store(ctx context.Context, key string, value []byte) error

	// StoreTTL writes value under key, backend-enforced to expire
	// after ttl elapses.
	StoreTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Retrieve reads the value stored under key. Returns
	// (nil, false, nil) if key does not exist or has expired.
	Retrieve(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Delete removes key. Deleting an unknown key is a no-op.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key currently holds a value.
	Exists(ctx context.Context, key string) (bool, error)
}
