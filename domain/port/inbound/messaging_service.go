package inbound

import (
	"context"
	"time"

	"github.com/nodefleet/conexus/domain/model"
)

// MessagingService dispatches typed messages between nodes over the
// transport's direct and broadcast channels, and layers a
// request/response correlator on top.
type MessagingService interface {
	// Initialize subscribes to this node's direct channel and the
	// shared broadcast channel. Idempotent.
	Initialize(ctx context.Context) error

	// Shutdown unsubscribes from direct/broadcast and releases pending
	// request waiters with ErrCancelled. Idempotent.
	Shutdown(ctx context.Context) error

	// SendToNode serializes message and publishes it to targetNodeID's
	// direct channel.
	SendToNode(ctx context.Context, targetNodeID string, message model.Message) error

	// Broadcast serializes message and publishes it to the shared
	// broadcast channel.
	Broadcast(ctx context.Context, message model.Message) error

	// SendRequest publishes request to targetNodeID and waits up to
	// timeout for a Response whose CorrelationID matches request's
	// MessageID. Fails with ErrTimeout on expiry.
	SendRequest(ctx context.Context, targetNodeID string, request model.Request, timeout time.Duration) (model.Response, error)

	// RegisterHandler installs handler for every decoded message whose
	// concrete type is assignable to sampleType's type (exact match
	// preferred; the first registered supertype match otherwise).
	// sampleType is used only to capture its reflect.Type.
	RegisterHandler(sampleType model.Message, handler model.MessageHandler)

	// UnregisterHandler removes the handler registered for sampleType.
	UnregisterHandler(sampleType model.Message)

	// CreateChannel opens a typed application channel. Publish
	// serializes through the same codec as direct/broadcast traffic;
	// Subscribe installs handler filtered to messages assignable to
	// sampleType, with loopback suppression.
	CreateChannel(ctx context.Context, name string, sampleType model.Message) error

	// PublishToChannel serializes message and publishes it to a
	// channel previously opened with CreateChannel.
	PublishToChannel(ctx context.Context, name string, message model.Message) error

	// SubscribeToChannel installs handler on a channel previously
	// opened with CreateChannel.
	SubscribeToChannel(ctx context.Context, name string, handler model.MessageHandler) error
}
