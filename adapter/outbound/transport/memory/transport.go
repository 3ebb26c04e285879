// Package memory is a reference Transport implementation backed by an
// in-process broker: the shared pub/sub + key/value backend every
// node in a test fleet connects to. It is not a production backend
// driver (those are out of scope per spec §1) — its job is to make
// the messaging and event layers exercisable without a real broker,
// the same role the teacher's adapter/outbound/storage/memory package
// plays for the domain/queue repositories.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodefleet/conexus/domain/model"
	"github.com/nodefleet/conexus/domain/port/outbound"
)

type kvEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e kvEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Broker is the shared backend state every node's Transport talks to.
// Construct one per test fleet (or per process, for a single-binary
// multi-node simulation) and hand out a Transport per node with
// NewTransport.
type Broker struct {
	chMu     sync.RWMutex
	channels map[string]map[*Transport]outbound.ChannelHandler

	kvMu sync.RWMutex
	kv   map[string]kvEntry

	unavailable atomic.Bool
}

// NewBroker creates an empty shared backend.
func NewBroker() *Broker {
	return &Broker{
		channels: make(map[string]map[*Transport]outbound.ChannelHandler),
		kv:       make(map[string]kvEntry),
	}
}

// SetUnavailable flips the whole broker's reachability, for exercising
// TransportUnavailable handling above the transport layer.
func (b *Broker) SetUnavailable(unavailable bool) {
	b.unavailable.Store(unavailable)
}

func (b *Broker) dispatch(ctx context.Context, channel string, payload []byte) {
	b.chMu.RLock()
	subs := b.channels[channel]
	handlers := make([]outbound.ChannelHandler, 0, len(subs))
	for _, h := range subs {
		handlers = append(handlers, h)
	}
	b.chMu.RUnlock()

	for _, h := range handlers {
		go h(ctx, payload)
	}
}

// Transport is one node's client to a Broker. Publish/Subscribe calls
// on it fan out through the shared Broker instance it was created
// from, so two Transports built from the same Broker observe each
// other's traffic — the "common in-memory transport" the spec's
// end-to-end scenarios call for.
type Transport struct {
	broker *Broker
	logger outbound.Logger

	connected atomic.Bool

	mu            sync.Mutex
	subscriptions map[string]struct{}

	failNext atomic.Int32
}

// NewTransport returns a node's handle onto broker.
func NewTransport(broker *Broker, logger outbound.Logger) *Transport {
	return &Transport{
		broker:        broker,
		logger:        logger,
		subscriptions: make(map[string]struct{}),
	}
}

// FailNextPublishes makes the next n Publish calls on this transport
// fail with model.ErrTransportUnavailable, for exercising the circuit
// breaker and retry manager against a flaky link.
func (t *Transport) FailNextPublishes(n int) {
	t.failNext.Store(int32(n))
}

func (t *Transport) Connect(ctx context.Context) error {
	if t.broker.unavailable.Load() {
		return fmt.Errorf("%w: broker unreachable", model.ErrTransportUnavailable)
	}
	t.connected.Store(true)
	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	if !t.connected.Load() {
		return nil
	}
	t.connected.Store(false)

	t.mu.Lock()
	channels := make([]string, 0, len(t.subscriptions))
	for ch := range t.subscriptions {
		channels = append(channels, ch)
	}
	t.subscriptions = make(map[string]struct{})
	t.mu.Unlock()

	for _, ch := range channels {
		t.broker.chMu.Lock()
		if subs, ok := t.broker.channels[ch]; ok {
			delete(subs, t)
			if len(subs) == 0 {
				delete(t.broker.channels, ch)
			}
		}
		t.broker.chMu.Unlock()
	}
	return nil
}

func (t *Transport) IsConnected() bool {
	return t.connected.Load() && !t.broker.unavailable.Load()
}

func (t *Transport) Publish(ctx context.Context, channel string, payload []byte) error {
	if !t.IsConnected() {
		return fmt.Errorf("%w: not connected", model.ErrTransportUnavailable)
	}
	if n := t.failNext.Load(); n > 0 {
		t.failNext.Add(-1)
		return fmt.Errorf("%w: injected failure on %s", model.ErrTransportUnavailable, channel)
	}

	t.broker.dispatch(ctx, channel, payload)
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, channel string, handler outbound.ChannelHandler) error {
	if !t.IsConnected() {
		return fmt.Errorf("%w: not connected", model.ErrTransportUnavailable)
	}

	t.broker.chMu.Lock()
	subs, ok := t.broker.channels[channel]
	if !ok {
		subs = make(map[*Transport]outbound.ChannelHandler)
		t.broker.channels[channel] = subs
	}
	subs[t] = handler
	t.broker.chMu.Unlock()

	t.mu.Lock()
	t.subscriptions[channel] = struct{}{}
	t.mu.Unlock()
	return nil
}

func (t *Transport) Unsubscribe(ctx context.Context, channel string) error {
	t.broker.chMu.Lock()
	if subs, ok := t.broker.channels[channel]; ok {
		delete(subs, t)
		if len(subs) == 0 {
			delete(t.broker.channels, channel)
		}
	}
	t.broker.chMu.Unlock()

	t.mu.Lock()
	delete(t.subscriptions, channel)
	t.mu.Unlock()
	return nil
}

func (t *Transport) Store(ctx context.Context, key string, value []byte) error {
	return t.StoreTTL(ctx, key, value, 0)
}

func (t *Transport) StoreTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !t.IsConnected() {
		return fmt.Errorf("%w: not connected", model.ErrTransportUnavailable)
	}

	entry := kvEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	t.broker.kvMu.Lock()
	t.broker.kv[key] = entry
	t.broker.kvMu.Unlock()
	return nil
}

func (t *Transport) Retrieve(ctx context.Context, key string) ([]byte, bool, error) {
	if !t.IsConnected() {
		return nil, false, fmt.Errorf("%w: not connected", model.ErrTransportUnavailable)
	}

	t.broker.kvMu.RLock()
	entry, ok := t.broker.kv[key]
	t.broker.kvMu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		t.broker.kvMu.Lock()
		delete(t.broker.kv, key)
		t.broker.kvMu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

func (t *Transport) Delete(ctx context.Context, key string) error {
	if !t.IsConnected() {
		return fmt.Errorf("%w: not connected", model.ErrTransportUnavailable)
	}
	t.broker.kvMu.Lock()
	delete(t.broker.kv, key)
	t.broker.kvMu.Unlock()
	return nil
}

func (t *Transport) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := t.Retrieve(ctx, key)
	return ok, err
}

var _ outbound.Transport = (*Transport)(nil)
