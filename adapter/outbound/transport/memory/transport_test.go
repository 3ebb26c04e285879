package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodefleet/conexus/domain/model"
)

type noopLogger struct{}

func (noopLogger) Error(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) UpdateLevel(logLvl string)     {}
func (noopLogger) Shutdown()                     {}

func TestTransport_PublishBeforeSubscribeIsNotDelivered(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	a := NewTransport(broker, noopLogger{})
	require.NoError(t, a.Connect(ctx))

	require.NoError(t, a.Publish(ctx, "ch", []byte("hello")))

	got := make(chan []byte, 1)
	require.NoError(t, a.Subscribe(ctx, "ch", func(ctx context.Context, payload []byte) { got <- payload }))

	select {
	case <-got:
		t.Fatal("a payload published before the subscription was delivered to it")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransport_PublishSubscribeAcrossNodes(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	a := NewTransport(broker, noopLogger{})
	b := NewTransport(broker, noopLogger{})
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, b.Connect(ctx))

	got := make(chan []byte, 1)
	require.NoError(t, b.Subscribe(ctx, "ch", func(ctx context.Context, payload []byte) {
		got <- payload
	}))

	require.NoError(t, a.Publish(ctx, "ch", []byte("hello")))

	select {
	case payload := <-got:
		assert.Equal(t, "hello", string(payload))
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the payload")
	}
}

func TestTransport_UnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	a := NewTransport(broker, noopLogger{})
	b := NewTransport(broker, noopLogger{})
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, b.Connect(ctx))

	got := make(chan []byte, 1)
	require.NoError(t, b.Subscribe(ctx, "ch", func(ctx context.Context, payload []byte) { got <- payload }))
	require.NoError(t, b.Unsubscribe(ctx, "ch"))
	require.NoError(t, a.Publish(ctx, "ch", []byte("hello")))

	select {
	case <-got:
		t.Fatal("unsubscribed transport still received a payload")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransport_PublishFailsWhenDisconnected(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	a := NewTransport(broker, noopLogger{})

	err := a.Publish(ctx, "ch", []byte("hello"))
	require.ErrorIs(t, err, model.ErrTransportUnavailable)
}

func TestTransport_DisconnectStopsDeliveryAndMarksUnconnected(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	a := NewTransport(broker, noopLogger{})
	b := NewTransport(broker, noopLogger{})
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, b.Connect(ctx))

	got := make(chan []byte, 1)
	require.NoError(t, b.Subscribe(ctx, "ch", func(ctx context.Context, payload []byte) { got <- payload }))
	require.NoError(t, b.Disconnect(ctx))
	assert.False(t, b.IsConnected())

	require.NoError(t, a.Publish(ctx, "ch", []byte("hello")))

	select {
	case <-got:
		t.Fatal("disconnected transport still received a payload")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransport_FailNextPublishesInjectsFailures(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	a := NewTransport(broker, noopLogger{})
	require.NoError(t, a.Connect(ctx))

	a.FailNextPublishes(2)

	require.ErrorIs(t, a.Publish(ctx, "ch", []byte("1")), model.ErrTransportUnavailable)
	require.ErrorIs(t, a.Publish(ctx, "ch", []byte("2")), model.ErrTransportUnavailable)
	require.NoError(t, a.Publish(ctx, "ch", []byte("3")))
}

func TestTransport_KeyValueStoreRetrieveDelete(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	a := NewTransport(broker, noopLogger{})
	require.NoError(t, a.Connect(ctx))

	require.NoError(t, a.Store(ctx, "k", []byte("v")))

	value, ok, err := a.Retrieve(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(value))

	exists, err := a.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, a.Delete(ctx, "k"))
	_, ok, err = a.Retrieve(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransport_StoreTTLExpires(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	a := NewTransport(broker, noopLogger{})
	require.NoError(t, a.Connect(ctx))

	require.NoError(t, a.StoreTTL(ctx, "k", []byte("v"), 10*time.Millisecond))

	_, ok, err := a.Retrieve(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok, err = a.Retrieve(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransport_KeyValueSpaceIsSharedAcrossNodes(t *testing.T) {
	ctx := context.Background()
	broker := NewBroker()
	a := NewTransport(broker, noopLogger{})
	b := NewTransport(broker, noopLogger{})
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, b.Connect(ctx))

	require.NoError(t, a.Store(ctx, "shared", []byte("from-a")))

	value, ok, err := b.Retrieve(ctx, "shared")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-a", string(value))
}
