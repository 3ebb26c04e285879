package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodefleet/conexus/adapter/outbound/transport/memory"
	"github.com/nodefleet/conexus/domain/model"
)

func connectedMessaging(t *testing.T, broker *memory.Broker, nodeID string) *MessagingServiceImpl {
	t.Helper()
	transport := memory.NewTransport(broker, testLogger{})
	require.NoError(t, transport.Connect(context.Background()))
	svc := NewMessagingService(nodeID, transport, testLogger{})
	require.NoError(t, svc.Initialize(context.Background()))
	return svc
}

func TestMessagingService_SendToNode_DeliversExactlyOnce(t *testing.T) {
	broker := memory.NewBroker()
	a := connectedMessaging(t, broker, "node-a")
	b := connectedMessaging(t, broker, "node-b")

	received := make(chan model.SimpleText, 1)
	b.RegisterHandler(model.SimpleText{}, func(msg model.Message) error {
		received <- msg.(model.SimpleText)
		return nil
	})

	msg := model.SimpleText{Envelope: model.NewEnvelope("id-1", "node-a", time.Now()), Content: "hi", Category: "chat"}
	require.NoError(t, a.SendToNode(context.Background(), "node-b", msg))

	select {
	case got := <-received:
		assert.Equal(t, "hi", got.Content)
	case <-time.After(time.Second):
		t.Fatal("node-b never received the message")
	}

	select {
	case <-received:
		t.Fatal("node-b received the message a second time")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMessagingService_Broadcast_LoopbackSuppressed(t *testing.T) {
	broker := memory.NewBroker()
	a := connectedMessaging(t, broker, "node-a")

	invoked := make(chan struct{}, 1)
	a.RegisterHandler(model.SimpleText{}, func(msg model.Message) error {
		invoked <- struct{}{}
		return nil
	})

	msg := model.SimpleText{Envelope: model.NewEnvelope("id-1", "node-a", time.Now()), Content: "hi", Category: "chat"}
	require.NoError(t, a.Broadcast(context.Background(), msg))

	select {
	case <-invoked:
		t.Fatal("node-a's own handler fired on its own broadcast")
	case <-time.After(50 * time.Millisecond):
		// expected: no invocation
	}
}

func TestMessagingService_Broadcast_ReachesAllOtherNodes(t *testing.T) {
	broker := memory.NewBroker()
	a := connectedMessaging(t, broker, "node-a")
	b := connectedMessaging(t, broker, "node-b")
	c := connectedMessaging(t, broker, "node-c")

	gotB := make(chan struct{}, 1)
	gotC := make(chan struct{}, 1)
	b.RegisterHandler(model.SimpleText{}, func(msg model.Message) error { gotB <- struct{}{}; return nil })
	c.RegisterHandler(model.SimpleText{}, func(msg model.Message) error { gotC <- struct{}{}; return nil })

	msg := model.SimpleText{Envelope: model.NewEnvelope("id-1", "node-a", time.Now()), Content: "hi"}
	require.NoError(t, a.Broadcast(context.Background(), msg))

	for name, ch := range map[string]chan struct{}{"b": gotB, "c": gotC} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("node-%s never received the broadcast", name)
		}
	}
}

func TestMessagingService_SendRequest_CompletesOnMatchingResponse(t *testing.T) {
	broker := memory.NewBroker()
	a := connectedMessaging(t, broker, "node-a")
	b := connectedMessaging(t, broker, "node-b")

	b.RegisterHandler(model.Request{}, func(msg model.Message) error {
		req := msg.(model.Request)
		resp := model.Response{
			Envelope:      model.NewEnvelope("resp-1", "node-b", time.Now()),
			CorrelationID: req.MessageID(),
			ResponseType:  "pong",
		}
		return b.SendToNode(context.Background(), "node-a", resp)
	})

	req := model.Request{Envelope: model.NewEnvelope("req-1", "node-a", time.Now()), RequestType: "ping"}
	resp, err := a.SendRequest(context.Background(), "node-b", req, 500*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.CorrelationID)
	assert.Equal(t, "pong", resp.ResponseType)
}

func TestMessagingService_SendRequest_TimesOutAndClearsPending(t *testing.T) {
	broker := memory.NewBroker()
	a := connectedMessaging(t, broker, "node-a")
	_ = connectedMessaging(t, broker, "node-b") // never responds

	req := model.Request{Envelope: model.NewEnvelope("req-1", "node-a", time.Now()), RequestType: "ping"}
	_, err := a.SendRequest(context.Background(), "node-b", req, 10*time.Millisecond)

	require.ErrorIs(t, err, model.ErrTimeout)

	a.pendingMu.Lock()
	_, stillPending := a.pending["req-1"]
	a.pendingMu.Unlock()
	assert.False(t, stillPending)
}

func TestMessagingService_CatchAllHandler(t *testing.T) {
	broker := memory.NewBroker()
	a := connectedMessaging(t, broker, "node-a")
	b := connectedMessaging(t, broker, "node-b")

	var gotType string
	done := make(chan struct{}, 1)
	b.RegisterHandler(nil, func(msg model.Message) error {
		gotType = msg.TypeTag()
		done <- struct{}{}
		return nil
	})

	msg := model.SimpleText{Envelope: model.NewEnvelope("id-1", "node-a", time.Now()), Content: "hi"}
	require.NoError(t, a.SendToNode(context.Background(), "node-b", msg))

	select {
	case <-done:
		assert.Equal(t, model.TypeSimpleText, gotType)
	case <-time.After(time.Second):
		t.Fatal("catch-all handler never fired")
	}
}
