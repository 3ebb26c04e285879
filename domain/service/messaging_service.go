package service

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodefleet/conexus/domain/model"
	"github.com/nodefleet/conexus/domain/port/inbound"
	"github.com/nodefleet/conexus/domain/port/outbound"
)

const broadcastChannel = "broadcast"

func directChannel(nodeID string) string {
	return "direct:" + nodeID
}

type handlerEntry struct {
	sampleType reflect.Type // nil means "catch-all", the supertype of every variant
	handler    model.MessageHandler
}

type typedChannel struct {
	sampleType reflect.Type
}

// MessagingServiceImpl is the default MessagingService. It owns no
// circuit breaker, retry policy, or registry of its own — those
// belong to the event service built on top of it; this layer only
// knows how to move bytes between nodes and correlate
// request/response pairs, grounded on the teacher's QueueServiceImpl
// (a concurrent-map-guarded registry of live channels created lazily
// and torn down on shutdown).
type MessagingServiceImpl struct {
	nodeID    string
	transport outbound.Transport
	logger    outbound.Logger

	initialized atomic.Bool

	mu       sync.RWMutex
	handlers []handlerEntry

	pendingMu sync.Mutex
	pending   map[string]chan model.Response

	channelsMu sync.RWMutex
	channels   map[string]typedChannel
}

// NewMessagingService builds a messaging service for nodeID over
// transport.
func NewMessagingService(nodeID string, transport outbound.Transport, logger outbound.Logger) *MessagingServiceImpl {
	return &MessagingServiceImpl{
		nodeID:    nodeID,
		transport: transport,
		logger:    logger,
		pending:   make(map[string]chan model.Response),
		channels:  make(map[string]typedChannel),
	}
}

func (s *MessagingServiceImpl) Initialize(ctx context.Context) error {
	if !s.initialized.CompareAndSwap(false, true) {
		return nil
	}

	if err := s.transport.Subscribe(ctx, directChannel(s.nodeID), s.dispatch); err != nil {
		s.initialized.Store(false)
		return fmt.Errorf("subscribing direct channel: %w", err)
	}
	if err := s.transport.Subscribe(ctx, broadcastChannel, s.dispatch); err != nil {
		s.initialized.Store(false)
		return fmt.Errorf("subscribing broadcast channel: %w", err)
	}
	return nil
}

func (s *MessagingServiceImpl) Shutdown(ctx context.Context) error {
	if !s.initialized.CompareAndSwap(true, false) {
		return nil
	}

	_ = s.transport.Unsubscribe(ctx, directChannel(s.nodeID))
	_ = s.transport.Unsubscribe(ctx, broadcastChannel)

	s.pendingMu.Lock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()

	return nil
}

func (s *MessagingServiceImpl) SendToNode(ctx context.Context, targetNodeID string, message model.Message) error {
	payload, err := model.Encode(message)
	if err != nil {
		return err
	}
	return s.transport.Publish(ctx, directChannel(targetNodeID), payload)
}

func (s *MessagingServiceImpl) Broadcast(ctx context.Context, message model.Message) error {
	payload, err := model.Encode(message)
	if err != nil {
		return err
	}
	return s.transport.Publish(ctx, broadcastChannel, payload)
}

func (s *MessagingServiceImpl) SendRequest(ctx context.Context, targetNodeID string, request model.Request, timeout time.Duration) (model.Response, error) {
	respCh := make(chan model.Response, 1)

	s.pendingMu.Lock()
	s.pending[request.MessageID()] = respCh
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, request.MessageID())
		s.pendingMu.Unlock()
	}()

	if err := s.SendToNode(ctx, targetNodeID, request); err != nil {
		return model.Response{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respCh:
		if !ok {
			return model.Response{}, model.ErrCancelled
		}
		return resp, nil
	case <-timer.C:
		return model.Response{}, fmt.Errorf("%w: no response from %s within %s", model.ErrTimeout, targetNodeID, timeout)
	case <-ctx.Done():
		return model.Response{}, ctx.Err()
	}
}

func (s *MessagingServiceImpl) RegisterHandler(sampleType model.Message, handler model.MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handlerEntry{
		sampleType: reflect.TypeOf(sampleType),
		handler:    handler,
	})
}

func (s *MessagingServiceImpl) UnregisterHandler(sampleType model.Message) {
	target := reflect.TypeOf(sampleType)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.handlers {
		if e.sampleType == target {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return
		}
	}
}

// resolveHandler returns the handler for decoded, preferring an exact
// type match and falling back to the first registered handler whose
// declared variant is a supertype of decoded's concrete type. Only a
// nil sampleType (registered as the catch-all Message interface
// itself) can be a supertype of a distinct concrete struct in Go's
// type system, since these variants don't otherwise embed one
// another.
func (s *MessagingServiceImpl) resolveHandler(decoded model.Message) (model.MessageHandler, bool) {
	decodedType := reflect.TypeOf(decoded)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.handlers {
		if e.sampleType == decodedType {
			return e.handler, true
		}
	}
	for _, e := range s.handlers {
		if e.sampleType == nil {
			return e.handler, true
		}
	}
	return nil, false
}

func (s *MessagingServiceImpl) dispatch(ctx context.Context, payload []byte) {
	decoded, err := model.Decode(payload)
	if err != nil {
		s.logger.Warn("dropping undecodable message", "error", err)
		return
	}

	if decoded.SourceNodeID() == s.nodeID {
		return
	}

	if resp, ok := decoded.(model.Response); ok {
		s.pendingMu.Lock()
		waiter, found := s.pending[resp.CorrelationID]
		if found {
			delete(s.pending, resp.CorrelationID)
		}
		s.pendingMu.Unlock()

		if found {
			waiter <- resp
			close(waiter)
			return
		}
	}

	handler, ok := s.resolveHandler(decoded)
	if !ok {
		return
	}

	if err := handler(decoded); err != nil {
		s.logger.Error("message handler failed", "type", decoded.TypeTag(), "error", err)
	}
}

func (s *MessagingServiceImpl) CreateChannel(ctx context.Context, name string, sampleType model.Message) error {
	s.channelsMu.Lock()
	s.channels[name] = typedChannel{sampleType: reflect.TypeOf(sampleType)}
	s.channelsMu.Unlock()
	return nil
}

func (s *MessagingServiceImpl) PublishToChannel(ctx context.Context, name string, message model.Message) error {
	payload, err := model.Encode(message)
	if err != nil {
		return err
	}
	return s.transport.Publish(ctx, name, payload)
}

func (s *MessagingServiceImpl) SubscribeToChannel(ctx context.Context, name string, handler model.MessageHandler) error {
	s.channelsMu.RLock()
	typed, ok := s.channels[name]
	s.channelsMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: channel %q was never created", model.ErrSubscriptionNotFound, name)
	}

	return s.transport.Subscribe(ctx, name, func(ctx context.Context, payload []byte) {
		decoded, err := model.Decode(payload)
		if err != nil {
			s.logger.Warn("dropping undecodable channel message", "channel", name, "error", err)
			return
		}
		if decoded.SourceNodeID() == s.nodeID {
			return
		}
		if typed.sampleType != nil && reflect.TypeOf(decoded) != typed.sampleType {
			return
		}
		if err := handler(decoded); err != nil {
			s.logger.Error("channel handler failed", "channel", name, "error", err)
		}
	})
}

var _ inbound.MessagingService = (*MessagingServiceImpl)(nil)
