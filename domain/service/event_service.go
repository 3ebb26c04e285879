package service

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodefleet/conexus/config"
	"github.com/nodefleet/conexus/domain/model"
	"github.com/nodefleet/conexus/domain/port/inbound"
	"github.com/nodefleet/conexus/domain/port/outbound"
)

// dedupCacheCapacity bounds the loop-prevention fingerprint cache. It
// is not exposed through FabricConfig: it guards an internal detail of
// handleInbound, not a behavior a host needs to tune.
const dedupCacheCapacity = 4096

type serviceState int32

const (
	stateCreated serviceState = iota
	stateInitialized
	stateShutdown
)

type listenerEntry struct {
	id uintptr
	fn inbound.EventListener
}

// CrossServerEventServiceImpl is the fabric's orchestrator: it fans a
// broadcast event out to local listeners, and separately wraps it for
// the network, gated by a CircuitBreaker and resubmitted through a
// RetryManager, with loop prevention and metrics on every path.
// Grounded on the teacher's ChannelQueue (owns its own circuit
// breaker, retry queue, and worker semaphore, all scoped to one
// queue) generalized from one queue's delivery loop to the whole
// fleet's event traffic.
type CrossServerEventServiceImpl struct {
	nodeID    string
	cfg       config.FabricConfig
	messaging inbound.MessagingService
	logger    outbound.Logger

	registry *EventRegistry
	breaker  *CircuitBreaker
	retry    *RetryManager
	metrics  *Metrics
	dedup    *dedupCache

	state atomic.Int32

	listenersMu sync.RWMutex
	listeners   map[reflect.Type][]listenerEntry

	sem chan struct{}

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// NewCrossServerEventService wires an event service over messaging
// using cfg's thresholds. The returned service owns its circuit
// breaker, retry manager, metrics, and registry; messaging is a
// shared collaborator it never shuts down.
func NewCrossServerEventService(
	nodeID string,
	cfg config.FabricConfig,
	messaging inbound.MessagingService,
	logger outbound.Logger,
) *CrossServerEventServiceImpl {
	rootCtx, cancel := context.WithCancel(context.Background())

	breaker := NewCircuitBreaker("network-broadcast", int64(cfg.CircuitBreakerFailureThreshold), cfg.CircuitBreakerTimeout(), logger)
	retry := NewRetryManager(rootCtx, cfg.MaxRetryAttempts, cfg.RetryDelay(), 0, cfg.RetryBackoffMultiplier, logger)
	metrics := NewMetrics(logger)

	// Transitions and retries are observable events Metrics subscribes
	// to, per spec.md §4.4, rather than the event service recording a
	// second, looser copy of the same signal itself.
	breaker.SetOnStateChange(metrics.ObserveBreakerState)
	retry.SetOnRetry(metrics.RecordRetryAttempt)

	return &CrossServerEventServiceImpl{
		nodeID:     nodeID,
		cfg:        cfg,
		messaging:  messaging,
		logger:     logger,
		registry:   NewEventRegistry(),
		breaker:    breaker,
		retry:      retry,
		metrics:    metrics,
		dedup:      newDedupCache(dedupCacheCapacity),
		listeners:  make(map[reflect.Type][]listenerEntry),
		sem:        make(chan struct{}, cfg.MaxConcurrentEvents),
		rootCtx:    rootCtx,
		rootCancel: cancel,
	}
}

func (s *CrossServerEventServiceImpl) Initialize(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(stateCreated), int32(stateInitialized)) {
		return nil
	}
	s.messaging.RegisterHandler(model.NetworkEventMessage{}, s.handleInbound)
	return nil
}

func (s *CrossServerEventServiceImpl) Shutdown(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(stateInitialized), int32(stateShutdown)) {
		return nil
	}

	s.messaging.UnregisterHandler(model.NetworkEventMessage{})
	s.retry.Shutdown()
	s.rootCancel()

	s.listenersMu.Lock()
	s.listeners = make(map[reflect.Type][]listenerEntry)
	s.listenersMu.Unlock()

	return nil
}

func (s *CrossServerEventServiceImpl) BroadcastEvent(ctx context.Context, event model.NetworkEvent) error {
	return s.BroadcastEventPriority(ctx, event, model.PriorityNormal)
}

func (s *CrossServerEventServiceImpl) BroadcastEventPriority(ctx context.Context, event model.NetworkEvent, priority model.Priority) error {
	if serviceState(s.state.Load()) != stateInitialized {
		return model.ErrNotInitialized
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	default:
		return model.ErrOverloaded
	}

	typeName, ok := s.registry.TypeNameFor(event)
	if !ok {
		return fmt.Errorf("%w: %T is not registered", model.ErrUnknownEventType, event)
	}

	started := time.Now()

	phases := 0
	if s.cfg.EnableLocalProcessing {
		phases++
	}
	if s.cfg.EnableCrossNodeBroadcast {
		phases++
	}
	task := newJoinTask(max(phases, 1))
	if phases == 0 {
		task.complete(nil)
	}

	if s.cfg.EnableLocalProcessing {
		go s.runLocalPhase(ctx, event, task)
	}
	if s.cfg.EnableCrossNodeBroadcast {
		go s.runNetworkPhase(ctx, event, typeName, priority, task)
	}

	err := task.Wait(ctx)
	elapsed := time.Since(started)

	s.metrics.RecordBroadcast(typeName)
	s.metrics.RecordProcessingTime(elapsed)
	if err != nil {
		s.metrics.RecordBroadcastFailure(typeName)
	}
	s.logger.Debug("broadcast settled", "type", typeName, "elapsed", elapsed.String(), "error", err)
	return err
}

func (s *CrossServerEventServiceImpl) runLocalPhase(ctx context.Context, event model.NetworkEvent, task *joinTask) {
	defer task.complete(nil) // local failures never fail the combined result

	for _, l := range s.listenersFor(event) {
		func(entry listenerEntry) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("event listener panicked", "error", r)
				}
			}()
			if err := entry.fn(ctx, event); err != nil {
				s.logger.Warn("event listener failed", "error", err)
			}
		}(l)
	}
	s.metrics.RecordLocalDispatch()
}

func (s *CrossServerEventServiceImpl) runNetworkPhase(ctx context.Context, event model.NetworkEvent, typeName string, priority model.Priority, task *joinTask) {
	if !s.breaker.AllowRequest() {
		if s.cfg.EnableGracefulDegradation {
			task.complete(nil)
			return
		}
		task.complete(model.ErrCircuitBreakerOpen)
		return
	}

	payload, err := s.registry.EncodeEvent(event)
	if err != nil {
		task.complete(err)
		return
	}

	wrapper := model.NetworkEventMessage{
		Envelope:       model.NewEnvelope(newMessageID(), s.nodeID, time.Now()),
		EventTypeName:  typeName,
		EventPayload:   payload,
		Priority:       priority,
		OriginalNodeID: event.OriginatorNodeID(),
	}

	broadcastCtx, cancel := context.WithTimeout(ctx, s.cfg.NetworkBroadcastTimeout())
	defer cancel()

	err = s.retry.Execute(broadcastCtx, "broadcast:"+typeName, func(attemptCtx context.Context) error {
		return s.messaging.Broadcast(attemptCtx, wrapper)
	})

	if err != nil {
		s.breaker.RecordFailure()
		task.complete(err)
		return
	}

	s.breaker.RecordSuccess()
	task.complete(nil)
}

func (s *CrossServerEventServiceImpl) handleInbound(msg model.Message) error {
	wrapper, ok := msg.(model.NetworkEventMessage)
	if !ok {
		return nil
	}

	if wrapper.OriginalNodeID == s.nodeID {
		s.metrics.RecordSuppressed()
		return nil
	}

	fp := dedupFingerprint(wrapper.OriginalNodeID, wrapper.EventTypeName, wrapper.EventPayload)
	if s.dedup.seenBefore(fp) {
		// Already processed this exact event under a different hop's
		// SourceNodeID; a multi-hop relay loops back here before its
		// OriginalNodeID ever matches ours.
		s.metrics.RecordSuppressed()
		return nil
	}

	event, err := s.registry.DecodeEvent(wrapper.EventTypeName, wrapper.EventPayload)
	if err != nil {
		s.logger.Warn("dropping undecodable network event", "type", wrapper.EventTypeName, "error", err)
		s.metrics.RecordReceived(wrapper.EventTypeName)
		return nil
	}

	s.metrics.RecordReceived(wrapper.EventTypeName)

	ctx := context.WithValue(context.Background(), priorityContextKey{}, wrapper.Priority)
	for _, l := range s.listenersFor(event) {
		func(entry listenerEntry) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("event listener panicked", "error", r)
				}
			}()
			if err := entry.fn(ctx, event); err != nil {
				s.logger.Warn("event listener failed", "error", err)
			}
		}(l)
	}
	return nil
}

type priorityContextKey struct{}

// PriorityFromContext extracts the NetworkEventMessage priority a
// listener was invoked with via the network path; local-phase
// invocations carry no priority in their context.
func PriorityFromContext(ctx context.Context) (model.Priority, bool) {
	p, ok := ctx.Value(priorityContextKey{}).(model.Priority)
	return p, ok
}

func (s *CrossServerEventServiceImpl) listenersFor(event model.NetworkEvent) []listenerEntry {
	t := reflect.TypeOf(event)

	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()

	out := make([]listenerEntry, len(s.listeners[t]))
	copy(out, s.listeners[t])
	return out
}

func (s *CrossServerEventServiceImpl) RegisterEventListener(sampleType model.NetworkEvent, listener inbound.EventListener) {
	t := reflect.TypeOf(sampleType)
	id := reflect.ValueOf(listener).Pointer()

	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners[t] = append(s.listeners[t], listenerEntry{id: id, fn: listener})
}

func (s *CrossServerEventServiceImpl) UnregisterEventListener(sampleType model.NetworkEvent, listener inbound.EventListener) {
	t := reflect.TypeOf(sampleType)
	id := reflect.ValueOf(listener).Pointer()

	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	entries := s.listeners[t]
	for i, e := range entries {
		if e.id == id {
			s.listeners[t] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

func (s *CrossServerEventServiceImpl) RegisterEventType(typeName string, sampleType model.NetworkEvent, decoder inbound.EventDecoder) {
	var svcDecoder EventDecoder
	if decoder != nil {
		svcDecoder = func(payload string) (model.NetworkEvent, error) { return decoder(payload) }
	}
	s.registry.Register(typeName, sampleType, svcDecoder)
}

func (s *CrossServerEventServiceImpl) ListenerCount(sampleType model.NetworkEvent) int {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	return len(s.listeners[reflect.TypeOf(sampleType)])
}

func (s *CrossServerEventServiceImpl) TotalListenerCount() int {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	total := 0
	for _, entries := range s.listeners {
		total += len(entries)
	}
	return total
}

// SnapshotMetrics exposes the current metrics snapshot.
func (s *CrossServerEventServiceImpl) SnapshotMetrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// BreakerState exposes the circuit breaker's current state.
func (s *CrossServerEventServiceImpl) BreakerState() BreakerState {
	return s.breaker.State()
}

var _ inbound.EventService = (*CrossServerEventServiceImpl)(nil)
