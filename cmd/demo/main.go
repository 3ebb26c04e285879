// Command demo wires two fleet nodes onto a shared in-memory
// transport and exchanges a status event and a request/response pair
// between them, exercising the library end to end without a real
// broker. It is a runnable illustration, not a host-process
// integration surface — config loading, CLI flags, and daemonizing
// belong to whatever game server embeds this library.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nodefleet/conexus/adapter/outbound/logging"
	"github.com/nodefleet/conexus/adapter/outbound/nodeid"
	"github.com/nodefleet/conexus/adapter/outbound/transport/memory"
	"github.com/nodefleet/conexus/config"
	"github.com/nodefleet/conexus/domain/model"
	"github.com/nodefleet/conexus/domain/port/inbound"
	"github.com/nodefleet/conexus/domain/service"
)

type node struct {
	id        string
	messaging *service.MessagingServiceImpl
	events    *service.CrossServerEventServiceImpl
}

func newNode(ctx context.Context, broker *memory.Broker, cfg *config.Config) (*node, error) {
	logger := logging.NewSlogAdapter(cfg)
	transport := memory.NewTransport(broker, logger)
	if err := transport.Connect(ctx); err != nil {
		return nil, err
	}

	messaging := service.NewMessagingService(cfg.General.NodeID, transport, logger)
	if err := messaging.Initialize(ctx); err != nil {
		return nil, err
	}

	events := service.NewCrossServerEventService(cfg.General.NodeID, cfg.Fabric, messaging, logger)
	if err := events.Initialize(ctx); err != nil {
		return nil, err
	}

	return &node{id: cfg.General.NodeID, messaging: messaging, events: events}, nil
}

func main() {
	ctx := context.Background()
	broker := memory.NewBroker()

	hostID := nodeid.Default()
	cfgA := config.DefaultConfig()
	cfgA.General.NodeID = "a-" + hostID[:12]
	cfgB := config.DefaultConfig()
	cfgB.General.NodeID = "b-" + hostID[:12]

	a, err := newNode(ctx, broker, cfgA)
	if err != nil {
		panic(err)
	}
	b, err := newNode(ctx, broker, cfgB)
	if err != nil {
		panic(err)
	}

	b.events.RegisterEventListener(model.StatusEvent{}, func(ctx context.Context, event model.NetworkEvent) error {
		status := event.(model.StatusEvent)
		fmt.Printf("node %s observed status from %s: %s (%s)\n", b.id, status.OriginatorNodeID(), status.Status, status.Message)
		return nil
	})

	b.messaging.RegisterHandler(model.Request{}, func(msg model.Message) error {
		req := msg.(model.Request)
		resp := model.Response{
			Envelope:      model.NewEnvelope(uuid.NewString(), b.id, time.Now()),
			CorrelationID: req.MessageID(),
			ResponseType:  "pong",
		}
		return b.messaging.SendToNode(ctx, req.SourceNodeID(), resp)
	})

	event := model.NewStatusEvent(a.id, model.StatusOnline, "up", time.Now())
	if err := a.events.BroadcastEvent(ctx, event); err != nil {
		fmt.Println("broadcast error:", err)
	}

	req := model.Request{
		Envelope:    model.NewEnvelope(uuid.NewString(), a.id, time.Now()),
		RequestType: "ping",
	}

	resp, err := a.messaging.SendRequest(ctx, b.id, req, 500*time.Millisecond)
	if err != nil {
		fmt.Println("request error:", err)
	} else {
		fmt.Printf("node %s got response type %s correlated to %s\n", a.id, resp.ResponseType, resp.CorrelationID)
	}

	inboundShutdown(ctx, a.events, a.messaging)
	inboundShutdown(ctx, b.events, b.messaging)
}

func inboundShutdown(ctx context.Context, events inbound.EventService, messaging inbound.MessagingService) {
	_ = events.Shutdown(ctx)
	_ = messaging.Shutdown(ctx)
}
