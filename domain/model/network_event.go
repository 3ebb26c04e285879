package model

import "time"

// NetworkEvent is a polymorphic value broadcast to every other node.
// It is carried inside a NetworkEventMessage, not a Message itself:
// the envelope knows nothing about the event's shape, only its type
// name and serialized payload.
type NetworkEvent interface {
	// OriginatorNodeID is the node that first created this event, as
	// opposed to whichever node is currently publishing the wrapper.
	OriginatorNodeID() string

	// OccurredAt is when the event was created.
	OccurredAt() time.Time

	// EventMetadata is a free-form string-keyed bag the originator can
	// attach for downstream listeners.
	EventMetadata() map[string]string
}

// baseEvent factors the three NetworkEvent accessors so built-in and
// host-defined variants don't repeat them.
type baseEvent struct {
	Source    string            `json:"sourceServerId"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (b baseEvent) OriginatorNodeID() string        { return b.Source }
func (b baseEvent) OccurredAt() time.Time           { return b.Timestamp }
func (b baseEvent) EventMetadata() map[string]string { return b.Metadata }

// NewBaseEvent builds the shared fields for a NetworkEvent variant.
func NewBaseEvent(sourceNodeID string, occurredAt time.Time, metadata map[string]string) baseEvent {
	return baseEvent{Source: sourceNodeID, Timestamp: occurredAt, Metadata: metadata}
}

// ServerStatus is the status carried by a StatusEvent.
type ServerStatus string

const (
	StatusOnline      ServerStatus = "ONLINE"
	StatusOffline     ServerStatus = "OFFLINE"
	StatusMaintenance ServerStatus = "MAINTENANCE"
)

// StatusEvent announces a node's health or lifecycle state to the
// rest of the fleet. Registered under EventTypeStatusEvent.
type StatusEvent struct {
	baseEvent
	Status  ServerStatus `json:"status"`
	Message string       `json:"message"`
}

// EventTypeStatusEvent is the registry name for StatusEvent.
const EventTypeStatusEvent = "conexus.events.StatusEvent"

// NewStatusEvent constructs a StatusEvent originated by sourceNodeID.
func NewStatusEvent(sourceNodeID string, status ServerStatus, message string, occurredAt time.Time) StatusEvent {
	return StatusEvent{
		baseEvent: NewBaseEvent(sourceNodeID, occurredAt, nil),
		Status:    status,
		Message:   message,
	}
}

// PlayerActionEvent is a generic per-player domain event a game
// server broadcasts to the fleet (join, leave, levelled up, traded,
// ...). Action and Details are caller-defined strings; hosts needing
// richer payloads register their own NetworkEvent variant instead.
type PlayerActionEvent struct {
	baseEvent
	PlayerID string `json:"playerId"`
	Action   string `json:"action"`
	Details  string `json:"details,omitempty"`
}

// EventTypePlayerActionEvent is the registry name for PlayerActionEvent.
const EventTypePlayerActionEvent = "conexus.events.PlayerActionEvent"

// NewPlayerActionEvent constructs a PlayerActionEvent originated by sourceNodeID.
func NewPlayerActionEvent(sourceNodeID, playerID, action, details string, occurredAt time.Time) PlayerActionEvent {
	return PlayerActionEvent{
		baseEvent: NewBaseEvent(sourceNodeID, occurredAt, nil),
		PlayerID:  playerID,
		Action:    action,
		Details:   details,
	}
}
