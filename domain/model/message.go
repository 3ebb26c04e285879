package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Well-known type tags. The codec uses these as the "@class"
// discriminator on the wire; EventRegistry entries use the same
// naming convention for NetworkEvent variants.
const (
	TypeSimpleText          = "conexus.SimpleText"
	TypeRequest             = "conexus.Request"
	TypeResponse            = "conexus.Response"
	TypeNetworkEventMessage = "conexus.NetworkEventMessage"
	TypeDataUpdateMessage   = "conexus.DataUpdateMessage"
)

// Message is the base envelope every variant implements. MessageID
// and Timestamp are set once at construction and never mutated;
// SourceNodeID equals the publisher's NodeID at the moment the
// envelope was put on the wire.
type Message interface {
	MessageID() string
	OccurredAt() time.Time
	SourceNodeID() string
	TypeTag() string
}

// Envelope carries the fields common to every Message variant. It is
// embedded, not wrapped, so a variant's JSON flattens to a single
// object per the wire format in spec §6.
type Envelope struct {
	ID        string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"sourceServerId"`
}

func (e Envelope) MessageID() string     { return e.ID }
func (e Envelope) OccurredAt() time.Time { return e.Timestamp }
func (e Envelope) SourceNodeID() string  { return e.Source }

// NewEnvelope builds an Envelope from the given id, source node id and
// timestamp; it generates neither the id nor the time itself.
func NewEnvelope(id, sourceNodeID string, ts time.Time) Envelope {
	return Envelope{ID: id, Timestamp: ts, Source: sourceNodeID}
}

// SimpleText is a plain text message with a caller-defined category.
type SimpleText struct {
	Envelope
	Content  string `json:"content"`
	Category string `json:"category"`
}

func (SimpleText) TypeTag() string { return TypeSimpleText }

// Request is one half of a request/response exchange. MessageID is
// used as the correlation id the matching Response must echo back.
type Request struct {
	Envelope
	RequestType string          `json:"requestType"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func (Request) TypeTag() string { return TypeRequest }

// Response answers a Request. CorrelationID equals the Request's
// MessageID.
type Response struct {
	Envelope
	CorrelationID string          `json:"correlationId"`
	ResponseType  string          `json:"responseType"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

func (Response) TypeTag() string { return TypeResponse }

// Priority ranks a NetworkEventMessage. Higher values are more urgent;
// the ordering is LOW < NORMAL < HIGH < CRITICAL.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "NORMAL"
	}
}

func ParsePriority(s string) (Priority, error) {
	switch s {
	case "LOW":
		return PriorityLow, nil
	case "NORMAL":
		return PriorityNormal, nil
	case "HIGH":
		return PriorityHigh, nil
	case "CRITICAL":
		return PriorityCritical, nil
	default:
		return PriorityNormal, fmt.Errorf("%w: unknown priority %q", ErrDeserialization, s)
	}
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// NetworkEventMessage wraps a serialized NetworkEvent for cross-node
// broadcast. OriginalNodeID is preserved on every hop; SourceNodeID
// may differ from it if the envelope is ever republished.
type NetworkEventMessage struct {
	Envelope
	EventTypeName  string   `json:"eventTypeString"`
	EventPayload   string   `json:"eventDataJson"`
	Priority       Priority `json:"priority"`
	OriginalNodeID string   `json:"originalServerId"`
}

func (NetworkEventMessage) TypeTag() string { return TypeNetworkEventMessage }

// DataUpdateMessage is the wire shape for player-data synchronization
// traffic. The fabric can encode, decode, and dispatch it like any
// other registered variant; storage/TTL/conflict-resolution semantics
// belong to the external player-data service, not this library.
type DataUpdateMessage struct {
	Envelope
	PlayerID       string `json:"playerId"`
	DataType       string `json:"dataType"`
	SerializedData []byte `json:"serializedData"`
	Version        int64  `json:"version"`
}

func (DataUpdateMessage) TypeTag() string { return TypeDataUpdateMessage }

// MessageHandler processes one decoded Message delivered by the
// messaging service. A returned error is logged by the caller; it
// never propagates to the transport.
type MessageHandler func(Message) error
