package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/nodefleet/conexus/domain/model"
)

// EventDecoder is a fallback decoder for a registered NetworkEvent
// variant, used when the payload is not a self-describing JSON object
// or when JSON decoding into the registered type fails.
type EventDecoder func(payload string) (model.NetworkEvent, error)

type registryEntry struct {
	variant reflect.Type
	decoder EventDecoder
}

// EventRegistry maps eventTypeName to a concrete NetworkEvent variant
// (plus an optional custom decoder), so the fabric can reconstruct a
// polymorphic event from a wire payload without a process-wide type
// switch. It is never a package-level global: NewCrossServerEventService
// builds its own instance internally (it is not a constructor
// parameter), tests build theirs directly, and the messaging service
// holds no registry at all.
type EventRegistry struct {
	mu          sync.RWMutex
	entries     map[string]registryEntry
	typeNameFor map[reflect.Type]string
}

// NewEventRegistry returns a registry pre-populated with the built-in
// variants (StatusEvent, PlayerActionEvent). Callers register any
// additional host-defined variants with Register.
func NewEventRegistry() *EventRegistry {
	r := &EventRegistry{
		entries:     make(map[string]registryEntry),
		typeNameFor: make(map[reflect.Type]string),
	}
	r.Register(model.EventTypeStatusEvent, model.StatusEvent{}, nil)
	r.Register(model.EventTypePlayerActionEvent, model.PlayerActionEvent{}, nil)
	return r
}

// Register associates typeName with the concrete type of sample (used
// only to capture its reflect.Type; its value is discarded) and an
// optional fallback decoder. Registering an already-registered name
// replaces the entry.
func (r *EventRegistry) Register(typeName string, sample model.NetworkEvent, decoder EventDecoder) {
	variant := reflect.TypeOf(sample)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[typeName] = registryEntry{
		variant: variant,
		decoder: decoder,
	}
	r.typeNameFor[variant] = typeName
}

// TypeNameFor returns the registered eventTypeName for event's
// concrete type, for constructing the outbound NetworkEventMessage.
func (r *EventRegistry) TypeNameFor(event model.NetworkEvent) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.typeNameFor[reflect.TypeOf(event)]
	return name, ok
}

// IsRegistered reports whether typeName has an entry.
func (r *EventRegistry) IsRegistered(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[typeName]
	return ok
}

// EventClass returns the reflect.Type registered under typeName.
func (r *EventRegistry) EventClass(typeName string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[typeName]
	if !ok {
		return nil, false
	}
	return e.variant, true
}

// RegisteredTypeNames lists every name currently registered.
func (r *EventRegistry) RegisteredTypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// EncodeEvent serializes event to its wire payload. The primary path
// is JSON; if that fails (a custom variant with an unmarshalable
// field), the event's textual rendering via fmt is used as a
// fallback, best-effort form.
func (r *EventRegistry) EncodeEvent(event model.NetworkEvent) (string, error) {
	payload, err := json.Marshal(event)
	if err == nil {
		return string(payload), nil
	}
	return fmt.Sprintf("%+v", event), nil
}

// DecodeEvent reconstructs the NetworkEvent registered under typeName
// from payload. JSON-looking payloads (starting with '{' and ending
// with '}') decode through the registered variant's type first; on
// failure, or when the payload isn't JSON-shaped, the registered
// custom decoder is used if present. Fails with ErrUnknownEventType
// when typeName has no entry and no decoder can be applied.
func (r *EventRegistry) DecodeEvent(typeName, payload string) (model.NetworkEvent, error) {
	r.mu.RLock()
	entry, ok := r.entries[typeName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownEventType, typeName)
	}

	trimmed := bytes.TrimSpace([]byte(payload))
	looksJSON := len(trimmed) > 0 && trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}'

	if looksJSON {
		ptr := reflect.New(entry.variant)
		if err := json.Unmarshal(trimmed, ptr.Interface()); err == nil {
			return ptr.Elem().Interface().(model.NetworkEvent), nil
		}
	}

	if entry.decoder != nil {
		return entry.decoder(payload)
	}

	return nil, fmt.Errorf("%w: payload for %q is not JSON and no custom decoder is registered", model.ErrDeserialization, typeName)
}
