package model

import (
	"encoding/json"
	"fmt"
)

// classField is the wire format's type discriminator key (spec §6:
// "@class or equivalent type discriminator").
const classField = "@class"

// Encode turns a Message into its self-describing JSON wire form.
// Unknown/unrepresentable values fail with ErrSerialization.
func Encode(msg Message) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	classJSON, err := json.Marshal(msg.TypeTag())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	fields[classField] = classJSON

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return out, nil
}

// Decode reads the "@class" discriminator and returns the most
// specific Message variant known to the runtime. Unknown fields are
// tolerated; an unknown discriminator or malformed payload fails with
// ErrDeserialization.
func Decode(data []byte) (Message, error) {
	var probe struct {
		Class string `json:"@class"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}

	switch probe.Class {
	case TypeSimpleText:
		var m SimpleText
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
		}
		return m, nil
	case TypeRequest:
		var m Request
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
		}
		return m, nil
	case TypeResponse:
		var m Response
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
		}
		return m, nil
	case TypeNetworkEventMessage:
		var m NetworkEventMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
		}
		return m, nil
	case TypeDataUpdateMessage:
		var m DataUpdateMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrDeserialization, probe.Class)
	}
}
