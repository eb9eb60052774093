// Package codec serializes heterogeneous event payloads for durable
// storage. Typed payloads are wrapped in a tagged envelope
// {"_type": <kind>, "_class"?: <name>, "data": <encoded>} so that decoding
// can dispatch back to the concrete type without external hints. The
// mapping from discriminator to decoder is an explicit registry populated
// at package init time.
package codec

import (
	"encoding/json"
	"fmt"
)

// Payload is a value that can round-trip through the tagged envelope.
type Payload interface {
	// PayloadKind returns the envelope discriminator.
	PayloadKind() string
}

// Recoverable is a payload that can be re-instantiated with merged options
// when an interrupted operation is replayed.
type Recoverable interface {
	Payload
	WithOptions(opts Options) Payload
}

// DecodeFunc turns encoded payload data back into its concrete type.
type DecodeFunc func(data json.RawMessage) (Payload, error)

var registry = map[string]DecodeFunc{}

// Register binds a payload type to its envelope discriminator. Call from
// init; registering the same kind twice is a programming error.
func Register[T Payload](kind string) {
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("codec: payload kind %q registered twice", kind))
	}
	registry[kind] = func(data json.RawMessage) (Payload, error) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode payload %q: %w", kind, err)
		}
		return v, nil
	}
}

type envelope struct {
	Type  string          `json:"_type"`
	Class string          `json:"_class,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Encode serializes a value, wrapping typed payloads in tagged envelopes
// and recursively walking maps and slices so nested payloads survive.
func Encode(v any) (json.RawMessage, error) {
	switch t := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case Payload:
		inner, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("encode payload %q: %w", t.PayloadKind(), err)
		}
		return json.Marshal(envelope{
			Type:  t.PayloadKind(),
			Class: fmt.Sprintf("%T", t),
			Data:  inner,
		})
	case Options:
		return encodeMap(map[string]any(t))
	case map[string]any:
		return encodeMap(t)
	case []any:
		parts := make([]json.RawMessage, len(t))
		for i, item := range t {
			enc, err := Encode(item)
			if err != nil {
				return nil, err
			}
			parts[i] = enc
		}
		return json.Marshal(parts)
	default:
		return json.Marshal(v)
	}
}

func encodeMap(m map[string]any) (json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		enc, err := Encode(v)
		if err != nil {
			return nil, err
		}
		out[k] = enc
	}
	return json.Marshal(out)
}

// Decode reverses Encode. Envelopes resolve through the registry; plain
// objects and arrays are walked recursively; scalars decode as usual.
func Decode(data json.RawMessage) (any, error) {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return decodeValue(data, probe)
}

// DecodePayload decodes data that must be a typed payload envelope.
func DecodePayload(data json.RawMessage) (Payload, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	p, ok := v.(Payload)
	if !ok {
		return nil, fmt.Errorf("decoded value %T is not a registered payload", v)
	}
	return p, nil
}

func decodeValue(raw json.RawMessage, probe any) (any, error) {
	obj, isObject := probe.(map[string]any)
	if !isObject {
		if arr, isArray := probe.([]any); isArray {
			return decodeArray(raw, len(arr))
		}
		return probe, nil
	}

	if kind, ok := obj["_type"].(string); ok {
		if _, hasData := obj["data"]; hasData {
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return nil, fmt.Errorf("decode envelope: %w", err)
			}
			decode, ok := registry[kind]
			if !ok {
				return nil, fmt.Errorf("no decoder registered for payload kind %q", kind)
			}
			return decode(env.Data)
		}
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	out := make(map[string]any, len(members))
	for k, member := range members {
		v, err := Decode(member)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func decodeArray(raw json.RawMessage, n int) (any, error) {
	var members []json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("decode array: %w", err)
	}
	out := make([]any, 0, n)
	for _, member := range members {
		v, err := Decode(member)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
