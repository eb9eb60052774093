package codec

import "encoding/json"

// Options is an open mapping of auxiliary request parameters carried
// opaquely through retries and recovery. Its JSON form runs values through
// the envelope codec so typed payloads nested in options round-trip.
type Options map[string]any

func (o Options) MarshalJSON() ([]byte, error) {
	return encodeMap(map[string]any(o))
}

func (o *Options) UnmarshalJSON(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	out := make(Options, len(members))
	for k, member := range members {
		v, err := Decode(member)
		if err != nil {
			return err
		}
		out[k] = v
	}
	*o = out
	return nil
}

// Copy returns a shallow copy, nil-safe.
func (o Options) Copy() Options {
	out := make(Options, len(o)+2)
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Bool reads a boolean option, false when absent or mistyped.
func (o Options) Bool(key string) bool {
	b, _ := o[key].(bool)
	return b
}

// String reads a string option, empty when absent or mistyped.
func (o Options) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Int reads an integer option, tolerating the float64 that JSON decoding
// produces. Zero when absent or mistyped.
func (o Options) Int(key string) int {
	switch v := o[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
