package codec

import (
	"encoding/json"
	"reflect"
	"testing"
)

type widget struct {
	Name  string  `json:"name"`
	Size  int     `json:"size"`
	Extra Options `json:"extra,omitempty"`
}

func (w widget) PayloadKind() string { return "test.widget" }

func (w widget) WithOptions(opts Options) Payload {
	w.Extra = opts
	return w
}

type gadget struct {
	ID string `json:"id"`
}

func (g gadget) PayloadKind() string { return "test.gadget" }

func init() {
	Register[widget]("test.widget")
	Register[gadget]("test.gadget")
}

func TestEncodeDecode_Payload(t *testing.T) {
	in := widget{Name: "spinner", Size: 3}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// The envelope must carry the discriminator.
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if _, ok := env["_type"]; !ok {
		t.Fatal("envelope missing _type")
	}
	if _, ok := env["data"]; !ok {
		t.Fatal("envelope missing data")
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, ok := out.(widget)
	if !ok {
		t.Fatalf("decoded %T, want widget", out)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip = %+v, want %+v", got, in)
	}
}

func TestEncodeDecode_NestedPayloads(t *testing.T) {
	in := map[string]any{
		"primary": widget{Name: "a", Size: 1},
		"all":     []any{gadget{ID: "g1"}, gadget{ID: "g2"}},
		"count":   float64(2),
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map", out)
	}
	if w, ok := m["primary"].(widget); !ok || w.Name != "a" {
		t.Errorf("primary = %#v, want widget a", m["primary"])
	}
	arr, ok := m["all"].([]any)
	if !ok || len(arr) != 2 {
		t.Fatalf("all = %#v, want 2 gadgets", m["all"])
	}
	if g, ok := arr[1].(gadget); !ok || g.ID != "g2" {
		t.Errorf("all[1] = %#v, want gadget g2", arr[1])
	}
	if m["count"] != float64(2) {
		t.Errorf("count = %#v, want 2", m["count"])
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	data := json.RawMessage(`{"_type":"test.unknown","data":{}}`)
	if _, err := Decode(data); err == nil {
		t.Fatal("expected error for unregistered payload kind")
	}
}

func TestDecode_PlainObjectWithTypeKey(t *testing.T) {
	// An object with a _type member but no data member is not an envelope.
	data := json.RawMessage(`{"_type":"just a field","other":1}`)
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map", out)
	}
	if m["_type"] != "just a field" {
		t.Errorf("_type = %#v", m["_type"])
	}
}

func TestDecodePayload_RejectsPlainValue(t *testing.T) {
	data, err := Encode(map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := DecodePayload(data); err == nil {
		t.Fatal("expected error decoding a non-envelope as payload")
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register[widget]("test.widget")
}

func TestOptions_RoundTrip(t *testing.T) {
	opts := Options{
		"recovery":       true,
		"correlation_id": "abc",
		"retry_count":    3,
		"inner":          widget{Name: "n", Size: 9},
	}

	data, err := json.Marshal(opts)
	if err != nil {
		t.Fatalf("marshal options: %v", err)
	}
	var out Options
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal options: %v", err)
	}

	if !out.Bool("recovery") {
		t.Error("recovery flag lost")
	}
	if out.String("correlation_id") != "abc" {
		t.Errorf("correlation_id = %q", out.String("correlation_id"))
	}
	if out.Int("retry_count") != 3 {
		t.Errorf("retry_count = %d", out.Int("retry_count"))
	}
	if w, ok := out["inner"].(widget); !ok || w.Size != 9 {
		t.Errorf("inner = %#v, want widget", out["inner"])
	}
}

func TestOptions_Copy(t *testing.T) {
	opts := Options{"a": 1}
	cp := opts.Copy()
	cp["a"] = 2
	if opts.Int("a") != 1 {
		t.Error("Copy should not alias the original")
	}
}
