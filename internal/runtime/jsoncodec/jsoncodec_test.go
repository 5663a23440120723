package jsoncodec

import (
	"bytes"
	"strings"
	"testing"
)

type reading struct {
	Channel string  `json:"channel"`
	Value   float64 `json:"value"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := reading{Channel: "requests", Value: 3.5}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var out reading
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out != in {
		t.Fatalf("expected decoded value to match, got %#v", out)
	}

	indented, err := MarshalIndent(in, "", "  ")
	if err != nil {
		t.Fatalf("marshal indent failed: %v", err)
	}
	if !strings.Contains(string(indented), "\n  \"channel\"") {
		t.Fatalf("expected indented output, got %s", string(indented))
	}
}

func TestMarshalString(t *testing.T) {
	got, err := MarshalString(map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if got != `{"n":1}` {
		t.Fatalf("unexpected output %s", got)
	}
}

func TestValid(t *testing.T) {
	if !Valid([]byte(`{"a":[1,2]}`)) {
		t.Fatal("expected valid document")
	}
	if Valid([]byte(`{"a":`)) {
		t.Fatal("expected truncated document to be invalid")
	}
}

func TestEncodeAndDecode(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Encode(buf, reading{Channel: "latency", Value: 12}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var out reading
	if err := Decode(buf, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.Channel != "latency" || out.Value != 12 {
		t.Fatalf("unexpected decoded value %#v", out)
	}
}
