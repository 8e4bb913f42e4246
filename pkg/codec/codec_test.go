package codec

import (
	"testing"

	"google.golang.org/protobuf/types/known/structpb"

	"reqflow/pkg/api"
)

func TestJSONCodec(t *testing.T) {
	c := JSON()
	in := map[string]any{"a": 1, "b": "x"}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["a"].(float64) != 1 || out["b"].(string) != "x" {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestCBORCodec(t *testing.T) {
	c := CBOR()
	in := map[string]any{"n": 42}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n, ok := out["n"].(uint64); !ok || n != 42 {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestProtoCodec(t *testing.T) {
	c := Proto()
	s, err := structpb.NewStruct(map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	b, err := c.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out structpb.Struct
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Fields["k"].GetStringValue() != "v" {
		t.Fatalf("roundtrip mismatch")
	}
	if _, err := c.Marshal(42); err == nil {
		t.Fatalf("expected error for non-proto value")
	}
}

func TestRegistryFormats(t *testing.T) {
	r := NewRegistry()
	for _, f := range []api.Format{api.FormatJSON, api.FormatCBOR, api.FormatProto} {
		if _, err := r.ForFormat(f); err != nil {
			t.Fatalf("ForFormat(%s): %v", f, err)
		}
	}
	if _, err := r.ForFormat("application/x-unknown"); err == nil {
		t.Fatalf("expected error for unknown format")
	}

	rs := api.ResultSet{Columns: []string{"id"}, Rows: [][]any{{int64(7)}}}
	b, err := r.Encode(api.FormatJSON, rs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got api.ResultSet
	if err := r.Decode(api.FormatJSON, b, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Rows) != 1 || got.Columns[0] != "id" {
		t.Fatalf("roundtrip mismatch: %#v", got)
	}
}
