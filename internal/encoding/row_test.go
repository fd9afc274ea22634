package encoding

import (
	"testing"

	"github.com/reifydb/reifydb/internal/value"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	schema := Schema{value.Int64, value.Utf8, value.Bool, value.Float64}
	values := []value.Value{
		value.Int64Value(42),
		value.Utf8Value("hello"),
		value.BoolValue(true),
		value.Float64Value(3.25),
	}

	row, err := Encode(schema, values)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := row.Decode()
	if len(got) != len(values) {
		t.Fatalf("expected %d fields, got %d", len(values), len(got))
	}
	for i := range values {
		if value.Compare(got[i], values[i]) != 0 {
			t.Fatalf("field %d: expected %v, got %v", i, values[i], got[i])
		}
	}
}

func TestEncodeDecodeWithNulls(t *testing.T) {
	schema := Schema{value.Int32, value.Utf8}
	values := []value.Value{value.UndefinedValue(), value.Utf8Value("present")}

	row, err := Encode(schema, values)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v0, null0 := row.Get(0)
	if !null0 || !v0.IsUndefined() {
		t.Fatalf("expected field 0 to be null/undefined")
	}
	v1, null1 := row.Get(1)
	if null1 {
		t.Fatalf("expected field 1 to be non-null")
	}
	if v1.Str() != "present" {
		t.Fatalf("expected 'present', got %q", v1.Str())
	}
}
