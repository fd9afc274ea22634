// Package value implements ReifyDB's L0 value and type model: the scalar
// domain every column, row, and VM operand is ultimately built from.
//
// What: Type enumerates the scalar domain (spec.md §3.1); Value is the
// tagged-union runtime representation with a total ordering.
// How: Mirrors the teacher's ColType enum in internal/storage/db.go (iota
// block + a name lookup table + a String method) but the domain is
// database-scalar rather than Go-reflective: fixed-width integers 8-128
// bit, decimal, temporal, and uuid replace Go's int/map/slice/pointer
// catalog.
// Why: A totally ordered, closed scalar domain is required for index and
// sort keys (spec.md §3.1); an open `any`-based value (as the teacher uses
// for row cells) cannot give that guarantee.
package value

import "fmt"

// Type tags every Value. The zero value is Undefined.
type Type uint8

const (
	Undefined Type = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Int128
	Uint8
	Uint16
	Uint32
	Uint64
	Uint128
	Float32
	Float64
	BigInt
	Decimal
	Utf8
	Blob
	Date
	DateTime
	Time
	Interval
	Uuid4
	Uuid7
	RowNumber
)

var typeNames = map[Type]string{
	Undefined: "UNDEFINED",
	Bool:      "BOOL",
	Int8:      "INT1",
	Int16:     "INT2",
	Int32:     "INT4",
	Int64:     "INT8",
	Int128:    "INT16",
	Uint8:     "UINT1",
	Uint16:    "UINT2",
	Uint32:    "UINT4",
	Uint64:    "UINT8",
	Uint128:   "UINT16",
	Float32:   "FLOAT4",
	Float64:   "FLOAT8",
	BigInt:    "BIGINT",
	Decimal:   "DECIMAL",
	Utf8:      "UTF8",
	Blob:      "BLOB",
	Date:      "DATE",
	DateTime:  "DATETIME",
	Time:      "TIME",
	Interval:  "INTERVAL",
	Uuid4:     "UUID4",
	Uuid7:     "UUID7",
	RowNumber: "ROW_NUMBER",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// IsNumeric reports whether t participates in arithmetic.
func (t Type) IsNumeric() bool {
	switch t {
	case Int8, Int16, Int32, Int64, Int128,
		Uint8, Uint16, Uint32, Uint64, Uint128,
		Float32, Float64, BigInt, Decimal:
		return true
	default:
		return false
	}
}

// IsFixedWidth reports whether t is packed inline in EncodedValues rather
// than through the variable-width offsets table.
func (t Type) IsFixedWidth() bool {
	switch t {
	case Utf8, Blob:
		return false
	case BigInt, Decimal:
		return false // arbitrary precision: variable-width
	default:
		return true
	}
}

// Width returns the fixed encoded width in bytes for fixed-width types.
// Panics (a programmer error, not a data error) for variable-width types.
func (t Type) Width() int {
	switch t {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64, Date, RowNumber:
		return 8
	case Int128, Uint128, Uuid4, Uuid7:
		return 16
	case DateTime:
		return 12 // seconds (i64) + nanos (u32)
	case Time:
		return 8 // nanos-of-day (i64)
	case Interval:
		return 16 // months (i32) + days (i32) + nanos (i64)
	default:
		panic(fmt.Sprintf("value: %s has no fixed width", t))
	}
}
