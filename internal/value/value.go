package value

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Value is the tagged-union runtime representation of a single scalar.
// Only the field matching Ty is meaningful; the rest are zero. This mirrors
// the teacher's Row cells (which use `any`) but closes the domain and adds
// a total order, which a bare `any` cannot provide.
type Value struct {
	Ty       Type
	b        bool
	i        int64  // Int8..Int64, Date(days), Time(nanos-of-day), DateTime seconds, Interval months<<32|days
	i2       int64  // DateTime nanos component / Interval nanos
	u        uint64 // Uint8..Uint64, RowNumber
	hi, lo   uint64 // Int128/Uint128/Uuid4/Uuid7 128-bit payload
	f        float64
	bigInt   *big.Int
	decimal  *big.Rat
	decPrec  uint8
	decScale uint8
	str      string
	blob     []byte
}

// UndefinedValue returns the null/undefined value.
func UndefinedValue() Value { return Value{Ty: Undefined} }

func BoolValue(b bool) Value { return Value{Ty: Bool, b: b} }

func Int8Value(v int8) Value   { return Value{Ty: Int8, i: int64(v)} }
func Int16Value(v int16) Value { return Value{Ty: Int16, i: int64(v)} }
func Int32Value(v int32) Value { return Value{Ty: Int32, i: int64(v)} }
func Int64Value(v int64) Value { return Value{Ty: Int64, i: v} }

func Int128Value(hi uint64, lo uint64) Value { return Value{Ty: Int128, hi: hi, lo: lo} }

func Uint8Value(v uint8) Value   { return Value{Ty: Uint8, u: uint64(v)} }
func Uint16Value(v uint16) Value { return Value{Ty: Uint16, u: uint64(v)} }
func Uint32Value(v uint32) Value { return Value{Ty: Uint32, u: uint64(v)} }
func Uint64Value(v uint64) Value { return Value{Ty: Uint64, u: v} }

func Uint128Value(hi, lo uint64) Value { return Value{Ty: Uint128, hi: hi, lo: lo} }

func Float32Value(v float32) Value { return Value{Ty: Float32, f: float64(v)} }
func Float64Value(v float64) Value { return Value{Ty: Float64, f: v} }

func BigIntValue(v *big.Int) Value { return Value{Ty: BigInt, bigInt: v} }

func DecimalValue(v *big.Rat, precision, scale uint8) Value {
	return Value{Ty: Decimal, decimal: v, decPrec: precision, decScale: scale}
}

func Utf8Value(s string) Value { return Value{Ty: Utf8, str: s} }
func BlobValue(b []byte) Value { return Value{Ty: Blob, blob: b} }

func DateValue(daysSinceEpoch int64) Value { return Value{Ty: Date, i: daysSinceEpoch} }
func TimeValue(nanosOfDay int64) Value     { return Value{Ty: Time, i: nanosOfDay} }
func DateTimeValue(secondsSinceEpoch int64, nanos int32) Value {
	return Value{Ty: DateTime, i: secondsSinceEpoch, i2: int64(nanos)}
}
func IntervalValue(months, days int32, nanos int64) Value {
	return Value{Ty: Interval, i: int64(months)<<32 | int64(uint32(days)), i2: nanos}
}
func RowNumberValue(id uint64) Value { return Value{Ty: RowNumber, u: id} }

// NewUuid4 generates a random v4 UUID value, grounded on the teacher's
// google/uuid dependency (tinySQL's go.mod, used there for row/session ids).
func NewUuid4() Value {
	id := uuid.New()
	return uuidValue(Uuid4, id)
}

// NewUuid7 generates a time-ordered v7 UUID value.
func NewUuid7() Value {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return uuidValue(Uuid7, id)
}

// FromUUIDParts reconstructs a Uuid4/Uuid7 Value from its 128-bit payload,
// used by the row codec when decoding a persisted field.
func FromUUIDParts(ty Type, hi, lo uint64) Value {
	return Value{Ty: ty, hi: hi, lo: lo}
}

func uuidValue(ty Type, id uuid.UUID) Value {
	hi := uint64(0)
	lo := uint64(0)
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(id[i])
	}
	for i := 8; i < 16; i++ {
		lo = lo<<8 | uint64(id[i])
	}
	return Value{Ty: ty, hi: hi, lo: lo}
}

func (v Value) UUID() uuid.UUID {
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v.hi >> uint(8*(7-i)))
	}
	for i := 0; i < 8; i++ {
		b[8+i] = byte(v.lo >> uint(8*(7-i)))
	}
	return b
}

func (v Value) IsUndefined() bool { return v.Ty == Undefined }
func (v Value) Bool() bool        { return v.b }
func (v Value) Int() int64        { return v.i }
func (v Value) Uint() uint64      { return v.u }
func (v Value) Float() float64    { return v.f }
func (v Value) Int128() (hi, lo uint64) { return v.hi, v.lo }
func (v Value) Uint128() (hi, lo uint64) { return v.hi, v.lo }
func (v Value) BigInt() *big.Int  { return v.bigInt }
func (v Value) Decimal() (*big.Rat, uint8, uint8) { return v.decimal, v.decPrec, v.decScale }
func (v Value) Str() string       { return v.str }
func (v Value) Blob() []byte      { return v.blob }
func (v Value) Days() int64       { return v.i }
func (v Value) NanosOfDay() int64 { return v.i }
func (v Value) DateTimeParts() (seconds int64, nanos int32) { return v.i, int32(v.i2) }
func (v Value) IntervalParts() (months, days int32, nanos int64) {
	return int32(v.i >> 32), int32(int64(int32(v.i))), v.i2
}
func (v Value) RowNumberID() uint64 { return v.u }

func (v Value) String() string {
	switch v.Ty {
	case Undefined:
		return "undefined"
	case Bool:
		return fmt.Sprintf("%v", v.b)
	case Int8, Int16, Int32, Int64:
		return fmt.Sprintf("%d", v.i)
	case Int128:
		return fmt.Sprintf("%d:%d", v.hi, v.lo)
	case Uint8, Uint16, Uint32, Uint64:
		return fmt.Sprintf("%d", v.u)
	case Uint128:
		return fmt.Sprintf("%d:%d", v.hi, v.lo)
	case Float32, Float64:
		return fmt.Sprintf("%g", v.f)
	case BigInt:
		if v.bigInt == nil {
			return "0"
		}
		return v.bigInt.String()
	case Decimal:
		if v.decimal == nil {
			return "0"
		}
		return v.decimal.FloatString(int(v.decScale))
	case Utf8:
		return v.str
	case Blob:
		return fmt.Sprintf("blob(%d)", len(v.blob))
	case Date:
		return time.Unix(v.i*86400, 0).UTC().Format("2006-01-02")
	case DateTime:
		return time.Unix(v.i, v.i2).UTC().Format(time.RFC3339Nano)
	case Time:
		return time.Duration(v.i).String()
	case Interval:
		months, days, nanos := v.IntervalParts()
		return fmt.Sprintf("%dmo%dd%dns", months, days, nanos)
	case Uuid4, Uuid7:
		return v.UUID().String()
	case RowNumber:
		return fmt.Sprintf("#%d", v.u)
	default:
		return "?"
	}
}

// ordRank fixes the cross-type ordering used when comparing mismatched
// scalar types (e.g. within a polymorphic index). Same-type comparisons
// never consult this.
var ordRank = map[Type]int{
	Undefined: 0, Bool: 1,
	Int8: 2, Int16: 2, Int32: 2, Int64: 2, Int128: 2,
	Uint8: 2, Uint16: 2, Uint32: 2, Uint64: 2, Uint128: 2,
	Float32: 2, Float64: 2, BigInt: 2, Decimal: 2,
	Utf8: 3, Blob: 4,
	Date: 5, DateTime: 6, Time: 7, Interval: 8,
	Uuid4: 9, Uuid7: 9, RowNumber: 10,
}

// Compare implements the totality required by spec.md §3.1: every pair of
// values of the same type is ordered, NaN orders greater than all finite
// floats and equal to itself (so sort/index keys remain deterministic).
// Undefined sorts before every defined value.
func Compare(a, b Value) int {
	if a.Ty == Undefined && b.Ty == Undefined {
		return 0
	}
	if a.Ty == Undefined {
		return -1
	}
	if b.Ty == Undefined {
		return 1
	}
	if a.Ty != b.Ty {
		ra, rb := ordRank[a.Ty], ordRank[b.Ty]
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		default:
			return compareNumericCrossType(a, b)
		}
	}
	switch a.Ty {
	case Bool:
		return boolCompare(a.b, b.b)
	case Int8, Int16, Int32, Int64:
		return int64Compare(a.i, b.i)
	case Int128:
		return int128Compare(a.hi, a.lo, b.hi, b.lo)
	case Uint8, Uint16, Uint32, Uint64:
		return uint64Compare(a.u, b.u)
	case Uint128:
		return uint128Compare(a.hi, a.lo, b.hi, b.lo)
	case Float32, Float64:
		return floatCompare(a.f, b.f)
	case BigInt:
		return bigIntCompare(a.bigInt, b.bigInt)
	case Decimal:
		return decimalCompare(a.decimal, b.decimal)
	case Utf8:
		if a.str < b.str {
			return -1
		} else if a.str > b.str {
			return 1
		}
		return 0
	case Blob:
		return bytes.Compare(a.blob, b.blob)
	case Date:
		return int64Compare(a.i, b.i)
	case RowNumber:
		return uint64Compare(a.u, b.u)
	case DateTime:
		if c := int64Compare(a.i, b.i); c != 0 {
			return c
		}
		return int64Compare(a.i2, b.i2)
	case Time:
		return int64Compare(a.i, b.i)
	case Interval:
		if c := int64Compare(a.i, b.i); c != 0 {
			return c
		}
		return int64Compare(a.i2, b.i2)
	case Uuid4, Uuid7:
		return uint128Compare(a.hi, a.lo, b.hi, b.lo)
	default:
		return 0
	}
}

func compareNumericCrossType(a, b Value) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return floatCompare(af, bf)
	}
	return 0
}

func toFloat(v Value) (float64, bool) {
	switch v.Ty {
	case Int8, Int16, Int32, Int64:
		return float64(v.i), true
	case Uint8, Uint16, Uint32, Uint64:
		return float64(v.u), true
	case Float32, Float64:
		return v.f, true
	case BigInt:
		if v.bigInt == nil {
			return 0, true
		}
		f := new(big.Float).SetInt(v.bigInt)
		r, _ := f.Float64()
		return r, true
	case Decimal:
		if v.decimal == nil {
			return 0, true
		}
		r, _ := v.decimal.Float64()
		return r, true
	default:
		return 0, false
	}
}

func boolCompare(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}

func int64Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func uint64Compare(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func int128Compare(ahi, alo, bhi, blo uint64) int {
	// signed 128-bit: flip the sign bit of the high word to make
	// unsigned comparison order-equivalent to signed comparison.
	sa, sb := ahi^(1<<63), bhi^(1<<63)
	if sa != sb {
		return uint64Compare(sa, sb)
	}
	return uint64Compare(alo, blo)
}

func uint128Compare(ahi, alo, bhi, blo uint64) int {
	if ahi != bhi {
		return uint64Compare(ahi, bhi)
	}
	return uint64Compare(alo, blo)
}

// floatCompare defines total ordering over floats including NaN: NaN is
// considered greater than every finite value and equal to itself, per
// spec.md §3.1's determinism requirement for sort/index keys.
func floatCompare(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func bigIntCompare(a, b *big.Int) int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	return a.Cmp(b)
}

func decimalCompare(a, b *big.Rat) int {
	if a == nil {
		a = new(big.Rat)
	}
	if b == nil {
		b = new(big.Rat)
	}
	return a.Cmp(b)
}

// Equal reports value equality using the same total order as Compare.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }
