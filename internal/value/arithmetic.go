package value

import (
	"math"
	"math/big"

	"github.com/reifydb/reifydb/internal/diagnostic"
)

// OverflowPolicy selects what happens when a fixed-width arithmetic op
// would overflow its result type. Saturating and wrapping are both
// legitimate choices for a columnar engine; Error is the default so a
// silent data-corrupting wraparound never passes unnoticed.
type OverflowPolicy uint8

const (
	OverflowError OverflowPolicy = iota
	OverflowSaturate
	OverflowWrap
)

var errNumberOutOfRange = diagnostic.New(diagnostic.KindType, "NUMBER_OUT_OF_RANGE", "arithmetic result out of range for its type")

// Add evaluates a+b under policy. Both operands must share the same Type
// for fixed-width integer paths; BigInt and Decimal are arbitrary
// precision and never overflow.
func Add(a, b Value, policy OverflowPolicy) (Value, error) {
	if a.Ty != b.Ty {
		return promoteAndApply(a, b, policy, Add)
	}
	switch a.Ty {
	case Int8:
		return addBounded(a.i, b.i, policy, math.MinInt8, math.MaxInt8, func(v int64) Value { return Int8Value(int8(v)) })
	case Int16:
		return addBounded(a.i, b.i, policy, math.MinInt16, math.MaxInt16, func(v int64) Value { return Int16Value(int16(v)) })
	case Int32:
		return addBounded(a.i, b.i, policy, math.MinInt32, math.MaxInt32, func(v int64) Value { return Int32Value(int32(v)) })
	case Int64:
		return addInt64Overflow(a.i, b.i, policy)
	case Uint8:
		return addBoundedU(a.u, b.u, policy, math.MaxUint8, func(v uint64) Value { return Uint8Value(uint8(v)) })
	case Uint16:
		return addBoundedU(a.u, b.u, policy, math.MaxUint16, func(v uint64) Value { return Uint16Value(uint16(v)) })
	case Uint32:
		return addBoundedU(a.u, b.u, policy, math.MaxUint32, func(v uint64) Value { return Uint32Value(uint32(v)) })
	case Uint64:
		return addUint64Overflow(a.u, b.u, policy)
	case Float32:
		return Float32Value(float32(a.f + b.f)), nil
	case Float64:
		return Float64Value(a.f + b.f), nil
	case BigInt:
		r := new(big.Int).Add(nz(a.bigInt), nz(b.bigInt))
		return BigIntValue(r), nil
	case Decimal:
		r := new(big.Rat).Add(nzRat(a.decimal), nzRat(b.decimal))
		scale := a.decScale
		if b.decScale > scale {
			scale = b.decScale
		}
		return DecimalValue(r, maxu8(a.decPrec, b.decPrec), scale), nil
	default:
		return Value{}, errNumberOutOfRange.WithCause(nil)
	}
}

func nz(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func nzRat(v *big.Rat) *big.Rat {
	if v == nil {
		return new(big.Rat)
	}
	return v
}

func maxu8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

func promoteAndApply(a, b Value, policy OverflowPolicy, op func(Value, Value, OverflowPolicy) (Value, error)) (Value, error) {
	if a.Ty == Undefined || b.Ty == Undefined {
		return UndefinedValue(), nil
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return op(Float64Value(af), Float64Value(bf), policy)
	}
	return Value{}, errNumberOutOfRange
}

func addBounded(a, b int64, policy OverflowPolicy, lo, hi int64, mk func(int64) Value) (Value, error) {
	sum := a + b
	if sum < lo || sum > hi {
		switch policy {
		case OverflowSaturate:
			if sum < lo {
				sum = lo
			} else {
				sum = hi
			}
		case OverflowWrap:
			// mk's narrowing conversion performs the wrap
		default:
			return Value{}, errNumberOutOfRange
		}
	}
	return mk(sum), nil
}

func addInt64Overflow(a, b int64, policy OverflowPolicy) (Value, error) {
	sum := a + b
	overflow := (b > 0 && sum < a) || (b < 0 && sum > a)
	if overflow {
		switch policy {
		case OverflowSaturate:
			if b > 0 {
				sum = math.MaxInt64
			} else {
				sum = math.MinInt64
			}
		case OverflowWrap:
			// sum already wrapped by Go's two's-complement semantics
		default:
			return Value{}, errNumberOutOfRange
		}
	}
	return Int64Value(sum), nil
}

func addBoundedU(a, b uint64, policy OverflowPolicy, maxVal uint64, mk func(uint64) Value) (Value, error) {
	sum := a + b
	if sum > maxVal {
		switch policy {
		case OverflowSaturate:
			sum = maxVal
		case OverflowWrap:
		default:
			return Value{}, errNumberOutOfRange
		}
	}
	return mk(sum), nil
}

func addUint64Overflow(a, b uint64, policy OverflowPolicy) (Value, error) {
	sum := a + b
	if sum < a {
		switch policy {
		case OverflowSaturate:
			sum = math.MaxUint64
		case OverflowWrap:
		default:
			return Value{}, errNumberOutOfRange
		}
	}
	return Uint64Value(sum), nil
}
