package value

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// jsonValue is Value's wire shape for the rare cases something in this
// tree needs to JSON-encode a Value directly (flow operator state;
// spec.md §4.3.3's DistinctEntry.first_row). Only the fields matching Ty
// are populated, mirroring the same "tag + matching payload" shape Value
// itself uses internally.
type jsonValue struct {
	Ty      Type    `json:"ty"`
	Bool    bool    `json:"b,omitempty"`
	Int     int64   `json:"i,omitempty"`
	Uint    uint64  `json:"u,omitempty"`
	Hi      uint64  `json:"hi,omitempty"`
	Lo      uint64  `json:"lo,omitempty"`
	Float   float64 `json:"f,omitempty"`
	BigInt  string  `json:"bigint,omitempty"`
	DecNum  string  `json:"dec_num,omitempty"`
	DecDen  string  `json:"dec_den,omitempty"`
	DecPrec uint8   `json:"dec_prec,omitempty"`
	DecScl  uint8   `json:"dec_scale,omitempty"`
	Str     string  `json:"s,omitempty"`
	Blob    []byte  `json:"blob,omitempty"`
	Months  int32   `json:"months,omitempty"`
	Days    int32   `json:"days,omitempty"`
	Nanos   int64   `json:"nanos,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	j := jsonValue{Ty: v.Ty}
	switch v.Ty {
	case Undefined:
	case Bool:
		j.Bool = v.Bool()
	case Int8, Int16, Int32, Int64:
		j.Int = v.Int()
	case RowNumber:
		j.Uint = v.RowNumberID()
	case Date:
		j.Int = v.Days()
	case Time:
		j.Int = v.NanosOfDay()
	case DateTime:
		seconds, nanos := v.DateTimeParts()
		j.Int, j.Nanos = seconds, int64(nanos)
	case Interval:
		months, days, nanos := v.IntervalParts()
		j.Months, j.Days, j.Nanos = months, days, nanos
	case Int128, Uint128, Uuid4, Uuid7:
		j.Hi, j.Lo = v.hi, v.lo
	case Uint8, Uint16, Uint32, Uint64:
		j.Uint = v.Uint()
	case Float32, Float64:
		j.Float = v.Float()
	case BigInt:
		if bi := v.BigInt(); bi != nil {
			j.BigInt = bi.String()
		}
	case Decimal:
		r, prec, scale := v.Decimal()
		j.DecPrec, j.DecScl = prec, scale
		if r != nil {
			j.DecNum = r.Num().String()
			j.DecDen = r.Denom().String()
		}
	case Utf8:
		j.Str = v.Str()
	case Blob:
		j.Blob = v.Blob()
	default:
		return nil, fmt.Errorf("value: unknown type %s", v.Ty)
	}
	return json.Marshal(j)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var j jsonValue
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	switch j.Ty {
	case Undefined:
		*v = UndefinedValue()
	case Bool:
		*v = BoolValue(j.Bool)
	case Int8:
		*v = Int8Value(int8(j.Int))
	case Int16:
		*v = Int16Value(int16(j.Int))
	case Int32:
		*v = Int32Value(int32(j.Int))
	case Int64:
		*v = Int64Value(j.Int)
	case Int128:
		*v = Int128Value(j.Hi, j.Lo)
	case Uint8:
		*v = Uint8Value(uint8(j.Uint))
	case Uint16:
		*v = Uint16Value(uint16(j.Uint))
	case Uint32:
		*v = Uint32Value(uint32(j.Uint))
	case Uint64:
		*v = Uint64Value(j.Uint)
	case Uint128:
		*v = Uint128Value(j.Hi, j.Lo)
	case Float32:
		*v = Float32Value(float32(j.Float))
	case Float64:
		*v = Float64Value(j.Float)
	case BigInt:
		bi, ok := new(big.Int).SetString(j.BigInt, 10)
		if !ok {
			return fmt.Errorf("value: invalid bigint %q", j.BigInt)
		}
		*v = BigIntValue(bi)
	case Decimal:
		num, ok := new(big.Int).SetString(j.DecNum, 10)
		if !ok {
			return fmt.Errorf("value: invalid decimal numerator %q", j.DecNum)
		}
		den, ok := new(big.Int).SetString(j.DecDen, 10)
		if !ok {
			return fmt.Errorf("value: invalid decimal denominator %q", j.DecDen)
		}
		*v = DecimalValue(new(big.Rat).SetFrac(num, den), j.DecPrec, j.DecScl)
	case Utf8:
		*v = Utf8Value(j.Str)
	case Blob:
		*v = BlobValue(j.Blob)
	case Date:
		*v = DateValue(j.Int)
	case Time:
		*v = TimeValue(j.Int)
	case DateTime:
		*v = DateTimeValue(j.Int, int32(j.Nanos))
	case Interval:
		*v = IntervalValue(j.Months, j.Days, j.Nanos)
	case RowNumber:
		*v = RowNumberValue(j.Uint)
	case Uuid4, Uuid7:
		*v = FromUUIDParts(j.Ty, j.Hi, j.Lo)
	default:
		return fmt.Errorf("value: unknown type %d", j.Ty)
	}
	return nil
}
