package encoding

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/reifydb/reifydb/internal/value"
)

// Schema is the ordered list of column types an EncodedValues was written
// with. Reading a field with a different schema than it was written with
// is a programmer error (spec.md §3.2 invariant); callers must carry the
// schema alongside the row the way the teacher carries `[]Column` beside
// `Table.Rows`.
type Schema []value.Type

// EncodedValues is the persisted row layout: a null bitmap, a packed
// fixed-width section, and a variable-width section addressed through an
// offsets table — the layout spec.md §3.2/§6.3 fixes.
type EncodedValues struct {
	schema    Schema
	bitmap    []byte // one bit per field, 1 == null
	fixed     []byte
	varOffset []uint32 // cumulative end-offsets into varData, len == len(schema)
	varData   []byte
}

func bitmapBytes(n int) int { return (n + 7) / 8 }

func (e *EncodedValues) isNull(i int) bool {
	return e.bitmap[i/8]&(1<<uint(i%8)) != 0
}

func (e *EncodedValues) setNull(i int) {
	e.bitmap[i/8] |= 1 << uint(i%8)
}

// Encode builds an EncodedValues from values ordered per schema. The
// resulting row's field order always matches column order, per spec.md
// §3.2's schema-conversion invariant.
func Encode(schema Schema, values []value.Value) (*EncodedValues, error) {
	if len(values) != len(schema) {
		return nil, fmt.Errorf("encoding: schema has %d fields, got %d values", len(schema), len(values))
	}
	row := &EncodedValues{
		schema:    append(Schema(nil), schema...),
		bitmap:    make([]byte, bitmapBytes(len(schema))),
		varOffset: make([]uint32, len(schema)),
	}

	var fixedSize int
	for _, t := range schema {
		if t.IsFixedWidth() {
			fixedSize += t.Width()
		}
	}
	row.fixed = make([]byte, fixedSize)

	fixedCursor := 0
	for i, t := range schema {
		v := values[i]
		if v.IsUndefined() {
			row.setNull(i)
			if t.IsFixedWidth() {
				fixedCursor += t.Width()
			} else {
				row.varOffset[i] = uint32(len(row.varData))
			}
			continue
		}
		if t.IsFixedWidth() {
			encodeFixed(row.fixed[fixedCursor:fixedCursor+t.Width()], t, v)
			fixedCursor += t.Width()
		} else {
			row.varData = append(row.varData, encodeVariable(t, v)...)
			row.varOffset[i] = uint32(len(row.varData))
		}
	}
	return row, nil
}

// Decode reconstructs the values in column order. decode(encode(values)) ==
// values for any schema consistent with values (spec.md §8.2).
func (e *EncodedValues) Decode() []value.Value {
	out := make([]value.Value, len(e.schema))
	fixedCursor := 0
	varStart := uint32(0)
	for i, t := range e.schema {
		if e.isNull(i) {
			out[i] = value.UndefinedValue()
			if t.IsFixedWidth() {
				fixedCursor += t.Width()
			} else {
				varStart = e.varOffset[i]
			}
			continue
		}
		if t.IsFixedWidth() {
			out[i] = decodeFixed(e.fixed[fixedCursor:fixedCursor+t.Width()], t)
			fixedCursor += t.Width()
		} else {
			out[i] = decodeVariable(e.varData[varStart:e.varOffset[i]], t)
			varStart = e.varOffset[i]
		}
	}
	return out
}

func (e *EncodedValues) Schema() Schema { return e.schema }

// Get returns the field at index i and whether it is null.
func (e *EncodedValues) Get(i int) (value.Value, bool) {
	vals := e.Decode()
	return vals[i], e.isNull(i)
}

// Bytes flattens the row to the single byte blob the store layer persists
// (bitmap ‖ fixed ‖ varOffset table ‖ varData; bitmap and fixed are each
// prefixed with their byte length, the varOffset table with its entry
// count, and varData is the unprefixed remainder). The
// schema itself is not embedded: callers persist rows alongside the
// catalog column list that defines their schema (spec.md §3.2's "every
// read of a field uses the schema that wrote it") and pass it back in on
// Parse.
func (e *EncodedValues) Bytes() []byte {
	buf := make([]byte, 0, len(e.bitmap)+len(e.fixed)+4*len(e.varOffset)+len(e.varData)+12)
	var tmp [4]byte

	binary.BigEndian.PutUint32(tmp[:], uint32(len(e.bitmap)))
	buf = append(buf, tmp[:]...)
	buf = append(buf, e.bitmap...)

	binary.BigEndian.PutUint32(tmp[:], uint32(len(e.fixed)))
	buf = append(buf, tmp[:]...)
	buf = append(buf, e.fixed...)

	binary.BigEndian.PutUint32(tmp[:], uint32(len(e.varOffset)))
	buf = append(buf, tmp[:]...)
	for _, off := range e.varOffset {
		binary.BigEndian.PutUint32(tmp[:], off)
		buf = append(buf, tmp[:]...)
	}
	buf = append(buf, e.varData...)
	return buf
}

// Parse reconstructs an EncodedValues from bytes produced by Bytes(),
// given the schema it was written with.
func Parse(schema Schema, raw []byte) (*EncodedValues, error) {
	read := func(label string) ([]byte, error) {
		if len(raw) < 4 {
			return nil, fmt.Errorf("encoding: truncated row while reading %s length", label)
		}
		n := binary.BigEndian.Uint32(raw[:4])
		raw = raw[4:]
		if uint32(len(raw)) < n {
			return nil, fmt.Errorf("encoding: truncated row while reading %s body", label)
		}
		body := raw[:n]
		raw = raw[n:]
		return body, nil
	}

	bitmap, err := read("bitmap")
	if err != nil {
		return nil, err
	}
	fixed, err := read("fixed")
	if err != nil {
		return nil, err
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("encoding: truncated row while reading varOffset count")
	}
	n := binary.BigEndian.Uint32(raw[:4])
	raw = raw[4:]
	varOffset := make([]uint32, n)
	for i := range varOffset {
		if len(raw) < 4 {
			return nil, fmt.Errorf("encoding: truncated row while reading varOffset[%d]", i)
		}
		varOffset[i] = binary.BigEndian.Uint32(raw[:4])
		raw = raw[4:]
	}

	return &EncodedValues{
		schema:    append(Schema(nil), schema...),
		bitmap:    append([]byte(nil), bitmap...),
		fixed:     append([]byte(nil), fixed...),
		varOffset: varOffset,
		varData:   append([]byte(nil), raw...),
	}, nil
}

func encodeFixed(dst []byte, t value.Type, v value.Value) {
	switch t {
	case value.Bool:
		if v.Bool() {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case value.Int8:
		dst[0] = byte(v.Int())
	case value.Uint8:
		dst[0] = byte(v.Uint())
	case value.Int16:
		binary.BigEndian.PutUint16(dst, uint16(v.Int()))
	case value.Uint16:
		binary.BigEndian.PutUint16(dst, uint16(v.Uint()))
	case value.Int32:
		binary.BigEndian.PutUint32(dst, uint32(v.Int()))
	case value.Uint32:
		binary.BigEndian.PutUint32(dst, uint32(v.Uint()))
	case value.Float32:
		binary.BigEndian.PutUint32(dst, floatBitsToBigEndianU32(v))
	case value.Int64, value.Date, value.RowNumber:
		binary.BigEndian.PutUint64(dst, uint64(v.Int()))
	case value.Uint64:
		binary.BigEndian.PutUint64(dst, v.Uint())
	case value.Float64:
		binary.BigEndian.PutUint64(dst, doubleBitsToBigEndianU64(v))
	case value.Int128, value.Uint128, value.Uuid4, value.Uuid7:
		hi, lo := u128Parts(v, t)
		binary.BigEndian.PutUint64(dst[0:8], hi)
		binary.BigEndian.PutUint64(dst[8:16], lo)
	case value.DateTime:
		sec, nanos := v.DateTimeParts()
		binary.BigEndian.PutUint64(dst[0:8], uint64(sec))
		binary.BigEndian.PutUint32(dst[8:12], uint32(nanos))
	case value.Time:
		binary.BigEndian.PutUint64(dst, uint64(v.NanosOfDay()))
	case value.Interval:
		months, days, nanos := v.IntervalParts()
		binary.BigEndian.PutUint32(dst[0:4], uint32(months))
		binary.BigEndian.PutUint32(dst[4:8], uint32(days))
		binary.BigEndian.PutUint64(dst[8:16], uint64(nanos))
	default:
		panic(fmt.Sprintf("encoding: %s is not fixed-width", t))
	}
}

func decodeFixed(src []byte, t value.Type) value.Value {
	switch t {
	case value.Bool:
		return value.BoolValue(src[0] != 0)
	case value.Int8:
		return value.Int8Value(int8(src[0]))
	case value.Uint8:
		return value.Uint8Value(src[0])
	case value.Int16:
		return value.Int16Value(int16(binary.BigEndian.Uint16(src)))
	case value.Uint16:
		return value.Uint16Value(binary.BigEndian.Uint16(src))
	case value.Int32:
		return value.Int32Value(int32(binary.BigEndian.Uint32(src)))
	case value.Uint32:
		return value.Uint32Value(binary.BigEndian.Uint32(src))
	case value.Float32:
		return bigEndianU32ToFloat(binary.BigEndian.Uint32(src))
	case value.Int64:
		return value.Int64Value(int64(binary.BigEndian.Uint64(src)))
	case value.Date:
		return value.DateValue(int64(binary.BigEndian.Uint64(src)))
	case value.RowNumber:
		return value.RowNumberValue(binary.BigEndian.Uint64(src))
	case value.Uint64:
		return value.Uint64Value(binary.BigEndian.Uint64(src))
	case value.Float64:
		return bigEndianU64ToDouble(binary.BigEndian.Uint64(src))
	case value.Int128:
		return value.Int128Value(binary.BigEndian.Uint64(src[0:8]), binary.BigEndian.Uint64(src[8:16]))
	case value.Uint128:
		return value.Uint128Value(binary.BigEndian.Uint64(src[0:8]), binary.BigEndian.Uint64(src[8:16]))
	case value.Uuid4, value.Uuid7:
		return reconstructUUID(t, binary.BigEndian.Uint64(src[0:8]), binary.BigEndian.Uint64(src[8:16]))
	case value.DateTime:
		sec := int64(binary.BigEndian.Uint64(src[0:8]))
		nanos := int32(binary.BigEndian.Uint32(src[8:12]))
		return value.DateTimeValue(sec, nanos)
	case value.Time:
		return value.TimeValue(int64(binary.BigEndian.Uint64(src)))
	case value.Interval:
		months := int32(binary.BigEndian.Uint32(src[0:4]))
		days := int32(binary.BigEndian.Uint32(src[4:8]))
		nanos := int64(binary.BigEndian.Uint64(src[8:16]))
		return value.IntervalValue(months, days, nanos)
	default:
		panic(fmt.Sprintf("encoding: %s is not fixed-width", t))
	}
}

func encodeVariable(t value.Type, v value.Value) []byte {
	switch t {
	case value.Utf8:
		return []byte(v.Str())
	case value.Blob:
		return v.Blob()
	case value.BigInt:
		b := v.BigInt()
		if b == nil {
			b = big.NewInt(0)
		}
		return b.Append(nil, 10)
	case value.Decimal:
		r, _, _ := v.Decimal()
		if r == nil {
			r = new(big.Rat)
		}
		return []byte(r.RatString())
	default:
		panic(fmt.Sprintf("encoding: %s is not variable-width", t))
	}
}

func decodeVariable(data []byte, t value.Type) value.Value {
	switch t {
	case value.Utf8:
		return value.Utf8Value(string(data))
	case value.Blob:
		cp := make([]byte, len(data))
		copy(cp, data)
		return value.BlobValue(cp)
	case value.BigInt:
		b := new(big.Int)
		b.SetString(string(data), 10)
		return value.BigIntValue(b)
	case value.Decimal:
		r := new(big.Rat)
		r.SetString(string(data))
		return value.DecimalValue(r, 38, 0)
	default:
		panic(fmt.Sprintf("encoding: %s is not variable-width", t))
	}
}

func u128Parts(v value.Value, t value.Type) (uint64, uint64) {
	switch t {
	case value.Int128:
		return v.Int128()
	case value.Uint128:
		return v.Uint128()
	case value.Uuid4, value.Uuid7:
		id := v.UUID()
		var hi, lo uint64
		for i := 0; i < 8; i++ {
			hi = hi<<8 | uint64(id[i])
		}
		for i := 8; i < 16; i++ {
			lo = lo<<8 | uint64(id[i])
		}
		return hi, lo
	default:
		return 0, 0
	}
}

func reconstructUUID(t value.Type, hi, lo uint64) value.Value {
	return value.FromUUIDParts(t, hi, lo)
}

func floatBitsToBigEndianU32(v value.Value) uint32 {
	return math.Float32bits(float32(v.Float()))
}

func bigEndianU32ToFloat(bits uint32) value.Value {
	return value.Float32Value(math.Float32frombits(bits))
}

func doubleBitsToBigEndianU64(v value.Value) uint64 {
	return math.Float64bits(v.Float())
}

func bigEndianU64ToDouble(bits uint64) value.Value {
	return value.Float64Value(math.Float64frombits(bits))
}
