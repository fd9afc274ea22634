// Package column implements ReifyDB's L0 columnar container (spec.md
// §3.3): Column/ColumnData hold one typed vector plus a null bitmask;
// Columns is the row-aligned set the VM and flow engine pass between
// operators as batches.
//
// What: ColumnData variants parallel value.Type the way the teacher's
// ColType/Table pairing does in internal/storage/db.go, but each variant
// owns a dense value slice plus a validity bitmask instead of a single
// `[]any` row slice — columnar rather than row-major.
// How: Validity uses github.com/RoaringBitmap/roaring/v2, the compressed
// bitset surfaced by the erigon/erigon-lib dependency closet, instead of a
// hand-rolled []byte bitvector: columns are wide and often mostly non-null
// or mostly null, which is exactly roaring's sweet spot.
// Why: A columnar executor (Filter/Sort/Aggregate in the VM and flow
// operators) needs O(1) null checks and cheap bulk validity operations
// (AndNot for "not null", intersect for multi-predicate AND) — a roaring
// bitmap gives both without materializing a bit per row eagerly.
package column

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/reifydb/reifydb/internal/value"
)

// Data holds one column's values plus validity. Only the slice matching Ty
// is populated; Values are materialized through At/Append, never by
// reaching into the concrete slice directly (mirrors ColumnData's sealed
// variant set in spec.md §3.3).
type Data struct {
	Ty       value.Type
	Null     *roaring.Bitmap // set bit => value at that row index is null
	len      int
	i64      []int64   // Int8/16/32/64, Date, Time, RowNumber
	i128hi   []uint64  // Int128 high words
	i128lo   []uint64  // Int128 low words
	u64      []uint64  // Uint8/16/32/64
	u128hi   []uint64  // Uint128/Uuid4/Uuid7 high words
	u128lo   []uint64  // Uint128/Uuid4/Uuid7 low words
	f64      []float64 // Float32/64
	strs     []string  // Utf8
	blobs    [][]byte  // Blob
	extra    []value.Value // BigInt/Decimal/DateTime/Interval (boxed: arbitrary precision, rare column types)
}

// NewUndefined returns a column of n undefined values — the promotion
// target described in spec.md §3.3(c).
func NewUndefined(n int) *Data {
	nulls := roaring.New()
	for i := 0; i < n; i++ {
		nulls.Add(uint32(i))
	}
	return &Data{Ty: value.Undefined, Null: nulls, len: n}
}

// New allocates an empty column of the given type.
func New(ty value.Type) *Data {
	return &Data{Ty: ty, Null: roaring.New()}
}

func (d *Data) Len() int { return d.len }

func (d *Data) IsNull(row int) bool { return d.Null.Contains(uint32(row)) }

// Append adds v to the column, promoting an Undefined column to v's type
// per spec.md §3.3(c); appending a mismatched, already-typed column is an
// error.
func (d *Data) Append(v value.Value) error {
	if d.Ty == value.Undefined && d.len == 0 {
		d.Ty = v.Ty
	}
	if d.Ty == value.Undefined {
		// still-undefined column being extended with further undefineds
		if !v.IsUndefined() {
			d.Ty = v.Ty
			// pad slots for the null rows accumulated before promotion so
			// row indices keep lining up with the typed backing slice
			for i := 0; i < d.len; i++ {
				d.appendZero()
			}
			return d.appendTyped(v)
		}
		d.Null.Add(uint32(d.len))
		d.len++
		return nil
	}
	if v.IsUndefined() {
		d.Null.Add(uint32(d.len))
		d.appendZero()
		d.len++
		return nil
	}
	if v.Ty != d.Ty {
		return fmt.Errorf("column: cannot append %s into column of %s", v.Ty, d.Ty)
	}
	return d.appendTyped(v)
}

func (d *Data) appendZero() {
	switch {
	case d.Ty.IsNumeric() && isI64Kind(d.Ty):
		d.i64 = append(d.i64, 0)
	case d.Ty.IsNumeric() && isU64Kind(d.Ty):
		d.u64 = append(d.u64, 0)
	case d.Ty == value.Int128:
		d.i128hi = append(d.i128hi, 0)
		d.i128lo = append(d.i128lo, 0)
	case d.Ty == value.Uint128 || d.Ty == value.Uuid4 || d.Ty == value.Uuid7:
		d.u128hi = append(d.u128hi, 0)
		d.u128lo = append(d.u128lo, 0)
	case d.Ty == value.Float32 || d.Ty == value.Float64:
		d.f64 = append(d.f64, 0)
	case d.Ty == value.Utf8:
		d.strs = append(d.strs, "")
	case d.Ty == value.Blob:
		d.blobs = append(d.blobs, nil)
	default:
		d.extra = append(d.extra, value.UndefinedValue())
	}
}

func (d *Data) appendTyped(v value.Value) error {
	switch {
	case isI64Kind(d.Ty):
		d.i64 = append(d.i64, v.Int())
	case isU64Kind(d.Ty):
		d.u64 = append(d.u64, v.Uint())
	case d.Ty == value.Int128:
		hi, lo := v.Int128()
		d.i128hi = append(d.i128hi, hi)
		d.i128lo = append(d.i128lo, lo)
	case d.Ty == value.Uint128 || d.Ty == value.Uuid4 || d.Ty == value.Uuid7:
		hi, lo := v.Uint128()
		d.u128hi = append(d.u128hi, hi)
		d.u128lo = append(d.u128lo, lo)
	case d.Ty == value.Float32 || d.Ty == value.Float64:
		d.f64 = append(d.f64, v.Float())
	case d.Ty == value.Utf8:
		d.strs = append(d.strs, v.Str())
	case d.Ty == value.Blob:
		d.blobs = append(d.blobs, v.Blob())
	default:
		d.extra = append(d.extra, v)
	}
	d.len++
	return nil
}

func isI64Kind(t value.Type) bool {
	switch t {
	case value.Int8, value.Int16, value.Int32, value.Int64, value.Date, value.Time, value.RowNumber:
		return true
	default:
		return false
	}
}

func isU64Kind(t value.Type) bool {
	switch t {
	case value.Uint8, value.Uint16, value.Uint32, value.Uint64:
		return true
	default:
		return false
	}
}

// At materializes the value at row, regardless of backing representation.
func (d *Data) At(row int) value.Value {
	if d.IsNull(row) {
		return value.UndefinedValue()
	}
	switch {
	case isI64Kind(d.Ty):
		return reboxI64(d.Ty, d.i64[row])
	case isU64Kind(d.Ty):
		return reboxU64(d.Ty, d.u64[row])
	case d.Ty == value.Int128:
		return value.Int128Value(d.i128hi[row], d.i128lo[row])
	case d.Ty == value.Uint128:
		return value.Uint128Value(d.u128hi[row], d.u128lo[row])
	case d.Ty == value.Uuid4 || d.Ty == value.Uuid7:
		return value.FromUUIDParts(d.Ty, d.u128hi[row], d.u128lo[row])
	case d.Ty == value.Float32:
		return value.Float32Value(float32(d.f64[row]))
	case d.Ty == value.Float64:
		return value.Float64Value(d.f64[row])
	case d.Ty == value.Utf8:
		return value.Utf8Value(d.strs[row])
	case d.Ty == value.Blob:
		return value.BlobValue(d.blobs[row])
	case d.Ty == value.Undefined:
		return value.UndefinedValue()
	default:
		return d.extra[row]
	}
}

func reboxI64(t value.Type, v int64) value.Value {
	switch t {
	case value.Int8:
		return value.Int8Value(int8(v))
	case value.Int16:
		return value.Int16Value(int16(v))
	case value.Int32:
		return value.Int32Value(int32(v))
	case value.Int64:
		return value.Int64Value(v)
	case value.Date:
		return value.DateValue(v)
	case value.Time:
		return value.TimeValue(v)
	case value.RowNumber:
		return value.RowNumberValue(uint64(v))
	default:
		return value.Int64Value(v)
	}
}

func reboxU64(t value.Type, v uint64) value.Value {
	switch t {
	case value.Uint8:
		return value.Uint8Value(uint8(v))
	case value.Uint16:
		return value.Uint16Value(uint16(v))
	case value.Uint32:
		return value.Uint32Value(uint32(v))
	default:
		return value.Uint64Value(v)
	}
}

// ExtractByIndices produces a new column containing only the listed rows,
// in order — the primitive Columns.extract_by_indices relies on (spec.md
// §3.3).
func (d *Data) ExtractByIndices(indices []int) *Data {
	out := New(d.Ty)
	for _, i := range indices {
		_ = out.Append(d.At(i))
	}
	return out
}

// Column pairs a name fragment with its ColumnData (spec.md §3.3).
type Column struct {
	Name string
	Data *Data
}

func NewColumn(name string, data *Data) Column { return Column{Name: name, Data: data} }
