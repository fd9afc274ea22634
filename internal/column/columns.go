package column

import (
	"fmt"

	"github.com/reifydb/reifydb/internal/value"
)

// RowNumbers is the row-identity vector carried alongside every Columns
// batch (spec.md §3.3's `row_numbers: CowVec<RowNumber>`). A plain slice
// is copy-on-write by convention here: ExtractByIndices always allocates a
// fresh slice rather than aliasing into the parent.
type RowNumbers []uint64

func (r RowNumbers) Len() int { return len(r) }

// Columns is an ordered list of named Columns sharing one row count, plus
// the row-identity vector. This is the batch type flowing through VM
// pipelines and flow operators.
type Columns struct {
	Cols       []Column
	RowNumbers RowNumbers
}

// Empty returns a zero-row Columns with the given column names/types.
func Empty(names []string, types []value.Type) *Columns {
	cols := make([]Column, len(names))
	for i := range names {
		cols[i] = Column{Name: names[i], Data: New(types[i])}
	}
	return &Columns{Cols: cols}
}

func (c *Columns) Len() int { return len(c.RowNumbers) }

func (c *Columns) NumCols() int { return len(c.Cols) }

// Validate checks invariant (a) from spec.md §3.3: every column's length
// equals row_numbers' length.
func (c *Columns) Validate() error {
	for _, col := range c.Cols {
		if col.Data.Len() != len(c.RowNumbers) {
			return fmt.Errorf("column %q has %d rows, expected %d", col.Name, col.Data.Len(), len(c.RowNumbers))
		}
	}
	return nil
}

// ColumnByName looks up a column, returning its index and the column.
func (c *Columns) ColumnByName(name string) (int, *Column, bool) {
	for i := range c.Cols {
		if c.Cols[i].Name == name {
			return i, &c.Cols[i], true
		}
	}
	return -1, nil, false
}

// ExtractByIndices produces a new Columns with only the listed rows, in
// the order given — spec.md §3.3's `extract_by_indices`.
func (c *Columns) ExtractByIndices(indices []int) *Columns {
	out := &Columns{
		Cols:       make([]Column, len(c.Cols)),
		RowNumbers: make(RowNumbers, len(indices)),
	}
	for i, idx := range indices {
		out.RowNumbers[i] = c.RowNumbers[idx]
	}
	for ci, col := range c.Cols {
		out.Cols[ci] = Column{Name: col.Name, Data: col.Data.ExtractByIndices(indices)}
	}
	return out
}

// AppendRow appends one row (values in column order, plus its row number)
// across every column — used by operators building an output batch
// incrementally (Filter, Map, Distinct's grouped emission).
func (c *Columns) AppendRow(rowNumber uint64, values []value.Value) error {
	if len(values) != len(c.Cols) {
		return fmt.Errorf("columns: expected %d values, got %d", len(c.Cols), len(values))
	}
	for i, v := range values {
		if err := c.Cols[i].Data.Append(v); err != nil {
			return err
		}
	}
	c.RowNumbers = append(c.RowNumbers, rowNumber)
	return nil
}

// Concat appends each batch's rows after the previous batch's rows; all
// batches must share column names/types in the same order.
func Concat(batches ...*Columns) (*Columns, error) {
	if len(batches) == 0 {
		return &Columns{}, nil
	}
	out := &Columns{Cols: make([]Column, len(batches[0].Cols))}
	for i, col := range batches[0].Cols {
		out.Cols[i] = Column{Name: col.Name, Data: New(col.Data.Ty)}
	}
	for _, b := range batches {
		if len(b.Cols) != len(out.Cols) {
			return nil, fmt.Errorf("columns: cannot concat batches with differing column counts")
		}
		for i := range b.Cols {
			for row := 0; row < b.Cols[i].Data.Len(); row++ {
				if err := out.Cols[i].Data.Append(b.Cols[i].Data.At(row)); err != nil {
					return nil, err
				}
			}
		}
		out.RowNumbers = append(out.RowNumbers, b.RowNumbers...)
	}
	return out, nil
}
