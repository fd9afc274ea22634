package vm

import (
	"encoding/binary"

	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/column"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
)

// Scanner turns one primitive's row subspace into successive Columns
// batches, the VM's concrete realization of spec.md §4.4.4's FetchBatch:
// "advances the scan in active_scans, pushes the resulting batch ...
// pushes has_more." Table rows are addressed RowNumber-ascending via the
// catalog's row sequence (catalog.Catalog.NextRowNumber), so a prefix
// scan over the primitive's subspace naturally yields them in that order
// (spec.md §6.2's lexicographic == numeric guarantee).
type Scanner struct{}

// Scan reads up to src.BatchSize rows starting at fromRow (exclusive of
// rows already consumed) and returns the decoded batch, the RowNumber to
// resume from, and whether more rows may remain.
func (Scanner) Scan(s *VmState, src SourceDef, fromRow uint64) (*column.Columns, uint64, bool, error) {
	columns, prefix, err := resolveSource(s.Catalog, src)
	if err != nil {
		return nil, fromRow, false, err
	}

	batchSize := src.BatchSize
	if batchSize <= 0 {
		batchSize = 1024
	}

	entries, err := s.Txn.Range(lowerBound(prefix, fromRow), encoding.PrefixUpperBound(prefix), batchSize)
	if err != nil {
		return nil, fromRow, false, err
	}

	schema := make(encoding.Schema, len(columns))
	names := make([]string, len(columns))
	for i, c := range columns {
		schema[i] = c.Type
		names[i] = c.Name
	}

	out := &column.Columns{Cols: make([]column.Column, len(columns))}
	for i, n := range names {
		out.Cols[i] = column.NewColumn(n, column.New(schema[i]))
	}

	var next uint64 = fromRow
	for _, e := range entries {
		if e.Removed {
			continue
		}
		_, _, rowID, ok := encoding.ParseRowKey(e.Key)
		if !ok {
			continue
		}
		ev, err := encoding.Parse(schema, e.Value)
		if err != nil {
			return nil, fromRow, false, err
		}
		values := ev.Decode()
		for i, v := range values {
			if err := out.Cols[i].Data.Append(v); err != nil {
				return nil, fromRow, false, err
			}
		}
		out.RowNumbers = append(out.RowNumbers, rowID)
		if rowID >= next {
			next = rowID + 1
		}
	}

	more := len(entries) >= batchSize
	return out, next, more, nil
}

func lowerBound(prefix encoding.EncodedKey, fromRow uint64) encoding.EncodedKey {
	if fromRow == 0 {
		return prefix
	}
	switch prefix.Class() {
	case encoding.ClassTableRow:
		return encoding.TableRowKey(parentIDOf(prefix), fromRow)
	case encoding.ClassViewRow:
		return encoding.ViewRowKey(parentIDOf(prefix), fromRow)
	case encoding.ClassRingBufferRow:
		return encoding.RingBufferRowKey(parentIDOf(prefix), fromRow)
	case encoding.ClassSeriesRow:
		return encoding.SeriesRowKey(parentIDOf(prefix), fromRow)
	default:
		return prefix
	}
}

// parentIDOf recovers the primitive id from a 9-byte "[tag ‖ parent_id]"
// subspace prefix (encoding.SubspacePrefix's layout).
func parentIDOf(prefix encoding.EncodedKey) uint64 {
	if len(prefix) < 9 {
		return 0
	}
	return binary.BigEndian.Uint64(prefix[1:9])
}

func resolveSource(cat *catalog.Catalog, src SourceDef) ([]catalog.Column, encoding.EncodedKey, error) {
	switch src.Kind {
	case SourceTable:
		t, err := cat.Table(src.Table)
		if err != nil {
			return nil, nil, err
		}
		return t.Columns, encoding.SubspacePrefix(encoding.ClassTableRow, uint64(t.ID)), nil
	case SourceView:
		v, err := cat.View(src.View)
		if err != nil {
			return nil, nil, err
		}
		return v.Columns, encoding.SubspacePrefix(encoding.ClassViewRow, uint64(v.ID)), nil
	case SourceRingBuffer:
		rb, err := cat.RingBuffer(src.RingBuffer)
		if err != nil {
			return nil, nil, err
		}
		return rb.Columns, encoding.SubspacePrefix(encoding.ClassRingBufferRow, uint64(rb.ID)), nil
	case SourceSeries:
		se, err := cat.Series(src.Series)
		if err != nil {
			return nil, nil, err
		}
		return se.Columns, encoding.SubspacePrefix(encoding.ClassSeriesRow, uint64(se.ID)), nil
	default:
		return nil, nil, diagnostic.ErrUnsupportedOperation.WithFragment("source", "scan")
	}
}
