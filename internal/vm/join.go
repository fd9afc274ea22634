package vm

import (
	"github.com/reifydb/reifydb/internal/column"
	"github.com/reifydb/reifydb/internal/value"
)

func undefinedOf() value.Value            { return value.UndefinedValue() }
func compositeKeyValue(s string) value.Value { return value.Utf8Value(s) }

// joinPipeline implements Apply(JoinInner/Left/Natural) (spec.md §4.4.3):
// builds a hash side from the smaller input (left, for now — matching
// the spec's explicit "for now" qualifier) and probes the other,
// emitting matches; Left additionally emits unmatched left rows with
// right fields null; Natural joins on column-name overlap rather than an
// explicit key expression.
type joinPipeline struct {
	kind     ApplyKind
	left     Pipeline
	right    Pipeline
	leftKey  CompiledExpr
	rightKey CompiledExpr

	built bool
	out   *column.Columns
	done  bool
}

func (p *joinPipeline) Next(s *VmState) (*column.Columns, bool, error) {
	if !p.built {
		p.built = true
		out, err := p.run(s)
		if err != nil {
			return nil, false, err
		}
		p.out = out
	}
	if p.done || p.out == nil || p.out.Len() == 0 {
		return nil, false, nil
	}
	p.done = true
	return p.out, true, nil
}

func (p *joinPipeline) run(s *VmState) (*column.Columns, error) {
	leftBatch, err := collectAll(s, p.left)
	if err != nil {
		return nil, err
	}
	rightBatch, err := collectAll(s, p.right)
	if err != nil {
		return nil, err
	}

	leftKey, rightKey := p.leftKey, p.rightKey
	if p.kind == ApplyJoinNatural {
		leftKey, rightKey = naturalKeys(leftBatch, rightBatch)
	}

	hash := make(map[string][]int, leftBatch.Len())
	for row := 0; row < leftBatch.Len(); row++ {
		v, err := leftKey(leftBatch, row)
		if err != nil {
			return nil, err
		}
		if v.IsUndefined() {
			continue
		}
		k := v.String()
		hash[k] = append(hash[k], row)
	}

	out := concatSchema(leftBatch, rightBatch)
	matchedLeft := make([]bool, leftBatch.Len())

	for rrow := 0; rrow < rightBatch.Len(); rrow++ {
		v, err := rightKey(rightBatch, rrow)
		if err != nil {
			return nil, err
		}
		if v.IsUndefined() {
			continue
		}
		lrows, ok := hash[v.String()]
		if !ok {
			continue
		}
		for _, lrow := range lrows {
			matchedLeft[lrow] = true
			if err := appendJoinedRow(out, leftBatch, lrow, rightBatch, rrow); err != nil {
				return nil, err
			}
		}
	}

	if p.kind == ApplyJoinLeft {
		for lrow, matched := range matchedLeft {
			if matched {
				continue
			}
			if err := appendJoinedRow(out, leftBatch, lrow, rightBatch, -1); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func concatSchema(left, right *column.Columns) *column.Columns {
	out := &column.Columns{}
	for _, c := range left.Cols {
		out.Cols = append(out.Cols, column.NewColumn(c.Name, column.New(c.Data.Ty)))
	}
	for _, c := range right.Cols {
		out.Cols = append(out.Cols, column.NewColumn(c.Name, column.New(c.Data.Ty)))
	}
	return out
}

func appendJoinedRow(out, left *column.Columns, lrow int, right *column.Columns, rrow int) error {
	idx := 0
	for _, c := range left.Cols {
		if err := out.Cols[idx].Data.Append(c.Data.At(lrow)); err != nil {
			return err
		}
		idx++
	}
	for _, c := range right.Cols {
		if rrow < 0 {
			if err := out.Cols[idx].Data.Append(undefinedOf()); err != nil {
				return err
			}
		} else if err := out.Cols[idx].Data.Append(c.Data.At(rrow)); err != nil {
			return err
		}
		idx++
	}
	out.RowNumbers = append(out.RowNumbers, uint64(len(out.RowNumbers)+1))
	return nil
}

func naturalKeys(left, right *column.Columns) (CompiledExpr, CompiledExpr) {
	var shared []string
	for _, lc := range left.Cols {
		if _, _, ok := right.ColumnByName(lc.Name); ok {
			shared = append(shared, lc.Name)
		}
	}
	keyOf := func(names []string) CompiledExpr {
		return func(batch *column.Columns, row int) (v value.Value, err error) {
			var buf string
			for _, n := range names {
				_, col, ok := batch.ColumnByName(n)
				if !ok {
					return undefinedOf(), nil
				}
				buf += col.Data.At(row).String() + "\x00"
			}
			return compositeKeyValue(buf), nil
		}
	}
	return keyOf(shared), keyOf(shared)
}
