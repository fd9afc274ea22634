package vm

import (
	"github.com/reifydb/reifydb/internal/column"
	"github.com/reifydb/reifydb/internal/value"
)

// AggregateExpr reduces one group's rows to a single named scalar,
// mirroring flow.AggregateExpr's shape (spec.md §4.3.1) but evaluated
// once over a static batch instead of incrementally over a Change
// stream.
type AggregateExpr struct {
	Name   string
	Reduce func(group *column.Columns, rows []int) (value.Value, error)
}

// aggregatePipeline implements Apply(Aggregate) (spec.md §4.4.3):
// hash-groups the collected upstream by group_cols, then reduces each
// group with agg_exprs.
type aggregatePipeline struct {
	upstream Pipeline
	group    []CompiledExpr
	groupCol []string
	exprs    []AggregateExpr
	out      *column.Columns
	done     bool
	started  bool
}

func (p *aggregatePipeline) Next(s *VmState) (*column.Columns, bool, error) {
	if !p.started {
		p.started = true
		collected, err := collectAll(s, p.upstream)
		if err != nil {
			return nil, false, err
		}
		out, err := reduceGroups(collected, p.group, p.groupCol, p.exprs)
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

func reduceGroups(batch *column.Columns, group []CompiledExpr, groupCol []string, exprs []AggregateExpr) (*column.Columns, error) {
	type groupEntry struct {
		key  []value.Value
		rows []int
	}
	order := make([]string, 0)
	groups := make(map[string]*groupEntry)

	for row := 0; row < batch.Len(); row++ {
		key := make([]value.Value, len(group))
		var keyStr string
		for i, expr := range group {
			v, err := expr(batch, row)
			if err != nil {
				return nil, err
			}
			key[i] = v
			keyStr += v.String() + "\x00"
		}
		g, ok := groups[keyStr]
		if !ok {
			g = &groupEntry{key: key}
			groups[keyStr] = g
			order = append(order, keyStr)
		}
		g.rows = append(g.rows, row)
	}

	names := append(append([]string(nil), groupCol...), aggregateNames(exprs)...)
	out := &column.Columns{}
	for _, n := range names {
		out.Cols = append(out.Cols, column.NewColumn(n, column.New(value.Undefined)))
	}

	for rowNum, keyStr := range order {
		g := groups[keyStr]
		values := append([]value.Value(nil), g.key...)
		for _, agg := range exprs {
			v, err := agg.Reduce(batch, g.rows)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		for i, v := range values {
			if err := out.Cols[i].Data.Append(v); err != nil {
				return nil, err
			}
		}
		out.RowNumbers = append(out.RowNumbers, uint64(rowNum+1))
	}
	return out, nil
}

func aggregateNames(exprs []AggregateExpr) []string {
	names := make([]string, len(exprs))
	for i, e := range exprs {
		names[i] = e.Name
	}
	return names
}
