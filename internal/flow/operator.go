package flow

import "github.com/reifydb/reifydb/internal/value"

// Row is one row's values addressed by column name, the unit CompiledExpr
// and operators work over (spec.md §4.3.2).
type Row struct {
	RowNumber uint64
	Columns   []string
	Values    []value.Value
}

// Get returns the value of the named column, or Undefined if absent.
func (r Row) Get(name string) value.Value {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i]
		}
	}
	return value.UndefinedValue()
}

// With returns a copy of r with column name set to v, appending it if not
// already present — used by Map/Extend to build their output row.
func (r Row) With(name string, v value.Value) Row {
	cols := append(append([]string(nil), r.Columns...))
	vals := append(append([]value.Value(nil), r.Values...))
	for i, c := range cols {
		if c == name {
			vals[i] = v
			return Row{RowNumber: r.RowNumber, Columns: cols, Values: vals}
		}
	}
	return Row{RowNumber: r.RowNumber, Columns: append(cols, name), Values: append(vals, v)}
}

// DiffKind discriminates a Diff's variant (spec.md §4.3.2).
type DiffKind uint8

const (
	DiffInsert DiffKind = iota + 1
	DiffUpdate
	DiffRemove
)

// Diff is one row-level change flowing between operators.
type Diff struct {
	Kind DiffKind
	Pre  Row // valid for Update, Remove
	Post Row // valid for Insert, Update
}

// Change is an ordered batch of Diffs (spec.md §4.3.2).
type Change []Diff

// Operator is the per-node runtime contract every FlowNodeType maps to
// (spec.md §4.3.2). apply transforms incoming diffs into outgoing diffs,
// reading/writing per-node state through txn; pull serves point lookups
// for downstream operators such as Join.
type Operator interface {
	Apply(txn *FlowTransaction, change Change, eval Evaluator) (Change, error)
	Pull(txn *FlowTransaction, rows []uint64) ([]Row, error)
}

// Evaluator resolves a CompiledExpr against a row; operators are given one
// rather than evaluating expressions themselves so subquery/correlated
// lookups (spec.md §4.4.5) can be swapped in by the VM layer.
type Evaluator interface {
	Eval(expr CompiledExpr, row Row) (value.Value, error)
}

// DefaultEvaluator calls the CompiledExpr closure directly — sufficient
// whenever expressions carry no outer/correlated references.
type DefaultEvaluator struct{}

func (DefaultEvaluator) Eval(expr CompiledExpr, row Row) (value.Value, error) { return expr(row) }
