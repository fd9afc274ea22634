package vm

import (
	"github.com/reifydb/reifydb/internal/column"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/value"
)

// runSubquery spawns a nested VmState sharing this invocation's catalog,
// transaction, and config (spec.md §4.4.5: "spawns a nested VM with the
// same context"), carries over the outer scope's captured variables, and
// drives it to completion. The nested program's final operand-stack top
// (set by Halt) is read as the result Frame — the Collect opcode
// materializes whatever pipeline the subquery body built; a result that
// is not a Frame counts as zero rows.
func runSubquery(s *VmState, def SubqueryDef) (*column.Columns, error) {
	nested := NewState(def.Program, s.Catalog, s.Txn, s.Cfg)
	nested.Interceptors = s.Interceptors
	for _, id := range def.OuterRefs {
		if v, ok := s.scope.get(id); ok {
			nested.scope.set(id, v)
		}
	}
	if err := Exec(nested); err != nil {
		return nil, err
	}
	if nested.result.Kind != OperandFrame {
		return &column.Columns{}, nil
	}
	return nested.result.Frame, nil
}

// execSubqueryExists implements spec.md §4.4.5's Exists: Boolean(rows>0
// XOR negated).
func execSubqueryExists(s *VmState, idx int, negated bool) error {
	def, err := subqueryAt(s, idx)
	if err != nil {
		return err
	}
	res, err := runSubquery(s, def)
	if err != nil {
		return err
	}
	hasRows := res != nil && res.Len() > 0
	return s.pushOperand(scalarOperand(value.BoolValue(hasRows != negated)))
}

// execSubqueryIn implements spec.md §4.4.5's In: pops the probe value,
// returns Boolean(value ∈ results XOR negated).
func execSubqueryIn(s *VmState, idx int, negated bool) error {
	probeOp, err := s.popOperand()
	if err != nil {
		return err
	}
	probe, err := scalarOf(probeOp)
	if err != nil {
		return err
	}
	def, err := subqueryAt(s, idx)
	if err != nil {
		return err
	}
	res, err := runSubquery(s, def)
	if err != nil {
		return err
	}
	found := false
	if res != nil && res.NumCols() > 0 {
		col := res.Cols[0].Data
		for row := 0; row < col.Len(); row++ {
			if !col.IsNull(row) && value.Compare(col.At(row), probe) == 0 {
				found = true
				break
			}
		}
	}
	return s.pushOperand(scalarOperand(value.BoolValue(found != negated)))
}

// execSubqueryScalar implements spec.md §4.4.5's Scalar: requires
// exactly one row by one column, else SubqueryCardinalityError.
func execSubqueryScalar(s *VmState, idx int) error {
	def, err := subqueryAt(s, idx)
	if err != nil {
		return err
	}
	res, err := runSubquery(s, def)
	if err != nil {
		return err
	}
	if res == nil || res.Len() != 1 || res.NumCols() != 1 {
		return diagnostic.ErrSubqueryCardinality.WithFragment(s.fragment(), "subquery")
	}
	return s.pushOperand(scalarOperand(res.Cols[0].Data.At(0)))
}

func subqueryAt(s *VmState, idx int) (SubqueryDef, error) {
	if idx < 0 || idx >= len(s.Program.Subqueries) {
		return SubqueryDef{}, diagnostic.ErrInvalidSubqueryIndex.WithFragment(s.fragment(), "subquery")
	}
	return s.Program.Subqueries[idx], nil
}

func scalarOf(v OperandValue) (value.Value, error) {
	if v.Kind != OperandScalar {
		return value.Value{}, diagnostic.ErrExpectedBoolean
	}
	return v.Scalar, nil
}
