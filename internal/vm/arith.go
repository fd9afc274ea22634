package vm

import (
	"github.com/reifydb/reifydb/internal/column"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/value"
)

// execBinary implements the arithmetic/comparison/logical opcode family
// over both operand shapes: two scalars produce a scalar; any column
// operand broadcasts the operation row-wise and produces a column. A null
// (undefined) input cell yields a null output cell.
func execBinary(s *VmState, op Opcode) error {
	right, err := s.popOperand()
	if err != nil {
		return err
	}
	left, err := s.popOperand()
	if err != nil {
		return err
	}

	if left.Kind == OperandScalar && right.Kind == OperandScalar {
		out, err := applyBinary(op, left.Scalar, right.Scalar)
		if err != nil {
			return err
		}
		return s.pushOperand(scalarOperand(out))
	}

	lc, rc, n, err := broadcastOperands(s, left, right)
	if err != nil {
		return err
	}
	out := column.New(value.Undefined)
	for row := 0; row < n; row++ {
		v, err := applyBinary(op, lc(row), rc(row))
		if err != nil {
			return err
		}
		if err := out.Append(v); err != nil {
			return err
		}
	}
	return s.pushOperand(OperandValue{Kind: OperandColumn, Col: out})
}

// broadcastOperands turns each operand into a row-indexed accessor plus
// the common row count. A scalar operand repeats for every row.
func broadcastOperands(s *VmState, left, right OperandValue) (func(int) value.Value, func(int) value.Value, int, error) {
	access := func(v OperandValue) (func(int) value.Value, int, bool) {
		switch v.Kind {
		case OperandScalar:
			return func(int) value.Value { return v.Scalar }, -1, true
		case OperandColumn:
			return func(row int) value.Value { return v.Col.At(row) }, v.Col.Len(), true
		default:
			return nil, 0, false
		}
	}
	la, ln, ok := access(left)
	if !ok {
		return nil, nil, 0, diagnostic.ErrExpectedExpression.WithFragment(s.fragment(), "left operand")
	}
	ra, rn, ok := access(right)
	if !ok {
		return nil, nil, 0, diagnostic.ErrExpectedExpression.WithFragment(s.fragment(), "right operand")
	}
	n := ln
	if n < 0 {
		n = rn
	}
	if ln >= 0 && rn >= 0 && ln != rn {
		return nil, nil, 0, diagnostic.ErrUnsupportedOperation.WithFragment(s.fragment(), "column length mismatch")
	}
	return la, ra, n, nil
}

func applyBinary(op Opcode, a, b value.Value) (value.Value, error) {
	if a.IsUndefined() || b.IsUndefined() {
		return value.UndefinedValue(), nil
	}
	switch op {
	case OpAdd:
		return value.Add(a, b, value.OverflowError)
	case OpEq:
		return value.BoolValue(value.Compare(a, b) == 0), nil
	case OpNeq:
		return value.BoolValue(value.Compare(a, b) != 0), nil
	case OpLt:
		return value.BoolValue(value.Compare(a, b) < 0), nil
	case OpLte:
		return value.BoolValue(value.Compare(a, b) <= 0), nil
	case OpGt:
		return value.BoolValue(value.Compare(a, b) > 0), nil
	case OpGte:
		return value.BoolValue(value.Compare(a, b) >= 0), nil
	case OpAnd:
		return value.BoolValue(a.Bool() && b.Bool()), nil
	case OpOr:
		return value.BoolValue(a.Bool() || b.Bool()), nil
	default:
		return value.Value{}, diagnostic.ErrUnsupportedOperation
	}
}

// execNot negates a boolean scalar or column.
func execNot(s *VmState) error {
	v, err := s.popOperand()
	if err != nil {
		return err
	}
	switch v.Kind {
	case OperandScalar:
		if v.Scalar.IsUndefined() {
			return s.pushOperand(scalarOperand(value.UndefinedValue()))
		}
		return s.pushOperand(scalarOperand(value.BoolValue(!v.Scalar.Bool())))
	case OperandColumn:
		out := column.New(value.Bool)
		for row := 0; row < v.Col.Len(); row++ {
			cell := v.Col.At(row)
			if cell.IsUndefined() {
				if err := out.Append(value.UndefinedValue()); err != nil {
					return err
				}
				continue
			}
			if err := out.Append(value.BoolValue(!cell.Bool())); err != nil {
				return err
			}
		}
		return s.pushOperand(OperandValue{Kind: OperandColumn, Col: out})
	default:
		return diagnostic.ErrExpectedBoolean.WithFragment(s.fragment(), "operand")
	}
}
