package vm

import (
	"fmt"

	"github.com/reifydb/reifydb/internal/column"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/value"
)

// ScalarContext is the argument a built-in scalar function receives: the
// input columns (already evaluated argument expressions), the row count
// its output must match, and the source fragment for diagnostics.
type ScalarContext struct {
	Columns  *column.Columns
	RowCount int
	Fragment string
}

// ScalarFunction is the interface built-in scalar function bodies
// implement. The body lives outside the core; the VM only requires that
// Scalar produce a column of exactly ctx.RowCount values and never read
// past that bound.
type ScalarFunction interface {
	Name() string
	Scalar(ctx ScalarContext) (*column.Data, error)
}

// PropagateNulls applies the default null policy to a function's output:
// any row where at least one input cell is null becomes null in the
// output, regardless of what the function computed there. Functions that
// handle nulls themselves (e.g. coalesce) skip this helper.
func PropagateNulls(in *column.Columns, out *column.Data) (*column.Data, error) {
	res := column.New(out.Ty)
	for row := 0; row < out.Len(); row++ {
		anyNull := false
		for _, c := range in.Cols {
			if c.Data.IsNull(row) {
				anyNull = true
				break
			}
		}
		v := value.UndefinedValue()
		if !anyNull {
			v = out.At(row)
		}
		if err := res.Append(v); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// execCallBuiltin implements CallBuiltin: pops the argument Frame, invokes
// the indexed built-in, validates its output length, and pushes the result
// column.
func execCallBuiltin(s *VmState, idx int) error {
	if idx < 0 || idx >= len(s.Program.Builtins) {
		return diagnostic.ErrUnsupportedOperation.WithFragment(s.fragment(), "builtin index")
	}
	fn := s.Program.Builtins[idx]

	frameOp, err := s.popOperand()
	if err != nil {
		return err
	}
	if frameOp.Kind != OperandFrame {
		return diagnostic.ErrExpectedPipeline.WithFragment(s.fragment(), "builtin arguments")
	}
	args := frameOp.Frame

	out, err := fn.Scalar(ScalarContext{Columns: args, RowCount: args.Len(), Fragment: s.fragment()})
	if err != nil {
		return err
	}
	if out.Len() != args.Len() {
		return diagnostic.ErrUnsupportedOperation.
			WithFragment(s.fragment(), fmt.Sprintf("builtin %s returned %d rows, expected %d", fn.Name(), out.Len(), args.Len()))
	}
	return s.pushOperand(OperandValue{Kind: OperandColumn, Col: out})
}
