package vm

import (
	"testing"

	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/column"
	"github.com/reifydb/reifydb/internal/value"
)

func runProgram(t *testing.T, p *Program, cat *catalog.Catalog) *VmState {
	t.Helper()
	s := NewState(p, cat, nil, nil)
	if err := Exec(s); err != nil {
		t.Fatalf("exec: %v", err)
	}
	return s
}

// TestScalarArithmeticAndComparison runs a small program exercising the
// scalar opcode family end to end: (1 + 2) > 2 must leave true on the
// operand stack.
func TestScalarArithmeticAndComparison(t *testing.T) {
	p := &Program{
		Code: []Instr{
			{Op: OpPushConst, Arg: 0},
			{Op: OpPushConst, Arg: 1},
			{Op: OpAdd},
			{Op: OpPushConst, Arg: 1},
			{Op: OpGt},
			{Op: OpHalt},
		},
		Consts: []value.Value{value.Int64Value(1), value.Int64Value(2)},
	}
	s := runProgram(t, p, nil)
	if s.result.Kind != OperandScalar || !s.result.Scalar.Bool() {
		t.Fatalf("expected (1+2) > 2 to leave true, got %+v", s.result)
	}
}

// TestScalarAddOverflowSurfaces verifies the default overflow policy
// rejects a wrapping add instead of silently corrupting the result.
func TestScalarAddOverflowSurfaces(t *testing.T) {
	p := &Program{
		Code: []Instr{
			{Op: OpPushConst, Arg: 0},
			{Op: OpPushConst, Arg: 0},
			{Op: OpAdd},
			{Op: OpHalt},
		},
		Consts: []value.Value{value.Int64Value(1 << 62)},
	}
	s := NewState(p, nil, nil, nil)
	if err := Exec(s); err == nil {
		t.Fatalf("expected int64 overflow to surface as an error")
	}
}

// TestColumnarComparisonBroadcastsScalar verifies a column compared
// against a scalar produces a row-aligned boolean column with nulls
// propagated.
func TestColumnarComparisonBroadcastsScalar(t *testing.T) {
	col := column.New(value.Int64)
	for _, v := range []value.Value{value.Int64Value(5), value.UndefinedValue(), value.Int64Value(15)} {
		if err := col.Append(v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	s := NewState(&Program{Consts: []value.Value{value.Int64Value(10)}}, nil, nil, nil)
	if err := s.pushOperand(OperandValue{Kind: OperandColumn, Col: col}); err != nil {
		t.Fatalf("push column: %v", err)
	}
	if err := s.pushOperand(scalarOperand(value.Int64Value(10))); err != nil {
		t.Fatalf("push scalar: %v", err)
	}
	if err := execBinary(s, OpGt); err != nil {
		t.Fatalf("execBinary: %v", err)
	}

	out, err := s.popOperand()
	if err != nil || out.Kind != OperandColumn {
		t.Fatalf("expected a column result, got %+v err=%v", out, err)
	}
	if out.Col.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", out.Col.Len())
	}
	if out.Col.At(0).Bool() {
		t.Fatalf("expected 5 > 10 to be false")
	}
	if !out.Col.IsNull(1) {
		t.Fatalf("expected null input to propagate to null output")
	}
	if !out.Col.At(2).Bool() {
		t.Fatalf("expected 15 > 10 to be true")
	}
}

// TestNotNegatesScalarAndPropagatesNull covers the unary logical opcode.
func TestNotNegatesScalarAndPropagatesNull(t *testing.T) {
	s := NewState(&Program{}, nil, nil, nil)
	if err := s.pushOperand(scalarOperand(value.BoolValue(true))); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := execNot(s); err != nil {
		t.Fatalf("execNot: %v", err)
	}
	out, _ := s.popOperand()
	if out.Scalar.Bool() {
		t.Fatalf("expected !true == false")
	}

	if err := s.pushOperand(scalarOperand(value.UndefinedValue())); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := execNot(s); err != nil {
		t.Fatalf("execNot undefined: %v", err)
	}
	out, _ = s.popOperand()
	if !out.Scalar.IsUndefined() {
		t.Fatalf("expected !null == null")
	}
}

type doubleFn struct{}

func (doubleFn) Name() string { return "test_double" }

func (doubleFn) Scalar(ctx ScalarContext) (*column.Data, error) {
	out := column.New(value.Int64)
	in := ctx.Columns.Cols[0].Data
	for row := 0; row < ctx.RowCount; row++ {
		if err := out.Append(value.Int64Value(in.At(row).Int() * 2)); err != nil {
			return nil, err
		}
	}
	return PropagateNulls(ctx.Columns, out)
}

// TestCallBuiltinProducesRowAlignedColumn verifies OpCallBuiltin invokes
// the registered ScalarFunction against a Frame of arguments and pushes
// its output column, with nulls propagated per the default policy.
func TestCallBuiltinProducesRowAlignedColumn(t *testing.T) {
	batch := buildBatch(t, []string{"c1"}, []value.Type{value.Int64}, [][]value.Value{
		{value.Int64Value(3)},
		{value.UndefinedValue()},
		{value.Int64Value(7)},
	})

	p := &Program{
		Code: []Instr{
			{Op: OpCallBuiltin, Arg: 0},
			{Op: OpHalt},
		},
		Builtins: []ScalarFunction{doubleFn{}},
	}
	s := NewState(p, nil, nil, nil)
	if err := s.pushOperand(frameOperand(batch)); err != nil {
		t.Fatalf("push frame: %v", err)
	}
	if err := Exec(s); err != nil {
		t.Fatalf("exec: %v", err)
	}

	if s.result.Kind != OperandColumn {
		t.Fatalf("expected a column result, got kind=%d", s.result.Kind)
	}
	col := s.result.Col
	if col.Len() != 3 {
		t.Fatalf("expected output length to match row count, got %d", col.Len())
	}
	if col.At(0).Int() != 6 || col.At(2).Int() != 14 {
		t.Fatalf("expected doubled values [6,_,14], got [%d,_,%d]", col.At(0).Int(), col.At(2).Int())
	}
	if !col.IsNull(1) {
		t.Fatalf("expected null input row to stay null in the output")
	}
}

// TestEvalMapWithoutInputYieldsOneRow covers the no-source pipeline
// opcode: evaluating constant expressions with no upstream scan produces
// a single synthetic row.
func TestEvalMapWithoutInputYieldsOneRow(t *testing.T) {
	p := &Program{
		Code: []Instr{
			{Op: OpEvalMapWithoutInput, Arg: 0},
			{Op: OpCollect},
			{Op: OpHalt},
		},
		ExtSpecs: []ExtSpec{{
			Names: []string{"three"},
			Exprs: []CompiledExpr{func(*column.Columns, int) (value.Value, error) {
				return value.Int64Value(3), nil
			}},
		}},
	}
	s := runProgram(t, p, nil)
	if s.result.Kind != OperandFrame || s.result.Frame.Len() != 1 {
		t.Fatalf("expected a single-row frame, got %+v", s.result)
	}
	_, col, ok := s.result.Frame.ColumnByName("three")
	if !ok || col.Data.At(0).Int() != 3 {
		t.Fatalf("expected column three=3, got %+v", s.result.Frame)
	}
}

// TestInternalVarsAreInvocationScoped covers the compiler-synthesized
// variable slots: stored values round-trip within one invocation and an
// unset slot loads as Undefined.
func TestInternalVarsAreInvocationScoped(t *testing.T) {
	p := &Program{
		Code: []Instr{
			{Op: OpPushConst, Arg: 0},
			{Op: OpStoreInternal, Arg: 42},
			{Op: OpLoadInternal, Arg: 42},
			{Op: OpHalt},
		},
		Consts: []value.Value{value.Int64Value(9)},
	}
	s := runProgram(t, p, nil)
	if s.result.Kind != OperandScalar || s.result.Scalar.Int() != 9 {
		t.Fatalf("expected stored internal var 9, got %+v", s.result)
	}

	fresh := NewState(p, nil, nil, nil)
	fresh.ip = 2 // skip the store; the slot must read as Undefined
	if err := Exec(fresh); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if !fresh.result.Scalar.IsUndefined() {
		t.Fatalf("expected an unset internal slot to load Undefined, got %+v", fresh.result)
	}
}
