package vm

import (
	"testing"

	"github.com/reifydb/reifydb/internal/column"
	"github.com/reifydb/reifydb/internal/value"
)

func keyExpr(name string) CompiledExpr {
	return func(b *column.Columns, row int) (value.Value, error) {
		_, col, ok := b.ColumnByName(name)
		if !ok {
			return value.UndefinedValue(), nil
		}
		return col.Data.At(row), nil
	}
}

// TestApplyJoinInnerThroughBytecode drives a full join program: the right
// input is staged as a pipeline handle on the operand stack (PopPipeline
// with the transfer flag), then Apply(JoinInner) probes it against the
// left pipeline.
func TestApplyJoinInnerThroughBytecode(t *testing.T) {
	left := buildBatch(t, []string{"k", "l"}, []value.Type{value.Int64, value.Utf8}, [][]value.Value{
		{value.Int64Value(1), value.Utf8Value("a")},
		{value.Int64Value(2), value.Utf8Value("b")},
	})
	right := buildBatch(t, []string{"k", "r"}, []value.Type{value.Int64, value.Utf8}, [][]value.Value{
		{value.Int64Value(2), value.Utf8Value("x")},
	})

	p := &Program{
		Code: []Instr{
			{Op: OpInline},                    // left frame -> pipeline stack
			{Op: OpInline},                    // right frame -> pipeline stack
			{Op: OpPopPipeline, Flag: true},   // right pipeline -> operand handle
			{Op: OpPushExpr, Arg: 0},          // join key
			{Op: OpApply, Arg: int64(ApplyJoinInner)},
			{Op: OpCollect},
			{Op: OpHalt},
		},
		Exprs: []CompiledExpr{keyExpr("k")},
	}

	s := NewState(p, nil, nil, nil)
	// Operand seeding order: the first OpInline pops the left frame, the
	// second pops the right frame.
	if err := s.pushOperand(frameOperand(right)); err != nil {
		t.Fatalf("push right: %v", err)
	}
	if err := s.pushOperand(frameOperand(left)); err != nil {
		t.Fatalf("push left: %v", err)
	}
	if err := Exec(s); err != nil {
		t.Fatalf("exec: %v", err)
	}

	if s.result.Kind != OperandFrame {
		t.Fatalf("expected a frame result, got kind=%d", s.result.Kind)
	}
	out := s.result.Frame
	if out.Len() != 1 {
		t.Fatalf("expected 1 joined row, got %d", out.Len())
	}
	if out.Cols[0].Data.At(0).Int() != 2 || out.Cols[1].Data.At(0).Str() != "b" || out.Cols[3].Data.At(0).Str() != "x" {
		t.Fatalf("unexpected joined row: k=%v l=%v r=%v",
			out.Cols[0].Data.At(0), out.Cols[1].Data.At(0), out.Cols[3].Data.At(0))
	}
}

// TestApplyJoinLeftEmitsUnmatchedRowsWithNulls verifies Left semantics at
// the pipeline level: the unmatched left row appears with right fields
// null.
func TestApplyJoinLeftEmitsUnmatchedRowsWithNulls(t *testing.T) {
	left := buildBatch(t, []string{"k"}, []value.Type{value.Int64}, [][]value.Value{
		{value.Int64Value(1)},
		{value.Int64Value(2)},
	})
	right := buildBatch(t, []string{"k", "r"}, []value.Type{value.Int64, value.Utf8}, [][]value.Value{
		{value.Int64Value(2), value.Utf8Value("x")},
	})

	s := NewState(&Program{Exprs: []CompiledExpr{keyExpr("k")}}, nil, nil, nil)
	jp := &joinPipeline{
		kind:     ApplyJoinLeft,
		left:     &inlinePipeline{batch: left},
		right:    &inlinePipeline{batch: right},
		leftKey:  keyExpr("k"),
		rightKey: keyExpr("k"),
	}
	out, err := collectAll(s, jp)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("expected matched row plus unmatched left row, got %d", out.Len())
	}
	// The unmatched left row (k=1) carries nulls in the right columns.
	var unmatched int = -1
	for row := 0; row < out.Len(); row++ {
		if out.Cols[0].Data.At(row).Int() == 1 {
			unmatched = row
		}
	}
	if unmatched < 0 {
		t.Fatalf("expected the unmatched left row present")
	}
	if !out.Cols[2].Data.IsNull(unmatched) {
		t.Fatalf("expected right column null for the unmatched left row")
	}
}
