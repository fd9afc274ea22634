package flow

import (
	"errors"
	"testing"

	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/value"
)

func gt10Expr() CompiledExpr {
	return func(row Row) (value.Value, error) {
		return value.BoolValue(row.Get("c1").Int() > 10), nil
	}
}

// TestFilterReclassifiesBoundaryCrossingUpdate verifies an Update whose
// match status flips at the predicate boundary becomes an Insert or a
// Remove, never a ghost Update for a row the downstream never saw.
func TestFilterReclassifiesBoundaryCrossingUpdate(t *testing.T) {
	txn := newFlowTxn()
	op := NewFilterOperator([]CompiledExpr{gt10Expr()})
	eval := DefaultEvaluator{}

	enter := Diff{Kind: DiffUpdate, Pre: c1Row(1, 5, "x"), Post: c1Row(1, 15, "x")}
	out, err := op.Apply(txn, Change{enter}, eval)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out) != 1 || out[0].Kind != DiffInsert || out[0].Post.Get("c1").Int() != 15 {
		t.Fatalf("expected a non-matching->matching update to become Insert, got %+v", out)
	}

	leave := Diff{Kind: DiffUpdate, Pre: c1Row(1, 15, "x"), Post: c1Row(1, 5, "x")}
	out, err = op.Apply(txn, Change{leave}, eval)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out) != 1 || out[0].Kind != DiffRemove || out[0].Pre.Get("c1").Int() != 15 {
		t.Fatalf("expected a matching->non-matching update to become Remove, got %+v", out)
	}

	stay := Diff{Kind: DiffUpdate, Pre: c1Row(1, 15, "x"), Post: c1Row(1, 20, "x")}
	out, err = op.Apply(txn, Change{stay}, eval)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(out) != 1 || out[0].Kind != DiffUpdate {
		t.Fatalf("expected an in-set update to stay an Update, got %+v", out)
	}
}

// TestTakePromotesWaitingRowOnRemove covers Take's top-N maintenance: a
// row beyond the limit waits silently, and removing an emitted row
// promotes the oldest waiting row with a fresh Insert.
func TestTakePromotesWaitingRowOnRemove(t *testing.T) {
	txn := newFlowTxn()
	op := NewTakeOperator(1, 2)
	eval := DefaultEvaluator{}

	rows := []Row{c1Row(1, 1, "a"), c1Row(2, 2, "b"), c1Row(3, 3, "c")}
	out, err := op.Apply(txn, Change{
		{Kind: DiffInsert, Post: rows[0]},
		{Kind: DiffInsert, Post: rows[1]},
		{Kind: DiffInsert, Post: rows[2]},
	}, eval)
	if err != nil {
		t.Fatalf("apply inserts: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected only 2 of 3 inserts emitted at limit 2, got %d", len(out))
	}

	out, err = op.Apply(txn, Change{{Kind: DiffRemove, Pre: rows[0]}}, eval)
	if err != nil {
		t.Fatalf("apply remove: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected Remove plus promotion Insert, got %+v", out)
	}
	if out[0].Kind != DiffRemove || out[0].Pre.RowNumber != 1 {
		t.Fatalf("expected Remove of row 1 first, got %+v", out[0])
	}
	if out[1].Kind != DiffInsert || out[1].Post.RowNumber != 3 {
		t.Fatalf("expected waiting row 3 promoted, got %+v", out[1])
	}
}

// TestValidateWindowBoundaries covers the registration boundaries from
// the error design: a sliding window with slide 0 and one with slide
// greater than size are both rejected.
func TestValidateWindowBoundaries(t *testing.T) {
	missing := &FlowNode{Type: NodeWindow, WindowKind: WindowSliding, WindowSize: 10, WindowSlide: 0}
	if err := ValidateWindow(missing); !errors.Is(err, diagnostic.ErrWindowMissingSlideParameter) {
		t.Fatalf("expected missing-slide rejection, got %v", err)
	}

	tooLarge := &FlowNode{Type: NodeWindow, WindowKind: WindowSliding, WindowSize: 10, WindowSlide: 11}
	if err := ValidateWindow(tooLarge); !errors.Is(err, diagnostic.ErrWindowSlideTooLarge) {
		t.Fatalf("expected slide-too-large rejection, got %v", err)
	}

	ok := &FlowNode{Type: NodeWindow, WindowKind: WindowSliding, WindowSize: 10, WindowSlide: 5}
	if err := ValidateWindow(ok); err != nil {
		t.Fatalf("expected valid sliding window accepted, got %v", err)
	}

	tumbling := &FlowNode{Type: NodeWindow, WindowKind: WindowTumbling, WindowSize: 10}
	if err := ValidateWindow(tumbling); err != nil {
		t.Fatalf("expected tumbling window to need no slide, got %v", err)
	}
}

// TestJoinInnerEmitsOnMatchingInsert verifies the incremental hash join:
// a left insert with no right match emits nothing (inner), and a later
// right insert with the matching key emits the combined row.
func TestJoinInnerEmitsOnMatchingInsert(t *testing.T) {
	txn := newFlowTxn()
	keyExpr := func(row Row) (value.Value, error) { return row.Get("k"), nil }
	op := NewJoinOperator(1, JoinInner, keyExpr, keyExpr)
	eval := DefaultEvaluator{}

	left := Row{RowNumber: 1, Columns: []string{"k", "l"}, Values: []value.Value{value.Int64Value(7), value.Utf8Value("left")}}
	out, err := op.ApplyLeft(txn, Change{{Kind: DiffInsert, Post: left}}, eval)
	if err != nil {
		t.Fatalf("apply left: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no inner-join emission without a right match, got %+v", out)
	}

	right := Row{RowNumber: 2, Columns: []string{"k", "r"}, Values: []value.Value{value.Int64Value(7), value.Utf8Value("right")}}
	out, err = op.ApplyRight(txn, Change{{Kind: DiffInsert, Post: right}}, eval)
	if err != nil {
		t.Fatalf("apply right: %v", err)
	}
	if len(out) != 1 || out[0].Kind != DiffInsert {
		t.Fatalf("expected one joined Insert, got %+v", out)
	}
	joined := out[0].Post
	if joined.Get("l").Str() != "left" || joined.Get("r").Str() != "right" {
		t.Fatalf("expected combined row with both sides' columns, got %+v", joined)
	}
}

// TestLeftJoinEmitsUnmatchedLeftRow verifies left-join semantics: an
// unmatched left insert is emitted with the right side absent.
func TestLeftJoinEmitsUnmatchedLeftRow(t *testing.T) {
	txn := newFlowTxn()
	keyExpr := func(row Row) (value.Value, error) { return row.Get("k"), nil }
	op := NewJoinOperator(1, JoinLeft, keyExpr, keyExpr)
	eval := DefaultEvaluator{}

	left := Row{RowNumber: 1, Columns: []string{"k"}, Values: []value.Value{value.Int64Value(7)}}
	out, err := op.ApplyLeft(txn, Change{{Kind: DiffInsert, Post: left}}, eval)
	if err != nil {
		t.Fatalf("apply left: %v", err)
	}
	if len(out) != 1 || out[0].Kind != DiffInsert || out[0].Post.Get("k").Int() != 7 {
		t.Fatalf("expected unmatched left row emitted under left join, got %+v", out)
	}
}

// TestAggregateRecomputesGroupOnMembershipChange verifies the
// recompute-on-change aggregate: inserts produce an Insert then Updates
// of the group row, and draining the group emits its Remove.
func TestAggregateRecomputesGroupOnMembershipChange(t *testing.T) {
	txn := newFlowTxn()
	groupExpr := func(row Row) (value.Value, error) { return row.Get("c2"), nil }
	sum := AggregateExpr{Name: "sum", Reduce: func(group []Row) (value.Value, error) {
		var total int64
		for _, r := range group {
			total += r.Get("c1").Int()
		}
		return value.Int64Value(total), nil
	}}
	op := NewAggregateOperator(1, []CompiledExpr{groupExpr}, []AggregateExpr{sum})
	eval := DefaultEvaluator{}

	out, err := op.Apply(txn, Change{{Kind: DiffInsert, Post: c1Row(1, 10, "g")}}, eval)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if len(out) != 1 || out[0].Kind != DiffInsert || out[0].Post.Get("sum").Int() != 10 {
		t.Fatalf("expected group Insert with sum=10, got %+v", out)
	}

	out, err = op.Apply(txn, Change{{Kind: DiffInsert, Post: c1Row(2, 5, "g")}}, eval)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if len(out) != 1 || out[0].Kind != DiffUpdate || out[0].Post.Get("sum").Int() != 15 {
		t.Fatalf("expected group Update with sum=15, got %+v", out)
	}

	out, err = op.Apply(txn, Change{
		{Kind: DiffRemove, Pre: c1Row(1, 10, "g")},
		{Kind: DiffRemove, Pre: c1Row(2, 5, "g")},
	}, eval)
	if err != nil {
		t.Fatalf("removes: %v", err)
	}
	if len(out) != 1 || out[0].Kind != DiffRemove {
		t.Fatalf("expected group Remove when membership drains, got %+v", out)
	}
}
