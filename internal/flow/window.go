package flow

import (
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/value"
)

// ValidateWindow checks the registration-time constraints spec.md §7
// names for Window nodes: a sliding window must carry a slide no larger
// than its size, and a non-zero slide is mandatory once WindowKind is
// WindowSliding (a tumbling window's slide is implicitly its size and is
// not user-supplied).
func ValidateWindow(node *FlowNode) error {
	if node.Type != NodeWindow || node.WindowKind != WindowSliding {
		return nil
	}
	if node.WindowSlide == 0 {
		return diagnostic.ErrWindowMissingSlideParameter
	}
	if node.WindowSlide > node.WindowSize {
		return diagnostic.ErrWindowSlideTooLarge
	}
	return nil
}

// WindowOperator groups rows into tumbling or sliding windows and
// aggregates each window's membership the same recompute-on-change way
// AggregateOperator does (spec.md §3.5.1). Windows are assigned by
// RowNumber, standing in for an event-time column: RowNumber is
// monotonically increasing at commit time (spec.md §3.3), giving window
// boundaries the same total order an explicit timestamp column would.
type WindowOperator struct {
	node  FlowNodeId
	kind  WindowKind
	size  int64
	slide int64
	exprs []AggregateExpr
	agg   *AggregateOperator
}

func NewWindowOperator(node FlowNodeId, kind WindowKind, size, slide int64, exprs []AggregateExpr) *WindowOperator {
	return &WindowOperator{node: node, kind: kind, size: size, slide: slide, exprs: exprs}
}

func (w *WindowOperator) bucketsFor(rowNumber uint64) []int64 {
	pos := int64(rowNumber)
	if w.kind == WindowTumbling || w.slide == 0 {
		return []int64{pos / w.size}
	}
	var buckets []int64
	first := ((pos - w.size + 1) / w.slide)
	if first < 0 {
		first = 0
	}
	for b := first; b*w.slide <= pos; b++ {
		start := b * w.slide
		if pos >= start && pos < start+w.size {
			buckets = append(buckets, b)
		}
	}
	return buckets
}

// bucketExpr projects a row to its bucket key(s) so AggregateOperator's
// existing group/state/diff machinery can be reused unchanged: a Window
// node is an Aggregate node whose group key is "which bucket(s) contain
// this row" instead of an arbitrary expression. Since one row can belong
// to more than one sliding bucket, Apply fans each diff out once per
// bucket before delegating.
func (w *WindowOperator) Apply(txn *FlowTransaction, change Change, eval Evaluator) (Change, error) {
	if w.agg == nil {
		w.agg = NewAggregateOperator(w.node, []CompiledExpr{w.bucketExpr()}, w.exprs)
	}
	var out Change
	for _, diff := range change {
		rowNumber := diff.Post.RowNumber
		if diff.Kind == DiffRemove {
			rowNumber = diff.Pre.RowNumber
		}
		for _, bucket := range w.bucketsFor(rowNumber) {
			d := diff
			d.Post = withBucket(d.Post, bucket)
			d.Pre = withBucket(d.Pre, bucket)
			sub, err := w.agg.Apply(txn, Change{d}, eval)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return out, nil
}

func withBucket(row Row, bucket int64) Row {
	if row.Columns == nil && row.RowNumber == 0 {
		return row
	}
	return row.With("_window_bucket", value.Int64Value(bucket))
}

func (w *WindowOperator) bucketExpr() CompiledExpr {
	return func(row Row) (value.Value, error) { return row.Get("_window_bucket"), nil }
}

func (w *WindowOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) {
	if w.agg == nil {
		w.agg = NewAggregateOperator(w.node, []CompiledExpr{w.bucketExpr()}, w.exprs)
	}
	return w.agg.Pull(txn, rows)
}
