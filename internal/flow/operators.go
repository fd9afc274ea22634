package flow

import (
	"encoding/json"
	"sort"

	"github.com/reifydb/reifydb/internal/value"
)

// FilterOperator implements spec.md §4.3.1's Filter: emits a diff only
// for rows where the conjunctive predicate holds, reclassifying an
// Update whose match status flips at the predicate boundary into an
// Insert or Remove so downstream operators never see a "ghost" Update
// for a row they never received.
type FilterOperator struct {
	exprs []CompiledExpr
}

func NewFilterOperator(exprs []CompiledExpr) *FilterOperator { return &FilterOperator{exprs: exprs} }

func (f *FilterOperator) matches(row Row, eval Evaluator) (bool, error) {
	for _, expr := range f.exprs {
		v, err := eval.Eval(expr, row)
		if err != nil {
			return false, err
		}
		if v.IsUndefined() || !v.Bool() {
			return false, nil
		}
	}
	return true, nil
}

func (f *FilterOperator) Apply(_ *FlowTransaction, change Change, eval Evaluator) (Change, error) {
	var out Change
	for _, diff := range change {
		switch diff.Kind {
		case DiffInsert:
			ok, err := f.matches(diff.Post, eval)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, diff)
			}
		case DiffRemove:
			ok, err := f.matches(diff.Pre, eval)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, diff)
			}
		case DiffUpdate:
			preOk, err := f.matches(diff.Pre, eval)
			if err != nil {
				return nil, err
			}
			postOk, err := f.matches(diff.Post, eval)
			if err != nil {
				return nil, err
			}
			switch {
			case preOk && postOk:
				out = append(out, diff)
			case preOk && !postOk:
				out = append(out, Diff{Kind: DiffRemove, Pre: diff.Pre})
			case !preOk && postOk:
				out = append(out, Diff{Kind: DiffInsert, Post: diff.Post})
			}
		}
	}
	return out, nil
}

func (f *FilterOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) { return nil, nil }

// projector rebuilds a row's columns from a set of named expressions,
// shared by MapOperator (replace columns) and ExtendOperator (append
// columns) per spec.md §4.3.1: "Map{expressions} produces new columns;
// Extend preserves input columns and appends new ones."
type projector struct {
	names  []string
	exprs  []CompiledExpr
	extend bool
}

func (p *projector) project(row Row, eval Evaluator) (Row, error) {
	out := row
	if !p.extend {
		out = Row{RowNumber: row.RowNumber}
	}
	for i, expr := range p.exprs {
		v, err := eval.Eval(expr, row)
		if err != nil {
			return Row{}, err
		}
		out = out.With(p.names[i], v)
	}
	return out, nil
}

// MapOperator replaces a row's columns with the projection's output.
type MapOperator struct{ p *projector }

func NewMapOperator(names []string, exprs []CompiledExpr) *MapOperator {
	return &MapOperator{p: &projector{names: names, exprs: exprs}}
}

func (m *MapOperator) Apply(_ *FlowTransaction, change Change, eval Evaluator) (Change, error) {
	return mapChange(change, func(r Row) (Row, error) { return m.p.project(r, eval) })
}

func (m *MapOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) { return nil, nil }

// ExtendOperator appends computed columns to the input row.
type ExtendOperator struct{ p *projector }

func NewExtendOperator(names []string, exprs []CompiledExpr) *ExtendOperator {
	return &ExtendOperator{p: &projector{names: names, exprs: exprs, extend: true}}
}

func (e *ExtendOperator) Apply(_ *FlowTransaction, change Change, eval Evaluator) (Change, error) {
	return mapChange(change, func(r Row) (Row, error) { return e.p.project(r, eval) })
}

func (e *ExtendOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) { return nil, nil }

func mapChange(change Change, fn func(Row) (Row, error)) (Change, error) {
	out := make(Change, 0, len(change))
	for _, diff := range change {
		d := diff
		if d.Kind == DiffInsert || d.Kind == DiffUpdate {
			p, err := fn(d.Post)
			if err != nil {
				return nil, err
			}
			d.Post = p
		}
		out = append(out, d)
	}
	return out, nil
}

// AppendOperator implements spec.md §3.5.1's `Append`: concatenates
// multiple input streams into one, passing every diff through unchanged.
// It exists as a named node so registration can route more than one
// upstream edge into a single downstream consumer.
type AppendOperator struct{}

func NewAppendOperator() *AppendOperator { return &AppendOperator{} }

func (a *AppendOperator) Apply(_ *FlowTransaction, change Change, _ Evaluator) (Change, error) {
	return change, nil
}

func (a *AppendOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) { return nil, nil }

// ApplyFn is a user-supplied extension hook for ApplyOperator, spec.md
// §3.5.1's `Apply` "extension operator" — a named escape hatch for
// transformations that don't fit the built-in operator vocabulary.
type ApplyFn func(change Change) (Change, error)

type ApplyOperator struct{ fn ApplyFn }

func NewApplyOperator(fn ApplyFn) *ApplyOperator { return &ApplyOperator{fn: fn} }

func (a *ApplyOperator) Apply(_ *FlowTransaction, change Change, _ Evaluator) (Change, error) {
	return a.fn(change)
}

func (a *ApplyOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) { return nil, nil }

// SortOperator maintains the full set of live input rows as per-node
// state (keyed by RowNumber) and forwards diffs unchanged — a Sort node
// does not change which rows exist, only their presentation order, which
// Pull serves. This mirrors how a materialized view's read path, not its
// write path, is where ordering is realized.
type SortOperator struct {
	node FlowNodeId
	keys []SortKey
}

func NewSortOperator(node FlowNodeId, keys []SortKey) *SortOperator {
	return &SortOperator{node: node, keys: keys}
}

var sortStateKey = []byte("rows")

func (s *SortOperator) loadRows(txn *FlowTransaction) (map[uint64]Row, error) {
	raw, ok, err := txn.GetState(s.node, sortStateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return make(map[uint64]Row), nil
	}
	var rows map[uint64]Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *SortOperator) saveRows(txn *FlowTransaction, rows map[uint64]Row) error {
	raw, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return txn.SetState(s.node, sortStateKey, raw)
}

func (s *SortOperator) Apply(txn *FlowTransaction, change Change, _ Evaluator) (Change, error) {
	rows, err := s.loadRows(txn)
	if err != nil {
		return nil, err
	}
	for _, diff := range change {
		switch diff.Kind {
		case DiffInsert:
			rows[diff.Post.RowNumber] = diff.Post
		case DiffUpdate:
			rows[diff.Post.RowNumber] = diff.Post
		case DiffRemove:
			delete(rows, diff.Pre.RowNumber)
		}
	}
	if err := s.saveRows(txn, rows); err != nil {
		return nil, err
	}
	return change, nil
}

func (s *SortOperator) less(a, b Row) bool {
	for _, key := range s.keys {
		av, bv := a.Get(key.Column), b.Get(key.Column)
		cmp := value.Compare(av, bv)
		if cmp == 0 {
			continue
		}
		if !key.Ascending {
			cmp = -cmp
		}
		return cmp < 0
	}
	return a.RowNumber < b.RowNumber
}

// Pull returns every live row in sort order; rows is accepted for
// interface symmetry with other operators but ignored, since a Sort
// node's whole purpose is to serve its full ordered set to its sink.
func (s *SortOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) {
	live, err := s.loadRows(txn)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(live))
	for _, r := range live {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return s.less(out[i], out[j]) })
	return out, nil
}

// TakeOperator implements spec.md §3.5.1's `Take`: a bounded top-N by
// arrival order. Rows beyond the limit are buffered but not emitted;
// removing an emitted row promotes the oldest waiting row, if any.
type TakeOperator struct {
	node  FlowNodeId
	limit int
}

func NewTakeOperator(node FlowNodeId, limit int) *TakeOperator {
	return &TakeOperator{node: node, limit: limit}
}

var takeStateKey = []byte("order")

type takeState struct {
	Emitted []Row `json:"emitted"`
	Waiting []Row `json:"waiting"`
}

func (t *TakeOperator) load(txn *FlowTransaction) (*takeState, error) {
	raw, ok, err := txn.GetState(t.node, takeStateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &takeState{}, nil
	}
	var s takeState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *TakeOperator) save(txn *FlowTransaction, s *takeState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return txn.SetState(t.node, takeStateKey, raw)
}

func removeByRowNumber(rows []Row, rn uint64) ([]Row, bool) {
	for i, r := range rows {
		if r.RowNumber == rn {
			return append(rows[:i:i], rows[i+1:]...), true
		}
	}
	return rows, false
}

func (t *TakeOperator) Apply(txn *FlowTransaction, change Change, _ Evaluator) (Change, error) {
	s, err := t.load(txn)
	if err != nil {
		return nil, err
	}

	var out Change
	for _, diff := range change {
		switch diff.Kind {
		case DiffInsert:
			if len(s.Emitted) < t.limit {
				s.Emitted = append(s.Emitted, diff.Post)
				out = append(out, diff)
			} else {
				s.Waiting = append(s.Waiting, diff.Post)
			}
		case DiffRemove:
			if rest, ok := removeByRowNumber(s.Emitted, diff.Pre.RowNumber); ok {
				s.Emitted = rest
				out = append(out, diff)
				if len(s.Waiting) > 0 {
					promoted := s.Waiting[0]
					s.Waiting = s.Waiting[1:]
					s.Emitted = append(s.Emitted, promoted)
					out = append(out, Diff{Kind: DiffInsert, Post: promoted})
				}
			} else if rest, ok := removeByRowNumber(s.Waiting, diff.Pre.RowNumber); ok {
				s.Waiting = rest
			}
		case DiffUpdate:
			if rest, ok := removeByRowNumber(s.Emitted, diff.Pre.RowNumber); ok {
				rest = append(rest, diff.Post)
				s.Emitted = rest
				out = append(out, diff)
			} else if rest, ok := removeByRowNumber(s.Waiting, diff.Pre.RowNumber); ok {
				s.Waiting = append(rest, diff.Post)
			}
		}
	}

	if err := t.save(txn, s); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *TakeOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) {
	s, err := t.load(txn)
	if err != nil {
		return nil, err
	}
	return s.Emitted, nil
}
