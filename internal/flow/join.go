package flow

import (
	"encoding/json"

	"github.com/reifydb/reifydb/internal/value"
)

// JoinOperator implements spec.md §4.3.1's inner/left/natural Join via a
// per-side hash index keyed by the join expression. Join does not fit the
// single-input Operator contract (two distinct upstream edges feed it), so
// it exposes ApplyLeft/ApplyRight instead of Apply; the dispatcher routes
// a diff batch to whichever method matches the edge it arrived on,
// selected by comparing the batch's origin FlowNodeId against the node's
// two Inputs.
type JoinOperator struct {
	node     FlowNodeId
	kind     JoinKind
	leftKey  CompiledExpr
	rightKey CompiledExpr
}

func NewJoinOperator(node FlowNodeId, kind JoinKind, leftKey, rightKey CompiledExpr) *JoinOperator {
	return &JoinOperator{node: node, kind: kind, leftKey: leftKey, rightKey: rightKey}
}

type joinIndex map[string][]Row

var (
	joinLeftStateKey  = []byte("left")
	joinRightStateKey = []byte("right")
)

func (j *JoinOperator) loadIndex(txn *FlowTransaction, side []byte) (joinIndex, error) {
	raw, ok, err := txn.GetState(j.node, side)
	if err != nil {
		return nil, err
	}
	idx := make(joinIndex)
	if ok {
		if err := json.Unmarshal(raw, &idx); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (j *JoinOperator) saveIndex(txn *FlowTransaction, side []byte, idx joinIndex) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return txn.SetState(j.node, side, raw)
}

func (idx joinIndex) insert(key string, row Row) {
	idx[key] = append(idx[key], row)
}

func (idx joinIndex) remove(key string, rowNumber uint64) {
	rows := idx[key]
	for i, r := range rows {
		if r.RowNumber == rowNumber {
			rows = append(rows[:i:i], rows[i+1:]...)
			break
		}
	}
	if len(rows) == 0 {
		delete(idx, key)
	} else {
		idx[key] = rows
	}
}

// combine merges a left and right row into the joined output row. Column
// name collisions are resolved left-wins, matching how the teacher's
// SELECT * expansion prefers the first table in a USING join.
func combine(left, right Row) Row {
	out := Row{RowNumber: left.RowNumber, Columns: append([]string(nil), left.Columns...), Values: append([]value.Value(nil), left.Values...)}
	for i, c := range right.Columns {
		has := false
		for _, lc := range left.Columns {
			if lc == c {
				has = true
				break
			}
		}
		if !has {
			out.Columns = append(out.Columns, c)
			out.Values = append(out.Values, right.Values[i])
		}
	}
	return out
}

func (j *JoinOperator) applySide(txn *FlowTransaction, change Change, eval Evaluator, keyExpr CompiledExpr,
	own, other []byte, buildLeft func(own, other Row) Row) (Change, error) {
	ownIdx, err := j.loadIndex(txn, own)
	if err != nil {
		return nil, err
	}
	otherIdx, err := j.loadIndex(txn, other)
	if err != nil {
		return nil, err
	}

	var out Change
	emit := func(kind DiffKind, row Row) { out = append(out, Diff{Kind: kind, Post: row}) }

	for _, diff := range change {
		switch diff.Kind {
		case DiffInsert:
			key, err := eval.Eval(keyExpr, diff.Post)
			if err != nil {
				return nil, err
			}
			k := key.String()
			ownIdx.insert(k, diff.Post)
			matches := otherIdx[k]
			if len(matches) == 0 && j.kind == JoinLeft {
				emit(DiffInsert, buildLeft(diff.Post, Row{}))
				continue
			}
			for _, m := range matches {
				emit(DiffInsert, buildLeft(diff.Post, m))
			}
		case DiffRemove:
			key, err := eval.Eval(keyExpr, diff.Pre)
			if err != nil {
				return nil, err
			}
			k := key.String()
			ownIdx.remove(k, diff.Pre.RowNumber)
			matches := otherIdx[k]
			if len(matches) == 0 && j.kind == JoinLeft {
				out = append(out, Diff{Kind: DiffRemove, Pre: buildLeft(diff.Pre, Row{})})
				continue
			}
			for _, m := range matches {
				out = append(out, Diff{Kind: DiffRemove, Pre: buildLeft(diff.Pre, m)})
			}
		case DiffUpdate:
			oldKey, err := eval.Eval(keyExpr, diff.Pre)
			if err != nil {
				return nil, err
			}
			newKey, err := eval.Eval(keyExpr, diff.Post)
			if err != nil {
				return nil, err
			}
			ownIdx.remove(oldKey.String(), diff.Pre.RowNumber)
			ownIdx.insert(newKey.String(), diff.Post)
			for _, m := range otherIdx[oldKey.String()] {
				out = append(out, Diff{Kind: DiffRemove, Pre: buildLeft(diff.Pre, m)})
			}
			for _, m := range otherIdx[newKey.String()] {
				emit(DiffInsert, buildLeft(diff.Post, m))
			}
		}
	}

	if err := j.saveIndex(txn, own, ownIdx); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyLeft processes a batch of diffs arriving on the left input edge.
func (j *JoinOperator) ApplyLeft(txn *FlowTransaction, change Change, eval Evaluator) (Change, error) {
	return j.applySide(txn, change, eval, j.leftKey, joinLeftStateKey, joinRightStateKey, combine)
}

// ApplyRight processes a batch of diffs arriving on the right input edge.
func (j *JoinOperator) ApplyRight(txn *FlowTransaction, change Change, eval Evaluator) (Change, error) {
	return j.applySide(txn, change, eval, j.rightKey, joinRightStateKey, joinLeftStateKey,
		func(right, left Row) Row { return combine(left, right) })
}

func (j *JoinOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) { return nil, nil }
