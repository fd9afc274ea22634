package flow

import (
	"encoding/json"

	"github.com/reifydb/reifydb/internal/value"
)

// AggregateOperator implements spec.md §3.5.1's Aggregate: rows are
// grouped by AggregateGroup's expressions (hashed the same way Distinct
// hashes its key, §4.3.3) and each AggregateExpr is recomputed over the
// full current membership of a group whenever that group changes. This
// recompute-on-change approach trades incremental aggregation (e.g. a
// running sum) for correctness with arbitrary, possibly non-associative
// Reduce functions; it is the same tradeoff AggregateExpr's signature
// (a slice of member rows, not a fold step) already commits to.
type AggregateOperator struct {
	node    FlowNodeId
	group   []CompiledExpr
	exprs   []AggregateExpr
}

func NewAggregateOperator(node FlowNodeId, group []CompiledExpr, exprs []AggregateExpr) *AggregateOperator {
	return &AggregateOperator{node: node, group: group, exprs: exprs}
}

type aggregateGroupState struct {
	Order   []string         `json:"order"`
	Members map[string][]Row `json:"members"`
	Last    map[string]Row   `json:"last"` // last emitted synthetic result row, for Update/Remove diffing
}

func newAggregateGroupState() *aggregateGroupState {
	return &aggregateGroupState{Members: make(map[string][]Row), Last: make(map[string]Row)}
}

var aggregateStateKey = []byte("groups")

func (a *AggregateOperator) load(txn *FlowTransaction) (*aggregateGroupState, error) {
	raw, ok, err := txn.GetState(a.node, aggregateStateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newAggregateGroupState(), nil
	}
	var s aggregateGroupState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.Members == nil {
		s.Members = make(map[string][]Row)
	}
	if s.Last == nil {
		s.Last = make(map[string]Row)
	}
	return &s, nil
}

func (a *AggregateOperator) save(txn *FlowTransaction, s *aggregateGroupState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return txn.SetState(a.node, aggregateStateKey, raw)
}

func (a *AggregateOperator) groupKey(row Row, eval Evaluator) (string, error) {
	var key string
	for i, expr := range a.group {
		v, err := eval.Eval(expr, row)
		if err != nil {
			return "", err
		}
		if i > 0 {
			key += "\x00"
		}
		key += v.String()
	}
	return key, nil
}

func (a *AggregateOperator) result(key string, members []Row) (Row, error) {
	row := Row{RowNumber: members[0].RowNumber}
	row = row.With("group_key", value.Utf8Value(key))
	for _, e := range a.exprs {
		v, err := e.Reduce(members)
		if err != nil {
			return Row{}, err
		}
		row = row.With(e.Name, v)
	}
	return row, nil
}

func (a *AggregateOperator) Apply(txn *FlowTransaction, change Change, eval Evaluator) (Change, error) {
	s, err := a.load(txn)
	if err != nil {
		return nil, err
	}

	touched := map[string]bool{}
	for _, diff := range change {
		switch diff.Kind {
		case DiffInsert:
			key, err := a.groupKey(diff.Post, eval)
			if err != nil {
				return nil, err
			}
			if _, exists := s.Members[key]; !exists {
				s.Order = append(s.Order, key)
			}
			s.Members[key] = append(s.Members[key], diff.Post)
			touched[key] = true
		case DiffRemove:
			key, err := a.groupKey(diff.Pre, eval)
			if err != nil {
				return nil, err
			}
			if rest, ok := removeByRowNumber(s.Members[key], diff.Pre.RowNumber); ok {
				s.Members[key] = rest
			}
			touched[key] = true
		case DiffUpdate:
			oldKey, err := a.groupKey(diff.Pre, eval)
			if err != nil {
				return nil, err
			}
			newKey, err := a.groupKey(diff.Post, eval)
			if err != nil {
				return nil, err
			}
			if rest, ok := removeByRowNumber(s.Members[oldKey], diff.Pre.RowNumber); ok {
				s.Members[oldKey] = rest
			}
			if _, exists := s.Members[newKey]; !exists {
				s.Order = append(s.Order, newKey)
			}
			s.Members[newKey] = append(s.Members[newKey], diff.Post)
			touched[oldKey], touched[newKey] = true, true
		}
	}

	var out Change
	for key := range touched {
		members := s.Members[key]
		last, hadLast := s.Last[key]
		if len(members) == 0 {
			delete(s.Members, key)
			if hadLast {
				out = append(out, Diff{Kind: DiffRemove, Pre: last})
				delete(s.Last, key)
			}
			continue
		}
		next, err := a.result(key, members)
		if err != nil {
			return nil, err
		}
		if hadLast {
			out = append(out, Diff{Kind: DiffUpdate, Pre: last, Post: next})
		} else {
			out = append(out, Diff{Kind: DiffInsert, Post: next})
		}
		s.Last[key] = next
	}

	if err := a.save(txn, s); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *AggregateOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) {
	s, err := a.load(txn)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(s.Order))
	for _, key := range s.Order {
		if row, ok := s.Last[key]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}
