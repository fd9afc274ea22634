package flow

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// distinctHash is the 128-bit row key spec.md §4.3.3 calls Hash128,
// obtained by hashing the concatenated textual row representation twice,
// once as is and once behind a fixed salt prefix (xxhash/v2 is only a 64-bit hash; two salted passes
// give the low collision risk the spec's illustrative xxh3_128 wants
// without pulling in a second hashing library — noted in DESIGN.md).
type distinctHash [16]byte

func hashRow(textual string) distinctHash {
	var h distinctHash
	binary.BigEndian.PutUint64(h[:8], xxhash.Sum64String(textual))
	binary.BigEndian.PutUint64(h[8:], xxhash.Sum64String("\x00salt\x00"+textual))
	return h
}

func (h distinctHash) String() string { return fmt.Sprintf("%x", [16]byte(h)) }

// distinctEntry is spec.md §4.3.3's DistinctEntry.
type distinctEntry struct {
	Count    uint64 `json:"count"`
	FirstRow Row    `json:"first_row"`
}

// distinctState is the serialized per-node record (InsertionOrderedMap via
// parallel Order/Entries fields, since Go maps have no stable iteration
// order and the spec requires insertion order on the entries map).
type distinctState struct {
	Order   []string                  `json:"order"`
	Entries map[string]*distinctEntry `json:"entries"`
}

func newDistinctState() *distinctState {
	return &distinctState{Entries: make(map[string]*distinctEntry)}
}

func (s *distinctState) get(key string) (*distinctEntry, bool) {
	e, ok := s.Entries[key]
	return e, ok
}

func (s *distinctState) put(key string, e *distinctEntry) {
	if _, exists := s.Entries[key]; !exists {
		s.Order = append(s.Order, key)
	}
	s.Entries[key] = e
}

func (s *distinctState) remove(key string) {
	delete(s.Entries, key)
	for i, k := range s.Order {
		if k == key {
			s.Order = append(s.Order[:i], s.Order[i+1:]...)
			break
		}
	}
}

// DistinctOperator implements spec.md §4.3.3.
type DistinctOperator struct {
	node  FlowNodeId
	exprs []CompiledExpr
}

func NewDistinctOperator(node FlowNodeId, exprs []CompiledExpr) *DistinctOperator {
	return &DistinctOperator{node: node, exprs: exprs}
}

var distinctStateKey = []byte("state")

func (d *DistinctOperator) loadState(txn *FlowTransaction) (*distinctState, error) {
	raw, ok, err := txn.GetState(d.node, distinctStateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newDistinctState(), nil
	}
	var s distinctState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.Entries == nil {
		s.Entries = make(map[string]*distinctEntry)
	}
	return &s, nil
}

func (d *DistinctOperator) saveState(txn *FlowTransaction, s *distinctState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return txn.SetState(d.node, distinctStateKey, raw)
}

// rowKey evaluates the distinct expressions over row and hashes their
// concatenated textual representation (spec.md §4.3.3).
func (d *DistinctOperator) rowKey(row Row, eval Evaluator) (string, error) {
	var b strings.Builder
	for i, expr := range d.exprs {
		v, err := eval.Eval(expr, row)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(v.String())
	}
	return hashRow(b.String()).String(), nil
}

// Apply runs the per-diff state machine in spec.md §4.3.3: Insert bumps a
// new or existing entry's count, emitting an Insert only on first
// occurrence; Remove decrements, emitting a Remove of the stored
// first_row only when the count reaches zero; Update either replaces the
// stored row in place (same key) or is split into a decrement of the old
// key and an increment of the new one.
func (d *DistinctOperator) Apply(txn *FlowTransaction, change Change, eval Evaluator) (Change, error) {
	state, err := d.loadState(txn)
	if err != nil {
		return nil, err
	}

	var out Change
	for _, diff := range change {
		switch diff.Kind {
		case DiffInsert:
			key, err := d.rowKey(diff.Post, eval)
			if err != nil {
				return nil, err
			}
			if e, ok := state.get(key); ok {
				e.Count++
			} else {
				state.put(key, &distinctEntry{Count: 1, FirstRow: diff.Post})
				out = append(out, Diff{Kind: DiffInsert, Post: diff.Post})
			}
		case DiffRemove:
			key, err := d.rowKey(diff.Pre, eval)
			if err != nil {
				return nil, err
			}
			e, ok := state.get(key)
			if !ok {
				continue
			}
			e.Count--
			if e.Count == 0 {
				out = append(out, Diff{Kind: DiffRemove, Pre: e.FirstRow})
				state.remove(key)
			}
		case DiffUpdate:
			oldKey, err := d.rowKey(diff.Pre, eval)
			if err != nil {
				return nil, err
			}
			newKey, err := d.rowKey(diff.Post, eval)
			if err != nil {
				return nil, err
			}
			if oldKey == newKey {
				if e, ok := state.get(newKey); ok && e.FirstRow.RowNumber == diff.Pre.RowNumber {
					e.FirstRow = diff.Post
					out = append(out, Diff{Kind: DiffUpdate, Pre: diff.Pre, Post: diff.Post})
				}
				continue
			}
			if e, ok := state.get(oldKey); ok {
				e.Count--
				if e.Count == 0 {
					out = append(out, Diff{Kind: DiffRemove, Pre: e.FirstRow})
					state.remove(oldKey)
				}
			}
			if e, ok := state.get(newKey); ok {
				e.Count++
			} else {
				state.put(newKey, &distinctEntry{Count: 1, FirstRow: diff.Post})
				out = append(out, Diff{Kind: DiffInsert, Post: diff.Post})
			}
		}
	}

	if err := d.saveState(txn, state); err != nil {
		return nil, err
	}
	return out, nil
}

// Pull serves point lookups by row number against the stored
// first_row entries — used by downstream operators joining against this
// node's output.
func (d *DistinctOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) {
	state, err := d.loadState(txn)
	if err != nil {
		return nil, err
	}
	want := make(map[uint64]bool, len(rows))
	for _, r := range rows {
		want[r] = true
	}
	var out []Row
	for _, key := range state.Order {
		e := state.Entries[key]
		if want[e.FirstRow.RowNumber] {
			out = append(out, e.FirstRow)
		}
	}
	return out, nil
}
