package flow

import (
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/mvcc"
)

// FlowTransaction wraps an mvcc write transaction and layers a
// per-FlowNodeId pending map for operator state (spec.md §4.3.4). Writes
// to state are local until the owning mvcc transaction commits; reads
// merge the pending overlay with committed state the same way
// mvcc.WriteTransaction.Get does for row data — the "FlowScanIter" the
// spec calls a §4.1.4 analogue.
type FlowTransaction struct {
	inner     *mvcc.WriteTransaction
	pending   map[string][]byte
	touched   map[FlowNodeId]bool // per-node keyspace this transaction wrote
	committed bool
}

// NewFlowTransaction wraps inner, an already-begun mvcc write transaction.
func NewFlowTransaction(inner *mvcc.WriteTransaction) *FlowTransaction {
	return &FlowTransaction{inner: inner, pending: make(map[string][]byte), touched: make(map[FlowNodeId]bool)}
}

// GetState reads a node's persistent state, checking the pending overlay
// first.
func (t *FlowTransaction) GetState(node FlowNodeId, key []byte) ([]byte, bool, error) {
	k := encoding.FlowNodeStateKey(uint64(node), key)
	if v, ok := t.pending[string(k)]; ok {
		return v, v != nil, nil
	}
	val, ok, err := t.inner.Get(k)
	return val, ok, err
}

// SetState stages new state for node, recording that this transaction
// owns node's keyspace for the overlap check at commit.
func (t *FlowTransaction) SetState(node FlowNodeId, key []byte, value []byte) error {
	t.touched[node] = true
	t.pending[string(encoding.FlowNodeStateKey(uint64(node), key))] = value
	return t.inner.Set(encoding.FlowNodeStateKey(uint64(node), key), value)
}

// DeleteState stages removal of node's state at key.
func (t *FlowTransaction) DeleteState(node FlowNodeId, key []byte) error {
	t.touched[node] = true
	t.pending[string(encoding.FlowNodeStateKey(uint64(node), key))] = nil
	return t.inner.Delete(encoding.FlowNodeStateKey(uint64(node), key))
}

// CheckKeyspaceOverlap reports whether this transaction and other both
// touched the same FlowNodeId's state (spec.md §4.3.4). The dispatcher
// runs it across every pair of transactions in a Handle batch before
// committing any of them, so two flows sharing a FlowNodeId surface as
// FlowTransactionKeyspaceOverlap instead of silently corrupting state.
func (t *FlowTransaction) CheckKeyspaceOverlap(other *FlowTransaction) error {
	for node := range t.touched {
		if other.touched[node] {
			return diagnostic.ErrFlowKeyspaceOverlap
		}
	}
	return nil
}

// Commit commits the underlying mvcc transaction.
func (t *FlowTransaction) Commit() (mvcc.CommitVersion, error) {
	t.committed = true
	return t.inner.Commit()
}

// Rollback discards the underlying mvcc transaction.
func (t *FlowTransaction) Rollback() {
	if t.committed {
		return
	}
	t.inner.Rollback()
}
