package flow

import (
	"fmt"
	"time"

	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
)

// Backfill replays every row currently stored under flowID's source
// primitives through the DAG, bringing a freshly registered flow's sinks
// up to date with data committed before registration. The whole replay is
// one FlowTransaction, committed only if every source finishes inside
// deadline; when the deadline elapses mid-replay the transaction is
// rolled back and FlowBackfillTimeout is raised (spec.md §5 "Flow
// backfill: time-bounded").
func (d *Dispatcher) Backfill(flowID FlowId, deadline time.Duration) error {
	rf, ok := d.registry.Flow(flowID)
	if !ok {
		return diagnostic.ErrCatalogNotFound.WithFragment(fmt.Sprint(flowID), "flow")
	}

	start := time.Now()
	txn := NewFlowTransaction(d.engine.BeginWrite())

	for _, node := range rf.Order {
		class, primitiveID, ok := sourcePrimitive(node)
		if !ok {
			continue
		}
		if time.Since(start) >= deadline {
			txn.Rollback()
			return diagnostic.ErrFlowBackfillTimeout
		}
		codec, err := d.codecFor(class, primitiveID)
		if err != nil {
			txn.Rollback()
			return err
		}
		entries, err := txn.inner.Prefix(encoding.SubspacePrefix(class, primitiveID), 0)
		if err != nil {
			txn.Rollback()
			return err
		}
		change := make(Change, 0, len(entries))
		for _, e := range entries {
			_, _, rowID, ok := encoding.ParseRowKey(e.Key)
			if !ok {
				continue
			}
			row, err := codec.decode(rowID, e.Value)
			if err != nil {
				txn.Rollback()
				return err
			}
			change = append(change, Diff{Kind: DiffInsert, Post: row})
		}
		if len(change) == 0 {
			continue
		}
		if time.Since(start) >= deadline {
			txn.Rollback()
			return diagnostic.ErrFlowBackfillTimeout
		}
		if err := d.propagate(txn, rf, node.ID, change); err != nil {
			txn.Rollback()
			return fmt.Errorf("flow %d backfill: %w", flowID, err)
		}
	}

	if _, err := txn.Commit(); err != nil {
		return fmt.Errorf("flow %d backfill commit: %w", flowID, err)
	}
	d.log.Infow("flow backfill complete", "flow", flowID, "elapsed", time.Since(start))
	return nil
}

// sourcePrimitive maps a source node to the key class and primitive ID
// its stored rows live under; inline-data and flow-to-flow sources have
// no stored subspace to replay.
func sourcePrimitive(node *FlowNode) (encoding.KeyClass, uint64, bool) {
	switch node.Type {
	case NodeSourceTable:
		return encoding.ClassTableRow, uint64(node.SourceTableID), true
	case NodeSourceView:
		return encoding.ClassViewRow, uint64(node.SourceViewID), true
	case NodeSourceRingBuffer:
		return encoding.ClassRingBufferRow, uint64(node.SourceRingBufferID), true
	case NodeSourceSeries:
		return encoding.ClassSeriesRow, uint64(node.SourceSeriesID), true
	default:
		return 0, 0, false
	}
}
