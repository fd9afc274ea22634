package flow

import (
	"encoding/json"

	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
)

// primitiveRowCodec decodes a stored row for one of the four source
// primitives (table/view/ring buffer/series) into a flow.Row, given the
// primitive's catalog column list. Shared by every *SourceOperator below
// since they differ only in which key class/ID they scan (spec.md §6.2).
type primitiveRowCodec struct {
	columns []catalog.Column
}

func (c primitiveRowCodec) schema() encoding.Schema {
	s := make(encoding.Schema, len(c.columns))
	for i, col := range c.columns {
		s[i] = col.Type
	}
	return s
}

func (c primitiveRowCodec) decode(rowNumber uint64, raw []byte) (Row, error) {
	ev, err := encoding.Parse(c.schema(), raw)
	if err != nil {
		return Row{}, err
	}
	values := ev.Decode()
	names := make([]string, len(c.columns))
	for i, col := range c.columns {
		names[i] = col.Name
	}
	return Row{RowNumber: rowNumber, Columns: names, Values: values}, nil
}

// PrimitiveTableOperator is the registration target for
// FlowNodeType.NodeSourceTable (spec.md §4.3.1): it has no upstream input
// of its own inside this flow (it is fed by the dispatcher routing CDC
// TableRow events for SourceTableID), so Apply is a pass-through that
// exists purely so the node satisfies the Operator contract uniformly.
type PrimitiveTableOperator struct {
	TableID catalog.TableId
	codec   primitiveRowCodec
}

func NewPrimitiveTableOperator(table *catalog.Table) *PrimitiveTableOperator {
	return &PrimitiveTableOperator{TableID: table.ID, codec: primitiveRowCodec{columns: table.Columns}}
}

func (o *PrimitiveTableOperator) Apply(_ *FlowTransaction, change Change, _ Evaluator) (Change, error) {
	return change, nil
}

func (o *PrimitiveTableOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) {
	out := make([]Row, 0, len(rows))
	for _, rn := range rows {
		raw, ok, err := txn.inner.Get(encoding.TableRowKey(uint64(o.TableID), rn))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		row, err := o.codec.decode(rn, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// PrimitiveViewOperator mirrors PrimitiveTableOperator for the
// NodeSourceView role: a view *consumed by* another flow rather than
// written directly. SinkViewOperator.Pull also reads a sink view's rows
// through it.
type PrimitiveViewOperator struct {
	ViewID catalog.ViewId
	codec  primitiveRowCodec
}

func NewPrimitiveViewOperator(view *catalog.View) *PrimitiveViewOperator {
	return &PrimitiveViewOperator{ViewID: view.ID, codec: primitiveRowCodec{columns: view.Columns}}
}

func (o *PrimitiveViewOperator) Apply(_ *FlowTransaction, change Change, _ Evaluator) (Change, error) {
	return change, nil
}

func (o *PrimitiveViewOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) {
	out := make([]Row, 0, len(rows))
	for _, rn := range rows {
		raw, ok, err := txn.inner.Get(encoding.ViewRowKey(uint64(o.ViewID), rn))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		row, err := o.codec.decode(rn, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// PrimitiveRingBufferOperator is the NodeSourceRingBuffer registration
// target.
type PrimitiveRingBufferOperator struct {
	RingBufferID catalog.RingBufferId
	codec        primitiveRowCodec
}

func NewPrimitiveRingBufferOperator(rb *catalog.RingBuffer) *PrimitiveRingBufferOperator {
	return &PrimitiveRingBufferOperator{RingBufferID: rb.ID, codec: primitiveRowCodec{columns: rb.Columns}}
}

func (o *PrimitiveRingBufferOperator) Apply(_ *FlowTransaction, change Change, _ Evaluator) (Change, error) {
	return change, nil
}

func (o *PrimitiveRingBufferOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) {
	out := make([]Row, 0, len(rows))
	for _, rn := range rows {
		raw, ok, err := txn.inner.Get(encoding.RingBufferRowKey(uint64(o.RingBufferID), rn))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		row, err := o.codec.decode(rn, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// PrimitiveSeriesOperator is the NodeSourceSeries registration target.
type PrimitiveSeriesOperator struct {
	SeriesID catalog.SeriesId
	codec    primitiveRowCodec
}

func NewPrimitiveSeriesOperator(s *catalog.Series) *PrimitiveSeriesOperator {
	return &PrimitiveSeriesOperator{SeriesID: s.ID, codec: primitiveRowCodec{columns: s.Columns}}
}

func (o *PrimitiveSeriesOperator) Apply(_ *FlowTransaction, change Change, _ Evaluator) (Change, error) {
	return change, nil
}

func (o *PrimitiveSeriesOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) {
	out := make([]Row, 0, len(rows))
	for _, rn := range rows {
		raw, ok, err := txn.inner.Get(encoding.SeriesRowKey(uint64(o.SeriesID), rn))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		row, err := o.codec.decode(rn, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// InlineDataOperator implements NodeSourceInlineData: a flow node whose
// "source" is a fixed, registration-time set of rows (e.g. a constant
// table literal) rather than a catalog primitive. Apply replays the
// configured rows as Insert diffs exactly once, the first time it is
// invoked, then becomes a no-op — mirrored by the `emitted` flag
// persisted through FlowTransaction so a flow restarted mid-backfill
// doesn't replay the same inserts twice.
type InlineDataOperator struct {
	node FlowNodeId
	rows []Row
}

func NewInlineDataOperator(node FlowNodeId, rows []Row) *InlineDataOperator {
	return &InlineDataOperator{node: node, rows: rows}
}

var inlineEmittedKey = []byte("emitted")

func (o *InlineDataOperator) Apply(txn *FlowTransaction, change Change, _ Evaluator) (Change, error) {
	_, emitted, err := txn.GetState(o.node, inlineEmittedKey)
	if err != nil {
		return nil, err
	}
	if emitted {
		return change, nil
	}
	if err := txn.SetState(o.node, inlineEmittedKey, []byte{1}); err != nil {
		return nil, err
	}
	out := make(Change, 0, len(change)+len(o.rows))
	for _, r := range o.rows {
		out = append(out, Diff{Kind: DiffInsert, Post: r})
	}
	out = append(out, change...)
	return out, nil
}

func (o *InlineDataOperator) Pull(_ *FlowTransaction, rows []uint64) ([]Row, error) {
	out := make([]Row, 0, len(rows))
	for _, rn := range rows {
		for _, r := range o.rows {
			if r.RowNumber == rn {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// FlowSourceOperator implements NodeSourceFlow: one flow consuming
// another flow's sink output directly (chained views), rather than a raw
// CDC primitive (spec.md §3.6's `SourceFlow` node type). Apply is a
// pass-through. Register does not index this node as a source and the
// Dispatcher routes only CDC row keys, so no upstream flow's Change is
// delivered to it.
type FlowSourceOperator struct{ UpstreamFlowID FlowId }

func NewFlowSourceOperator(upstream FlowId) *FlowSourceOperator {
	return &FlowSourceOperator{UpstreamFlowID: upstream}
}

func (o *FlowSourceOperator) Apply(_ *FlowTransaction, change Change, _ Evaluator) (Change, error) {
	return change, nil
}

func (o *FlowSourceOperator) Pull(_ *FlowTransaction, _ []uint64) ([]Row, error) { return nil, nil }

// SinkViewOperator implements spec.md §4.3.1's `SinkView(view)`: merges
// the final Change of a flow's operator chain into the view's row-keyed
// subspace, so readers of the view see the flow's maintained result the
// same way they'd read a table.
type SinkViewOperator struct {
	ViewID catalog.ViewId
	codec  primitiveRowCodec
}

func NewSinkViewOperator(view *catalog.View) *SinkViewOperator {
	return &SinkViewOperator{ViewID: view.ID, codec: primitiveRowCodec{columns: view.Columns}}
}

func (s *SinkViewOperator) Apply(txn *FlowTransaction, change Change, _ Evaluator) (Change, error) {
	schema := s.codec.schema()
	for _, diff := range change {
		switch diff.Kind {
		case DiffInsert, DiffUpdate:
			ev, err := encoding.Encode(schema, diff.Post.Values)
			if err != nil {
				return nil, err
			}
			if err := txn.inner.Set(encoding.ViewRowKey(uint64(s.ViewID), diff.Post.RowNumber), ev.Bytes()); err != nil {
				return nil, err
			}
		case DiffRemove:
			// Unset, not Delete: a chained flow consuming this view needs
			// the removed row's pre-image in the CDC stream.
			if err := txn.inner.Unset(encoding.ViewRowKey(uint64(s.ViewID), diff.Pre.RowNumber)); err != nil {
				return nil, err
			}
		}
	}
	return change, nil
}

func (s *SinkViewOperator) Pull(txn *FlowTransaction, rows []uint64) ([]Row, error) {
	v := &PrimitiveViewOperator{ViewID: s.ViewID, codec: s.codec}
	return v.Pull(txn, rows)
}

// SubscriptionCallback receives every diff pushed to a live subscription
// sink (spec.md §4.3.1's `SinkSubscription(id)`).
type SubscriptionCallback func(Change) error

// SinkSubscriptionOperator pushes each diff batch to a registered
// subscriber callback. The callback runs synchronously inside Apply, so a
// callback that blocks also blocks its flow's apply task and the
// Dispatcher's Handle, which waits for every flow in the batch.
type SinkSubscriptionOperator struct {
	SubscriptionID SubscriptionId
	callback       SubscriptionCallback
}

func NewSinkSubscriptionOperator(id SubscriptionId, cb SubscriptionCallback) *SinkSubscriptionOperator {
	return &SinkSubscriptionOperator{SubscriptionID: id, callback: cb}
}

func (s *SinkSubscriptionOperator) Apply(_ *FlowTransaction, change Change, _ Evaluator) (Change, error) {
	if s.callback != nil && len(change) > 0 {
		if err := s.callback(change); err != nil {
			return nil, err
		}
	}
	return change, nil
}

func (s *SinkSubscriptionOperator) Pull(_ *FlowTransaction, _ []uint64) ([]Row, error) { return nil, nil }

// marshalRows/unmarshalRows are shared by any operator persisting a Row
// slice as per-node state (mirrors the json.Marshal usage already in
// distinct.go/aggregate.go/operators.go).
func marshalRows(rows []Row) ([]byte, error) { return json.Marshal(rows) }

func unmarshalRows(raw []byte) ([]Row, error) {
	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, diagnostic.ErrFlowVersionCorrupted.WithCause(err)
	}
	return rows, nil
}
