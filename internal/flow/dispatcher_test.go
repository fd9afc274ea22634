package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/cdc"
	"github.com/reifydb/reifydb/internal/config"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/mvcc"
	"github.com/reifydb/reifydb/internal/store"
	"github.com/reifydb/reifydb/internal/value"
)

type dispatchFixture struct {
	dispatcher *Dispatcher
	consumer   *cdc.Consumer
	engine     *mvcc.Engine
	catalog    *catalog.Catalog
	tableID    catalog.TableId
	viewID     catalog.ViewId
	cols       []catalog.Column
}

// newDispatchFixtureWith builds a source -> mid -> sink flow where mid is
// the caller's operator node; its ID must be 2 and its input node 1.
func newDispatchFixtureWith(t *testing.T, mid *FlowNode) *dispatchFixture {
	t.Helper()
	cat := catalog.New()
	ns, err := cat.CreateNamespace("default")
	if err != nil {
		t.Fatalf("create namespace: %v", err)
	}
	cols := []catalog.Column{{Index: 0, Name: "c1", Type: value.Int64}}
	tableID, err := cat.CreateTable(ns, "t", cols, nil)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	viewID, err := cat.CreateView(ns, "v", cols)
	if err != nil {
		t.Fatalf("create view: %v", err)
	}

	engine := mvcc.NewEngine(config.New(), nil)
	cdcStore := cdc.NewStore()
	engine.SetCdcPublisher(cdcStore)

	dag := NewFlowDag()
	for _, n := range []*FlowNode{
		{ID: 1, Type: NodeSourceTable, SourceTableID: tableID},
		mid,
		{ID: 3, Type: NodeSinkView, Inputs: []FlowNodeId{2}, SinkViewID: viewID},
	} {
		if err := dag.AddNode(n); err != nil {
			t.Fatalf("add node: %v", err)
		}
	}
	registry := NewRegistry()
	if _, err := registry.Register(1, dag, cat); err != nil {
		t.Fatalf("register: %v", err)
	}

	d := NewDispatcher(registry, engine, cat, 2, nil)
	consumer := cdc.NewConsumer("flow_consumer", cdcStore, store.NewSingleVersionStore(), 128, d.Handle, RowKeyFilter, nil)
	return &dispatchFixture{dispatcher: d, consumer: consumer, engine: engine, catalog: cat, tableID: tableID, viewID: viewID, cols: cols}
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	return newDispatchFixtureWith(t, &FlowNode{ID: 2, Type: NodeFilter, Inputs: []FlowNodeId{1}, FilterExprs: []CompiledExpr{
		func(row Row) (value.Value, error) { return value.BoolValue(row.Get("c1").Int() > 10), nil },
	}})
}

func (f *dispatchFixture) insertRow(t *testing.T, c1 int64) uint64 {
	t.Helper()
	schema := encoding.Schema{value.Int64}
	rn := f.catalog.NextRowNumber(uint64(f.tableID))
	ev, err := encoding.Encode(schema, []value.Value{value.Int64Value(c1)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	txn := f.engine.BeginCommand()
	if err := txn.Set(encoding.TableRowKey(uint64(f.tableID), rn), ev.Bytes()); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return rn
}

func (f *dispatchFixture) viewRows(t *testing.T) []store.MultiVersionValues {
	t.Helper()
	r := f.engine.BeginQuery()
	defer r.Close()
	rows, err := r.Prefix(encoding.SubspacePrefix(encoding.ClassViewRow, uint64(f.viewID)), 0)
	if err != nil {
		t.Fatalf("view scan: %v", err)
	}
	return rows
}

// TestDispatcherRoutesCommittedInsertToSinkView drives the full write
// path from spec.md §2: a committed table insert flows through CDC, the
// consumer's poll, the dispatcher's routing, the filter operator, and
// lands in the sink view.
func TestDispatcherRoutesCommittedInsertToSinkView(t *testing.T) {
	f := newDispatchFixture(t)

	f.insertRow(t, 5)  // filtered out
	f.insertRow(t, 15) // passes

	// The checkpoint lands on the newest commit the poll consumed (the
	// second insert), not on the view commit the dispatcher makes during
	// the poll.
	r := f.engine.BeginQuery()
	newest := uint64(r.Version())
	r.Close()

	if err := f.consumer.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	rows := f.viewRows(t)
	if len(rows) != 1 {
		t.Fatalf("expected exactly the passing row in the view, got %d", len(rows))
	}

	checkpoint, ok := f.consumer.Checkpoint()
	if !ok || checkpoint != newest {
		t.Fatalf("expected checkpoint at the newest polled commit %d, got %d ok=%v", newest, checkpoint, ok)
	}
}

// TestDispatcherRemovePropagatesToSinkView verifies a row deletion (an
// unset, carrying its pre-image) removes the maintained view row.
func TestDispatcherRemovePropagatesToSinkView(t *testing.T) {
	f := newDispatchFixture(t)
	rn := f.insertRow(t, 15)
	if err := f.consumer.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll after insert: %v", err)
	}
	if len(f.viewRows(t)) != 1 {
		t.Fatalf("expected the row in the view before removal")
	}

	txn := f.engine.BeginCommand()
	if err := txn.Unset(encoding.TableRowKey(uint64(f.tableID), rn)); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if _, err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := f.consumer.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll after remove: %v", err)
	}

	if rows := f.viewRows(t); len(rows) != 0 {
		t.Fatalf("expected the view row removed, got %d rows", len(rows))
	}
}

// TestDispatcherRoutesThroughApplyExtensionOperator registers a flow
// whose middle node is the Apply extension operator and drives it
// end-to-end: the user-supplied function rewrites each insert's c1
// before it reaches the sink view.
func TestDispatcherRoutesThroughApplyExtensionOperator(t *testing.T) {
	double := func(change Change) (Change, error) {
		out := make(Change, 0, len(change))
		for _, diff := range change {
			d := diff
			if d.Kind == DiffInsert || d.Kind == DiffUpdate {
				d.Post = d.Post.With("c1", value.Int64Value(d.Post.Get("c1").Int()*2))
			}
			out = append(out, d)
		}
		return out, nil
	}
	f := newDispatchFixtureWith(t, &FlowNode{ID: 2, Type: NodeApply, Inputs: []FlowNodeId{1}, ApplyFn: double})

	f.insertRow(t, 21)
	if err := f.consumer.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}

	rows := f.viewRows(t)
	if len(rows) != 1 {
		t.Fatalf("expected 1 view row, got %d", len(rows))
	}
	ev, err := encoding.Parse(encoding.Schema{value.Int64}, rows[0].Value)
	if err != nil {
		t.Fatalf("parse view row: %v", err)
	}
	if got := ev.Decode()[0].Int(); got != 42 {
		t.Fatalf("expected the apply function's output 42 in the view, got %d", got)
	}
}

// TestRegisterRejectsApplyNodeWithoutFunction verifies registration fails
// up front when an Apply node carries no bound function.
func TestRegisterRejectsApplyNodeWithoutFunction(t *testing.T) {
	cat := catalog.New()
	ns, _ := cat.CreateNamespace("default")
	cols := []catalog.Column{{Index: 0, Name: "c1", Type: value.Int64}}
	tableID, err := cat.CreateTable(ns, "t", cols, nil)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	viewID, err := cat.CreateView(ns, "v", cols)
	if err != nil {
		t.Fatalf("create view: %v", err)
	}

	dag := NewFlowDag()
	for _, n := range []*FlowNode{
		{ID: 1, Type: NodeSourceTable, SourceTableID: tableID},
		{ID: 2, Type: NodeApply, Inputs: []FlowNodeId{1}},
		{ID: 3, Type: NodeSinkView, Inputs: []FlowNodeId{2}, SinkViewID: viewID},
	} {
		if err := dag.AddNode(n); err != nil {
			t.Fatalf("add node: %v", err)
		}
	}
	if _, err := NewRegistry().Register(1, dag, cat); err == nil {
		t.Fatalf("expected registration to reject an unbound apply node")
	}
}

// TestDispatcherDeliveryIsIdempotentAcrossPolls verifies a second poll
// with no new commits delivers nothing (the checkpoint advanced).
func TestDispatcherDeliveryIsIdempotentAcrossPolls(t *testing.T) {
	f := newDispatchFixture(t)
	f.insertRow(t, 20)

	if err := f.consumer.PollOnce(context.Background()); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if err := f.consumer.PollOnce(context.Background()); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if rows := f.viewRows(t); len(rows) != 1 {
		t.Fatalf("expected exactly one view row after repeated polls, got %d", len(rows))
	}
}

// TestHandleDetectsKeyspaceOverlapAcrossFlows registers two flows whose
// stateful Distinct nodes share a FlowNodeId — so their per-node state
// keyspaces collide — and triggers both in one batch. Handle must refuse
// to commit either, raising FlowTransactionKeyspaceOverlap.
func TestHandleDetectsKeyspaceOverlapAcrossFlows(t *testing.T) {
	cat := catalog.New()
	ns, _ := cat.CreateNamespace("default")
	cols := []catalog.Column{{Index: 0, Name: "c1", Type: value.Int64}}

	engine := mvcc.NewEngine(config.New(), nil)
	cdcStore := cdc.NewStore()
	engine.SetCdcPublisher(cdcStore)
	registry := NewRegistry()

	var tables []catalog.TableId
	var views []catalog.ViewId
	for i, name := range []string{"a", "b"} {
		tableID, err := cat.CreateTable(ns, "t_"+name, cols, nil)
		if err != nil {
			t.Fatalf("create table: %v", err)
		}
		viewID, err := cat.CreateView(ns, "v_"+name, cols)
		if err != nil {
			t.Fatalf("create view: %v", err)
		}
		tables = append(tables, tableID)
		views = append(views, viewID)

		dag := NewFlowDag()
		for _, n := range []*FlowNode{
			{ID: 1, Type: NodeSourceTable, SourceTableID: tableID},
			// Both flows deliberately reuse node ID 2 for their stateful
			// Distinct, colliding in the FlowNodeState keyspace.
			{ID: 2, Type: NodeDistinct, Inputs: []FlowNodeId{1}, DistinctExprs: []CompiledExpr{
				func(row Row) (value.Value, error) { return row.Get("c1"), nil },
			}},
			{ID: 3, Type: NodeSinkView, Inputs: []FlowNodeId{2}, SinkViewID: viewID},
		} {
			if err := dag.AddNode(n); err != nil {
				t.Fatalf("add node: %v", err)
			}
		}
		if _, err := registry.Register(FlowId(i+1), dag, cat); err != nil {
			t.Fatalf("register flow %d: %v", i+1, err)
		}
	}

	d := NewDispatcher(registry, engine, cat, 2, nil)
	for i, tableID := range tables {
		rn := cat.NextRowNumber(uint64(tableID))
		ev, err := encoding.Encode(encoding.Schema{value.Int64}, []value.Value{value.Int64Value(int64(i))})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		txn := engine.BeginCommand()
		if err := txn.Set(encoding.TableRowKey(uint64(tableID), rn), ev.Bytes()); err != nil {
			t.Fatalf("set: %v", err)
		}
		if _, err := txn.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	batch := cdcStore.ReadRange(cdc.UnboundedBound(), cdc.UnboundedBound(), 0)
	err := d.Handle(context.Background(), batch.Items)
	if !errors.Is(err, diagnostic.ErrFlowKeyspaceOverlap) {
		t.Fatalf("expected FlowTransactionKeyspaceOverlap, got %v", err)
	}

	// Neither flow's sink view may have been committed.
	r := engine.BeginQuery()
	defer r.Close()
	for _, viewID := range views {
		rows, err := r.Prefix(encoding.SubspacePrefix(encoding.ClassViewRow, uint64(viewID)), 0)
		if err != nil {
			t.Fatalf("view scan: %v", err)
		}
		if len(rows) != 0 {
			t.Fatalf("expected no view rows committed after an overlap abort, got %d", len(rows))
		}
	}
}
