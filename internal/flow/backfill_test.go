package flow

import (
	"errors"
	"testing"
	"time"

	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/config"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/mvcc"
	"github.com/reifydb/reifydb/internal/value"
)

func seedTableRows(t *testing.T, engine *mvcc.Engine, cat *catalog.Catalog, tableID catalog.TableId, cols []catalog.Column, values []int64) {
	t.Helper()
	schema := make(encoding.Schema, len(cols))
	for i, c := range cols {
		schema[i] = c.Type
	}
	txn := engine.BeginCommand()
	for _, v := range values {
		rn := cat.NextRowNumber(uint64(tableID))
		ev, err := encoding.Encode(schema, []value.Value{value.Int64Value(v)})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := txn.Set(encoding.TableRowKey(uint64(tableID), rn), ev.Bytes()); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if _, err := txn.Commit(); err != nil {
		t.Fatalf("seed commit: %v", err)
	}
}

func newBackfillFixture(t *testing.T) (*Dispatcher, *catalog.Catalog, *mvcc.Engine, catalog.TableId, catalog.ViewId) {
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
	seedTableRows(t, engine, cat, tableID, cols, []int64{5, 15, 25})

	dag := NewFlowDag()
	mustAdd := func(n *FlowNode) {
		if err := dag.AddNode(n); err != nil {
			t.Fatalf("add node: %v", err)
		}
	}
	mustAdd(&FlowNode{ID: 1, Type: NodeSourceTable, SourceTableID: tableID})
	mustAdd(&FlowNode{ID: 2, Type: NodeFilter, Inputs: []FlowNodeId{1}, FilterExprs: []CompiledExpr{
		func(row Row) (value.Value, error) { return value.BoolValue(row.Get("c1").Int() > 10), nil },
	}})
	mustAdd(&FlowNode{ID: 3, Type: NodeSinkView, Inputs: []FlowNodeId{2}, SinkViewID: viewID})

	registry := NewRegistry()
	if _, err := registry.Register(7, dag, cat); err != nil {
		t.Fatalf("register: %v", err)
	}
	return NewDispatcher(registry, engine, cat, 1, nil), cat, engine, tableID, viewID
}

// TestBackfillReplaysExistingRowsThroughTheDag verifies rows committed
// before flow registration land in the sink view after a backfill pass,
// with the flow's operators (here a filter) applied.
func TestBackfillReplaysExistingRowsThroughTheDag(t *testing.T) {
	d, _, engine, _, viewID := newBackfillFixture(t)

	if err := d.Backfill(7, time.Minute); err != nil {
		t.Fatalf("backfill: %v", err)
	}

	r := engine.BeginQuery()
	defer r.Close()
	rows, err := r.Prefix(encoding.SubspacePrefix(encoding.ClassViewRow, uint64(viewID)), 0)
	if err != nil {
		t.Fatalf("view scan: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 filtered rows (15, 25) in the sink view, got %d", len(rows))
	}
}

// TestBackfillDeadlineElapsedRaisesTimeout verifies an already-elapsed
// deadline aborts the replay with FlowBackfillTimeout and commits
// nothing.
func TestBackfillDeadlineElapsedRaisesTimeout(t *testing.T) {
	d, _, engine, _, viewID := newBackfillFixture(t)

	if err := d.Backfill(7, 0); !errors.Is(err, diagnostic.ErrFlowBackfillTimeout) {
		t.Fatalf("expected FlowBackfillTimeout, got %v", err)
	}

	r := engine.BeginQuery()
	defer r.Close()
	rows, err := r.Prefix(encoding.SubspacePrefix(encoding.ClassViewRow, uint64(viewID)), 0)
	if err != nil {
		t.Fatalf("view scan: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected nothing committed after a timed-out backfill, got %d rows", len(rows))
	}
}

// TestBackfillUnknownFlowFails verifies a backfill request for an
// unregistered flow reports catalog-not-found rather than silently
// no-opping.
func TestBackfillUnknownFlowFails(t *testing.T) {
	d, _, _, _, _ := newBackfillFixture(t)
	if err := d.Backfill(99, time.Minute); !errors.Is(err, diagnostic.ErrCatalogNotFound) {
		t.Fatalf("expected catalog-not-found for unknown flow, got %v", err)
	}
}
