package vm

import (
	"errors"
	"testing"

	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/value"
)

// TestCreateTableOpcodeRegistersAndReturnsId drives CreateNamespace and
// CreateTable through the dispatch loop and verifies the catalog holds
// the results.
func TestCreateTableOpcodeRegistersAndReturnsId(t *testing.T) {
	cat := catalog.New()
	ns, err := cat.CreateNamespace("default")
	if err != nil {
		t.Fatalf("create namespace: %v", err)
	}

	p := &Program{
		Code: []Instr{
			{Op: OpCreateTable, Arg: 0},
			{Op: OpHalt},
		},
		DDLDefs: []DDLDef{{
			Kind:      DDLTable,
			Name:      "events",
			Namespace: ns,
			Columns:   []catalog.Column{{Index: 0, Name: "c1", Type: value.Int64}},
		}},
	}
	s := runProgram(t, p, cat)

	if s.result.Kind != OperandScalar {
		t.Fatalf("expected the new table id on the operand stack, got %+v", s.result)
	}
	tableID := catalog.TableId(s.result.Scalar.Uint())
	tbl, err := cat.Table(tableID)
	if err != nil {
		t.Fatalf("expected table resolvable by returned id: %v", err)
	}
	if tbl.Name != "events" || len(tbl.Columns) != 1 {
		t.Fatalf("unexpected table definition: %+v", tbl)
	}
}

// TestDropObjectRemovesTableAndItsIndexes verifies DropObject cascades a
// table's secondary indexes out of the catalog.
func TestDropObjectRemovesTableAndItsIndexes(t *testing.T) {
	cat := catalog.New()
	ns, _ := cat.CreateNamespace("default")
	tableID, err := cat.CreateTable(ns, "t", []catalog.Column{{Index: 0, Name: "c1", Type: value.Int64}}, nil)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := cat.CreateIndex(tableID, "by_c1", []catalog.ColumnIndex{0}, false); err != nil {
		t.Fatalf("create index: %v", err)
	}

	p := &Program{
		Code: []Instr{
			{Op: OpDropObject, Arg: 0},
			{Op: OpHalt},
		},
		DDLDefs: []DDLDef{{Kind: DDLTable, DropTable: tableID}},
	}
	runProgram(t, p, cat)

	if _, err := cat.Table(tableID); !errors.Is(err, diagnostic.ErrCatalogNotFound) {
		t.Fatalf("expected table gone, got %v", err)
	}
	if got := cat.IndexesForTable(tableID); len(got) != 0 {
		t.Fatalf("expected indexes dropped with their table, got %d", len(got))
	}
}

// TestDropNamespaceRequiresEmpty covers the guard against dropping a
// namespace that still owns objects.
func TestDropNamespaceRequiresEmpty(t *testing.T) {
	cat := catalog.New()
	ns, _ := cat.CreateNamespace("default")
	if _, err := cat.CreateTable(ns, "t", nil, nil); err != nil {
		t.Fatalf("create table: %v", err)
	}

	if err := cat.DropNamespace(ns); !errors.Is(err, diagnostic.ErrCatalogNamespaceNotEmpty) {
		t.Fatalf("expected namespace-not-empty, got %v", err)
	}
}
