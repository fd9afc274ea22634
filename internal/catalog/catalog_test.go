package catalog

import (
	"testing"

	"github.com/reifydb/reifydb/internal/value"
)

func TestCreateTableWithPrimaryKey(t *testing.T) {
	c := New()
	ns, err := c.CreateNamespace("public")
	if err != nil {
		t.Fatalf("create namespace: %v", err)
	}

	pk, err := c.CreatePrimaryKey([]ColumnIndex{0})
	if err != nil {
		t.Fatalf("create primary key: %v", err)
	}

	cols := []Column{
		{Index: 0, Name: "id", Type: value.Int8},
		{Index: 1, Name: "label", Type: value.Utf8},
	}
	tableID, err := c.CreateTable(ns, "accounts", cols, &pk)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	table, err := c.Table(tableID)
	if err != nil {
		t.Fatalf("resolve table: %v", err)
	}
	if table.Name != "accounts" || table.PrimaryKey == nil || *table.PrimaryKey != pk {
		t.Fatalf("unexpected table: %+v", table)
	}

	byName, err := c.TableByName(ns, "accounts")
	if err != nil || byName.ID != tableID {
		t.Fatalf("expected TableByName to resolve the same table, got %+v err=%v", byName, err)
	}

	col, err := table.ColumnByName("label")
	if err != nil || col.Index != 1 {
		t.Fatalf("expected column 'label' at index 1, got %+v err=%v", col, err)
	}
}

func TestCreateTableDuplicateNameFails(t *testing.T) {
	c := New()
	ns, _ := c.CreateNamespace("public")
	if _, err := c.CreateTable(ns, "t", nil, nil); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := c.CreateTable(ns, "t", nil, nil); err == nil {
		t.Fatalf("expected duplicate table name to fail")
	}
}

func TestCreatePrimaryKeyRequiresColumns(t *testing.T) {
	c := New()
	if _, err := c.CreatePrimaryKey(nil); err == nil {
		t.Fatalf("expected empty primary key to be rejected")
	}
}

func TestCreateTableUnknownNamespaceFails(t *testing.T) {
	c := New()
	if _, err := c.CreateTable(NamespaceId(999), "t", nil, nil); err == nil {
		t.Fatalf("expected unknown namespace to fail")
	}
}

func TestCreateIndexOnUnknownTableFails(t *testing.T) {
	c := New()
	if _, err := c.CreateIndex(TableId(999), "idx", []ColumnIndex{0}, false); err == nil {
		t.Fatalf("expected index on unknown table to fail")
	}
}

func TestIndexesForTable(t *testing.T) {
	c := New()
	ns, _ := c.CreateNamespace("public")
	tableID, _ := c.CreateTable(ns, "t", nil, nil)
	idA, _ := c.CreateIndex(tableID, "idx_a", []ColumnIndex{0}, false)
	idB, _ := c.CreateIndex(tableID, "idx_b", []ColumnIndex{1}, true)

	indexes := c.IndexesForTable(tableID)
	if len(indexes) != 2 {
		t.Fatalf("expected 2 indexes, got %d", len(indexes))
	}
	seen := map[IndexId]bool{}
	for _, idx := range indexes {
		seen[idx.ID] = true
	}
	if !seen[idA] || !seen[idB] {
		t.Fatalf("expected both indexes present, got %+v", indexes)
	}
}
