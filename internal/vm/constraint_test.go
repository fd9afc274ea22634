package vm

import (
	"errors"
	"testing"

	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/config"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/mvcc"
	"github.com/reifydb/reifydb/internal/value"
)

// newConstraintFixture builds a two-column table, optionally with a
// primary key on c1 and a unique index on c2, plus a VmState wired for
// DML against it — no interceptor hooks registered anywhere.
func newConstraintFixture(t *testing.T, withPK, withUniqueIndex bool) (*VmState, *mvcc.WriteTransaction, catalog.TableId) {
	t.Helper()
	cat := catalog.New()
	ns, err := cat.CreateNamespace("default")
	if err != nil {
		t.Fatalf("create namespace: %v", err)
	}
	cols := []catalog.Column{
		{Index: 0, Name: "c1", Type: value.Int64},
		{Index: 1, Name: "c2", Type: value.Utf8},
	}
	var pk *catalog.PrimaryKeyId
	if withPK {
		id, err := cat.CreatePrimaryKey([]catalog.ColumnIndex{0})
		if err != nil {
			t.Fatalf("create primary key: %v", err)
		}
		pk = &id
	}
	tableID, err := cat.CreateTable(ns, "t", cols, pk)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	if withUniqueIndex {
		if _, err := cat.CreateIndex(tableID, "by_c2", []catalog.ColumnIndex{1}, true); err != nil {
			t.Fatalf("create index: %v", err)
		}
	}

	txn := mvcc.NewEngine(config.New(), nil).BeginCommand()
	program := &Program{DMLTargets: []DMLTarget{{Kind: SourceTable, Table: tableID, Columns: cols}}}
	return NewState(program, cat, txn, nil), txn, tableID
}

func insertRecord(t *testing.T, s *VmState, c1 int64, c2 string) error {
	t.Helper()
	rec := []value.Value{value.Int64Value(c1), value.Utf8Value(c2)}
	if err := s.pushOperand(recordOperand(rec)); err != nil {
		t.Fatalf("push record: %v", err)
	}
	err := execInsertRow(s, 0)
	if err == nil {
		if _, popErr := s.popOperand(); popErr != nil {
			t.Fatalf("pop row number: %v", popErr)
		}
	}
	return err
}

// TestInsertDuplicatePrimaryKeyRejected covers the built-in enforcement:
// a second insert with the same declared primary key fails with
// PrimaryKeyViolation through the plain VM path and writes nothing.
func TestInsertDuplicatePrimaryKeyRejected(t *testing.T) {
	s, txn, tableID := newConstraintFixture(t, true, false)

	if err := insertRecord(t, s, 7, "a"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := insertRecord(t, s, 7, "b"); !errors.Is(err, diagnostic.ErrPrimaryKeyViolation) {
		t.Fatalf("expected PrimaryKeyViolation on duplicate pk, got %v", err)
	}
	if err := insertRecord(t, s, 8, "b"); err != nil {
		t.Fatalf("distinct pk should insert: %v", err)
	}

	prefix := encoding.SubspacePrefix(encoding.ClassTableRow, uint64(tableID))
	rows, err := txn.Prefix(prefix, 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after the rejected duplicate, got %d", len(rows))
	}
}

// TestInsertDuplicateUniqueIndexRejected mirrors the pk test for a
// unique secondary index.
func TestInsertDuplicateUniqueIndexRejected(t *testing.T) {
	s, _, _ := newConstraintFixture(t, false, true)

	if err := insertRecord(t, s, 1, "same"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := insertRecord(t, s, 2, "same"); !errors.Is(err, diagnostic.ErrUniqueIndexViolation) {
		t.Fatalf("expected UniqueIndexViolation, got %v", err)
	}
}

// TestUpdateEnforcesUniquenessExceptAgainstItself verifies UpdateRow
// rejects a change that collides with another row's key but accepts an
// update that keeps the row's own key value.
func TestUpdateEnforcesUniquenessExceptAgainstItself(t *testing.T) {
	s, _, _ := newConstraintFixture(t, true, false)

	if err := insertRecord(t, s, 1, "a"); err != nil {
		t.Fatalf("insert row 1: %v", err)
	}
	if err := insertRecord(t, s, 2, "b"); err != nil {
		t.Fatalf("insert row 2: %v", err)
	}

	update := func(rowNumber uint64, c1 int64, c2 string) error {
		if err := s.pushOperand(recordOperand([]value.Value{value.Int64Value(c1), value.Utf8Value(c2)})); err != nil {
			t.Fatalf("push record: %v", err)
		}
		if err := s.pushOperand(scalarOperand(value.RowNumberValue(rowNumber))); err != nil {
			t.Fatalf("push row number: %v", err)
		}
		return execUpdateRow(s, 0)
	}

	if err := update(2, 1, "b"); !errors.Is(err, diagnostic.ErrPrimaryKeyViolation) {
		t.Fatalf("expected update colliding with row 1's pk to fail, got %v", err)
	}
	if err := update(2, 2, "changed"); err != nil {
		t.Fatalf("expected update keeping its own pk to succeed, got %v", err)
	}
}

// TestNullKeyComponentsSkipUniqueness verifies null values never
// participate in uniqueness: two rows with a null pk column coexist.
func TestNullKeyComponentsSkipUniqueness(t *testing.T) {
	s, _, _ := newConstraintFixture(t, true, false)

	push := func() error {
		rec := []value.Value{value.UndefinedValue(), value.Utf8Value("x")}
		if err := s.pushOperand(recordOperand(rec)); err != nil {
			t.Fatalf("push record: %v", err)
		}
		err := execInsertRow(s, 0)
		if err == nil {
			s.popOperand()
		}
		return err
	}
	if err := push(); err != nil {
		t.Fatalf("first null-key insert: %v", err)
	}
	if err := push(); err != nil {
		t.Fatalf("second null-key insert should coexist: %v", err)
	}
}
