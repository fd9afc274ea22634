package store

import (
	"testing"

	"github.com/reifydb/reifydb/internal/encoding"
)

func TestSingleVersionStoreGetSetRemove(t *testing.T) {
	s := NewSingleVersionStore()
	key := encoding.TableRowKey(1, 1)
	if _, ok := s.Get(key); ok {
		t.Fatalf("expected absent key")
	}
	s.Set(key, []byte("v1"))
	v, ok := s.Get(key)
	if !ok || string(v) != "v1" {
		t.Fatalf("expected v1, got %q ok=%v", v, ok)
	}
	if !s.Remove(key) {
		t.Fatalf("expected remove to report present")
	}
	if _, ok := s.Get(key); ok {
		t.Fatalf("expected key to be gone after remove")
	}
}

func TestSingleVersionStorePrefixOrdering(t *testing.T) {
	s := NewSingleVersionStore()
	for _, row := range []uint64{3, 1, 2} {
		s.Set(encoding.TableRowKey(1, row), []byte("x"))
	}
	s.Set(encoding.TableRowKey(2, 1), []byte("other-table"))

	var rows []uint64
	s.Prefix(encoding.SubspacePrefix(encoding.ClassTableRow, 1), func(e Entry) bool {
		_, ver := splitTestKey(e.Key)
		rows = append(rows, ver)
		return true
	})
	if len(rows) != 3 || rows[0] != 1 || rows[1] != 2 || rows[2] != 3 {
		t.Fatalf("expected ascending rows [1,2,3], got %v", rows)
	}
}

// splitTestKey extracts the row id suffix of a TableRowKey for assertions.
func splitTestKey(k encoding.EncodedKey) (tableID, rowID uint64) {
	b := k.Bytes()
	return beU64(b[1:9]), beU64(b[9:17])
}

func beU64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func TestMultiVersionStoreNewestVisible(t *testing.T) {
	m := NewMultiVersionStore()
	key := encoding.TableRowKey(1, 1)

	m.Set(key, 1, []byte("v1"))
	m.Set(key, 3, []byte("v3"))

	if v, ok := m.Get(key, 1); !ok || string(v.Value) != "v1" {
		t.Fatalf("expected v1 at read version 1, got %+v ok=%v", v, ok)
	}
	if v, ok := m.Get(key, 2); !ok || string(v.Value) != "v1" {
		t.Fatalf("expected v1 at read version 2 (newest <= 2), got %+v ok=%v", v, ok)
	}
	if v, ok := m.Get(key, 3); !ok || string(v.Value) != "v3" {
		t.Fatalf("expected v3 at read version 3, got %+v ok=%v", v, ok)
	}
	if _, ok := m.Get(key, 0); ok {
		t.Fatalf("expected no visible value before any commit")
	}
}

func TestMultiVersionStoreRemoveTombstone(t *testing.T) {
	m := NewMultiVersionStore()
	key := encoding.TableRowKey(1, 1)
	m.Set(key, 1, []byte("v1"))
	m.Remove(key, 2)

	v, ok := m.Get(key, 2)
	if !ok || !v.Removed {
		t.Fatalf("expected a tombstone at version 2, got %+v ok=%v", v, ok)
	}
	results := m.Prefix(encoding.SubspacePrefix(encoding.ClassTableRow, 1), 2, 0)
	if len(results) != 0 {
		t.Fatalf("expected a removed key to be absent from range results, got %v", results)
	}
}

func TestMultiVersionStoreRangeNewestPerKey(t *testing.T) {
	m := NewMultiVersionStore()
	for _, row := range []uint64{1, 2, 3} {
		m.Set(encoding.TableRowKey(1, row), 1, []byte("v1"))
	}
	m.Set(encoding.TableRowKey(1, 2), 2, []byte("v2"))

	results := m.Prefix(encoding.SubspacePrefix(encoding.ClassTableRow, 1), 2, 0)
	if len(results) != 3 {
		t.Fatalf("expected 3 logical keys, got %d", len(results))
	}
	for _, r := range results {
		if _, rowID := splitTestKey(append(encoding.EncodedKey{}, r.Key...)); rowID == 2 && string(r.Value) != "v2" {
			t.Fatalf("expected row 2 to show v2, got %q", r.Value)
		}
	}
}
