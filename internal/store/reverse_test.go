package store

import (
	"testing"

	"github.com/reifydb/reifydb/internal/encoding"
)

// TestMultiVersionStoreRangeReverse verifies reverse scans resolve the
// same newest-visible set as forward scans, in descending key order,
// with the batch limit trimming from the high end.
func TestMultiVersionStoreRangeReverse(t *testing.T) {
	m := NewMultiVersionStore()
	for row := uint64(1); row <= 3; row++ {
		m.Set(encoding.TableRowKey(1, row), 1, []byte{byte(row)})
	}
	// Overwrite row 2 at a later version; reverse reads at version 1 must
	// still see the old value.
	m.Set(encoding.TableRowKey(1, 2), 5, []byte{99})

	out := m.PrefixReverse(encoding.SubspacePrefix(encoding.ClassTableRow, 1), 1, 0)
	if len(out) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(out))
	}
	for i, want := range []byte{3, 2, 1} {
		if out[i].Value[0] != want {
			t.Fatalf("position %d: expected %d, got %d", i, want, out[i].Value[0])
		}
	}

	newest := m.PrefixReverse(encoding.SubspacePrefix(encoding.ClassTableRow, 1), 5, 1)
	if len(newest) != 1 || newest[0].Value[0] != 3 {
		t.Fatalf("expected batch-limited newest-first [3], got %+v", newest)
	}

	at5 := m.PrefixReverse(encoding.SubspacePrefix(encoding.ClassTableRow, 1), 5, 0)
	if at5[1].Value[0] != 99 {
		t.Fatalf("expected row 2's value at version 5 to be 99, got %d", at5[1].Value[0])
	}
}
