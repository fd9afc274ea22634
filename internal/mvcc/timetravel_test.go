package mvcc

import (
	"testing"

	"github.com/reifydb/reifydb/internal/cdc"
	"github.com/reifydb/reifydb/internal/encoding"
)

// TestBeginQueryAsOfPinsHistoricalVersion verifies a time-travel query
// observes the state at its pinned version, not the newest commit.
func TestBeginQueryAsOfPinsHistoricalVersion(t *testing.T) {
	e := newTestEngine()
	key := encoding.TableRowKey(1, 1)

	w1 := e.BeginCommand()
	if err := w1.Set(key, []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	v1, err := w1.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	w2 := e.BeginCommand()
	if err := w2.Set(key, []byte("v2")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := w2.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	asOf := e.BeginQueryAsOf(v1)
	defer asOf.Close()
	val, ok, err := asOf.Get(key)
	if err != nil || !ok || string(val) != "v1" {
		t.Fatalf("expected v1 at historical version %d, got %q ok=%v err=%v", v1, val, ok, err)
	}

	now := e.BeginQuery()
	defer now.Close()
	val, _, _ = now.Get(key)
	if string(val) != "v2" {
		t.Fatalf("expected newest value v2 for a current query, got %q", val)
	}
}

// TestReadAsOfVersionLowersEffectiveVersion verifies the inclusive and
// exclusive lowering semantics on an already-open read transaction.
func TestReadAsOfVersionLowersEffectiveVersion(t *testing.T) {
	e := newTestEngine()
	key := encoding.TableRowKey(1, 1)

	for _, payload := range []string{"v1", "v2", "v3"} {
		w := e.BeginCommand()
		if err := w.Set(key, []byte(payload)); err != nil {
			t.Fatalf("set: %v", err)
		}
		if _, err := w.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	r := e.BeginQuery()
	defer r.Close()

	r.ReadAsOfVersionInclusive(2)
	val, _, _ := r.Get(key)
	if string(val) != "v2" {
		t.Fatalf("expected v2 with inclusive as-of 2, got %q", val)
	}

	r.ReadAsOfVersionExclusive(2)
	val, _, _ = r.Get(key)
	if string(val) != "v1" {
		t.Fatalf("expected v1 with exclusive as-of 2, got %q", val)
	}

	// Lowering is one-way: a higher as-of must not raise the version back.
	r.ReadAsOfVersionInclusive(3)
	val, _, _ = r.Get(key)
	if string(val) != "v1" {
		t.Fatalf("expected version lowering to be one-way, got %q", val)
	}
}

// TestBeginQueryAsOfHoldsWatermark verifies a time-travel reader pins the
// retention watermark at its historical version until closed.
func TestBeginQueryAsOfHoldsWatermark(t *testing.T) {
	e := newTestEngine()
	key := encoding.TableRowKey(1, 1)

	w := e.BeginCommand()
	w.Set(key, []byte("v1"))
	v1, _ := w.Commit()

	w2 := e.BeginCommand()
	w2.Set(key, []byte("v2"))
	w2.Commit()

	r := e.BeginQueryAsOf(v1)
	if wm := e.oracle.Watermark(); wm != v1 {
		t.Fatalf("expected watermark pinned at %d, got %d", v1, wm)
	}
	r.Close()
	if wm := e.oracle.Watermark(); wm != e.oracle.LastCommitted() {
		t.Fatalf("expected watermark released after close, got %d", wm)
	}
}

// TestUnsetCapturesPreValueRemoveDoesNot covers the two tombstone
// flavors: unset publishes the removed row's pre-image into the CDC
// batch, remove publishes the removal with no pre-image.
func TestUnsetCapturesPreValueRemoveDoesNot(t *testing.T) {
	e := newTestEngine()
	cdcStore := cdc.NewStore()
	e.SetCdcPublisher(cdcStore)

	keyA := encoding.TableRowKey(1, 1)
	keyB := encoding.TableRowKey(1, 2)
	seed := e.BeginCommand()
	seed.Set(keyA, []byte("a"))
	seed.Set(keyB, []byte("b"))
	if _, err := seed.Commit(); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	txn := e.BeginCommand()
	if err := txn.Unset(keyA); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if err := txn.Delete(keyB); err != nil {
		t.Fatalf("delete: %v", err)
	}
	version, err := txn.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	batch, ok := cdcStore.Read(uint64(version))
	if !ok || len(batch.Changes) != 2 {
		t.Fatalf("expected 2 changes at version %d, got %+v", version, batch)
	}
	unsetChange := batch.Changes[0].Change
	removeChange := batch.Changes[1].Change
	if unsetChange.Kind != cdc.ChangeRemove || string(unsetChange.Pre) != "a" {
		t.Fatalf("expected unset to capture pre-image a, got %+v", unsetChange)
	}
	if removeChange.Kind != cdc.ChangeRemove || len(removeChange.Pre) != 0 {
		t.Fatalf("expected remove to carry no pre-image, got %+v", removeChange)
	}

	r := e.BeginQuery()
	defer r.Close()
	for _, key := range []encoding.EncodedKey{keyA, keyB} {
		if _, ok, _ := r.Get(key); ok {
			t.Fatalf("expected %v gone after commit", key)
		}
	}
}

// TestContainsKeyAndMarkRead verifies contains_key sees the pending
// overlay and mark_read participates in conflict detection without an
// actual read.
func TestContainsKeyAndMarkRead(t *testing.T) {
	e := newTestEngine()
	key := encoding.TableRowKey(1, 1)

	txn := e.BeginCommand()
	ok, err := txn.ContainsKey(key)
	if err != nil || ok {
		t.Fatalf("expected absent before any write, ok=%v err=%v", ok, err)
	}
	if err := txn.Set(key, []byte("x")); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err = txn.ContainsKey(key)
	if err != nil || !ok {
		t.Fatalf("expected pending write visible to contains_key, ok=%v err=%v", ok, err)
	}
	txn.Rollback()

	t1 := e.BeginCommand()
	t1.MarkRead(key)

	t2 := e.BeginCommand()
	t2.Set(key, []byte("concurrent"))
	if _, err := t2.Commit(); err != nil {
		t.Fatalf("t2 commit: %v", err)
	}

	t1.Set(encoding.TableRowKey(1, 2), []byte("y"))
	if _, err := t1.Commit(); err == nil {
		t.Fatalf("expected mark_read to make t1 conflict with t2's write")
	}
}

// TestReverseRangeReturnsDescendingKeys verifies the reverse scan variants
// mirror Range's visibility while flipping key order.
func TestReverseRangeReturnsDescendingKeys(t *testing.T) {
	e := newTestEngine()
	seed := e.BeginCommand()
	for _, row := range []uint64{1, 2, 3} {
		if err := seed.Set(encoding.TableRowKey(1, row), []byte{byte(row)}); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if _, err := seed.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	r := e.BeginQuery()
	defer r.Close()
	out, err := r.PrefixReverse(encoding.SubspacePrefix(encoding.ClassTableRow, 1), 0)
	if err != nil {
		t.Fatalf("prefix reverse: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(out))
	}
	for i, want := range []byte{3, 2, 1} {
		if out[i].Value[0] != want {
			t.Fatalf("position %d: expected row %d, got %d", i, want, out[i].Value[0])
		}
	}

	limited, err := r.PrefixReverse(encoding.SubspacePrefix(encoding.ClassTableRow, 1), 2)
	if err != nil {
		t.Fatalf("limited prefix reverse: %v", err)
	}
	if len(limited) != 2 || limited[0].Value[0] != 3 || limited[1].Value[0] != 2 {
		t.Fatalf("expected batch-limited [3,2], got %+v", limited)
	}
}
