package mvcc

import (
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
)

// pendingEntry is one uncommitted write. removed marks a staged tombstone;
// keepPre distinguishes unset (pre-values captured for CDC) from remove
// (no pre-values), the two tombstone flavors the transaction surface
// exposes.
type pendingEntry struct {
	val     []byte
	removed bool
	keepPre bool
}

// PendingWrites is a write transaction's uncommitted overlay (spec.md
// §4.1.2): an ordered map of logical key to pending value, applied atomically
// at commit and visible only to the owning transaction until then. Modeled
// after the teacher's TxContext.writeBuf (internal/storage/mvcc.go) but
// bounded by explicit byte/entry budgets (internal/config) instead of an
// unbounded map, since spec.md requires TransactionTooLarge to be
// observable rather than letting a transaction grow without limit.
type PendingWrites struct {
	entries    map[string]pendingEntry
	order      []encoding.EncodedKey
	bytes      int
	maxBytes   int
	maxEntries int
}

// NewPendingWrites returns an empty overlay bounded by the given budgets.
// A budget of 0 means unbounded.
func NewPendingWrites(maxBytes, maxEntries int) *PendingWrites {
	return &PendingWrites{entries: make(map[string]pendingEntry), maxBytes: maxBytes, maxEntries: maxEntries}
}

// Set stages key=val, replacing any prior pending value for key.
func (p *PendingWrites) Set(key encoding.EncodedKey, val []byte) error {
	return p.stage(key, pendingEntry{val: val})
}

// Delete stages a tombstone for key. No pre-value is captured at commit.
func (p *PendingWrites) Delete(key encoding.EncodedKey) error {
	return p.stage(key, pendingEntry{removed: true})
}

// Unset stages a tombstone for key whose pre-value is captured into the
// CDC batch at commit, the flavor row deletions use so downstream flow
// consumers can decode the removed row.
func (p *PendingWrites) Unset(key encoding.EncodedKey) error {
	return p.stage(key, pendingEntry{removed: true, keepPre: true})
}

func (p *PendingWrites) stage(key encoding.EncodedKey, e pendingEntry) error {
	ks := keyString(key)
	prev, existed := p.entries[ks]
	delta := len(key) + len(e.val)
	if existed {
		delta -= len(key) + len(prev.val)
	}
	if p.maxBytes > 0 && p.bytes+delta > p.maxBytes {
		return diagnostic.ErrTransactionTooLarge
	}
	if !existed && p.maxEntries > 0 && len(p.entries) >= p.maxEntries {
		return diagnostic.ErrTransactionTooLarge
	}
	if !existed {
		p.order = append(p.order, key)
	}
	p.entries[ks] = e
	p.bytes += delta
	return nil
}

// Get returns the pending value for key (removed=true for a staged delete)
// and whether key has any pending write at all.
func (p *PendingWrites) Get(key encoding.EncodedKey) (val []byte, removed bool, ok bool) {
	e, ok := p.entries[keyString(key)]
	if !ok {
		return nil, false, false
	}
	return e.val, e.removed, true
}

// Len reports the number of distinct pending keys.
func (p *PendingWrites) Len() int { return len(p.entries) }

// ForEach visits every pending key in insertion order — the stable replay
// order commit application and CDC sequencing both rely on.
func (p *PendingWrites) ForEach(fn func(key encoding.EncodedKey, val []byte, removed, keepPre bool)) {
	for _, k := range p.order {
		e := p.entries[keyString(k)]
		fn(k, e.val, e.removed, e.keepPre)
	}
}
