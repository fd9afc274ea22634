// Package store implements ReifyDB's L1 storage layer: the single-version
// ordered key→value store (spec.md §2 L1, §4 concurrency model) and, in
// multiversion.go, the multi-version store the MVCC core reads/writes
// through.
//
// What: SingleVersionStore is get/set/remove/range/prefix over EncodedKey
// with an exclusive-writer, many-readers discipline.
// How: Backed by github.com/google/btree's generic copy-on-write BTreeG,
// the same "ordered key engine" role erigon-lib's kv package documents for
// MDBX (fenghaojiang-erigon-lib/kv/kv_interface.go): Clone() gives O(1)
// snapshotting (Snapshot), and a scan of a snapshot never observes a
// later write to the original. Scans on the store itself (Range,
// ReverseRange, Prefix) hold its read lock for the scan's duration, so
// writers wait until they finish — the teacher's own pager (internal/storage/pager/btree.go)
// plays the same "on-disk ordered store" role for tinySQL's SQL engine.
// Why: Every higher layer (multi-version store, CDC log, catalog, flow
// per-node state) needs the same ordered-scan primitive; centralizing it
// here keeps range/prefix semantics (spec.md §6.2) consistent everywhere.
package store

import (
	"sync"

	"github.com/google/btree"

	"github.com/reifydb/reifydb/internal/encoding"
)

// Entry is one key/value pair as stored in a SingleVersionStore.
type Entry struct {
	Key   encoding.EncodedKey
	Value []byte
}

func less(a, b Entry) bool { return encoding.Compare(a.Key, b.Key) < 0 }

// SingleVersionStore is an ordered key→value store with an exclusive
// writer and any number of concurrent snapshot readers (spec.md §5).
type SingleVersionStore struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[Entry]
}

// NewSingleVersionStore returns an empty in-memory store.
func NewSingleVersionStore() *SingleVersionStore {
	return &SingleVersionStore{tree: btree.NewG[Entry](32, less)}
}

// Get returns the value for key, or ok=false if absent.
func (s *SingleVersionStore) Get(key encoding.EncodedKey) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.tree.Get(Entry{Key: key})
	if !ok {
		return nil, false
	}
	return item.Value, true
}

// Set inserts or overwrites key's value.
func (s *SingleVersionStore) Set(key encoding.EncodedKey, val []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.ReplaceOrInsert(Entry{Key: key, Value: val})
}

// Remove deletes key, returning whether it was present.
func (s *SingleVersionStore) Remove(key encoding.EncodedKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tree.Delete(Entry{Key: key})
	return ok
}

// Snapshot returns a copy-on-write clone safe to scan concurrently with
// further writes to s (google/btree's Clone is O(1): both trees share
// structure until one of them mutates a node).
func (s *SingleVersionStore) Snapshot() *SingleVersionStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &SingleVersionStore{tree: s.tree.Clone()}
}

// Range yields entries with start <= key < end in ascending order. A nil
// end means unbounded. Iteration stops early if yield returns false.
func (s *SingleVersionStore) Range(start, end encoding.EncodedKey, yield func(Entry) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pivot := Entry{Key: start}
	iter := func(item Entry) bool {
		if end != nil && encoding.Compare(item.Key, end) >= 0 {
			return false
		}
		return yield(item)
	}
	if start == nil {
		s.tree.Ascend(iter)
	} else {
		s.tree.AscendGreaterOrEqual(pivot, iter)
	}
}

// ReverseRange yields entries with start <= key < end in descending order.
func (s *SingleVersionStore) ReverseRange(start, end encoding.EncodedKey, yield func(Entry) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iter := func(item Entry) bool {
		if end != nil && encoding.Compare(item.Key, end) >= 0 {
			return true // DescendLessOrEqual includes end itself
		}
		if start != nil && encoding.Compare(item.Key, start) < 0 {
			return false
		}
		return yield(item)
	}
	if end == nil {
		s.tree.Descend(iter)
	} else {
		s.tree.DescendLessOrEqual(Entry{Key: end}, iter)
	}
}

// Prefix yields every entry whose key starts with prefix, in ascending
// order — the class/subspace full-scan from spec.md §6.2.
func (s *SingleVersionStore) Prefix(prefix encoding.EncodedKey, yield func(Entry) bool) {
	s.Range(prefix, prefixUpperBound(prefix), yield)
}

// prefixUpperBound returns the smallest key greater than every key sharing
// prefix, or nil if prefix is all 0xFF bytes (unbounded above).
func prefixUpperBound(prefix encoding.EncodedKey) encoding.EncodedKey {
	return encoding.PrefixUpperBound(prefix)
}

// Len reports the number of entries (used by tests and metrics).
func (s *SingleVersionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}
