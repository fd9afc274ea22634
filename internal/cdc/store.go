package cdc

import (
	"encoding/json"
	"fmt"

	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/store"
)

// BoundKind discriminates a Bound's variant.
type BoundKind uint8

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

// Bound delimits one end of a read_range scan (spec.md §4.2.1).
type Bound struct {
	Kind    BoundKind
	Version uint64
}

func UnboundedBound() Bound        { return Bound{Kind: Unbounded} }
func IncludedBound(v uint64) Bound { return Bound{Kind: Included, Version: v} }
func ExcludedBound(v uint64) Bound { return Bound{Kind: Excluded, Version: v} }

// Batch is the result of a read_range scan.
type Batch struct {
	Items   []Cdc
	HasMore bool
}

// DropBeforeResult summarizes a retention sweep (spec.md §4.2.1).
type DropBeforeResult struct {
	Count   int
	Entries []uint64
}

// Store is the CdcStore contract: a dense CommitVersion -> Cdc map.
type Store struct {
	backing *store.SingleVersionStore
}

// NewStore returns an empty in-memory CdcStore.
func NewStore() *Store {
	return &Store{backing: store.NewSingleVersionStore()}
}

// Write durably records batch, overwriting any existing entry at the same
// version (idempotent on identical version+contents, per spec.md §4.2.1 —
// used during crash recovery replay).
func (s *Store) Write(batch Cdc) error {
	raw, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("cdc: encode batch %d: %w", batch.Version, err)
	}
	s.backing.Set(encoding.CdcBatchKey(batch.Version), raw)
	return nil
}

// Read returns the batch at version, if any.
func (s *Store) Read(version uint64) (Cdc, bool) {
	raw, ok := s.backing.Get(encoding.CdcBatchKey(version))
	if !ok {
		return Cdc{}, false
	}
	var out Cdc
	if err := json.Unmarshal(raw, &out); err != nil {
		return Cdc{}, false
	}
	return out, true
}

// Count reports the number of changes in the batch at version, 0 if absent.
func (s *Store) Count(version uint64) int {
	b, ok := s.Read(version)
	if !ok {
		return 0
	}
	return len(b.Changes)
}

// MinVersion returns the oldest retained version, if any.
func (s *Store) MinVersion() (uint64, bool) {
	var found uint64
	ok := false
	s.backing.Prefix(encoding.ClassPrefix(encoding.ClassCdcBatch), func(e store.Entry) bool {
		_, found = splitBatchKey(e.Key)
		ok = true
		return false
	})
	return found, ok
}

// MaxVersion returns the newest retained version, if any.
func (s *Store) MaxVersion() (uint64, bool) {
	var found uint64
	ok := false
	s.backing.ReverseRange(nil, nil, func(e store.Entry) bool {
		if e.Key.Class() != encoding.ClassCdcBatch {
			return true
		}
		_, found = splitBatchKey(e.Key)
		ok = true
		return false
	})
	return found, ok
}

// ReadRange scans batches between start and end, each end included or
// excluded as its Bound kind says, in ascending version order,
// bounded by batchSize (0 means unbounded).
func (s *Store) ReadRange(start, end Bound, batchSize int) Batch {
	startKey, endKey := boundsToKeys(start, end)
	var out Batch
	s.backing.Range(startKey, endKey, func(e store.Entry) bool {
		if batchSize > 0 && len(out.Items) >= batchSize {
			out.HasMore = true
			return false
		}
		var c Cdc
		if err := json.Unmarshal(e.Value, &c); err == nil {
			out.Items = append(out.Items, c)
		}
		return true
	})
	return out
}

// DropBefore physically removes every batch strictly older than version.
func (s *Store) DropBefore(version uint64) DropBeforeResult {
	var doomed []encoding.EncodedKey
	s.backing.Range(encoding.ClassPrefix(encoding.ClassCdcBatch), encoding.CdcBatchKey(version), func(e store.Entry) bool {
		doomed = append(doomed, append(encoding.EncodedKey(nil), e.Key...))
		return true
	})
	result := DropBeforeResult{Entries: make([]uint64, 0, len(doomed))}
	for _, k := range doomed {
		_, v := splitBatchKey(k)
		s.backing.Remove(k)
		result.Entries = append(result.Entries, v)
		result.Count++
	}
	return result
}

func splitBatchKey(k encoding.EncodedKey) (class encoding.KeyClass, version uint64) {
	b := k.Bytes()
	version = 0
	for _, x := range b[1:9] {
		version = version<<8 | uint64(x)
	}
	return k.Class(), version
}

func boundsToKeys(start, end Bound) (encoding.EncodedKey, encoding.EncodedKey) {
	var startKey encoding.EncodedKey
	switch start.Kind {
	case Unbounded:
		startKey = encoding.ClassPrefix(encoding.ClassCdcBatch)
	case Included:
		startKey = encoding.CdcBatchKey(start.Version)
	case Excluded:
		startKey = encoding.CdcBatchKey(start.Version + 1)
	}
	var endKey encoding.EncodedKey
	switch end.Kind {
	case Unbounded:
		endKey = encoding.PrefixUpperBound(encoding.ClassPrefix(encoding.ClassCdcBatch))
	case Included:
		endKey = encoding.CdcBatchKey(end.Version + 1)
	case Excluded:
		endKey = encoding.CdcBatchKey(end.Version)
	}
	return startKey, endKey
}
