package store

import (
	"encoding/binary"

	"github.com/reifydb/reifydb/internal/encoding"
)

const versionSuffixLen = 8

// MultiVersionStore suffixes every logical key with its commit version
// (spec.md §2 L1) and keeps a version chain per logical key: range/prefix
// scans return only the newest value visible at a given read version.
type MultiVersionStore struct {
	single *SingleVersionStore
}

func NewMultiVersionStore() *MultiVersionStore {
	return &MultiVersionStore{single: NewSingleVersionStore()}
}

// MultiVersionValues is one logical key's visible value at a given
// version, or a tombstone if the key was removed at that version.
type MultiVersionValues struct {
	Key     encoding.EncodedKey // logical key, no version suffix
	Version uint64
	Value   []byte
	Removed bool
}

func physicalKey(logical encoding.EncodedKey, version uint64) encoding.EncodedKey {
	buf := make([]byte, len(logical)+versionSuffixLen)
	copy(buf, logical)
	binary.BigEndian.PutUint64(buf[len(logical):], version)
	return buf
}

func splitPhysicalKey(phys encoding.EncodedKey) (logical encoding.EncodedKey, version uint64) {
	n := len(phys) - versionSuffixLen
	return phys[:n], binary.BigEndian.Uint64(phys[n:])
}

// Set durably writes value for logical at the given commit version.
func (m *MultiVersionStore) Set(logical encoding.EncodedKey, version uint64, value []byte) {
	m.single.Set(physicalKey(logical, version), value)
}

// Remove writes a tombstone for logical at version (nil value, Removed=true
// on read).
func (m *MultiVersionStore) Remove(logical encoding.EncodedKey, version uint64) {
	m.single.Set(physicalKey(logical, version), nil)
}

// Get returns the newest value for logical with version <= readVersion.
func (m *MultiVersionStore) Get(logical encoding.EncodedKey, readVersion uint64) (*MultiVersionValues, bool) {
	upper := physicalKey(logical, readVersion)
	var found *MultiVersionValues
	m.single.ReverseRange(nil, upperBoundInclusive(upper), func(e Entry) bool {
		lk, ver := splitPhysicalKey(e.Key)
		if encoding.Compare(lk, logical) != 0 {
			return false // past the version chain for this logical key
		}
		found = &MultiVersionValues{Key: lk, Version: ver, Value: e.Value, Removed: e.Value == nil}
		return false
	})
	if found == nil {
		return nil, false
	}
	return found, true
}

func upperBoundInclusive(key encoding.EncodedKey) encoding.EncodedKey {
	// ReverseRange's end bound is exclusive; append a 0x00 to include key itself.
	buf := append(encoding.EncodedKey(nil), key...)
	return append(buf, 0x00)
}

// Range scans logical keys in [startLogical, endLogical) and returns the
// newest-visible MultiVersionValues for each at readVersion, skipping keys
// with no version <= readVersion. batchSize bounds the result count; the
// caller resumes from the last returned key's successor.
func (m *MultiVersionStore) Range(startLogical, endLogical encoding.EncodedKey, readVersion uint64, batchSize int) []MultiVersionValues {
	var out []MultiVersionValues
	var curLogical encoding.EncodedKey
	var best *MultiVersionValues

	flush := func() {
		if best != nil && !best.Removed {
			out = append(out, *best)
		}
		best = nil
	}

	m.single.Range(startLogical, endLogical, func(e Entry) bool {
		lk, ver := splitPhysicalKey(e.Key)
		if curLogical == nil || encoding.Compare(lk, curLogical) != 0 {
			flush()
			if batchSize > 0 && len(out) >= batchSize {
				return false
			}
			curLogical = append(encoding.EncodedKey(nil), lk...)
			best = nil
		}
		if ver <= readVersion {
			best = &MultiVersionValues{Key: curLogical, Version: ver, Value: e.Value, Removed: e.Value == nil}
		}
		return true
	})
	flush()
	if batchSize > 0 && len(out) > batchSize {
		out = out[:batchSize]
	}
	return out
}

// Prefix scans every logical key sharing prefix, newest-visible at
// readVersion.
func (m *MultiVersionStore) Prefix(prefix encoding.EncodedKey, readVersion uint64, batchSize int) []MultiVersionValues {
	return m.Range(prefix, prefixUpperBound(prefix), readVersion, batchSize)
}

// RangeReverse returns the same newest-visible set as Range, in descending
// logical-key order. The visible set must be resolved ascending first
// (each logical key's version chain is walked low-to-high to find the
// newest entry at readVersion), so the reversal happens on the resolved
// set and batchSize trims from the high end of the range.
func (m *MultiVersionStore) RangeReverse(startLogical, endLogical encoding.EncodedKey, readVersion uint64, batchSize int) []MultiVersionValues {
	out := m.Range(startLogical, endLogical, readVersion, 0)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if batchSize > 0 && len(out) > batchSize {
		out = out[:batchSize]
	}
	return out
}

// PrefixReverse scans every logical key sharing prefix in descending
// order, newest-visible at readVersion.
func (m *MultiVersionStore) PrefixReverse(prefix encoding.EncodedKey, readVersion uint64, batchSize int) []MultiVersionValues {
	return m.RangeReverse(prefix, prefixUpperBound(prefix), readVersion, batchSize)
}
