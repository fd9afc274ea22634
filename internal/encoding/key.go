// Package encoding implements ReifyDB's L0 byte-level layouts: EncodedKey
// (spec.md §3.2, §6.2) and EncodedValues (spec.md §3.2, §6.3).
//
// What: EncodedKey is an ordered byte sequence composed of a one-byte class
// tag followed by big-endian fixed-width ID fields, matching the wire
// format fixed in spec.md §6.2. EncodedValues is the persisted row layout.
// How: Mirrors the teacher's binary row codec in
// internal/storage/pager/row_codec.go (fixed tag-prefixed binary.LittleEndian
// fields, no JSON) but big-endian for keys so lexicographic byte order
// equals numeric order, which is required for range scans (spec.md §6.2).
// Why: Persisted key order must be stable across versions of this package
// and must compare correctly as raw bytes without decoding — the whole
// point of a columnar/MVCC engine's range scan.
package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// KeyClass is the one-byte discriminator prefixing every EncodedKey.
type KeyClass byte

const (
	ClassTableRow      KeyClass = 0x01
	ClassViewRow       KeyClass = 0x02
	ClassRingBufferRow KeyClass = 0x03
	ClassSeriesRow     KeyClass = 0x04
	ClassPrimaryKey    KeyClass = 0x05
	ClassNamespaceTable KeyClass = 0x06
	ClassCdcConsumer   KeyClass = 0x07
	ClassFlowNodeState KeyClass = 0x08
	ClassSequence      KeyClass = 0x09
	ClassIndexEntry    KeyClass = 0x0A
	ClassCdcBatch      KeyClass = 0x0B
)

// EncodedKey is an immutable, lexicographically ordered byte sequence.
type EncodedKey []byte

// Compare orders two keys by raw byte value, which is the definition
// required by spec.md §3.2: comparing encoded keys must equal logically
// comparing the tagged values they were built from.
func Compare(a, b EncodedKey) int { return bytes.Compare(a, b) }

// Bytes exposes the raw key bytes (read-only by convention; callers must
// not mutate the returned slice).
func (k EncodedKey) Bytes() []byte { return []byte(k) }

func (k EncodedKey) Class() KeyClass {
	if len(k) == 0 {
		return 0
	}
	return KeyClass(k[0])
}

// appendU64 appends a big-endian u64 so lexicographic byte order matches
// numeric order — the property range scans over table/row subspaces rely
// on (spec.md §6.2: "Range scans must return keys in lexicographic order").
func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

// TableRowKey encodes a TableRow class key: tag ‖ be_u64 table_id ‖ be_u64 row_id.
func TableRowKey(tableID, rowID uint64) EncodedKey {
	buf := make([]byte, 0, 17)
	buf = append(buf, byte(ClassTableRow))
	buf = appendU64(buf, tableID)
	buf = appendU64(buf, rowID)
	return buf
}

// ViewRowKey encodes a ViewRow class key.
func ViewRowKey(viewID, rowID uint64) EncodedKey {
	buf := make([]byte, 0, 17)
	buf = append(buf, byte(ClassViewRow))
	buf = appendU64(buf, viewID)
	buf = appendU64(buf, rowID)
	return buf
}

// RingBufferRowKey encodes a RingBufferRow class key.
func RingBufferRowKey(rbID, rowID uint64) EncodedKey {
	buf := make([]byte, 0, 17)
	buf = append(buf, byte(ClassRingBufferRow))
	buf = appendU64(buf, rbID)
	buf = appendU64(buf, rowID)
	return buf
}

// SeriesRowKey encodes a SeriesRow class key.
func SeriesRowKey(seriesID, rowID uint64) EncodedKey {
	buf := make([]byte, 0, 17)
	buf = append(buf, byte(ClassSeriesRow))
	buf = appendU64(buf, seriesID)
	buf = appendU64(buf, rowID)
	return buf
}

// PrimaryKeyKey encodes a PrimaryKey class key: tag ‖ be_u64 pk_id.
func PrimaryKeyKey(pkID uint64) EncodedKey {
	buf := make([]byte, 0, 9)
	buf = append(buf, byte(ClassPrimaryKey))
	buf = appendU64(buf, pkID)
	return buf
}

// NamespaceTableKey encodes a NamespaceTable class key.
func NamespaceTableKey(namespaceID, tableID uint64) EncodedKey {
	buf := make([]byte, 0, 17)
	buf = append(buf, byte(ClassNamespaceTable))
	buf = appendU64(buf, namespaceID)
	buf = appendU64(buf, tableID)
	return buf
}

// CdcConsumerKey encodes a CdcConsumer class key: tag ‖ sized-string consumer_id.
func CdcConsumerKey(consumerID string) EncodedKey {
	buf := make([]byte, 0, 1+2+len(consumerID))
	buf = append(buf, byte(ClassCdcConsumer))
	buf = appendU16(buf, uint16(len(consumerID)))
	buf = append(buf, consumerID...)
	return buf
}

// FlowNodeStateKey encodes per-operator persistent state, partitioned by
// FlowNodeId so the dispatcher can give each operator an exclusive write
// owner (spec.md §4.3.4, §5).
func FlowNodeStateKey(flowNodeID uint64, stateKey []byte) EncodedKey {
	buf := make([]byte, 0, 9+len(stateKey))
	buf = append(buf, byte(ClassFlowNodeState))
	buf = appendU64(buf, flowNodeID)
	buf = append(buf, stateKey...)
	return buf
}

// SequenceKey encodes a sequence object's counter key.
func SequenceKey(sequenceID uint64) EncodedKey {
	buf := make([]byte, 0, 9)
	buf = append(buf, byte(ClassSequence))
	buf = appendU64(buf, sequenceID)
	return buf
}

// CdcBatchKey encodes the dense CommitVersion -> Cdc batch mapping (spec.md
// §4.2.1). Big-endian so ascending version order equals ascending byte
// order, which is what read_range and drop_before rely on.
func CdcBatchKey(version uint64) EncodedKey {
	buf := make([]byte, 0, 9)
	buf = append(buf, byte(ClassCdcBatch))
	buf = appendU64(buf, version)
	return buf
}

// ParseRowKey decodes the common TableRow/ViewRow/RingBufferRow/SeriesRow
// layout (tag ‖ be_u64 parent_id ‖ be_u64 row_id), the inverse of
// TableRowKey/ViewRowKey/RingBufferRowKey/SeriesRowKey — used by the flow
// dispatcher to recover a CDC event's owning primitive (spec.md §4.3.5
// step (a): "extracts the owning PrimitiveId").
func ParseRowKey(k EncodedKey) (class KeyClass, parentID, rowID uint64, ok bool) {
	if len(k) != 17 {
		return 0, 0, 0, false
	}
	switch KeyClass(k[0]) {
	case ClassTableRow, ClassViewRow, ClassRingBufferRow, ClassSeriesRow:
	default:
		return 0, 0, 0, false
	}
	return KeyClass(k[0]), binary.BigEndian.Uint64(k[1:9]), binary.BigEndian.Uint64(k[9:17]), true
}

// ClassPrefix returns the full-scan prefix "[tag]" for a key class.
func ClassPrefix(c KeyClass) EncodedKey { return EncodedKey{byte(c)} }

// SubspacePrefix returns the subspace-scan prefix "[tag ‖ parent_id]".
func SubspacePrefix(c KeyClass, parentID uint64) EncodedKey {
	buf := make([]byte, 0, 9)
	buf = append(buf, byte(c))
	buf = appendU64(buf, parentID)
	return buf
}

// HasPrefix reports whether k starts with prefix, the primitive subspace
// and full-scan operation described in spec.md §6.2.
func HasPrefix(k, prefix EncodedKey) bool {
	return bytes.HasPrefix([]byte(k), []byte(prefix))
}

// PrefixUpperBound returns the smallest key greater than every key sharing
// prefix, or nil if prefix is unbounded above (all 0xFF bytes) — the
// exclusive end bound a Range scan needs to implement a prefix scan.
func PrefixUpperBound(prefix EncodedKey) EncodedKey {
	ub := append(EncodedKey(nil), prefix...)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] != 0xFF {
			ub[i]++
			return ub[:i+1]
		}
	}
	return nil
}

// String renders a key for diagnostics/logging only; never used on a hot path.
func (k EncodedKey) String() string {
	if len(k) == 0 {
		return "<empty>"
	}
	return fmt.Sprintf("%02x:%x", k[0], k[1:])
}
