// Package cdc implements ReifyDB's change-data-capture pipeline (spec.md
// §4.2): a dense version-indexed log of committed changes, a retention
// loop, and a consumer protocol delivering events in strict (version,
// sequence) order with at-least-once semantics.
//
// What: Cdc is one committed transaction's published batch; CdcStore is
// the dense CommitVersion -> Cdc map; Consumer drives a named processor's
// checkpointed polling loop.
// How: Grounded on the teacher's job/scheduler bookkeeping in
// internal/storage/catalog.go (ListJobs/UpdateJobRuntime's checkpoint-like
// runtime tracking) and internal/storage/scheduler.go's polling-worker
// shape, rebuilt around spec.md's CDC contract. Batches are JSON-encoded
// the way the teacher's internal/storage/json_helpers.go serializes
// internal structured values, since no pack example wires a dedicated
// binary serialization library for this kind of small, infrequently-read
// structured record.
// Why: CDC is the single mechanism the flow dispatcher and external
// subscribers use to observe committed writes; its ordering and retention
// guarantees (spec.md §4.2, §5) must hold regardless of how many consumers
// are attached.
package cdc

import "github.com/reifydb/reifydb/internal/encoding"

// ChangeKind discriminates a CdcChange's variant (spec.md §3.5).
type ChangeKind uint8

const (
	ChangeInsert ChangeKind = iota + 1
	ChangeUpdate
	ChangeRemove
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Change is one row-level mutation within a committed batch. Pre/Post hold
// encoded row bytes (encoding.EncodedValues.Bytes, not decoded here — the
// consumer decides what to do with them).
type Change struct {
	Kind ChangeKind
	Key  encoding.EncodedKey
	Pre  []byte
	Post []byte
}

// SequencedChange pairs a Change with its 1-based position within its
// batch (spec.md §3.5 invariant a).
type SequencedChange struct {
	Sequence uint16
	Change   Change
}

// Cdc is one transaction's committed batch (spec.md §3.5).
type Cdc struct {
	Version     uint64
	TimestampMs uint64
	Changes     []SequencedChange
}

// Sequence assigns contiguous 1-based sequence numbers to changes, in the
// order supplied — the order a write transaction's pending writes were
// staged, which is also the order they are applied to the multi-version
// store (spec.md §4.1.3 step 3).
func Sequence(version, timestampMs uint64, changes []Change) Cdc {
	seq := make([]SequencedChange, len(changes))
	for i, c := range changes {
		seq[i] = SequencedChange{Sequence: uint16(i + 1), Change: c}
	}
	return Cdc{Version: version, TimestampMs: timestampMs, Changes: seq}
}
