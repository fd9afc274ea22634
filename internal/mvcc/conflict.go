package mvcc

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/reifydb/reifydb/internal/encoding"
)

// ConflictManager accumulates the read-set and write-set a transaction
// touches so the Oracle can run an exact per-key SSI check at commit time
// (spec.md §4.1.1). Built on github.com/deckarep/golang-set/v2 so the set
// operations at commit (Intersect/Cardinality) read the way the spec states
// the rule, rather than as a hand-rolled map-diff loop.
type ConflictManager struct {
	reads  mapset.Set[string]
	writes mapset.Set[string]
}

// NewConflictManager returns an empty tracker.
func NewConflictManager() *ConflictManager {
	return &ConflictManager{reads: mapset.NewThreadUnsafeSet[string](), writes: mapset.NewThreadUnsafeSet[string]()}
}

// RecordRead marks key as read by the owning transaction.
func (c *ConflictManager) RecordRead(key encoding.EncodedKey) { c.reads.Add(keyString(key)) }

// RecordWrite marks key as written by the owning transaction.
func (c *ConflictManager) RecordWrite(key encoding.EncodedKey) { c.writes.Add(keyString(key)) }

// Reads exposes the accumulated read set for the Oracle's commit check.
func (c *ConflictManager) Reads() mapset.Set[string] { return c.reads }

// Writes exposes the accumulated write set, published to the journal on a
// successful commit so later transactions can detect conflicts against it.
func (c *ConflictManager) Writes() mapset.Set[string] { return c.writes }
