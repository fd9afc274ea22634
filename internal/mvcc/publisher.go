package mvcc

import (
	"github.com/reifydb/reifydb/internal/cdc"
	"github.com/reifydb/reifydb/internal/encoding"
)

// CdcPublisher receives one batch per successful commit (spec.md §4.1.3
// step 3). *cdc.Store satisfies this directly.
type CdcPublisher interface {
	Write(cdc.Cdc) error
}

// SetCdcPublisher attaches the CDC sink every future commit publishes to.
// Passed in rather than constructed here so Engine has no hard dependency
// on a concrete storage choice for the CDC log.
func (e *Engine) SetCdcPublisher(p CdcPublisher) { e.cdcPublisher = p }

// buildChanges classifies each pending write against the value committed
// immediately before this transaction's version, producing the Insert/
// Update/Remove taxonomy CDC consumers see (spec.md §3.5). preVersion is
// the commit version in effect the instant before this one (commits are
// serialized under the oracle's lock, so this lookup is race-free).
func (t *WriteTransaction) buildChanges(preVersion uint64) []cdc.Change {
	var out []cdc.Change
	t.pending.ForEach(func(key encoding.EncodedKey, val []byte, removed, keepPre bool) {
		prev, hadPrev := t.engine.store.Get(key, preVersion)
		hasPre := hadPrev && !prev.Removed

		switch {
		case removed:
			if hasPre {
				change := cdc.Change{Kind: cdc.ChangeRemove, Key: key}
				if keepPre {
					change.Pre = prev.Value
				}
				out = append(out, change)
			}
		case hasPre:
			out = append(out, cdc.Change{Kind: cdc.ChangeUpdate, Key: key, Pre: prev.Value, Post: val})
		default:
			out = append(out, cdc.Change{Kind: cdc.ChangeInsert, Key: key, Post: val})
		}
	})
	return out
}
