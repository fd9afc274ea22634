package mvcc

import (
	"sort"

	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/store"
)

// pendingInRange returns this overlay's keys within [start, end), sorted
// ascending by key, for merging against a committed range scan (spec.md
// §4.1.4). Pending writes are few relative to a committed range, so sorting
// on demand beats keeping a second ordered index up to date on every Set.
func (p *PendingWrites) pendingInRange(start, end encoding.EncodedKey) []encoding.EncodedKey {
	keys := make([]encoding.EncodedKey, 0, len(p.order))
	for _, k := range p.order {
		if start != nil && encoding.Compare(k, start) < 0 {
			continue
		}
		if end != nil && encoding.Compare(k, end) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return encoding.Compare(keys[i], keys[j]) < 0 })
	return keys
}

// Range merges the pending overlay with the committed snapshot over
// [start, end): for any key present in both, the pending value wins; a
// pending tombstone suppresses the committed value entirely (spec.md
// §4.1.4's merge rule — "pending state always shadows committed state").
func (t *WriteTransaction) Range(start, end encoding.EncodedKey, batchSize int) ([]store.MultiVersionValues, error) {
	if t.done {
		return nil, diagnostic.ErrTransactionRolledBack
	}
	committed := t.engine.store.Range(start, end, uint64(t.version), batchSize)
	pendingKeys := t.pending.pendingInRange(start, end)
	if len(pendingKeys) == 0 {
		return committed, nil
	}

	pendingSet := make(map[string]bool, len(pendingKeys))
	for _, k := range pendingKeys {
		pendingSet[keyString(k)] = true
	}

	out := make([]store.MultiVersionValues, 0, len(committed)+len(pendingKeys))
	i, j := 0, 0
	for i < len(committed) || j < len(pendingKeys) {
		switch {
		case i >= len(committed):
			appendPending(&out, t.pending, pendingKeys[j])
			j++
		case j >= len(pendingKeys):
			if !pendingSet[keyString(committed[i].Key)] {
				out = append(out, committed[i])
			}
			i++
		default:
			cmp := encoding.Compare(committed[i].Key, pendingKeys[j])
			switch {
			case cmp < 0:
				if !pendingSet[keyString(committed[i].Key)] {
					out = append(out, committed[i])
				}
				i++
			case cmp > 0:
				appendPending(&out, t.pending, pendingKeys[j])
				j++
			default: // same logical key: pending shadows committed
				appendPending(&out, t.pending, pendingKeys[j])
				i++
				j++
			}
		}
	}
	if batchSize > 0 && len(out) > batchSize {
		out = out[:batchSize]
	}
	return out, nil
}

// Prefix scans every key sharing prefix, merging the pending overlay over
// the committed snapshot the same way Range does.
func (t *WriteTransaction) Prefix(prefix encoding.EncodedKey, batchSize int) ([]store.MultiVersionValues, error) {
	return t.Range(prefix, encoding.PrefixUpperBound(prefix), batchSize)
}

func appendPending(out *[]store.MultiVersionValues, p *PendingWrites, key encoding.EncodedKey) {
	val, removed, _ := p.Get(key)
	if removed {
		return
	}
	*out = append(*out, store.MultiVersionValues{Key: key, Value: val})
}
