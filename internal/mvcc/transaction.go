package mvcc

import (
	"time"

	"go.uber.org/zap"

	"github.com/reifydb/reifydb/internal/cdc"
	"github.com/reifydb/reifydb/internal/config"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/store"
)

// Engine owns the commit coordinator and the committed multi-version store,
// the pairing the teacher's MVCCManager plays over its single in-process
// WAL+pager (internal/storage/mvcc.go, db.go): one Oracle, one durable
// store, many concurrent readers and one write transaction at a time per
// key range.
type Engine struct {
	oracle       *Oracle
	store        *store.MultiVersionStore
	cfg          *config.Config
	log          *zap.SugaredLogger
	cdcPublisher CdcPublisher
}

// NewEngine wires an Engine from cfg, creating a fresh in-memory
// MultiVersionStore.
func NewEngine(cfg *config.Config, log *zap.SugaredLogger) *Engine {
	if cfg == nil {
		cfg = config.New()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{oracle: NewOracle(log), store: store.NewMultiVersionStore(), cfg: cfg, log: log}
}

// ReadTransaction is a snapshot at a fixed commit version (spec.md §4.1.2).
type ReadTransaction struct {
	engine  *Engine
	id      TransactionId
	version CommitVersion
	closed  bool
}

// BeginRead starts a read-only transaction pinned to the engine's current
// committed version.
func (e *Engine) BeginRead() *ReadTransaction {
	id := e.oracle.NextTransactionId()
	v := e.oracle.BeginRead(id)
	return &ReadTransaction{engine: e, id: id, version: v}
}

// BeginQuery is the engine's query-transaction entry point (spec.md §6.5
// begin_query); identical to BeginRead.
func (e *Engine) BeginQuery() *ReadTransaction { return e.BeginRead() }

// BeginCommand is the engine's command-transaction entry point (spec.md
// §6.5 begin_command); identical to BeginWrite.
func (e *Engine) BeginCommand() *WriteTransaction { return e.BeginWrite() }

// BeginQueryAsOf starts a time-travel read transaction pinned to an
// explicit historical version (spec.md §6.5 begin_query_as_of). The
// transaction still registers with the oracle so CDC retention cannot
// reclaim versions it may read.
func (e *Engine) BeginQueryAsOf(version CommitVersion) *ReadTransaction {
	id := e.oracle.NextTransactionId()
	v := e.oracle.BeginReadAt(id, version)
	return &ReadTransaction{engine: e, id: id, version: v}
}

// Version reports the transaction's snapshot version.
func (t *ReadTransaction) Version() CommitVersion { return t.version }

// ReadAsOfVersionInclusive lowers the transaction's effective read version
// so subsequent reads observe the state as of version, including writes
// committed at exactly that version (spec.md §4.1.2 time-travel reads).
// Raising the version back up is not possible.
func (t *ReadTransaction) ReadAsOfVersionInclusive(version CommitVersion) {
	if version < t.version {
		t.version = version
	}
}

// ReadAsOfVersionExclusive lowers the effective read version to just
// before version, so writes committed at version itself are not visible.
func (t *ReadTransaction) ReadAsOfVersionExclusive(version CommitVersion) {
	if version > 0 && version-1 < t.version {
		t.version = version - 1
	}
}

// Get reads key as of the transaction's snapshot.
func (t *ReadTransaction) Get(key encoding.EncodedKey) ([]byte, bool, error) {
	if t.closed {
		return nil, false, diagnostic.ErrTransactionRolledBack
	}
	mv, ok := t.engine.store.Get(key, uint64(t.version))
	if !ok || mv.Removed {
		return nil, false, nil
	}
	return mv.Value, true, nil
}

// Range scans [start, end) as of the transaction's snapshot.
func (t *ReadTransaction) Range(start, end encoding.EncodedKey, batchSize int) ([]store.MultiVersionValues, error) {
	if t.closed {
		return nil, diagnostic.ErrTransactionRolledBack
	}
	return t.engine.store.Range(start, end, uint64(t.version), batchSize), nil
}

// Prefix scans every key sharing prefix as of the transaction's snapshot.
func (t *ReadTransaction) Prefix(prefix encoding.EncodedKey, batchSize int) ([]store.MultiVersionValues, error) {
	return t.Range(prefix, encoding.PrefixUpperBound(prefix), batchSize)
}

// RangeReverse scans [start, end) in descending key order as of the
// transaction's snapshot.
func (t *ReadTransaction) RangeReverse(start, end encoding.EncodedKey, batchSize int) ([]store.MultiVersionValues, error) {
	if t.closed {
		return nil, diagnostic.ErrTransactionRolledBack
	}
	return t.engine.store.RangeReverse(start, end, uint64(t.version), batchSize), nil
}

// PrefixReverse scans every key sharing prefix in descending order.
func (t *ReadTransaction) PrefixReverse(prefix encoding.EncodedKey, batchSize int) ([]store.MultiVersionValues, error) {
	return t.RangeReverse(prefix, encoding.PrefixUpperBound(prefix), batchSize)
}

// Close releases the transaction's hold on the retention watermark.
func (t *ReadTransaction) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.engine.oracle.DoneQuery(t.id)
}

// WriteTransaction adds a pending-writes overlay and conflict tracking atop
// a ReadTransaction's snapshot (spec.md §4.1.2/§4.1.3).
type WriteTransaction struct {
	ReadTransaction
	pending  *PendingWrites
	conflict *ConflictManager
	done     bool
}

// BeginWrite starts a read-write transaction pinned to the engine's current
// committed version.
func (e *Engine) BeginWrite() *WriteTransaction {
	id := e.oracle.NextTransactionId()
	v := e.oracle.BeginRead(id)
	return &WriteTransaction{
		ReadTransaction: ReadTransaction{engine: e, id: id, version: v},
		pending:         NewPendingWrites(int(e.cfg.PendingWritesMaxBytes), e.cfg.PendingWritesMaxEntries),
		conflict:        NewConflictManager(),
	}
}

// Get reads key, checking the pending overlay before the committed snapshot
// and recording key in the read set for conflict detection (spec.md
// §4.1.4's merge rule).
func (t *WriteTransaction) Get(key encoding.EncodedKey) ([]byte, bool, error) {
	if t.done {
		return nil, false, diagnostic.ErrTransactionRolledBack
	}
	t.conflict.RecordRead(key)
	if val, removed, ok := t.pending.Get(key); ok {
		if removed {
			return nil, false, nil
		}
		return val, true, nil
	}
	return t.ReadTransaction.Get(key)
}

// Set stages val for key, visible to this transaction immediately and to
// everyone else only after a successful Commit.
func (t *WriteTransaction) Set(key encoding.EncodedKey, val []byte) error {
	if t.done {
		return diagnostic.ErrTransactionRolledBack
	}
	t.conflict.RecordWrite(key)
	return t.pending.Set(key, val)
}

// Delete stages a tombstone for key. No pre-value is captured into the
// CDC batch (spec.md §6.5 "remove (no pre-values)").
func (t *WriteTransaction) Delete(key encoding.EncodedKey) error {
	if t.done {
		return diagnostic.ErrTransactionRolledBack
	}
	t.conflict.RecordWrite(key)
	return t.pending.Delete(key)
}

// Unset stages a tombstone for key whose pre-value is captured into the
// CDC batch at commit (spec.md §6.5 "unset (with pre-values for CDC)") —
// the flavor row deletions use so flow consumers can decode the removed
// row from the change stream.
func (t *WriteTransaction) Unset(key encoding.EncodedKey) error {
	if t.done {
		return diagnostic.ErrTransactionRolledBack
	}
	t.conflict.RecordWrite(key)
	return t.pending.Unset(key)
}

// ContainsKey reports whether key is visible to this transaction, through
// the pending overlay or the committed snapshot.
func (t *WriteTransaction) ContainsKey(key encoding.EncodedKey) (bool, error) {
	_, ok, err := t.Get(key)
	return ok, err
}

// MarkRead records key in the conflict read set without reading it —
// for callers that derive a decision from a key's existence elsewhere
// (e.g. an index probe served from a cache) but still need SSI to see
// the dependency.
func (t *WriteTransaction) MarkRead(key encoding.EncodedKey) {
	if t.done {
		return
	}
	t.conflict.RecordRead(key)
}

// Rollback discards pending writes without publishing them.
func (t *WriteTransaction) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.ReadTransaction.Close()
}

// Commit runs the Oracle's SSI conflict check and, on success, publishes
// every pending write at the newly assigned commit version (spec.md
// §4.1.1). Returns diagnostic.ErrTransactionConflict on conflict; the caller
// may retry by beginning a new WriteTransaction.
func (t *WriteTransaction) Commit() (CommitVersion, error) {
	if t.done {
		return 0, diagnostic.ErrTransactionRolledBack
	}
	defer t.ReadTransaction.Close()
	t.done = true

	outcome := t.engine.oracle.NewCommit(t.version, t.conflict.Reads(), t.conflict.Writes())
	if outcome.Conflict {
		return 0, diagnostic.ErrTransactionConflict
	}

	var changes []cdc.Change
	if t.engine.cdcPublisher != nil {
		changes = t.buildChanges(uint64(outcome.Version) - 1)
	}

	t.pending.ForEach(func(key encoding.EncodedKey, val []byte, removed, _ bool) {
		if removed {
			t.engine.store.Remove(key, uint64(outcome.Version))
		} else {
			t.engine.store.Set(key, uint64(outcome.Version), val)
		}
	})

	if t.engine.cdcPublisher != nil {
		// An empty commit still publishes its (zero-change) batch so the
		// CDC log stays dense in commit versions; consumers filter it out.
		batch := cdc.Sequence(uint64(outcome.Version), uint64(time.Now().UnixMilli()), changes)
		if err := t.engine.cdcPublisher.Write(batch); err != nil {
			t.engine.log.Errorw("cdc publish failed", "version", outcome.Version, "err", err)
		}
	}
	return outcome.Version, nil
}
