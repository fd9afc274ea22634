// Package catalog implements ReifyDB's metadata façade (spec.md §9
// "Cyclic references"): namespaces, tables, views, ring buffers, series,
// columns, primary keys, and sequences, each identified by an opaque ID
// and resolved on demand rather than held as direct object references.
//
// What: NamespaceId/TableId/ViewId/... are the IDs every other layer
// (encoding, store, flow) uses to build keys; Catalog is the read-mostly
// façade that resolves IDs to definitions.
// How: One RWMutex-guarded set of ID-keyed maps, the way the teacher's
// CatalogManager (internal/storage/catalog.go) guards its name-keyed
// maps — but keyed by ID here, with a name index layered on top, since
// spec.md requires catalog entities to reference each other only by ID
// to avoid cycles in the object graph.
// Why: Tables reference their primary key, columns reference their
// table, a ring buffer behaves like a table with a fixed capacity — IDs
// let all of these point at each other without forming Go pointer
// cycles the garbage collector or copy semantics would have to contend
// with.
package catalog

import (
	"sync/atomic"

	"github.com/reifydb/reifydb/internal/value"
)

type NamespaceId uint64
type TableId uint64
type ViewId uint64
type RingBufferId uint64
type SeriesId uint64
type ColumnIndex uint8 // implementation-defined width >= 8 bits (spec.md §9 open question); u8 chosen as the canonical path
type PrimaryKeyId uint64
type SequenceId uint64
type IndexId uint64

// Namespace groups tables, views, ring buffers, and series under one name.
type Namespace struct {
	ID   NamespaceId
	Name string
}

// Column describes one column of a table, view, ring buffer, or series.
type Column struct {
	Index    ColumnIndex
	Name     string
	Type     value.Type
	Nullable bool
	Default  *value.Value
}

// PrimaryKey names the columns (by index, in order) that uniquely
// identify a row within its owning table.
type PrimaryKey struct {
	ID      PrimaryKeyId
	Columns []ColumnIndex
}

// Table is a primitive storing rows keyed by RowNumber under
// encoding.ClassTableRow (spec.md §6.2).
type Table struct {
	ID          TableId
	NamespaceID NamespaceId
	Name        string
	Columns     []Column
	PrimaryKey  *PrimaryKeyId
}

// View is a primitive whose rows are maintained by a Flow DAG rather
// than written directly (spec.md §3.6 SinkView).
type View struct {
	ID          ViewId
	NamespaceID NamespaceId
	Name        string
	Columns     []Column
}

// RingBuffer is the catalog record of a ring buffer primitive. Capacity
// is stored as declared; no write path in this module enforces it or
// drops old rows once it is reached.
type RingBuffer struct {
	ID          RingBufferId
	NamespaceID NamespaceId
	Name        string
	Columns     []Column
	Capacity    uint64
}

// Series is an append-only, time-ordered primitive.
type Series struct {
	ID          SeriesId
	NamespaceID NamespaceId
	Name        string
	Columns     []Column
}

// Sequence is a monotonic counter object (e.g. backing auto-increment
// columns or RowNumber allocation).
type Sequence struct {
	ID   SequenceId
	Name string
	n    uint64
}

// Next returns the next value in the sequence, starting at 1.
func (s *Sequence) Next() uint64 { return atomic.AddUint64(&s.n, 1) }

// Index describes a secondary index over a table, either unique or not.
type Index struct {
	ID      IndexId
	TableID TableId
	Name    string
	Columns []ColumnIndex
	Unique  bool
}
