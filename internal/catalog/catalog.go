package catalog

import (
	"sync"
	"sync/atomic"

	"github.com/reifydb/reifydb/internal/diagnostic"
)

// Catalog is the read-mostly metadata façade (spec.md §5 "catalog is
// read-mostly, protected by a read-write lock").
type Catalog struct {
	mu sync.RWMutex

	namespaces   map[NamespaceId]*Namespace
	namespaceIdx map[string]NamespaceId

	tables   map[TableId]*Table
	tableIdx map[qualifiedName]TableId

	views   map[ViewId]*View
	viewIdx map[qualifiedName]ViewId

	ringBuffers   map[RingBufferId]*RingBuffer
	ringBufferIdx map[qualifiedName]RingBufferId

	series    map[SeriesId]*Series
	seriesIdx map[qualifiedName]SeriesId

	primaryKeys map[PrimaryKeyId]*PrimaryKey
	sequences   map[SequenceId]*Sequence
	indexes     map[IndexId]*Index

	rowSequences map[uint64]*Sequence // primitive ID (table/view/ring buffer/series) -> RowNumber allocator

	nextID uint64
}

type qualifiedName struct {
	namespace NamespaceId
	name      string
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{
		namespaces:    make(map[NamespaceId]*Namespace),
		namespaceIdx:  make(map[string]NamespaceId),
		tables:        make(map[TableId]*Table),
		tableIdx:      make(map[qualifiedName]TableId),
		views:         make(map[ViewId]*View),
		viewIdx:       make(map[qualifiedName]ViewId),
		ringBuffers:   make(map[RingBufferId]*RingBuffer),
		ringBufferIdx: make(map[qualifiedName]RingBufferId),
		series:        make(map[SeriesId]*Series),
		seriesIdx:     make(map[qualifiedName]SeriesId),
		primaryKeys:   make(map[PrimaryKeyId]*PrimaryKey),
		sequences:     make(map[SequenceId]*Sequence),
		indexes:       make(map[IndexId]*Index),
		rowSequences:  make(map[uint64]*Sequence),
	}
}

// NextRowNumber allocates the next spec.md §3.4 RowNumber for the given
// primitive (table/view/ring buffer/series), lazily creating that
// primitive's allocator on first use.
func (c *Catalog) NextRowNumber(primitiveID uint64) uint64 {
	c.mu.Lock()
	seq, ok := c.rowSequences[primitiveID]
	if !ok {
		seq = &Sequence{ID: SequenceId(c.allocID()), Name: "row"}
		c.rowSequences[primitiveID] = seq
	}
	c.mu.Unlock()
	return seq.Next()
}

func (c *Catalog) allocID() uint64 {
	return atomic.AddUint64(&c.nextID, 1)
}

// CreateNamespace registers a new namespace, failing if the name is taken.
func (c *Catalog) CreateNamespace(name string) (NamespaceId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.namespaceIdx[name]; exists {
		return 0, diagnostic.ErrCatalogAlreadyExists.WithFragment(name, "namespace")
	}
	id := NamespaceId(c.allocID())
	c.namespaces[id] = &Namespace{ID: id, Name: name}
	c.namespaceIdx[name] = id
	return id, nil
}

// Namespace resolves a NamespaceId to its definition.
func (c *Catalog) Namespace(id NamespaceId) (*Namespace, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ns, ok := c.namespaces[id]
	if !ok {
		return nil, diagnostic.ErrCatalogNotFound.WithFragment("", "namespace")
	}
	return ns, nil
}

// NamespaceByName resolves a namespace by its unique name.
func (c *Catalog) NamespaceByName(name string) (*Namespace, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.namespaceIdx[name]
	if !ok {
		return nil, diagnostic.ErrCatalogNotFound.WithFragment(name, "namespace")
	}
	return c.namespaces[id], nil
}

// CreateTable registers a table under namespaceID. pk, if non-nil, must
// already be registered via CreatePrimaryKey.
func (c *Catalog) CreateTable(namespaceID NamespaceId, name string, cols []Column, pk *PrimaryKeyId) (TableId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.namespaces[namespaceID]; !ok {
		return 0, diagnostic.ErrCatalogNotFound.WithFragment("", "namespace")
	}
	key := qualifiedName{namespace: namespaceID, name: name}
	if _, exists := c.tableIdx[key]; exists {
		return 0, diagnostic.ErrCatalogAlreadyExists.WithFragment(name, "table")
	}
	if pk != nil {
		if _, ok := c.primaryKeys[*pk]; !ok {
			return 0, diagnostic.ErrCatalogNotFound.WithFragment("", "primary key")
		}
	}
	id := TableId(c.allocID())
	c.tables[id] = &Table{ID: id, NamespaceID: namespaceID, Name: name, Columns: cols, PrimaryKey: pk}
	c.tableIdx[key] = id
	return id, nil
}

// Table resolves a TableId to its definition.
func (c *Catalog) Table(id TableId) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[id]
	if !ok {
		return nil, diagnostic.ErrCatalogNotFound.WithFragment("", "table")
	}
	return t, nil
}

// TableByName resolves a table within a namespace by name.
func (c *Catalog) TableByName(namespaceID NamespaceId, name string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.tableIdx[qualifiedName{namespace: namespaceID, name: name}]
	if !ok {
		return nil, diagnostic.ErrCatalogNotFound.WithFragment(name, "table")
	}
	return c.tables[id], nil
}

// ColumnByName finds a table's column by name, the lookup the VM and
// catalog-driven interceptors need before they can work in ColumnIndex
// terms.
func (t *Table) ColumnByName(name string) (*Column, error) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], nil
		}
	}
	return nil, diagnostic.ErrCatalogColumnNotFound.WithFragment(name, "column")
}

// CreateView registers a view, whose rows are populated by a Flow DAG
// rather than written directly.
func (c *Catalog) CreateView(namespaceID NamespaceId, name string, cols []Column) (ViewId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := qualifiedName{namespace: namespaceID, name: name}
	if _, exists := c.viewIdx[key]; exists {
		return 0, diagnostic.ErrCatalogAlreadyExists.WithFragment(name, "view")
	}
	id := ViewId(c.allocID())
	c.views[id] = &View{ID: id, NamespaceID: namespaceID, Name: name, Columns: cols}
	c.viewIdx[key] = id
	return id, nil
}

// View resolves a ViewId to its definition.
func (c *Catalog) View(id ViewId) (*View, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.views[id]
	if !ok {
		return nil, diagnostic.ErrCatalogNotFound.WithFragment("", "view")
	}
	return v, nil
}

// CreateRingBuffer registers a fixed-capacity primitive.
func (c *Catalog) CreateRingBuffer(namespaceID NamespaceId, name string, cols []Column, capacity uint64) (RingBufferId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := qualifiedName{namespace: namespaceID, name: name}
	if _, exists := c.ringBufferIdx[key]; exists {
		return 0, diagnostic.ErrCatalogAlreadyExists.WithFragment(name, "ring buffer")
	}
	id := RingBufferId(c.allocID())
	c.ringBuffers[id] = &RingBuffer{ID: id, NamespaceID: namespaceID, Name: name, Columns: cols, Capacity: capacity}
	c.ringBufferIdx[key] = id
	return id, nil
}

// RingBuffer resolves a RingBufferId to its definition.
func (c *Catalog) RingBuffer(id RingBufferId) (*RingBuffer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rb, ok := c.ringBuffers[id]
	if !ok {
		return nil, diagnostic.ErrCatalogNotFound.WithFragment("", "ring buffer")
	}
	return rb, nil
}

// CreateSeries registers an append-only time-ordered primitive.
func (c *Catalog) CreateSeries(namespaceID NamespaceId, name string, cols []Column) (SeriesId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := qualifiedName{namespace: namespaceID, name: name}
	if _, exists := c.seriesIdx[key]; exists {
		return 0, diagnostic.ErrCatalogAlreadyExists.WithFragment(name, "series")
	}
	id := SeriesId(c.allocID())
	c.series[id] = &Series{ID: id, NamespaceID: namespaceID, Name: name, Columns: cols}
	c.seriesIdx[key] = id
	return id, nil
}

// Series resolves a SeriesId to its definition.
func (c *Catalog) Series(id SeriesId) (*Series, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.series[id]
	if !ok {
		return nil, diagnostic.ErrCatalogNotFound.WithFragment("", "series")
	}
	return s, nil
}

// CreatePrimaryKey registers a primary key definition, to be attached to
// a table via CreateTable. At least one column is required (spec.md
// CatalogPrimaryKeyEmpty).
func (c *Catalog) CreatePrimaryKey(columns []ColumnIndex) (PrimaryKeyId, error) {
	if len(columns) == 0 {
		return 0, diagnostic.ErrCatalogPrimaryKeyEmpty
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := PrimaryKeyId(c.allocID())
	c.primaryKeys[id] = &PrimaryKey{ID: id, Columns: columns}
	return id, nil
}

// PrimaryKey resolves a PrimaryKeyId to its definition.
func (c *Catalog) PrimaryKey(id PrimaryKeyId) (*PrimaryKey, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pk, ok := c.primaryKeys[id]
	if !ok {
		return nil, diagnostic.ErrCatalogNotFound.WithFragment("", "primary key")
	}
	return pk, nil
}

// CreateSequence registers a monotonic counter object.
func (c *Catalog) CreateSequence(name string) SequenceId {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := SequenceId(c.allocID())
	c.sequences[id] = &Sequence{ID: id, Name: name}
	return id
}

// CreateIndex registers a secondary index over a table.
func (c *Catalog) CreateIndex(tableID TableId, name string, cols []ColumnIndex, unique bool) (IndexId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[tableID]; !ok {
		return 0, diagnostic.ErrCatalogNotFound.WithFragment("", "table")
	}
	id := IndexId(c.allocID())
	c.indexes[id] = &Index{ID: id, TableID: tableID, Name: name, Columns: cols, Unique: unique}
	return id, nil
}

// Index resolves an IndexId to its definition.
func (c *Catalog) Index(id IndexId) (*Index, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.indexes[id]
	if !ok {
		return nil, diagnostic.ErrCatalogNotFound.WithFragment("", "index")
	}
	return idx, nil
}

// DropTable removes a table and every index registered against it.
func (c *Catalog) DropTable(id TableId) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[id]
	if !ok {
		return diagnostic.ErrCatalogNotFound.WithFragment("", "table")
	}
	delete(c.tables, id)
	delete(c.tableIdx, qualifiedName{namespace: t.NamespaceID, name: t.Name})
	for idxID, idx := range c.indexes {
		if idx.TableID == id {
			delete(c.indexes, idxID)
		}
	}
	return nil
}

// DropView removes a view definition.
func (c *Catalog) DropView(id ViewId) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[id]
	if !ok {
		return diagnostic.ErrCatalogNotFound.WithFragment("", "view")
	}
	delete(c.views, id)
	delete(c.viewIdx, qualifiedName{namespace: v.NamespaceID, name: v.Name})
	return nil
}

// DropRingBuffer removes a ring buffer definition.
func (c *Catalog) DropRingBuffer(id RingBufferId) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rb, ok := c.ringBuffers[id]
	if !ok {
		return diagnostic.ErrCatalogNotFound.WithFragment("", "ring buffer")
	}
	delete(c.ringBuffers, id)
	delete(c.ringBufferIdx, qualifiedName{namespace: rb.NamespaceID, name: rb.Name})
	return nil
}

// DropSeries removes a series definition.
func (c *Catalog) DropSeries(id SeriesId) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.series[id]
	if !ok {
		return diagnostic.ErrCatalogNotFound.WithFragment("", "series")
	}
	delete(c.series, id)
	delete(c.seriesIdx, qualifiedName{namespace: s.NamespaceID, name: s.Name})
	return nil
}

// DropIndex removes a secondary index.
func (c *Catalog) DropIndex(id IndexId) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.indexes[id]; !ok {
		return diagnostic.ErrCatalogNotFound.WithFragment("", "index")
	}
	delete(c.indexes, id)
	return nil
}

// DropNamespace removes an empty namespace; a namespace still owning
// tables, views, ring buffers, or series cannot be dropped.
func (c *Catalog) DropNamespace(id NamespaceId) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ns, ok := c.namespaces[id]
	if !ok {
		return diagnostic.ErrCatalogNotFound.WithFragment("", "namespace")
	}
	for _, t := range c.tables {
		if t.NamespaceID == id {
			return diagnostic.ErrCatalogNamespaceNotEmpty.WithFragment(t.Name, "table")
		}
	}
	for _, v := range c.views {
		if v.NamespaceID == id {
			return diagnostic.ErrCatalogNamespaceNotEmpty.WithFragment(v.Name, "view")
		}
	}
	for _, rb := range c.ringBuffers {
		if rb.NamespaceID == id {
			return diagnostic.ErrCatalogNamespaceNotEmpty.WithFragment(rb.Name, "ring buffer")
		}
	}
	for _, s := range c.series {
		if s.NamespaceID == id {
			return diagnostic.ErrCatalogNamespaceNotEmpty.WithFragment(s.Name, "series")
		}
	}
	delete(c.namespaces, id)
	delete(c.namespaceIdx, ns.Name)
	return nil
}

// IndexesForTable lists every index registered against tableID.
func (c *Catalog) IndexesForTable(tableID TableId) []*Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Index
	for _, idx := range c.indexes {
		if idx.TableID == tableID {
			out = append(out, idx)
		}
	}
	return out
}
