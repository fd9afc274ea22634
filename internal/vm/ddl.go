package vm

import (
	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/value"
)

// DDLKind discriminates which catalog object a Create*/DropObject opcode
// targets.
type DDLKind uint8

const (
	DDLNamespace DDLKind = iota + 1
	DDLTable
	DDLView
	DDLRingBuffer
	DDLSeries
	DDLIndex
)

// DDLDef is the compiled definition a Create* opcode instantiates or a
// DropObject opcode resolves (spec.md §4.4.1 "DDL/DML target
// definitions"). Only the fields matching Kind are meaningful.
type DDLDef struct {
	Kind      DDLKind
	Name      string
	Namespace catalog.NamespaceId

	// Table/View/RingBuffer/Series creation.
	Columns    []catalog.Column
	PrimaryKey *catalog.PrimaryKeyId
	Capacity   uint64

	// Index creation.
	Table        catalog.TableId
	IndexColumns []catalog.ColumnIndex
	Unique       bool

	// DropObject target; the matching ID field per Kind.
	DropTable      catalog.TableId
	DropView       catalog.ViewId
	DropRingBuffer catalog.RingBufferId
	DropSeries     catalog.SeriesId
	DropIndex      catalog.IndexId
	DropNamespace  catalog.NamespaceId
}

func ddlDefAt(s *VmState, idx int) (DDLDef, error) {
	if idx < 0 || idx >= len(s.Program.DDLDefs) {
		return DDLDef{}, diagnostic.ErrUnsupportedOperation.WithFragment(s.fragment(), "DDL definition")
	}
	return s.Program.DDLDefs[idx], nil
}

// execCreate runs one Create* opcode against the catalog and pushes the
// new object's ID as a Uint64 scalar.
func execCreate(s *VmState, op Opcode, idx int) error {
	def, err := ddlDefAt(s, idx)
	if err != nil {
		return err
	}
	var id uint64
	switch op {
	case OpCreateNamespace:
		nsID, err := s.Catalog.CreateNamespace(def.Name)
		if err != nil {
			return err
		}
		id = uint64(nsID)
	case OpCreateTable:
		tableID, err := s.Catalog.CreateTable(def.Namespace, def.Name, def.Columns, def.PrimaryKey)
		if err != nil {
			return err
		}
		id = uint64(tableID)
	case OpCreateView:
		viewID, err := s.Catalog.CreateView(def.Namespace, def.Name, def.Columns)
		if err != nil {
			return err
		}
		id = uint64(viewID)
	case OpCreateRingBuffer:
		rbID, err := s.Catalog.CreateRingBuffer(def.Namespace, def.Name, def.Columns, def.Capacity)
		if err != nil {
			return err
		}
		id = uint64(rbID)
	case OpCreateSeries:
		seriesID, err := s.Catalog.CreateSeries(def.Namespace, def.Name, def.Columns)
		if err != nil {
			return err
		}
		id = uint64(seriesID)
	case OpCreateIndex:
		idxID, err := s.Catalog.CreateIndex(def.Table, def.Name, def.IndexColumns, def.Unique)
		if err != nil {
			return err
		}
		id = uint64(idxID)
	default:
		return diagnostic.ErrUnsupportedOperation.WithFragment(s.fragment(), "create")
	}
	return s.pushOperand(scalarOperand(value.Uint64Value(id)))
}

// execDropObject resolves a DDLDef's drop target and removes it from the
// catalog. Row data under the dropped primitive's key subspace is left to
// the storage layer's garbage collection; the catalog entry vanishing is
// what makes the subspace unreachable.
func execDropObject(s *VmState, idx int) error {
	def, err := ddlDefAt(s, idx)
	if err != nil {
		return err
	}
	switch def.Kind {
	case DDLNamespace:
		return s.Catalog.DropNamespace(def.DropNamespace)
	case DDLTable:
		return s.Catalog.DropTable(def.DropTable)
	case DDLView:
		return s.Catalog.DropView(def.DropView)
	case DDLRingBuffer:
		return s.Catalog.DropRingBuffer(def.DropRingBuffer)
	case DDLSeries:
		return s.Catalog.DropSeries(def.DropSeries)
	case DDLIndex:
		return s.Catalog.DropIndex(def.DropIndex)
	default:
		return diagnostic.ErrUnsupportedOperation.WithFragment(s.fragment(), "drop target")
	}
}
