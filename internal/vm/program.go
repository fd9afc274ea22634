// Package vm implements ReifyDB's columnar bytecode VM (spec.md §4.4): an
// immutable, shared CompiledProgram executed by a per-invocation VmState
// against lazy pipelines of column.Columns batches.
//
// What: Program is the immutable bytecode container; VmState is the
// per-invocation mutable execution state; Exec drives the opcode
// dispatch loop; Pipeline is the lazy batch producer Apply wraps.
// How: Grounded on the teacher's internal/engine exec.go dispatch-loop
// shape (a flat opcode switch over a program counter, with explicit
// operand/call stacks) before that package was retired as off-spec SQL
// execution — the loop structure survives, generalized from AST-walking
// interpretation to flat bytecode dispatch over column batches.
// Why: spec.md §4.4.1 requires an immutable, Arc-shared program executed
// many times against changing input; separating Program (compiled once)
// from VmState (one per invocation) is what makes concurrent invocations
// of the same program safe without locking the program itself.
package vm

import (
	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/column"
	"github.com/reifydb/reifydb/internal/value"
)

// Opcode enumerates the VM's instruction set (spec.md §4.4.1).
type Opcode uint8

const (
	OpPushConst Opcode = iota + 1
	OpPushExpr
	OpPushColRef
	OpPushColList
	OpPushSortSpec
	OpPushExtSpec

	OpLoadVar
	OpStoreVar
	OpUpdateVar
	OpLoadInternal
	OpStoreInternal

	OpSource
	OpInline
	OpApply
	OpCollect
	OpMerge
	OpPopPipeline
	OpFetchBatch
	OpCheckComplete
	OpEvalMapWithoutInput

	OpJump
	OpJumpIf
	OpJumpIfNot

	OpCall
	OpReturn
	OpCallBuiltin

	OpEnterScope
	OpExitScope

	OpFrameLen
	OpFrameRow
	OpGetField

	OpAdd
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAnd
	OpOr
	OpNot

	OpInsertRow
	OpUpdateRow
	OpDeleteRow

	OpCreateNamespace
	OpCreateTable
	OpCreateView
	OpCreateRingBuffer
	OpCreateSeries
	OpCreateIndex
	OpDropObject

	OpExecSubqueryExists
	OpExecSubqueryIn
	OpExecSubqueryScalar

	OpNop
	OpHalt
)

// ApplyKind selects the operator Apply pops configuration for (spec.md
// §4.4.3's dispatch table).
type ApplyKind uint8

const (
	ApplyFilter ApplyKind = iota + 1
	ApplySelect
	ApplyExtend
	ApplyMap
	ApplyTake
	ApplySort
	ApplyDistinct
	ApplyAggregate
	ApplyJoinInner
	ApplyJoinLeft
	ApplyJoinNatural
)

// Instr is one decoded bytecode instruction: an opcode plus an operand
// whose meaning depends on the opcode (constant/expr/source/subquery
// index, jump target, ApplyKind, etc). Flag carries ExecSubquery*'s
// `negated` bit and PopPipeline's transfer-to-operand-stack bit.
type Instr struct {
	Op   Opcode
	Arg  int64
	Flag bool
}

// CompiledExpr evaluates one scalar per row against a batch, the VM's
// equivalent of flow.CompiledExpr (spec.md §4.4.1's "pre-compiled
// expression closures").
type CompiledExpr func(batch *column.Columns, row int) (value.Value, error)

// CompiledFilter evaluates a predicate over an entire batch, returning a
// boolean column the same length as the batch (spec.md §4.4.3 Filter row).
type CompiledFilter func(batch *column.Columns) (*column.Data, error)

// SourceDef names a scan target for OpSource (spec.md §4.4.1 "source
// definitions (for scans)").
type SourceDef struct {
	Table      catalog.TableId
	View       catalog.ViewId
	RingBuffer catalog.RingBufferId
	Series     catalog.SeriesId
	Kind       SourceKind
	BatchSize  int
}

type SourceKind uint8

const (
	SourceTable SourceKind = iota + 1
	SourceView
	SourceRingBuffer
	SourceSeries
)

// SortKey is one sort key's direction/null-placement (spec.md §4.4.3's
// sort tie-break rules).
type SortKey struct {
	Column    string
	Ascending bool
	NullsLast bool
}

// SortSpec is the operand PushSortSpec pushes; consumed by Apply(Sort).
type SortSpec struct{ Keys []SortKey }

// ExtSpec is the operand PushExtSpec pushes: names paired with the
// expressions that compute them, consumed by Apply(Extend)/Apply(Map).
type ExtSpec struct {
	Names []string
	Exprs []CompiledExpr
}

// SubqueryDef describes a nested program invoked by ExecSubquery*
// (spec.md §4.4.5): its own Program plus the outer variable ids it
// closes over.
type SubqueryDef struct {
	Program   *Program
	OuterRefs []uint32
}

// DMLTarget names the catalog object an InsertRow/UpdateRow/DeleteRow
// opcode targets; Create*/DropObject use DDLDef (ddl.go).
type DMLTarget struct {
	Kind    SourceKind
	Table   catalog.TableId
	View    catalog.ViewId
	Columns []catalog.Column
}

// Program is the immutable, shareable compiled unit (spec.md §4.4.1): one
// Program instance is executed by many concurrent VmState invocations.
type Program struct {
	Code      []Instr
	Consts    []value.Value
	Sources   []SourceDef
	SortSpecs []SortSpec
	ExtSpecs  []ExtSpec
	ColLists  [][]string
	Subqueries []SubqueryDef
	DMLTargets []DMLTarget
	DDLDefs    []DDLDef
	Builtins   []ScalarFunction
	Exprs     []CompiledExpr
	Filters   []CompiledFilter
	Entry     int
	Functions []Function
	SourceMap map[int]string // instruction offset -> source fragment, for diagnostics
}

// Function is a script-defined callable (spec.md §4.4.5's `Call(func_idx)`).
type Function struct {
	Name   string
	Entry  int
	Arity  int
}

func (p *Program) fragmentAt(ip int) string {
	if p.SourceMap == nil {
		return ""
	}
	return p.SourceMap[ip]
}
