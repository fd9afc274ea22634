// Package interceptor implements ReifyDB's L4 interceptor hooks (spec.md
// §2's "Interceptor Hooks": pre/post phases around table/view
// insert/update/delete).
//
// What: Registry holds an ordered chain of Hooks keyed by (primitive,
// Action, Phase); Fire runs the chain for one InsertRow/UpdateRow/
// DeleteRow invocation.
// How: Grounded on the teacher's CatalogManager façade
// (internal/storage/catalog.go) for the "one RWMutex-guarded map,
// resolved by ID" shape, and on the grpc interceptor-chain pattern shown
// in storj's authentication tests (pkg/auth/grpcauth) for "named, ordered
// middleware fired around an operation, any of which can abort it."
// Why: spec.md §2's write path is "VM -> DML opcodes -> transactional
// write ... -> interceptors fire -> ... CDC pipeline" — interceptors sit
// between the VM's DML opcode and the underlying Set/Delete call, so they
// need to see the row before it lands in the pending overlay (Pre) and
// confirm after it has (Post), and either phase must be able to reject
// the write with its own diagnostic (e.g. a uniqueness check).
package interceptor

import (
	"fmt"
	"sync"

	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/value"
)

// Action discriminates which DML opcode triggered the hook chain.
type Action uint8

const (
	Insert Action = iota + 1
	Update
	Delete
)

func (a Action) String() string {
	switch a {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Phase discriminates whether the hook runs before the underlying write
// is staged (Pre) or after it has been (Post).
type Phase uint8

const (
	Pre Phase = iota + 1
	Post
)

// Kind discriminates Primitive's variant. A narrow copy of the two
// primitive kinds vm.SourceKind names for DML targets: interceptor
// can't import vm for that enum (vm imports interceptor), and pulling in
// the whole SourceKind set (ring buffers, series) would be meaningless
// here since only tables and views accept direct DML (spec.md §2).
type Kind uint8

const (
	KindTable Kind = iota + 1
	KindView
)

// Primitive names the table or view an interceptor chain is scoped to.
// Kept ID-only (spec.md §9 "store only IDs, resolve via facade") so the
// registry never holds a pointer into the catalog.
type Primitive struct {
	Kind  Kind
	Table catalog.TableId
	View  catalog.ViewId
}

// TablePrimitive names a table-scoped interceptor target.
func TablePrimitive(id catalog.TableId) Primitive { return Primitive{Kind: KindTable, Table: id} }

// ViewPrimitive names a view-scoped interceptor target.
func ViewPrimitive(id catalog.ViewId) Primitive { return Primitive{Kind: KindView, View: id} }

func (p Primitive) key() string {
	if p.Kind == KindView {
		return fmt.Sprintf("view:%d", p.View)
	}
	return fmt.Sprintf("table:%d", p.Table)
}

// Row mirrors flow.Row's (name, value) shape. Declared independently
// rather than imported from flow: flow is a downstream consumer of
// committed changes, not a peer of the DML opcode path interceptors
// observe, and importing it here would pull the whole dataflow engine
// into the vm -> interceptor edge for no benefit.
type Row struct {
	RowNumber uint64
	Columns   []string
	Values    []value.Value
}

// Get returns the named column's value, or Undefined if absent.
func (r Row) Get(name string) value.Value {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i]
		}
	}
	return value.UndefinedValue()
}

// Context is the argument passed to every Hook in a chain (spec.md §2:
// "interceptors fire" around table/view insert/update/delete).
type Context struct {
	Primitive Primitive
	Action    Action
	Phase     Phase
	Pre       *Row // valid for Update (Pre/Post), Delete (Pre)
	Post      *Row // valid for Insert (Pre/Post), Update (Pre/Post)
}

// Hook observes or vetoes one phase of one action against one primitive.
// Returning a non-nil error aborts the remainder of the chain and the
// triggering DML opcode — an application-level validation or cross-table
// check rejecting the write is the canonical Pre hook. Primary key and
// unique index enforcement is built into the DML opcodes themselves
// (vm/constraint.go), not registered here.
type Hook func(ctx *Context) error

type chainKey struct {
	primitive string
	action    Action
	phase     Phase
}

// Registry holds every registered hook chain for one database (spec.md §9
// "Global state": injected via constructors, no ambient globals). One
// Registry is shared by every VmState the engine creates.
type Registry struct {
	mu    sync.RWMutex
	hooks map[chainKey][]Hook
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[chainKey][]Hook)}
}

// Register appends hook to the chain for (primitive, action, phase),
// running after any hook already registered for the same key.
func (r *Registry) Register(primitive Primitive, action Action, phase Phase, hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := chainKey{primitive: primitive.key(), action: action, phase: phase}
	r.hooks[k] = append(r.hooks[k], hook)
}

// Fire runs every hook registered for ctx's (Primitive, Action, Phase) in
// registration order, stopping at the first error.
func (r *Registry) Fire(ctx *Context) error {
	r.mu.RLock()
	k := chainKey{primitive: ctx.Primitive.key(), action: ctx.Action, phase: ctx.Phase}
	chain := append([]Hook(nil), r.hooks[k]...)
	r.mu.RUnlock()
	for _, h := range chain {
		if err := h(ctx); err != nil {
			return err
		}
	}
	return nil
}
