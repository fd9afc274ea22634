package vm

import (
	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/config"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/interceptor"
	"github.com/reifydb/reifydb/internal/mvcc"
	"github.com/reifydb/reifydb/internal/store"
)

// ScanState is the live iterator state for one active OpSource scan
// (spec.md §4.4.2's `active_scans: Map<u16, ScanState>`). FetchBatch
// advances it and reports whether more rows remain.
type ScanState struct {
	Source    SourceDef
	NextRow   uint64
	Exhausted bool
}

// Scope is one level of the variable binding chain (spec.md §4.4.5
// "Scope entry/exit is explicit; variables are identified by u32 ids").
type Scope struct {
	vars   map[uint32]OperandValue
	parent *Scope
}

func newScope(parent *Scope) *Scope {
	return &Scope{vars: make(map[uint32]OperandValue), parent: parent}
}

func (s *Scope) get(id uint32) (OperandValue, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[id]; ok {
			return v, true
		}
	}
	return OperandValue{}, false
}

func (s *Scope) set(id uint32, v OperandValue) { s.vars[id] = v }

// CallFrame is one Call's return point (spec.md §4.4.5): the caller's
// instruction pointer and the scope active at the call site.
type CallFrame struct {
	ReturnIP int
	Scope    *Scope
}

// Txn is the read/write surface the VM needs from a transaction — the
// common shape of mvcc.ReadTransaction and mvcc.WriteTransaction, kept
// as a narrow interface here so table_source.go can scan through either
// a query (begin_query) or a command (begin_command) invocation without
// the VM package depending on which one it got (spec.md §6.5).
type Txn interface {
	Version() mvcc.CommitVersion
	Get(key encoding.EncodedKey) ([]byte, bool, error)
	Range(start, end encoding.EncodedKey, batchSize int) ([]store.MultiVersionValues, error)
	Prefix(prefix encoding.EncodedKey, batchSize int) ([]store.MultiVersionValues, error)
}

// VmState is the mutable, per-invocation execution context (spec.md
// §4.4.2): one VmState per program invocation, never shared across
// concurrent invocations of the same Program (spec.md §5 "each
// invocation holds its own VmState").
type VmState struct {
	Program *Program
	Catalog *catalog.Catalog
	Txn     Txn
	Cfg     *config.Config

	// Interceptors fires the pre/post table-and-view hooks spec.md §2's
	// write path requires between a DML opcode and the CDC pipeline
	// (spec.md "VM -> DML opcodes -> transactional write ... ->
	// interceptors fire -> ... CDC pipeline"). Nil is a valid, silent
	// no-op — most ad-hoc query invocations never touch DML at all.
	Interceptors *interceptor.Registry

	ip int

	operandStack  []OperandValue
	pipelineStack []Pipeline
	callStack     []CallFrame
	scope         *Scope

	activeScans  map[uint16]*ScanState
	internalVars map[uint32]OperandValue

	halted bool
	result OperandValue
}

// NewState constructs a fresh VmState ready to execute program from its
// entry point.
func NewState(program *Program, cat *catalog.Catalog, txn Txn, cfg *config.Config) *VmState {
	if cfg == nil {
		cfg = config.New()
	}
	return &VmState{
		Program:      program,
		Catalog:      cat,
		Txn:          txn,
		Cfg:          cfg,
		ip:           program.Entry,
		scope:        newScope(nil),
		activeScans:  make(map[uint16]*ScanState),
		internalVars: make(map[uint32]OperandValue),
	}
}

func (s *VmState) fragment() string { return s.Program.fragmentAt(s.ip) }

// pushOperand enforces max_operand_stack (spec.md §4.4.2, §4.4.6
// StackOverflow).
func (s *VmState) pushOperand(v OperandValue) error {
	limit := s.Cfg.VMMaxOperandStack
	if limit > 0 && len(s.operandStack) >= limit {
		return diagnostic.ErrStackOverflow.WithFragment(s.fragment(), "operand stack")
	}
	s.operandStack = append(s.operandStack, v)
	return nil
}

func (s *VmState) popOperand() (OperandValue, error) {
	if len(s.operandStack) == 0 {
		return OperandValue{}, diagnostic.ErrStackUnderflow.WithFragment(s.fragment(), "operand stack")
	}
	n := len(s.operandStack) - 1
	v := s.operandStack[n]
	s.operandStack = s.operandStack[:n]
	return v, nil
}

func (s *VmState) peekOperand() (OperandValue, error) {
	if len(s.operandStack) == 0 {
		return OperandValue{}, diagnostic.ErrStackUnderflow.WithFragment(s.fragment(), "operand stack")
	}
	return s.operandStack[len(s.operandStack)-1], nil
}

func (s *VmState) operandDepth() int { return len(s.operandStack) }

func (s *VmState) pushPipeline(p Pipeline) error {
	limit := s.Cfg.VMMaxPipelineStack
	if limit > 0 && len(s.pipelineStack) >= limit {
		return diagnostic.ErrStackOverflow.WithFragment(s.fragment(), "pipeline stack")
	}
	s.pipelineStack = append(s.pipelineStack, p)
	return nil
}

func (s *VmState) popPipeline() (Pipeline, error) {
	if len(s.pipelineStack) == 0 {
		return nil, diagnostic.ErrStackUnderflow.WithFragment(s.fragment(), "pipeline stack")
	}
	n := len(s.pipelineStack) - 1
	p := s.pipelineStack[n]
	s.pipelineStack = s.pipelineStack[:n]
	return p, nil
}

func (s *VmState) pipelineDepth() int { return len(s.pipelineStack) }

func (s *VmState) pushCall(frame CallFrame) error {
	limit := s.Cfg.VMMaxCallDepth
	if limit > 0 && len(s.callStack) >= limit {
		return diagnostic.ErrCallDepthExceeded.WithFragment(s.fragment(), "call stack")
	}
	s.callStack = append(s.callStack, frame)
	return nil
}

func (s *VmState) popCall() (CallFrame, bool) {
	if len(s.callStack) == 0 {
		return CallFrame{}, false
	}
	n := len(s.callStack) - 1
	f := s.callStack[n]
	s.callStack = s.callStack[:n]
	return f, true
}

func (s *VmState) enterScope() { s.scope = newScope(s.scope) }

func (s *VmState) exitScope() {
	if s.scope.parent != nil {
		s.scope = s.scope.parent
	}
}
