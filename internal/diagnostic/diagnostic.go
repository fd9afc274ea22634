// Package diagnostic implements ReifyDB's structured error records.
//
// What: Diagnostic carries a taxonomy code, a human message, an optional
// source fragment/label/help/notes, and an optional wrapped cause. Every
// fallible operation in the core returns one of these (or wraps a sentinel
// from this package) instead of an opaque string error.
// How: Diagnostic implements error and supports errors.Is/errors.As via
// Unwrap, the way internal/storage in the teacher wraps fmt.Errorf chains.
// Why: Diagnostics need to survive past the boundary that produced them —
// callers re-render fragment/label/help for end users, so the structure
// must not be collapsed into a formatted string too early.
package diagnostic

import "fmt"

// Kind groups diagnostics into the taxonomy from the error handling design.
type Kind string

const (
	KindType         Kind = "type"
	KindTransaction  Kind = "transaction"
	KindFlow         Kind = "flow"
	KindIndex        Kind = "index"
	KindCatalog      Kind = "catalog"
	KindSubsystem    Kind = "subsystem"
	KindTemporal     Kind = "temporal"
	KindInternal     Kind = "internal"
)

// Diagnostic is a structured error record.
type Diagnostic struct {
	Kind     Kind
	Code     string
	Message  string
	Fragment string
	Label    string
	Help     string
	Notes    []string
	Cause    error
}

func (d *Diagnostic) Error() string {
	if d.Fragment != "" {
		return fmt.Sprintf("[%s] %s (at %q)", d.Code, d.Message, d.Fragment)
	}
	return fmt.Sprintf("[%s] %s", d.Code, d.Message)
}

func (d *Diagnostic) Unwrap() error { return d.Cause }

// Is matches two Diagnostics by Code, so a WithFragment/WithCause/WithHelp
// copy still satisfies errors.Is against its package sentinel.
func (d *Diagnostic) Is(target error) bool {
	t, ok := target.(*Diagnostic)
	return ok && t.Code == d.Code
}

// New builds a Diagnostic with the given kind/code/message.
func New(kind Kind, code, message string) *Diagnostic {
	return &Diagnostic{Kind: kind, Code: code, Message: message}
}

// WithFragment returns a copy annotated with a source fragment/label.
func (d *Diagnostic) WithFragment(fragment, label string) *Diagnostic {
	cp := *d
	cp.Fragment = fragment
	cp.Label = label
	return &cp
}

// WithCause returns a copy wrapping cause.
func (d *Diagnostic) WithCause(cause error) *Diagnostic {
	cp := *d
	cp.Cause = cause
	return &cp
}

// WithHelp returns a copy with a help string and notes attached.
func (d *Diagnostic) WithHelp(help string, notes ...string) *Diagnostic {
	cp := *d
	cp.Help = help
	cp.Notes = notes
	return &cp
}

// Well-known sentinels. Callers match with errors.Is; each carries no
// fragment of its own — call sites attach one via WithFragment when a
// source span is available.
var (
	ErrTransactionRolledBack         = New(KindTransaction, "TXN_ROLLED_BACK", "operation attempted after rollback")
	ErrTransactionConflict           = New(KindTransaction, "TXN_CONFLICT", "serializable snapshot isolation conflict")
	ErrTransactionTooLarge           = New(KindTransaction, "TXN_TOO_LARGE", "pending writes exceeded configured budget")
	ErrFlowKeyspaceOverlap           = New(KindFlow, "FLOW_KEYSPACE_OVERLAP", "two concurrent flow transactions wrote the same state key")
	ErrFlowAlreadyRegistered         = New(KindFlow, "FLOW_ALREADY_REGISTERED", "flow already registered")
	ErrFlowVersionCorrupted          = New(KindFlow, "FLOW_VERSION_CORRUPTED", "flow operator state failed to decode")
	ErrFlowBackfillTimeout           = New(KindFlow, "FLOW_BACKFILL_TIMEOUT", "flow backfill deadline elapsed")
	ErrFlowDispatcherUnavailable     = New(KindFlow, "FLOW_DISPATCHER_UNAVAILABLE", "flow dispatcher is not accepting work")
	ErrWindowMissingSlideParameter   = New(KindFlow, "WINDOW_MISSING_SLIDE", "sliding window requires a slide parameter")
	ErrWindowSlideTooLarge           = New(KindFlow, "WINDOW_SLIDE_TOO_LARGE", "window slide exceeds window size")
	ErrPrimaryKeyViolation           = New(KindIndex, "PK_VIOLATION", "primary key constraint violated")
	ErrUniqueIndexViolation          = New(KindIndex, "UNIQUE_VIOLATION", "unique index constraint violated")
	ErrCatalogNotFound               = New(KindCatalog, "CATALOG_NOT_FOUND", "catalog object not found")
	ErrCatalogAlreadyExists          = New(KindCatalog, "CATALOG_ALREADY_EXISTS", "catalog object already exists")
	ErrCatalogColumnNotFound         = New(KindCatalog, "CATALOG_COLUMN_NOT_FOUND", "column not found")
	ErrCatalogPrimaryKeyEmpty        = New(KindCatalog, "CATALOG_PK_EMPTY", "primary key must name at least one column")
	ErrCatalogNamespaceNotEmpty      = New(KindCatalog, "CATALOG_NAMESPACE_NOT_EMPTY", "namespace still owns objects")
	ErrSubqueryCardinality           = New(KindInternal, "SUBQUERY_CARDINALITY", "scalar subquery returned more than one row or column")
	ErrStackOverflow                 = New(KindInternal, "VM_STACK_OVERFLOW", "vm stack exceeded configured bound")
	ErrStackUnderflow                = New(KindInternal, "VM_STACK_UNDERFLOW", "vm stack underflow")
	ErrCallDepthExceeded             = New(KindInternal, "VM_CALL_DEPTH_EXCEEDED", "vm call stack exceeded configured bound")
	ErrInvalidConstantIndex          = New(KindInternal, "VM_INVALID_CONSTANT_INDEX", "constant pool index out of range")
	ErrInvalidExpressionIndex        = New(KindInternal, "VM_INVALID_EXPRESSION_INDEX", "compiled expression index out of range")
	ErrInvalidSortSpecIndex          = New(KindInternal, "VM_INVALID_SORT_SPEC_INDEX", "sort spec index out of range")
	ErrInvalidExtSpecIndex           = New(KindInternal, "VM_INVALID_EXT_SPEC_INDEX", "extension spec index out of range")
	ErrInvalidSourceIndex            = New(KindInternal, "VM_INVALID_SOURCE_INDEX", "source definition index out of range")
	ErrInvalidSubqueryIndex          = New(KindInternal, "VM_INVALID_SUBQUERY_INDEX", "subquery definition index out of range")
	ErrExpectedBoolean               = New(KindType, "VM_EXPECTED_BOOLEAN", "operand stack expected a boolean operand")
	ErrExpectedInteger                = New(KindType, "VM_EXPECTED_INTEGER", "operand stack expected an integer operand")
	ErrExpectedString                = New(KindType, "VM_EXPECTED_STRING", "operand stack expected a string operand")
	ErrExpectedExpression            = New(KindType, "VM_EXPECTED_EXPRESSION", "operand stack expected a compiled expression")
	ErrExpectedColumnList            = New(KindType, "VM_EXPECTED_COLUMN_LIST", "operand stack expected a column list")
	ErrExpectedSortSpec              = New(KindType, "VM_EXPECTED_SORT_SPEC", "operand stack expected a sort spec")
	ErrExpectedExtensionSpec         = New(KindType, "VM_EXPECTED_EXTENSION_SPEC", "operand stack expected an extension spec")
	ErrExpectedPipeline              = New(KindType, "VM_EXPECTED_PIPELINE", "pipeline stack expected a pipeline")
	ErrUnsupportedOperation          = New(KindInternal, "VM_UNSUPPORTED_OPERATION", "opcode has no handler for this operand configuration")
)
