package vm

import (
	"github.com/reifydb/reifydb/internal/column"
	"github.com/reifydb/reifydb/internal/value"
)

// OperandKind discriminates OperandValue's tagged-union variant (spec.md
// §4.4.2).
type OperandKind uint8

const (
	OperandScalar OperandKind = iota + 1
	OperandColumn
	OperandExprRef
	OperandColRef
	OperandColList
	OperandFrame
	OperandFunctionRef
	OperandPipelineRef
	OperandSortSpecRef
	OperandExtSpecRef
	OperandRecord
)

// OperandValue is the VM's tagged-union operand stack element (spec.md
// §4.4.2). Only the field matching Kind is meaningful; popping through
// the wrong accessor reports the matching Expected* diagnostic rather
// than panicking: the expect* helpers in errors.go check Kind first.
type OperandValue struct {
	Kind      OperandKind
	Scalar    value.Value
	Col       *column.Data
	ExprIdx   int
	ColRef    string
	ColList   []string
	Frame     *column.Columns
	FuncIdx   int
	Pipeline  Pipeline
	SortSpec  int
	ExtSpec   int
	Record    []value.Value
}

func scalarOperand(v value.Value) OperandValue   { return OperandValue{Kind: OperandScalar, Scalar: v} }
func colRefOperand(name string) OperandValue      { return OperandValue{Kind: OperandColRef, ColRef: name} }
func colListOperand(names []string) OperandValue  { return OperandValue{Kind: OperandColList, ColList: names} }
func exprRefOperand(idx int) OperandValue         { return OperandValue{Kind: OperandExprRef, ExprIdx: idx} }
func pipelineOperand(p Pipeline) OperandValue      { return OperandValue{Kind: OperandPipelineRef, Pipeline: p} }
func sortSpecOperand(idx int) OperandValue        { return OperandValue{Kind: OperandSortSpecRef, SortSpec: idx} }
func extSpecOperand(idx int) OperandValue         { return OperandValue{Kind: OperandExtSpecRef, ExtSpec: idx} }
func frameOperand(c *column.Columns) OperandValue { return OperandValue{Kind: OperandFrame, Frame: c} }
