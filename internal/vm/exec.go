package vm

import (
	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/column"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/value"
)

// Exec drives s from its current instruction pointer to Halt (spec.md
// §4.4.1's flat opcode switch over a program counter), mutating s in
// place. Each opcode is a single atomic step from the caller's
// perspective (spec.md §5: "caller-level cancellation ... is safe at any
// opcode boundary"), so Exec never blocks mid-opcode on anything but the
// underlying Txn's I/O.
func Exec(s *VmState) error {
	code := s.Program.Code
	for !s.halted {
		if s.ip < 0 || s.ip >= len(code) {
			return diagnostic.ErrUnsupportedOperation.WithFragment(s.fragment(), "instruction pointer out of range")
		}
		instr := code[s.ip]
		next, err := step(s, instr)
		if err != nil {
			return err
		}
		s.ip = next
	}
	return nil
}

// step executes one instruction and returns the next instruction
// pointer (instr's own ip+1 unless it branched).
func step(s *VmState, instr Instr) (int, error) {
	switch instr.Op {
	case OpNop:
		return s.ip + 1, nil

	case OpHalt:
		if s.operandDepth() > 0 {
			top, err := s.peekOperand()
			if err == nil {
				s.result = top
			}
		}
		s.halted = true
		return s.ip, nil

	case OpPushConst:
		idx := int(instr.Arg)
		if idx < 0 || idx >= len(s.Program.Consts) {
			return 0, diagnostic.ErrInvalidConstantIndex.WithFragment(s.fragment(), "constant")
		}
		if err := s.pushOperand(scalarOperand(s.Program.Consts[idx])); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpPushExpr:
		idx := int(instr.Arg)
		if idx < 0 || idx >= len(s.Program.Exprs) {
			return 0, diagnostic.ErrInvalidExpressionIndex.WithFragment(s.fragment(), "expression")
		}
		if err := s.pushOperand(exprRefOperand(idx)); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpPushColRef:
		idx := int(instr.Arg)
		if idx < 0 || idx >= len(s.Program.ColLists) || len(s.Program.ColLists[idx]) != 1 {
			return 0, diagnostic.ErrInvalidExpressionIndex.WithFragment(s.fragment(), "column reference")
		}
		if err := s.pushOperand(colRefOperand(s.Program.ColLists[idx][0])); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpPushColList:
		idx := int(instr.Arg)
		if idx < 0 || idx >= len(s.Program.ColLists) {
			return 0, diagnostic.ErrInvalidExpressionIndex.WithFragment(s.fragment(), "column list")
		}
		if err := s.pushOperand(colListOperand(s.Program.ColLists[idx])); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpPushSortSpec:
		idx := int(instr.Arg)
		if idx < 0 || idx >= len(s.Program.SortSpecs) {
			return 0, diagnostic.ErrInvalidSortSpecIndex.WithFragment(s.fragment(), "sort spec")
		}
		if err := s.pushOperand(sortSpecOperand(idx)); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpPushExtSpec:
		idx := int(instr.Arg)
		if idx < 0 || idx >= len(s.Program.ExtSpecs) {
			return 0, diagnostic.ErrInvalidExtSpecIndex.WithFragment(s.fragment(), "extension spec")
		}
		if err := s.pushOperand(extSpecOperand(idx)); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpLoadVar:
		id := uint32(instr.Arg)
		v, ok := s.scope.get(id)
		if !ok {
			v = OperandValue{Kind: OperandScalar, Scalar: value.UndefinedValue()}
		}
		if err := s.pushOperand(v); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpStoreVar, OpUpdateVar:
		v, err := s.popOperand()
		if err != nil {
			return 0, err
		}
		s.scope.set(uint32(instr.Arg), v)
		return s.ip + 1, nil

	case OpLoadInternal:
		v, ok := s.internalVars[uint32(instr.Arg)]
		if !ok {
			v = OperandValue{Kind: OperandScalar, Scalar: value.UndefinedValue()}
		}
		if err := s.pushOperand(v); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpStoreInternal:
		v, err := s.popOperand()
		if err != nil {
			return 0, err
		}
		s.internalVars[uint32(instr.Arg)] = v
		return s.ip + 1, nil

	case OpSource:
		idx := int(instr.Arg)
		if idx < 0 || idx >= len(s.Program.Sources) {
			return 0, diagnostic.ErrInvalidSourceIndex.WithFragment(s.fragment(), "source")
		}
		scanID := uint16(idx)
		scan := &ScanState{Source: s.Program.Sources[idx]}
		s.activeScans[scanID] = scan
		if err := s.pushPipeline(&sourcePipeline{scan: scan, scanner: Scanner{}}); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpInline:
		frameOp, err := s.popOperand()
		if err != nil {
			return 0, err
		}
		if frameOp.Kind != OperandFrame {
			return 0, diagnostic.ErrExpectedPipeline.WithFragment(s.fragment(), "inline frame")
		}
		if err := s.pushPipeline(&inlinePipeline{batch: frameOp.Frame}); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpApply:
		if err := execApply(s, ApplyKind(instr.Arg)); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpCollect:
		p, err := s.popPipeline()
		if err != nil {
			return 0, err
		}
		batch, err := collectAll(s, p)
		if err != nil {
			return 0, err
		}
		if err := s.pushOperand(frameOperand(batch)); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpMerge:
		right, err := s.popPipeline()
		if err != nil {
			return 0, err
		}
		left, err := s.popPipeline()
		if err != nil {
			return 0, err
		}
		if err := s.pushPipeline(&mergePipeline{first: left, second: right}); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpPopPipeline:
		p, err := s.popPipeline()
		if err != nil {
			return 0, err
		}
		// Flag set: transfer the pipeline to the operand stack as a
		// handle instead of discarding it — how a compiled join stages
		// its right input before Apply(Join*) pops it.
		if instr.Flag {
			if err := s.pushOperand(pipelineOperand(p)); err != nil {
				return 0, err
			}
		}
		return s.ip + 1, nil

	case OpFetchBatch:
		scanID := uint16(instr.Arg)
		scan, ok := s.activeScans[scanID]
		if !ok {
			return 0, diagnostic.ErrInvalidSourceIndex.WithFragment(s.fragment(), "active scan")
		}
		batch, next, more, err := (Scanner{}).Scan(s, scan.Source, scan.NextRow)
		if err != nil {
			return 0, err
		}
		scan.NextRow = next
		scan.Exhausted = !more
		if err := s.pushPipeline(&inlinePipeline{batch: batch}); err != nil {
			return 0, err
		}
		if err := s.pushOperand(scalarOperand(value.BoolValue(more))); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpCheckComplete:
		v, err := s.popOperand()
		if err != nil {
			return 0, err
		}
		complete, err := expectBool(v, s.fragment())
		if err != nil {
			return 0, err
		}
		if !complete {
			return int(instr.Arg), nil
		}
		return s.ip + 1, nil

	case OpEvalMapWithoutInput:
		idx := int(instr.Arg)
		if idx < 0 || idx >= len(s.Program.ExtSpecs) {
			return 0, diagnostic.ErrInvalidExtSpecIndex.WithFragment(s.fragment(), "extension spec")
		}
		batch, err := evalWithoutInput(&s.Program.ExtSpecs[idx])
		if err != nil {
			return 0, err
		}
		if err := s.pushPipeline(&inlinePipeline{batch: batch}); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpAdd, OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpAnd, OpOr:
		if err := execBinary(s, instr.Op); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpNot:
		if err := execNot(s); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpCreateNamespace, OpCreateTable, OpCreateView, OpCreateRingBuffer, OpCreateSeries, OpCreateIndex:
		if err := execCreate(s, instr.Op, int(instr.Arg)); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpDropObject:
		if err := execDropObject(s, int(instr.Arg)); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpJump:
		return int(instr.Arg), nil

	case OpJumpIf, OpJumpIfNot:
		v, err := s.popOperand()
		if err != nil {
			return 0, err
		}
		b, err := expectBool(v, s.fragment())
		if err != nil {
			return 0, err
		}
		if (instr.Op == OpJumpIf) == b {
			return int(instr.Arg), nil
		}
		return s.ip + 1, nil

	case OpEnterScope:
		s.enterScope()
		return s.ip + 1, nil

	case OpExitScope:
		s.exitScope()
		return s.ip + 1, nil

	case OpCall:
		idx := int(instr.Arg)
		if idx < 0 || idx >= len(s.Program.Functions) {
			return 0, diagnostic.ErrUnsupportedOperation.WithFragment(s.fragment(), "function")
		}
		fn := s.Program.Functions[idx]
		if err := s.pushCall(CallFrame{ReturnIP: s.ip + 1, Scope: s.scope}); err != nil {
			return 0, err
		}
		s.enterScope()
		return fn.Entry, nil

	case OpReturn:
		frame, ok := s.popCall()
		if !ok {
			s.halted = true
			return s.ip, nil
		}
		s.scope = frame.Scope
		return frame.ReturnIP, nil

	case OpCallBuiltin:
		if err := execCallBuiltin(s, int(instr.Arg)); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpFrameLen:
		frameOp, err := s.peekOperand()
		if err != nil {
			return 0, err
		}
		if frameOp.Kind != OperandFrame {
			return 0, diagnostic.ErrExpectedPipeline.WithFragment(s.fragment(), "frame")
		}
		if err := s.pushOperand(scalarOperand(value.Int64Value(int64(frameOp.Frame.Len())))); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpFrameRow:
		rowOp, err := s.popOperand()
		if err != nil {
			return 0, err
		}
		row, err := expectInt(rowOp, s.fragment())
		if err != nil {
			return 0, err
		}
		frameOp, err := s.popOperand()
		if err != nil {
			return 0, err
		}
		if frameOp.Kind != OperandFrame {
			return 0, diagnostic.ErrExpectedPipeline.WithFragment(s.fragment(), "frame")
		}
		rec := make([]value.Value, frameOp.Frame.NumCols())
		for i := range rec {
			rec[i] = frameOp.Frame.Cols[i].Data.At(int(row))
		}
		if err := s.pushOperand(OperandValue{Kind: OperandRecord, Record: rec}); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpGetField:
		fieldOp, err := s.popOperand()
		if err != nil {
			return 0, err
		}
		field, err := expectInt(fieldOp, s.fragment())
		if err != nil {
			return 0, err
		}
		recOp, err := s.popOperand()
		if err != nil {
			return 0, err
		}
		if recOp.Kind != OperandRecord || int(field) < 0 || int(field) >= len(recOp.Record) {
			return 0, diagnostic.ErrExpectedExpression.WithFragment(s.fragment(), "record field")
		}
		if err := s.pushOperand(scalarOperand(recOp.Record[field])); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpInsertRow:
		if err := execInsertRow(s, int(instr.Arg)); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpUpdateRow:
		if err := execUpdateRow(s, int(instr.Arg)); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpDeleteRow:
		if err := execDeleteRow(s, int(instr.Arg)); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpExecSubqueryExists:
		if err := execSubqueryExists(s, int(instr.Arg), instr.Flag); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpExecSubqueryIn:
		if err := execSubqueryIn(s, int(instr.Arg), instr.Flag); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	case OpExecSubqueryScalar:
		if err := execSubqueryScalar(s, int(instr.Arg)); err != nil {
			return 0, err
		}
		return s.ip + 1, nil

	default:
		return 0, diagnostic.ErrUnsupportedOperation.WithFragment(s.fragment(), "opcode")
	}
}

// mergePipeline implements Merge: concatenates two pipelines' batches in
// sequence, first then second.
type mergePipeline struct {
	first, second Pipeline
	onSecond      bool
}

func (p *mergePipeline) Next(s *VmState) (*column.Columns, bool, error) {
	if !p.onSecond {
		batch, ok, err := p.first.Next(s)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return batch, true, nil
		}
		p.onSecond = true
	}
	return p.second.Next(s)
}

// execApply implements spec.md §4.4.3's Apply(kind) dispatch table: pops
// operator configuration from the operand stack and a pipeline from the
// pipeline stack, pushing the transformed pipeline back.
func execApply(s *VmState, kind ApplyKind) error {
	switch kind {
	case ApplyFilter:
		cfg, err := s.popOperand()
		if err != nil {
			return err
		}
		exprIdx, err := requireExprRef(cfg, s.fragment())
		if err != nil {
			return err
		}
		upstream, err := s.popPipeline()
		if err != nil {
			return err
		}
		return s.pushPipeline(&filterPipeline{upstream: upstream, filter: exprAsFilter(s.Program.Exprs[exprIdx])})

	case ApplySelect:
		cfg, err := s.popOperand()
		if err != nil {
			return err
		}
		names, err := expectColList(cfg, s.fragment())
		if err != nil {
			return err
		}
		upstream, err := s.popPipeline()
		if err != nil {
			return err
		}
		return s.pushPipeline(&selectPipeline{upstream: upstream, names: names})

	case ApplyExtend, ApplyMap:
		cfg, err := s.popOperand()
		if err != nil {
			return err
		}
		specIdx, err := expectExtSpec(cfg, s.fragment())
		if err != nil {
			return err
		}
		upstream, err := s.popPipeline()
		if err != nil {
			return err
		}
		return s.pushPipeline(&extendPipeline{upstream: upstream, spec: &s.Program.ExtSpecs[specIdx], replace: kind == ApplyMap})

	case ApplyTake:
		cfg, err := s.popOperand()
		if err != nil {
			return err
		}
		n, err := expectInt(cfg, s.fragment())
		if err != nil {
			return err
		}
		upstream, err := s.popPipeline()
		if err != nil {
			return err
		}
		return s.pushPipeline(&takePipeline{upstream: upstream, remaining: int(n)})

	case ApplySort:
		cfg, err := s.popOperand()
		if err != nil {
			return err
		}
		specIdx, err := expectSortSpec(cfg, s.fragment())
		if err != nil {
			return err
		}
		upstream, err := s.popPipeline()
		if err != nil {
			return err
		}
		return s.pushPipeline(&sortPipeline{upstream: upstream, spec: &s.Program.SortSpecs[specIdx]})

	case ApplyDistinct:
		cfg, err := s.popOperand()
		if err != nil {
			return err
		}
		names, err := expectColList(cfg, s.fragment())
		if err != nil {
			return err
		}
		upstream, err := s.popPipeline()
		if err != nil {
			return err
		}
		return s.pushPipeline(&distinctPipeline{upstream: upstream, exprs: colRefExprs(names)})

	case ApplyAggregate:
		groupOp, err := s.popOperand()
		if err != nil {
			return err
		}
		group, err := expectColList(groupOp, s.fragment())
		if err != nil {
			return err
		}
		upstream, err := s.popPipeline()
		if err != nil {
			return err
		}
		return s.pushPipeline(&aggregatePipeline{upstream: upstream, group: colRefExprs(group), groupCol: group})

	case ApplyJoinInner, ApplyJoinLeft, ApplyJoinNatural:
		onOp, err := s.popOperand()
		if err != nil {
			return err
		}
		exprIdx, err := requireExprRef(onOp, s.fragment())
		if err != nil {
			return err
		}
		rightOp, err := s.popOperand()
		if err != nil {
			return err
		}
		rightPipeline, err := expectPipeline(rightOp, s.fragment())
		if err != nil {
			return err
		}
		left, err := s.popPipeline()
		if err != nil {
			return err
		}
		return s.pushPipeline(&joinPipeline{
			kind: kind, left: left, right: rightPipeline,
			leftKey: s.Program.Exprs[exprIdx], rightKey: s.Program.Exprs[exprIdx],
		})

	default:
		return diagnostic.ErrUnsupportedOperation.WithFragment(s.fragment(), "apply kind")
	}
}

func requireExprRef(v OperandValue, fragment string) (int, error) {
	if v.Kind != OperandExprRef {
		return 0, diagnostic.ErrExpectedExpression.WithFragment(fragment, "operand")
	}
	return v.ExprIdx, nil
}

func exprAsFilter(expr CompiledExpr) CompiledFilter {
	return func(batch *column.Columns) (*column.Data, error) {
		out := column.New(value.Bool)
		for row := 0; row < batch.Len(); row++ {
			v, err := expr(batch, row)
			if err != nil {
				return nil, err
			}
			if err := out.Append(v); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
}

// evalWithoutInput evaluates a spec's expressions once against an empty
// batch, producing the single synthetic row a no-source query yields
// (`map 1 + 2`-style programs with no upstream pipeline).
func evalWithoutInput(spec *ExtSpec) (*column.Columns, error) {
	empty := &column.Columns{RowNumbers: column.RowNumbers{0}}
	out := &column.Columns{RowNumbers: column.RowNumbers{0}}
	for i, expr := range spec.Exprs {
		v, err := expr(empty, 0)
		if err != nil {
			return nil, err
		}
		data := column.New(v.Ty)
		if err := data.Append(v); err != nil {
			return nil, err
		}
		out.Cols = append(out.Cols, column.NewColumn(spec.Names[i], data))
	}
	return out, nil
}

func colRefExprs(names []string) []CompiledExpr {
	exprs := make([]CompiledExpr, len(names))
	for i, n := range names {
		name := n
		exprs[i] = func(batch *column.Columns, row int) (value.Value, error) {
			_, col, ok := batch.ColumnByName(name)
			if !ok {
				return value.UndefinedValue(), nil
			}
			return col.Data.At(row), nil
		}
	}
	return exprs
}

func encodeRow(columns []catalog.Column, values []value.Value) ([]byte, error) {
	schema := make(encoding.Schema, len(columns))
	for i, c := range columns {
		schema[i] = c.Type
	}
	ev, err := encoding.Encode(schema, values)
	if err != nil {
		return nil, err
	}
	return ev.Bytes(), nil
}
