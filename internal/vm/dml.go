package vm

import (
	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/interceptor"
	"github.com/reifydb/reifydb/internal/value"
)

// WriteTxn extends Txn with the mutation surface InsertRow/UpdateRow/
// DeleteRow need — mvcc.WriteTransaction's shape (spec.md §6.5's
// "set, unset ..., remove"). A VmState running a query (begin_query)
// carries a plain Txn and any DML opcode fails with UnsupportedOperation
// rather than panicking on a type assertion.
type WriteTxn interface {
	Txn
	Set(key encoding.EncodedKey, val []byte) error
	Unset(key encoding.EncodedKey) error
	Delete(key encoding.EncodedKey) error
}

func writeTxn(s *VmState) (WriteTxn, error) {
	wt, ok := s.Txn.(WriteTxn)
	if !ok {
		return nil, diagnostic.ErrUnsupportedOperation.WithFragment(s.fragment(), "DML requires a command transaction")
	}
	return wt, nil
}

// execInsertRow implements spec.md §4.4.1's InsertRow: pops a Record
// operand (the row's values in column order), allocates a RowNumber from
// the target primitive's row sequence, and writes it under the matching
// key class.
func execInsertRow(s *VmState, targetIdx int) error {
	target, err := dmlTargetAt(s, targetIdx)
	if err != nil {
		return err
	}
	wt, err := writeTxn(s)
	if err != nil {
		return err
	}
	rec, err := popRecord(s)
	if err != nil {
		return err
	}
	if err := checkUniqueConstraints(s, target, rec, 0, false); err != nil {
		return err
	}
	rowNumber, key, err := allocateRowKey(s, target)
	if err != nil {
		return err
	}
	post := interceptorRow(target, rowNumber, rec)
	if err := s.fireInterceptors(target, interceptor.Insert, interceptor.Pre, nil, post); err != nil {
		return err
	}
	raw, err := encodeRow(target.Columns, rec)
	if err != nil {
		return err
	}
	if err := wt.Set(key, raw); err != nil {
		return err
	}
	if err := s.fireInterceptors(target, interceptor.Insert, interceptor.Post, nil, post); err != nil {
		return err
	}
	return s.pushOperand(scalarOperand(value.RowNumberValue(rowNumber)))
}

// execUpdateRow implements UpdateRow: pops a RowNumber then a Record,
// overwriting the row at that RowNumber in place.
func execUpdateRow(s *VmState, targetIdx int) error {
	target, err := dmlTargetAt(s, targetIdx)
	if err != nil {
		return err
	}
	wt, err := writeTxn(s)
	if err != nil {
		return err
	}
	rowNumber, err := popRowNumber(s)
	if err != nil {
		return err
	}
	rec, err := popRecord(s)
	if err != nil {
		return err
	}
	if err := checkUniqueConstraints(s, target, rec, rowNumber, true); err != nil {
		return err
	}
	key := rowKey(target, rowNumber)
	pre, err := loadInterceptorRow(s, target, key, rowNumber)
	if err != nil {
		return err
	}
	post := interceptorRow(target, rowNumber, rec)
	if err := s.fireInterceptors(target, interceptor.Update, interceptor.Pre, pre, post); err != nil {
		return err
	}
	raw, err := encodeRow(target.Columns, rec)
	if err != nil {
		return err
	}
	if err := wt.Set(key, raw); err != nil {
		return err
	}
	return s.fireInterceptors(target, interceptor.Update, interceptor.Post, pre, post)
}

// execDeleteRow implements DeleteRow: pops a RowNumber and unsets it.
// Unset rather than Delete so the commit captures the removed row's
// pre-image into the CDC batch (spec.md §6.5) — the flow dispatcher needs
// it to decode the removed row for downstream operators.
func execDeleteRow(s *VmState, targetIdx int) error {
	target, err := dmlTargetAt(s, targetIdx)
	if err != nil {
		return err
	}
	wt, err := writeTxn(s)
	if err != nil {
		return err
	}
	rowNumber, err := popRowNumber(s)
	if err != nil {
		return err
	}
	key := rowKey(target, rowNumber)
	pre, err := loadInterceptorRow(s, target, key, rowNumber)
	if err != nil {
		return err
	}
	if err := s.fireInterceptors(target, interceptor.Delete, interceptor.Pre, pre, nil); err != nil {
		return err
	}
	if err := wt.Unset(key); err != nil {
		return err
	}
	return s.fireInterceptors(target, interceptor.Delete, interceptor.Post, pre, nil)
}

func dmlTargetAt(s *VmState, idx int) (DMLTarget, error) {
	if idx < 0 || idx >= len(s.Program.DMLTargets) {
		return DMLTarget{}, diagnostic.ErrUnsupportedOperation.WithFragment(s.fragment(), "DML target")
	}
	return s.Program.DMLTargets[idx], nil
}

// popRowNumber pops the RowNumber operand UpdateRow/DeleteRow expect
// ahead of the record (or alone, for DeleteRow). RowNumberValue packs its
// payload into Value's `u` field (see value.Value.RowNumberID), not the
// `i` field expectInt reads, so a plain expectInt would silently read
// back zero for every row — this reads the tagged accessor instead.
func popRowNumber(s *VmState) (uint64, error) {
	v, err := s.popOperand()
	if err != nil {
		return 0, err
	}
	if v.Kind != OperandScalar || v.Scalar.Ty != value.RowNumber {
		return 0, diagnostic.ErrExpectedInteger.WithFragment(s.fragment(), "row number")
	}
	return v.Scalar.RowNumberID(), nil
}

func popRecord(s *VmState) ([]value.Value, error) {
	v, err := s.popOperand()
	if err != nil {
		return nil, err
	}
	if v.Kind != OperandRecord {
		return nil, diagnostic.ErrExpectedExpression.WithFragment(s.fragment(), "record")
	}
	return v.Record, nil
}

func rowKey(target DMLTarget, rowNumber uint64) encoding.EncodedKey {
	switch target.Kind {
	case SourceView:
		return encoding.ViewRowKey(uint64(target.View), rowNumber)
	default:
		return encoding.TableRowKey(uint64(target.Table), rowNumber)
	}
}

// targetPrimitive maps a DMLTarget to the interceptor package's ID-only
// Primitive handle (spec.md §2's "interceptors fire" around table/view
// insert/update/delete — ring buffers and series have no interceptor
// surface, only tables and views).
func targetPrimitive(target DMLTarget) interceptor.Primitive {
	if target.Kind == SourceView {
		return interceptor.ViewPrimitive(target.View)
	}
	return interceptor.TablePrimitive(target.Table)
}

func columnNames(columns []catalog.Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

// interceptorRow builds the interceptor package's Row view of rec, the
// shape a Hook inspects for Pre/Post.
func interceptorRow(target DMLTarget, rowNumber uint64, rec []value.Value) *interceptor.Row {
	return &interceptor.Row{RowNumber: rowNumber, Columns: columnNames(target.Columns), Values: rec}
}

// loadInterceptorRow decodes the row currently visible at key through the
// transaction, including this transaction's own pending writes, so
// UpdateRow/DeleteRow hooks see a real Pre value rather than an absent
// one.
func loadInterceptorRow(s *VmState, target DMLTarget, key encoding.EncodedKey, rowNumber uint64) (*interceptor.Row, error) {
	raw, ok, err := s.Txn.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	schema := make(encoding.Schema, len(target.Columns))
	for i, c := range target.Columns {
		schema[i] = c.Type
	}
	ev, err := encoding.Parse(schema, raw)
	if err != nil {
		return nil, err
	}
	return interceptorRow(target, rowNumber, ev.Decode()), nil
}

// fireInterceptors is a nil-safe wrapper around Registry.Fire: most query
// invocations never set VmState.Interceptors at all.
func (s *VmState) fireInterceptors(target DMLTarget, action interceptor.Action, phase interceptor.Phase, pre, post *interceptor.Row) error {
	if s.Interceptors == nil {
		return nil
	}
	return s.Interceptors.Fire(&interceptor.Context{
		Primitive: targetPrimitive(target),
		Action:    action,
		Phase:     phase,
		Pre:       pre,
		Post:      post,
	})
}

// allocateRowKey draws the next RowNumber from the target primitive's
// catalog sequence (spec.md §4.1's RowNumber allocation) and builds the
// key it will be stored under.
func allocateRowKey(s *VmState, target DMLTarget) (uint64, encoding.EncodedKey, error) {
	var primitiveID uint64
	switch target.Kind {
	case SourceView:
		primitiveID = uint64(target.View)
	default:
		primitiveID = uint64(target.Table)
	}
	rowNumber := s.Catalog.NextRowNumber(primitiveID)
	return rowNumber, rowKey(target, rowNumber), nil
}
