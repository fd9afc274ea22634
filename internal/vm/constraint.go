package vm

import (
	"strings"

	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/value"
)

// uniqueConstraint is one declared uniqueness rule over a table: its
// column set and the diagnostic a duplicate raises.
type uniqueConstraint struct {
	columns   []catalog.ColumnIndex
	violation *diagnostic.Diagnostic
	name      string
}

// tableConstraints collects the target table's declared primary key and
// unique indexes. Views and tables absent from the catalog carry none.
func tableConstraints(s *VmState, target DMLTarget) []uniqueConstraint {
	if target.Kind == SourceView || s.Catalog == nil {
		return nil
	}
	tbl, err := s.Catalog.Table(target.Table)
	if err != nil {
		return nil
	}
	var out []uniqueConstraint
	if tbl.PrimaryKey != nil {
		if pk, err := s.Catalog.PrimaryKey(*tbl.PrimaryKey); err == nil {
			out = append(out, uniqueConstraint{columns: pk.Columns, violation: diagnostic.ErrPrimaryKeyViolation, name: tbl.Name})
		}
	}
	for _, idx := range s.Catalog.IndexesForTable(tbl.ID) {
		if idx.Unique {
			out = append(out, uniqueConstraint{columns: idx.Columns, violation: diagnostic.ErrUniqueIndexViolation, name: idx.Name})
		}
	}
	return out
}

// constraintTuple renders the constrained columns of one row as a
// comparable tuple. ok is false when any component is null: null values
// never participate in uniqueness.
func constraintTuple(cols []catalog.Column, indices []catalog.ColumnIndex, values []value.Value) (string, bool) {
	var b strings.Builder
	for _, ci := range indices {
		pos := -1
		for p := range cols {
			if cols[p].Index == ci {
				pos = p
				break
			}
		}
		if pos < 0 || pos >= len(values) {
			return "", false
		}
		v := values[pos]
		if v.IsUndefined() {
			return "", false
		}
		b.WriteString(v.String())
		b.WriteByte(0)
	}
	return b.String(), true
}

// checkUniqueConstraints rejects rec if it duplicates an existing row on
// the target table's primary key or any unique index, scanning the
// table's row subspace through the transaction so both committed rows
// and this transaction's own pending inserts count. excludeRow skips the
// row an UpdateRow is about to overwrite (a row never conflicts with
// itself); pass hasExclude=false for inserts. The probe is a full
// subspace scan — uniqueness here is a constraint on the logical table,
// not an index-backed lookup.
func checkUniqueConstraints(s *VmState, target DMLTarget, rec []value.Value, excludeRow uint64, hasExclude bool) error {
	constraints := tableConstraints(s, target)
	if len(constraints) == 0 {
		return nil
	}

	type probe struct {
		tuple string
		live  bool
	}
	probes := make([]probe, len(constraints))
	any := false
	for i, c := range constraints {
		tuple, ok := constraintTuple(target.Columns, c.columns, rec)
		probes[i] = probe{tuple: tuple, live: ok}
		any = any || ok
	}
	if !any {
		return nil
	}

	schema := make(encoding.Schema, len(target.Columns))
	for i, c := range target.Columns {
		schema[i] = c.Type
	}

	prefix := encoding.SubspacePrefix(encoding.ClassTableRow, uint64(target.Table))
	entries, err := s.Txn.Prefix(prefix, 0)
	if err != nil {
		return err
	}
	for _, e := range entries {
		_, _, rowID, ok := encoding.ParseRowKey(e.Key)
		if !ok || (hasExclude && rowID == excludeRow) {
			continue
		}
		ev, err := encoding.Parse(schema, e.Value)
		if err != nil {
			return err
		}
		existing := ev.Decode()
		for i, c := range constraints {
			if !probes[i].live {
				continue
			}
			tuple, ok := constraintTuple(target.Columns, c.columns, existing)
			if ok && tuple == probes[i].tuple {
				return c.violation.WithFragment(c.name, "duplicate key")
			}
		}
	}
	return nil
}
