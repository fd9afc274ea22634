package vm

import (
	"sort"

	"github.com/reifydb/reifydb/internal/column"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/value"
)

// Pipeline is a lazy producer of column.Columns batches (spec.md §4.4.4):
// operators consume and produce pipelines without materializing unless
// explicitly Collect'ed. Next returns ok=false once the pipeline is
// exhausted; batch is nil in that case.
type Pipeline interface {
	Next(s *VmState) (batch *column.Columns, ok bool, err error)
}

// sourcePipeline drains one ScanState via table_source.go's Scanner,
// fetching BatchSize rows at a time (spec.md §4.4.4's FetchBatch).
type sourcePipeline struct {
	scan    *ScanState
	scanner Scanner
}

func (p *sourcePipeline) Next(s *VmState) (*column.Columns, bool, error) {
	if p.scan.Exhausted {
		return nil, false, nil
	}
	batch, next, more, err := p.scanner.Scan(s, p.scan.Source, p.scan.NextRow)
	if err != nil {
		return nil, false, err
	}
	p.scan.NextRow = next
	p.scan.Exhausted = !more
	if batch == nil || batch.Len() == 0 {
		return nil, false, nil
	}
	return batch, true, nil
}

// inlinePipeline streams a single pre-built Columns batch once.
type inlinePipeline struct {
	batch *column.Columns
	done  bool
}

func (p *inlinePipeline) Next(_ *VmState) (*column.Columns, bool, error) {
	if p.done {
		return nil, false, nil
	}
	p.done = true
	if p.batch == nil || p.batch.Len() == 0 {
		return nil, false, nil
	}
	return p.batch, true, nil
}

// filterPipeline implements Apply(Filter) (spec.md §4.4.3): lazily yields
// batches restricted to rows where the predicate column is true,
// non-null.
type filterPipeline struct {
	upstream Pipeline
	filter   CompiledFilter
}

func (p *filterPipeline) Next(s *VmState) (*column.Columns, bool, error) {
	for {
		batch, ok, err := p.upstream.Next(s)
		if err != nil || !ok {
			return nil, ok, err
		}
		mask, err := p.filter(batch)
		if err != nil {
			return nil, false, err
		}
		var keep []int
		for i := 0; i < batch.Len(); i++ {
			if !mask.IsNull(i) && mask.At(i).Bool() {
				keep = append(keep, i)
			}
		}
		if len(keep) == 0 {
			continue
		}
		return batch.ExtractByIndices(keep), true, nil
	}
}

// selectPipeline implements Apply(Select): projects to the listed
// columns, in order.
type selectPipeline struct {
	upstream Pipeline
	names    []string
}

func (p *selectPipeline) Next(s *VmState) (*column.Columns, bool, error) {
	batch, ok, err := p.upstream.Next(s)
	if err != nil || !ok {
		return nil, ok, err
	}
	out := &column.Columns{RowNumbers: batch.RowNumbers}
	for _, name := range p.names {
		_, col, found := batch.ColumnByName(name)
		if !found {
			return nil, false, diagnostic.ErrCatalogNotFound.WithFragment(name, "column")
		}
		out.Cols = append(out.Cols, *col)
	}
	return out, true, nil
}

// extendPipeline implements Apply(Extend)/Apply(Map): appends (Extend) or
// replaces (Map) columns with evaluated outputs, row by row.
type extendPipeline struct {
	upstream Pipeline
	spec     *ExtSpec
	replace  bool
}

func (p *extendPipeline) Next(s *VmState) (*column.Columns, bool, error) {
	batch, ok, err := p.upstream.Next(s)
	if err != nil || !ok {
		return nil, ok, err
	}
	computed := make([]*column.Data, len(p.spec.Exprs))
	for i := range p.spec.Exprs {
		computed[i] = column.New(value.Undefined)
	}
	for row := 0; row < batch.Len(); row++ {
		for i, expr := range p.spec.Exprs {
			v, err := expr(batch, row)
			if err != nil {
				return nil, false, err
			}
			if err := computed[i].Append(v); err != nil {
				return nil, false, err
			}
		}
	}
	out := &column.Columns{RowNumbers: batch.RowNumbers}
	if !p.replace {
		out.Cols = append(out.Cols, batch.Cols...)
	}
	for i, name := range p.spec.Names {
		out.Cols = append(out.Cols, column.NewColumn(name, computed[i]))
	}
	return out, true, nil
}

// takePipeline implements Apply(Take): yields at most n rows across all
// batches.
type takePipeline struct {
	upstream  Pipeline
	remaining int
}

func (p *takePipeline) Next(s *VmState) (*column.Columns, bool, error) {
	if p.remaining <= 0 {
		return nil, false, nil
	}
	batch, ok, err := p.upstream.Next(s)
	if err != nil || !ok {
		return nil, ok, err
	}
	if batch.Len() <= p.remaining {
		p.remaining -= batch.Len()
		return batch, true, nil
	}
	idx := make([]int, p.remaining)
	for i := range idx {
		idx[i] = i
	}
	p.remaining = 0
	return batch.ExtractByIndices(idx), true, nil
}

// sortPipeline implements Apply(Sort) (spec.md §4.4.3): collects the
// entire upstream, performs a stable sort with per-key direction/null
// placement, then re-streams as a single batch.
type sortPipeline struct {
	upstream Pipeline
	spec     *SortSpec
	sorted   *column.Columns
	done     bool
	started  bool
}

func (p *sortPipeline) Next(s *VmState) (*column.Columns, bool, error) {
	if !p.started {
		p.started = true
		collected, err := collectAll(s, p.upstream)
		if err != nil {
			return nil, false, err
		}
		p.sorted = sortColumns(collected, p.spec.Keys)
	}
	if p.done || p.sorted == nil || p.sorted.Len() == 0 {
		return nil, false, nil
	}
	p.done = true
	return p.sorted, true, nil
}

// sortColumns implements the stable, per-key tie-break sort spec.md
// §4.4.3 describes: "ascending lexicographic on remaining sort keys;
// nulls ordering per key ... stable across equal keys in the original
// pipeline order."
func sortColumns(c *column.Columns, keys []SortKey) *column.Columns {
	if c == nil {
		return nil
	}
	idx := make([]int, c.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := idx[a], idx[b]
		for _, k := range keys {
			_, col, found := c.ColumnByName(k.Column)
			if !found {
				continue
			}
			cmp := compareWithNulls(col.Data, ra, rb, k.NullsLast)
			if cmp == 0 {
				continue
			}
			if !k.Ascending && !col.Data.IsNull(ra) && !col.Data.IsNull(rb) {
				cmp = -cmp // null placement follows NullsLast, not the direction
			}
			return cmp < 0
		}
		return false
	})
	return c.ExtractByIndices(idx)
}

func compareWithNulls(col *column.Data, a, b int, nullsLast bool) int {
	aNull, bNull := col.IsNull(a), col.IsNull(b)
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		if nullsLast {
			return 1
		}
		return -1
	case bNull:
		if nullsLast {
			return -1
		}
		return 1
	default:
		return value.Compare(col.At(a), col.At(b))
	}
}

// distinctPipeline implements Apply(Distinct): a query-local (not
// persisted) first-occurrence filter over the evaluated key expressions,
// the VM analogue of flow.DistinctOperator's §4.3.3 semantics without the
// flow engine's durable per-key counts (a one-shot query never replays).
type distinctPipeline struct {
	upstream Pipeline
	exprs    []CompiledExpr
	seen     map[string]struct{}
}

func (p *distinctPipeline) Next(s *VmState) (*column.Columns, bool, error) {
	if p.seen == nil {
		p.seen = make(map[string]struct{})
	}
	for {
		batch, ok, err := p.upstream.Next(s)
		if err != nil || !ok {
			return nil, ok, err
		}
		var keep []int
		for row := 0; row < batch.Len(); row++ {
			key, err := distinctKey(p.exprs, batch, row)
			if err != nil {
				return nil, false, err
			}
			if _, dup := p.seen[key]; dup {
				continue
			}
			p.seen[key] = struct{}{}
			keep = append(keep, row)
		}
		if len(keep) == 0 {
			continue
		}
		return batch.ExtractByIndices(keep), true, nil
	}
}

func distinctKey(exprs []CompiledExpr, batch *column.Columns, row int) (string, error) {
	var buf []byte
	for _, expr := range exprs {
		v, err := expr(batch, row)
		if err != nil {
			return "", err
		}
		buf = append(buf, []byte(v.String())...)
		buf = append(buf, 0)
	}
	return string(buf), nil
}

// collectAll drains a pipeline fully and concatenates every batch, the
// primitive Apply(Sort)/Apply(Aggregate)/the explicit Collect opcode all
// need (spec.md §4.4.4: "operators ... without materializing unless
// explicitly Collect'ed").
func collectAll(s *VmState, p Pipeline) (*column.Columns, error) {
	var batches []*column.Columns
	for {
		batch, ok, err := p.Next(s)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		batches = append(batches, batch)
	}
	if len(batches) == 0 {
		return &column.Columns{}, nil
	}
	return column.Concat(batches...)
}
