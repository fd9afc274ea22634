// Package flow's Dispatcher implements spec.md §4.3.5: the single CDC
// consumer that fans committed changes out to every flow whose sources
// include the change's owning primitive.
package flow

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/cdc"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
	"github.com/reifydb/reifydb/internal/mvcc"
)

// Dispatcher is the single writer to each flow's per-node state (spec.md
// §5): it owns a Registry and the mvcc.Engine it derives FlowTransactions
// from, and fans apply tasks out across a bounded worker pool via
// golang.org/x/sync/errgroup — the same "structured concurrency for
// fan-out" role the teacher's WorkerPool (internal/storage/concurrency.go)
// plays for read/write request dispatch, generalized from a fixed
// goroutine pool to a per-batch errgroup so each poll's fan-out has its
// own bounded lifetime.
type Dispatcher struct {
	registry *Registry
	engine   *mvcc.Engine
	catalog  *catalog.Catalog
	workers  int
	log      *zap.SugaredLogger
}

func NewDispatcher(registry *Registry, engine *mvcc.Engine, cat *catalog.Catalog, workers int, log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{registry: registry, engine: engine, catalog: cat, workers: workers, log: log}
}

// RowKeyFilter is the cdc.Filter the flow consumer registers (spec.md
// §4.2.2 step 3): only row keys of routable primitives (tables, views,
// ring buffers, series) are relevant to dispatch.
func RowKeyFilter(c cdc.Change) bool {
	_, _, _, ok := encoding.ParseRowKey(c.Key)
	return ok
}

// Handle is a cdc.Handler: one poll's worth of batches, routed flow by
// flow. It groups every SequencedChange by owning FlowId before
// submission (spec.md §4.3.5 step (c), confirmed against
// original_source/crates/sub-flow in SPEC_FULL.md §C), runs each flow's
// apply tasks concurrently with at most d.workers in flight, verifies
// the batch's transactions touched disjoint per-node state keyspaces,
// and only then commits — so FlowTransactionKeyspaceOverlap is raised
// before any of the colliding state lands.
func (d *Dispatcher) Handle(ctx context.Context, batches []cdc.Cdc) error {
	type triggered struct {
		node   FlowNodeId
		change Change
	}
	byFlow := make(map[FlowId][]triggered)

	for _, batch := range batches {
		for _, sc := range batch.Changes {
			class, primitiveID, rowID, ok := encoding.ParseRowKey(sc.Change.Key)
			if !ok {
				continue
			}
			refs := d.registry.SourcesFor(class, primitiveID)
			if len(refs) == 0 {
				continue
			}
			diff, err := d.diffFor(class, primitiveID, rowID, sc)
			if err != nil {
				return err
			}
			if diff == nil {
				continue
			}
			for _, ref := range refs {
				byFlow[ref.Flow] = append(byFlow[ref.Flow], triggered{node: ref.Node, change: Change{*diff}})
			}
		}
	}

	if len(byFlow) == 0 {
		return nil
	}

	// Deterministic iteration order keeps dispatch reproducible for tests
	// even though map iteration itself is not ordered.
	flowIDs := make([]FlowId, 0, len(byFlow))
	for id := range byFlow {
		flowIDs = append(flowIDs, id)
	}
	sort.Slice(flowIDs, func(i, j int) bool { return flowIDs[i] < flowIDs[j] })

	// Phase 1: propagate each flow's changes concurrently, each into its
	// own uncommitted FlowTransaction.
	runs := make([]*flowRun, len(flowIDs))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, id := range flowIDs {
		i, id := i, id
		triggers := byFlow[id]
		g.Go(func() error {
			rf, ok := d.registry.Flow(id)
			if !ok {
				return nil
			}
			txn := NewFlowTransaction(d.engine.BeginWrite())
			runs[i] = &flowRun{id: id, txn: txn}
			for _, t := range triggers {
				if err := d.propagate(txn, rf, t.node, t.change); err != nil {
					return fmt.Errorf("flow %d: %w", id, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		rollbackRuns(runs)
		return err
	}

	// Phase 2: every pair of this batch's transactions must own disjoint
	// per-node state keyspaces (spec.md §4.3.4) — a collision here means
	// two flows share a FlowNodeId and would silently clobber each
	// other's state.
	for i := range runs {
		if runs[i] == nil {
			continue
		}
		for j := i + 1; j < len(runs); j++ {
			if runs[j] == nil {
				continue
			}
			if err := runs[i].txn.CheckKeyspaceOverlap(runs[j].txn); err != nil {
				rollbackRuns(runs)
				return fmt.Errorf("flows %d and %d: %w", runs[i].id, runs[j].id, err)
			}
		}
	}

	// Phase 3: commit. Serial, like every commit through the oracle.
	for i, r := range runs {
		if r == nil {
			continue
		}
		if _, err := r.txn.Commit(); err != nil {
			rollbackRuns(runs[i+1:])
			return fmt.Errorf("flow %d commit: %w", r.id, err)
		}
	}
	return nil
}

// flowRun is one flow's in-flight work within a single Handle batch.
type flowRun struct {
	id  FlowId
	txn *FlowTransaction
}

func rollbackRuns(runs []*flowRun) {
	for _, r := range runs {
		if r != nil {
			r.txn.Rollback()
		}
	}
}

// diffFor reconstructs the flow.Diff a committed CDC change represents,
// decoding pre/post row bytes through the owning primitive's column list.
func (d *Dispatcher) diffFor(class encoding.KeyClass, primitiveID, rowID uint64, sc cdc.SequencedChange) (*Diff, error) {
	codec, err := d.codecFor(class, primitiveID)
	if err != nil {
		return nil, err
	}
	switch sc.Change.Kind {
	case cdc.ChangeInsert:
		row, err := codec.decode(rowID, sc.Change.Post)
		if err != nil {
			return nil, err
		}
		return &Diff{Kind: DiffInsert, Post: row}, nil
	case cdc.ChangeUpdate:
		pre, err := codec.decode(rowID, sc.Change.Pre)
		if err != nil {
			return nil, err
		}
		post, err := codec.decode(rowID, sc.Change.Post)
		if err != nil {
			return nil, err
		}
		return &Diff{Kind: DiffUpdate, Pre: pre, Post: post}, nil
	case cdc.ChangeRemove:
		if len(sc.Change.Pre) == 0 {
			// remove (no pre-values): only the row identity survives.
			return &Diff{Kind: DiffRemove, Pre: Row{RowNumber: rowID}}, nil
		}
		pre, err := codec.decode(rowID, sc.Change.Pre)
		if err != nil {
			return nil, err
		}
		return &Diff{Kind: DiffRemove, Pre: pre}, nil
	default:
		return nil, nil
	}
}

func (d *Dispatcher) codecFor(class encoding.KeyClass, id uint64) (primitiveRowCodec, error) {
	switch class {
	case encoding.ClassTableRow:
		t, err := d.catalog.Table(catalog.TableId(id))
		if err != nil {
			return primitiveRowCodec{}, err
		}
		return primitiveRowCodec{columns: t.Columns}, nil
	case encoding.ClassViewRow:
		v, err := d.catalog.View(catalog.ViewId(id))
		if err != nil {
			return primitiveRowCodec{}, err
		}
		return primitiveRowCodec{columns: v.Columns}, nil
	case encoding.ClassRingBufferRow:
		rb, err := d.catalog.RingBuffer(catalog.RingBufferId(id))
		if err != nil {
			return primitiveRowCodec{}, err
		}
		return primitiveRowCodec{columns: rb.Columns}, nil
	case encoding.ClassSeriesRow:
		s, err := d.catalog.Series(catalog.SeriesId(id))
		if err != nil {
			return primitiveRowCodec{}, err
		}
		return primitiveRowCodec{columns: s.Columns}, nil
	default:
		return primitiveRowCodec{}, fmt.Errorf("flow: unroutable key class %v", class)
	}
}

// propagate runs change through node's operator and forwards its output
// to every dependent, recursively, until every reachable sink has fired
// (spec.md §4.3.2). Join nodes dispatch to ApplyLeft/ApplyRight depending
// on which of the node's two Inputs the change arrived from.
func (d *Dispatcher) propagate(txn *FlowTransaction, rf *RegisteredFlow, node FlowNodeId, change Change) error {
	out, err := d.apply(txn, rf, node, change, -1)
	if err != nil {
		return err
	}
	for _, dep := range rf.dependents[node] {
		side := inputSide(rf.Dag.Nodes[dep], node)
		if err := d.propagateInto(txn, rf, dep, out, side); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) propagateInto(txn *FlowTransaction, rf *RegisteredFlow, node FlowNodeId, change Change, side int) error {
	out, err := d.apply(txn, rf, node, change, side)
	if err != nil {
		return err
	}
	for _, dep := range rf.dependents[node] {
		next := inputSide(rf.Dag.Nodes[dep], node)
		if err := d.propagateInto(txn, rf, dep, out, next); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) apply(txn *FlowTransaction, rf *RegisteredFlow, node FlowNodeId, change Change, side int) (Change, error) {
	if j, ok := rf.Joins[node]; ok {
		if side == 1 {
			return j.ApplyRight(txn, change, DefaultEvaluator{})
		}
		return j.ApplyLeft(txn, change, DefaultEvaluator{})
	}
	op, ok := rf.Operators[node]
	if !ok {
		return nil, diagnostic.ErrCatalogNotFound.WithFragment(fmt.Sprint(node), "flow node")
	}
	return op.Apply(txn, change, DefaultEvaluator{})
}

// inputSide reports whether from is node's Inputs[0] (0, "left") or
// Inputs[1] (1, "right"); -1 if node has only one input.
func inputSide(node *FlowNode, from FlowNodeId) int {
	if len(node.Inputs) < 2 {
		return -1
	}
	if node.Inputs[0] == from {
		return 0
	}
	return 1
}
