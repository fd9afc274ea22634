package flow

import (
	"fmt"
	"sync"

	"github.com/reifydb/reifydb/internal/catalog"
	"github.com/reifydb/reifydb/internal/diagnostic"
	"github.com/reifydb/reifydb/internal/encoding"
)

// RegisteredFlow is the runtime instantiation of one FlowDag: an Operator
// (or, for Join nodes, a *JoinOperator routed by input edge) per node,
// plus the forward adjacency Dispatch walks to propagate a Change from a
// triggered source to every reachable sink (spec.md §4.3.1).
type RegisteredFlow struct {
	ID         FlowId
	Dag        *FlowDag
	Order      []*FlowNode
	Operators  map[FlowNodeId]Operator
	Joins      map[FlowNodeId]*JoinOperator
	dependents map[FlowNodeId][]FlowNodeId
}

// sourceKey combines a key class and primitive ID the way CDC events are
// addressed (spec.md §6.2), so a TableId and a ViewId that happen to share
// a numeric value never collide in the Registry's source index.
type sourceKey struct {
	class encoding.KeyClass
	id    uint64
}

type nodeRef struct {
	Flow FlowId
	Node FlowNodeId
}

// Registry holds every RegisteredFlow in the process and the primitive ->
// (flow, node) index the Dispatcher uses to route incoming CDC events
// (spec.md §4.3.5). One Registry per database, mirroring the Oracle's
// process-wide lifecycle (spec.md §9 "Global state").
type Registry struct {
	mu      sync.RWMutex
	flows   map[FlowId]*RegisteredFlow
	sources map[sourceKey][]nodeRef
}

func NewRegistry() *Registry {
	return &Registry{flows: make(map[FlowId]*RegisteredFlow), sources: make(map[sourceKey][]nodeRef)}
}

// Register walks dag.TopologicalOrder, instantiates one Operator per node
// (spec.md §4.3.1's node-type -> operator mapping), and indexes every
// source node's owning primitive so the Dispatcher can find it. Sink
// nodes are not indexed: a SinkView node's view is not a source of this
// flow.
func (r *Registry) Register(id FlowId, dag *FlowDag, cat *catalog.Catalog) (*RegisteredFlow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.flows[id]; exists {
		return nil, diagnostic.ErrFlowAlreadyRegistered.WithFragment(fmt.Sprint(id), "flow")
	}
	if err := dag.Validate(); err != nil {
		return nil, err
	}
	order, err := dag.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	rf := &RegisteredFlow{
		ID:         id,
		Dag:        dag,
		Order:      order,
		Operators:  make(map[FlowNodeId]Operator),
		Joins:      make(map[FlowNodeId]*JoinOperator),
		dependents: make(map[FlowNodeId][]FlowNodeId),
	}

	for _, node := range order {
		for _, in := range node.Inputs {
			rf.dependents[in] = append(rf.dependents[in], node.ID)
		}

		switch node.Type {
		case NodeSourceTable:
			t, err := cat.Table(node.SourceTableID)
			if err != nil {
				return nil, err
			}
			rf.Operators[node.ID] = NewPrimitiveTableOperator(t)
			r.addSource(encoding.ClassTableRow, uint64(node.SourceTableID), id, node.ID)
		case NodeSourceView:
			v, err := cat.View(node.SourceViewID)
			if err != nil {
				return nil, err
			}
			rf.Operators[node.ID] = NewPrimitiveViewOperator(v)
			r.addSource(encoding.ClassViewRow, uint64(node.SourceViewID), id, node.ID)
		case NodeSourceRingBuffer:
			rb, err := cat.RingBuffer(node.SourceRingBufferID)
			if err != nil {
				return nil, err
			}
			rf.Operators[node.ID] = NewPrimitiveRingBufferOperator(rb)
			r.addSource(encoding.ClassRingBufferRow, uint64(node.SourceRingBufferID), id, node.ID)
		case NodeSourceSeries:
			s, err := cat.Series(node.SourceSeriesID)
			if err != nil {
				return nil, err
			}
			rf.Operators[node.ID] = NewPrimitiveSeriesOperator(s)
			r.addSource(encoding.ClassSeriesRow, uint64(node.SourceSeriesID), id, node.ID)
		case NodeSourceInlineData:
			rf.Operators[node.ID] = NewInlineDataOperator(node.ID, node.SourceInlineRows)
		case NodeSourceFlow:
			rf.Operators[node.ID] = NewFlowSourceOperator(node.SourceFlowID)
		case NodeFilter:
			rf.Operators[node.ID] = NewFilterOperator(node.FilterExprs)
		case NodeMap:
			rf.Operators[node.ID] = NewMapOperator(node.MapNames, node.MapExprs)
		case NodeExtend:
			rf.Operators[node.ID] = NewExtendOperator(node.ExtendNames, node.ExtendExprs)
		case NodeSort:
			rf.Operators[node.ID] = NewSortOperator(node.ID, node.SortKeys)
		case NodeTake:
			rf.Operators[node.ID] = NewTakeOperator(node.ID, node.TakeLimit)
		case NodeDistinct:
			rf.Operators[node.ID] = NewDistinctOperator(node.ID, node.DistinctExprs)
		case NodeAggregate:
			rf.Operators[node.ID] = NewAggregateOperator(node.ID, node.AggregateGroup, node.AggregateExprs)
		case NodeWindow:
			if err := ValidateWindow(node); err != nil {
				return nil, err
			}
			rf.Operators[node.ID] = NewWindowOperator(node.ID, node.WindowKind, node.WindowSize, node.WindowSlide, node.AggregateExprs)
		case NodeAppend:
			rf.Operators[node.ID] = NewAppendOperator()
		case NodeApply:
			if node.ApplyFn == nil {
				return nil, fmt.Errorf("flow: apply node %d has no function bound", node.ID)
			}
			rf.Operators[node.ID] = NewApplyOperator(node.ApplyFn)
		case NodeJoin:
			if len(node.Inputs) != 2 {
				return nil, fmt.Errorf("flow: join node %d requires exactly 2 inputs, got %d", node.ID, len(node.Inputs))
			}
			rf.Joins[node.ID] = NewJoinOperator(node.ID, node.JoinKind, node.JoinLeftKey, node.JoinRightKey)
		case NodeSinkView:
			v, err := cat.View(node.SinkViewID)
			if err != nil {
				return nil, err
			}
			rf.Operators[node.ID] = NewSinkViewOperator(v)
		case NodeSinkSubscription:
			rf.Operators[node.ID] = NewSinkSubscriptionOperator(node.SinkSubscriptionID, nil)
		default:
			return nil, fmt.Errorf("flow: unknown node type %d for node %d", node.Type, node.ID)
		}
	}

	r.flows[id] = rf
	return rf, nil
}

func (r *Registry) addSource(class encoding.KeyClass, id uint64, flow FlowId, node FlowNodeId) {
	k := sourceKey{class: class, id: id}
	r.sources[k] = append(r.sources[k], nodeRef{Flow: flow, Node: node})
}

// BindSubscription attaches a live callback to an already-registered
// SinkSubscription node, replacing the no-op placeholder Register installs
// (subscriptions are wired after registration since the callback is a
// runtime concern, not part of the DAG's static shape).
func (r *Registry) BindSubscription(flow FlowId, node FlowNodeId, cb SubscriptionCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rf, ok := r.flows[flow]
	if !ok {
		return diagnostic.ErrCatalogNotFound.WithFragment(fmt.Sprint(flow), "flow")
	}
	op, ok := rf.Operators[node].(*SinkSubscriptionOperator)
	if !ok {
		return fmt.Errorf("flow: node %d is not a subscription sink", node)
	}
	op.callback = cb
	return nil
}

// Flow returns a registered flow by ID.
func (r *Registry) Flow(id FlowId) (*RegisteredFlow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rf, ok := r.flows[id]
	return rf, ok
}

// SourcesFor returns every (flow, node) pair registered as a source for
// the given primitive (spec.md §4.3.5 step (b): "looks up
// sources[primitive_id]").
func (r *Registry) SourcesFor(class encoding.KeyClass, primitiveID uint64) []nodeRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]nodeRef(nil), r.sources[sourceKey{class: class, id: primitiveID}]...)
}
