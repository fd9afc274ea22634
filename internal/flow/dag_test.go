package flow

import "testing"

func tableSourceNode(id FlowNodeId) *FlowNode {
	return &FlowNode{ID: id, Type: NodeSourceTable}
}

// TestTopologicalOrderRespectsInputs covers spec.md §3.6's "topologically
// orderable" invariant: every input must precede its dependent.
func TestTopologicalOrderRespectsInputs(t *testing.T) {
	d := NewFlowDag()
	mustAdd(t, d, tableSourceNode(1))
	mustAdd(t, d, &FlowNode{ID: 2, Type: NodeFilter, Inputs: []FlowNodeId{1}})
	mustAdd(t, d, &FlowNode{ID: 3, Type: NodeSinkView, Inputs: []FlowNodeId{2}})

	order, err := d.TopologicalOrder()
	if err != nil {
		t.Fatalf("topological order: %v", err)
	}
	pos := make(map[FlowNodeId]int, len(order))
	for i, n := range order {
		pos[n.ID] = i
	}
	if pos[1] >= pos[2] || pos[2] >= pos[3] {
		t.Fatalf("expected order 1 < 2 < 3, got positions %v", pos)
	}
}

func TestTopologicalOrderDetectsCycle(t *testing.T) {
	d := NewFlowDag()
	mustAdd(t, d, &FlowNode{ID: 1, Type: NodeFilter, Inputs: []FlowNodeId{2}})
	mustAdd(t, d, &FlowNode{ID: 2, Type: NodeFilter, Inputs: []FlowNodeId{1}})

	if _, err := d.TopologicalOrder(); err == nil {
		t.Fatalf("expected a cycle error")
	}
}

func TestValidateRejectsDanglingInput(t *testing.T) {
	d := NewFlowDag()
	mustAdd(t, d, &FlowNode{ID: 2, Type: NodeFilter, Inputs: []FlowNodeId{99}})

	if err := d.Validate(); err == nil {
		t.Fatalf("expected an error for a dangling input reference")
	}
}

func TestValidateRejectsNonSourceWithNoInputs(t *testing.T) {
	d := NewFlowDag()
	mustAdd(t, d, &FlowNode{ID: 1, Type: NodeFilter})

	if err := d.Validate(); err == nil {
		t.Fatalf("expected an error for a non-source node with no inputs")
	}
}

func TestValidateRejectsSinkWithOutgoingEdge(t *testing.T) {
	d := NewFlowDag()
	mustAdd(t, d, tableSourceNode(1))
	mustAdd(t, d, &FlowNode{ID: 2, Type: NodeSinkView, Inputs: []FlowNodeId{1}})
	mustAdd(t, d, &FlowNode{ID: 3, Type: NodeFilter, Inputs: []FlowNodeId{2}})

	if err := d.Validate(); err == nil {
		t.Fatalf("expected an error for a sink with an outgoing edge")
	}
}

func TestValidateAcceptsWellFormedDag(t *testing.T) {
	d := NewFlowDag()
	mustAdd(t, d, tableSourceNode(1))
	mustAdd(t, d, &FlowNode{ID: 2, Type: NodeFilter, Inputs: []FlowNodeId{1}})
	mustAdd(t, d, &FlowNode{ID: 3, Type: NodeSinkView, Inputs: []FlowNodeId{2}})

	if err := d.Validate(); err != nil {
		t.Fatalf("expected a well-formed dag to validate, got %v", err)
	}
}

func mustAdd(t *testing.T, d *FlowDag, n *FlowNode) {
	t.Helper()
	if err := d.AddNode(n); err != nil {
		t.Fatalf("add node %d: %v", n.ID, err)
	}
}
