package runtime

import (
	"fmt"

	"github.com/quillflow/quillflow/pkg/domain"
)

// EdgeRouter selects the outgoing edge for a node's outcome. It is the
// only component that performs control flow; executors never route.
type EdgeRouter struct {
	evaluator *ConditionEvaluator
}

// NewEdgeRouter creates a router with the default condition evaluator.
func NewEdgeRouter() *EdgeRouter {
	return &EdgeRouter{evaluator: NewConditionEvaluator()}
}

// SelectEdge returns the first edge, in declared priority order, whose
// MatchOutcome equals outcome (or is the wildcard) and whose condition
// evaluates true against snapshot. It returns nil only for terminal
// nodes; a nil result for a non-terminal node is an engine invariant
// violation, because validation guarantees at least one always-matching
// edge.
//
// Selection is pure: identical (plan, node, outcome, snapshot) always
// yields the identical edge. A condition that fails to evaluate counts
// as false; the defect then surfaces as the invariant-violation error
// rather than a nondeterministic route.
func (r *EdgeRouter) SelectEdge(plan *domain.WorkflowPlan, node domain.Node, outcome string, snapshot domain.Context) (*domain.Edge, error) {
	edges := plan.OutgoingEdges(node.ID)

	if node.Terminal() {
		// Validation forbids edges on terminal nodes.
		return nil, nil
	}

	for i := range edges {
		e := &edges[i]
		if e.MatchOutcome != domain.MatchAny && e.MatchOutcome != outcome {
			continue
		}
		ok, err := r.evaluator.Evaluate(e.Condition, snapshot)
		if err != nil || !ok {
			continue
		}
		return e, nil
	}

	return nil, fmt.Errorf("no edge matches outcome %q from non-terminal node %q: plan invariant violated", outcome, node.ID)
}

// OutcomeMapper translates a node's domain outcome vocabulary into the
// plan's terminal outcome vocabulary using the plan's outcome map.
// Unmapped outcomes pass through unchanged.
type OutcomeMapper struct{}

// NewOutcomeMapper returns a mapper. It is stateless.
func NewOutcomeMapper() *OutcomeMapper {
	return &OutcomeMapper{}
}

// Map resolves the terminal outcome for a node-local outcome.
func (m *OutcomeMapper) Map(plan *domain.WorkflowPlan, outcome string) string {
	if mapped, ok := plan.OutcomeMap[outcome]; ok {
		return mapped
	}
	return outcome
}
