package runtime

import (
	"fmt"

	"github.com/quillflow/quillflow/pkg/domain"
)

// ReplayDivergence reports one history entry whose recorded routing
// decision does not match the re-derived one.
type ReplayDivergence struct {
	Index    int
	NodeID   string
	Outcome  string
	Recorded string
	Derived  string
}

func (d *ReplayDivergence) Error() string {
	return fmt.Sprintf("replay diverged at history[%d] node %s outcome %q: recorded edge to %q, derived %q",
		d.Index, d.NodeID, d.Outcome, d.Recorded, d.Derived)
}

// ReplayHistory re-derives every routing decision in the persisted
// history against the plan and verifies it matches the recorded edge.
// Starting from the execution's initial context, each entry's context
// patch is applied in order, so conditional edges are evaluated against
// the same working memory they originally saw. This is the engine's
// determinism and auditability check: a clean replay proves the stored
// history fully explains the path taken.
func (e *Engine) ReplayHistory(plan *domain.WorkflowPlan, state *domain.ExecutionState) error {
	replayCtx := state.InitialContext.Clone()

	for i, entry := range state.History {
		replayCtx = replayCtx.Merged(entry.ContextPatch)

		if entry.EdgeTaken == "" {
			continue
		}

		node, ok := plan.Node(entry.NodeID)
		if !ok {
			return fmt.Errorf("history[%d] references unknown node %q", i, entry.NodeID)
		}

		edge, err := e.router.SelectEdge(plan, node, entry.Outcome, replayCtx)
		if err != nil {
			return fmt.Errorf("history[%d]: %w", i, err)
		}
		if edge == nil || edge.To != entry.EdgeTaken {
			derived := ""
			if edge != nil {
				derived = edge.To
			}
			return &ReplayDivergence{
				Index:    i,
				NodeID:   entry.NodeID,
				Outcome:  entry.Outcome,
				Recorded: entry.EdgeTaken,
				Derived:  derived,
			}
		}
	}
	return nil
}
