package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/quillflow/quillflow/pkg/domain"
)

// EscalationHandler resolves an escalated execution according to an
// operator choice. Handlers mutate the state in place; the engine
// persists it afterwards. The choice vocabulary is configurable policy
// rather than a closed enum; hosts register additional handlers with
// WithEscalationHandler.
type EscalationHandler func(ctx context.Context, e *Engine, plan *domain.WorkflowPlan, state *domain.ExecutionState, choice string) error

// Built-in escalation choices.
const (
	EscalationResubmit    = "resubmit"
	EscalationAbandon     = "abandon"
	escalationForcePrefix = "force:"
)

func registerBuiltinEscalations(e *Engine) {
	e.escalations[EscalationResubmit] = resubmitNode
	e.escalations[EscalationAbandon] = abandonFromEscalation
}

// HandleEscalationChoice applies an operator decision to an escalated
// execution. Only legal while the status is Escalated.
//
// Built-ins: "resubmit" resets the node's retry counter and re-runs it;
// "force:<outcome>" skips the executor and routes the node with the
// forced outcome; "abandon" terminates the execution as Failed.
func (e *Engine) HandleEscalationChoice(ctx context.Context, executionID, choice string) (domain.ExecutionStatus, error) {
	var status domain.ExecutionStatus
	err := e.sessions.WithLock(ctx, executionID, func(ctx context.Context) error {
		state, err := e.store.Load(ctx, executionID)
		if err != nil {
			return err
		}
		if state.Status != domain.StatusEscalated {
			return &domain.InvalidStateTransitionError{
				ExecutionID: executionID,
				Status:      state.Status,
				Operation:   "handle escalation choice",
			}
		}

		plan, err := e.resolvePlan(state)
		if err != nil {
			return err
		}

		handler, err := e.lookupEscalation(choice)
		if err != nil {
			return err
		}

		if err := handler(ctx, e, plan, state, choice); err != nil {
			return err
		}
		if err := e.save(ctx, state); err != nil {
			return err
		}

		e.logger.Info("escalation resolved",
			"execution_id", executionID,
			"choice", choice,
			"status", state.Status)

		if state.Status.Terminal() {
			e.hooks.EmitExecutionEnd(ctx, &domain.ExecutionEvent{
				ExecutionID:     executionID,
				PlanID:          plan.ID,
				Status:          state.Status,
				TerminalOutcome: state.TerminalOutcome,
			})
		}
		status = state.Status
		return nil
	})
	return status, err
}

func (e *Engine) lookupEscalation(choice string) (EscalationHandler, error) {
	if h, ok := e.escalations[choice]; ok {
		return h, nil
	}
	if strings.HasPrefix(choice, escalationForcePrefix) {
		return forceOutcome, nil
	}
	return nil, fmt.Errorf("unknown escalation choice %q", choice)
}

// resubmitNode resets the failing node's retry counter so the circuit
// breaker starts over, and resumes execution at the same node.
func resubmitNode(ctx context.Context, e *Engine, plan *domain.WorkflowPlan, state *domain.ExecutionState, choice string) error {
	state.RetryCounts[state.CurrentNodeID] = 0
	state.History = append(state.History, domain.ExecutionLogEntry{
		NodeID:    state.CurrentNodeID,
		EnteredAt: e.now().UTC(),
		Outcome:   domain.OutcomeResubmitted,
	})
	state.Escalation = nil
	state.Status = domain.StatusRunning
	return nil
}

// forceOutcome routes the escalated node as if its executor had
// returned the operator-supplied outcome, without invoking it.
func forceOutcome(ctx context.Context, e *Engine, plan *domain.WorkflowPlan, state *domain.ExecutionState, choice string) error {
	outcome := strings.TrimPrefix(choice, escalationForcePrefix)
	if outcome == "" {
		return fmt.Errorf("escalation choice %q carries no outcome", choice)
	}

	node, ok := plan.Node(state.CurrentNodeID)
	if !ok {
		return fmt.Errorf("escalated node %q missing from plan %s@%s", state.CurrentNodeID, plan.ID, plan.Version)
	}

	state.Escalation = nil
	state.Status = domain.StatusRunning

	entry := domain.ExecutionLogEntry{
		NodeID:       node.ID,
		EnteredAt:    e.now().UTC(),
		Outcome:      outcome,
		RetryAttempt: state.RetryCounts[node.ID],
	}

	if node.Terminal() {
		state.TerminalOutcome = e.mapper.Map(plan, outcome)
		state.Status = domain.StatusCompleted
		now := e.now().UTC()
		state.CompletedAt = &now
		state.History = append(state.History, entry)
		return nil
	}

	edge, err := e.router.SelectEdge(plan, node, outcome, state.Context)
	if err != nil {
		return err
	}
	entry.EdgeTaken = edge.To
	state.History = append(state.History, entry)
	state.CurrentNodeID = edge.To
	return nil
}

// abandonFromEscalation terminates the execution as Failed, keeping
// the full history queryable.
func abandonFromEscalation(ctx context.Context, e *Engine, plan *domain.WorkflowPlan, state *domain.ExecutionState, choice string) error {
	e.markAbandoned(state)
	return nil
}
