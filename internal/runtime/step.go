package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/ports"
)

// ExecuteStep executes exactly the current node once: one executor
// invocation, one routing decision. The updated state is persisted
// before the call returns; a failed save leaves the previously
// persisted state authoritative.
func (e *Engine) ExecuteStep(ctx context.Context, executionID string) (domain.ExecutionStatus, error) {
	var status domain.ExecutionStatus
	err := e.sessions.WithLock(ctx, executionID, func(ctx context.Context) error {
		state, err := e.store.Load(ctx, executionID)
		if err != nil {
			return err
		}
		if state.Status != domain.StatusRunning {
			return &domain.InvalidStateTransitionError{
				ExecutionID: executionID,
				Status:      state.Status,
				Operation:   "execute step",
			}
		}
		if err := e.step(ctx, state); err != nil {
			return err
		}
		status = state.Status
		return nil
	})
	return status, err
}

// RunToCompletionOrPause repeatedly executes steps until the status
// leaves Running: AwaitingInput, Escalated, Completed, or Failed. This
// is the single suspension point of the scheduling model.
func (e *Engine) RunToCompletionOrPause(ctx context.Context, executionID string) (domain.ExecutionStatus, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		status, err := e.ExecuteStep(ctx, executionID)
		if err != nil {
			return "", err
		}
		if status != domain.StatusRunning {
			return status, nil
		}
	}
}

// step advances the loaded state by one node attempt. It mutates state
// in place and persists it; on persistence failure the in-memory
// mutation is discarded because every step reloads from the store.
func (e *Engine) step(ctx context.Context, state *domain.ExecutionState) error {
	plan, err := e.resolvePlan(state)
	if err != nil {
		return err
	}

	node, ok := plan.Node(state.CurrentNodeID)
	if !ok {
		return fmt.Errorf("execution %s references unknown node %q in plan %s@%s",
			state.ExecutionID, state.CurrentNodeID, plan.ID, plan.Version)
	}

	executor, err := e.binding.Resolve(node)
	if err != nil {
		return err
	}

	attempt := state.RetryCounts[node.ID]
	enteredAt := e.now().UTC()

	e.hooks.EmitNodeEnter(ctx, &domain.NodeEvent{
		ExecutionID:  state.ExecutionID,
		PlanID:       plan.ID,
		NodeID:       node.ID,
		NodeType:     node.Type,
		RetryAttempt: attempt,
	})

	result, execErr := executor.Execute(ctx, node, state.Context.Clone())
	duration := e.now().UTC().Sub(enteredAt)

	if execErr != nil {
		return e.handleFailure(ctx, plan, state, node, attempt, enteredAt, execErr)
	}

	e.hooks.EmitNodeLeave(ctx, &domain.NodeEvent{
		ExecutionID:  state.ExecutionID,
		PlanID:       plan.ID,
		NodeID:       node.ID,
		NodeType:     node.Type,
		Outcome:      result.Outcome,
		RetryAttempt: attempt,
		Duration:     duration,
	})

	if result.RequiresInput {
		return e.pause(ctx, state, node, result, enteredAt)
	}

	return e.advance(ctx, plan, state, node, result.Outcome, result.ContextPatch, attempt, enteredAt)
}

// handleFailure applies the circuit breaker: a raised executor error is
// retried until the per-node bound is exhausted, then the execution
// escalates and halts for an operator decision.
func (e *Engine) handleFailure(ctx context.Context, plan *domain.WorkflowPlan, state *domain.ExecutionState, node domain.Node, attempt int, enteredAt time.Time, execErr error) error {
	failure := &domain.ExecutorFailure{NodeID: node.ID, Attempt: attempt, Err: execErr}
	state.RetryCounts[node.ID] = attempt + 1

	if attempt+1 <= node.MaxRetries {
		e.logger.Warn("executor failed, will retry",
			"execution_id", state.ExecutionID,
			"node_id", node.ID,
			"attempt", attempt,
			"max_retries", node.MaxRetries,
			"err", execErr)
		// Status stays Running; the next step re-invokes the same node.
		return e.save(ctx, state)
	}

	state.Status = domain.StatusEscalated
	state.Escalation = &domain.EscalationDetail{
		NodeID:     node.ID,
		RetryCount: state.RetryCounts[node.ID],
		LastError:  execErr.Error(),
	}
	state.History = append(state.History, domain.ExecutionLogEntry{
		NodeID:       node.ID,
		EnteredAt:    enteredAt,
		Outcome:      domain.OutcomeEscalated,
		RetryAttempt: attempt,
		Error:        failure.Error(),
	})

	if err := e.save(ctx, state); err != nil {
		return err
	}

	e.logger.Error("execution escalated",
		"execution_id", state.ExecutionID,
		"node_id", node.ID,
		"retries", state.RetryCounts[node.ID],
		"err", execErr)

	e.hooks.EmitEscalation(ctx, &domain.EscalationEvent{
		ExecutionID: state.ExecutionID,
		PlanID:      plan.ID,
		NodeID:      node.ID,
		RetryCount:  state.RetryCounts[node.ID],
		LastError:   execErr.Error(),
	})
	return nil
}

// pause suspends the execution until the user answers. The current
// node does not change; its next invocation sees the merged answer.
func (e *Engine) pause(ctx context.Context, state *domain.ExecutionState, node domain.Node, result ports.NodeResult, enteredAt time.Time) error {
	prompt := result.InputPrompt
	if prompt == nil {
		prompt = &domain.InputRequest{NodeID: node.ID}
	}
	prompt.NodeID = node.ID

	state.Context = state.Context.Merged(result.ContextPatch)
	state.Status = domain.StatusAwaitingInput
	state.PendingInput = prompt
	state.History = append(state.History, domain.ExecutionLogEntry{
		NodeID:       node.ID,
		EnteredAt:    enteredAt,
		Outcome:      domain.OutcomeAwaitingInput,
		ContextPatch: result.ContextPatch,
	})
	return e.save(ctx, state)
}

// advance routes the node's outcome, appends the audit entry, and
// moves the execution to the next node or a terminal status.
func (e *Engine) advance(ctx context.Context, plan *domain.WorkflowPlan, state *domain.ExecutionState, node domain.Node, outcome string, patch map[string]any, attempt int, enteredAt time.Time) error {
	state.Context = state.Context.Merged(patch)

	entry := domain.ExecutionLogEntry{
		NodeID:       node.ID,
		EnteredAt:    enteredAt,
		Outcome:      outcome,
		RetryAttempt: attempt,
		ContextPatch: patch,
	}

	if node.Terminal() {
		state.TerminalOutcome = e.mapper.Map(plan, outcome)
		state.Status = domain.StatusCompleted
		state.PendingInput = nil
		now := e.now().UTC()
		state.CompletedAt = &now
		state.History = append(state.History, entry)

		if err := e.save(ctx, state); err != nil {
			return err
		}
		e.logger.Info("execution completed",
			"execution_id", state.ExecutionID,
			"terminal_outcome", state.TerminalOutcome)
		e.hooks.EmitExecutionEnd(ctx, &domain.ExecutionEvent{
			ExecutionID:     state.ExecutionID,
			PlanID:          plan.ID,
			Status:          state.Status,
			TerminalOutcome: state.TerminalOutcome,
		})
		return nil
	}

	edge, err := e.router.SelectEdge(plan, node, outcome, state.Context)
	if err != nil {
		return err
	}

	entry.EdgeTaken = edge.To
	state.History = append(state.History, entry)
	state.CurrentNodeID = edge.To
	state.PendingInput = nil

	return e.save(ctx, state)
}
