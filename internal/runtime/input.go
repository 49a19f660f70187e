package runtime

import (
	"context"

	"github.com/quillflow/quillflow/pkg/domain"
)

// SubmitUserInput merges the user's answer into the execution context
// and transitions AwaitingInput back to Running. It does not itself
// execute a step; the caller resumes with RunToCompletionOrPause.
//
// If the pending input request named a context key, a bare "answer"
// value is additionally stored under that key, which is how concierge
// answers land in answers.<question_id>.
func (e *Engine) SubmitUserInput(ctx context.Context, executionID string, input map[string]any) (domain.ExecutionStatus, error) {
	var status domain.ExecutionStatus
	err := e.sessions.WithLock(ctx, executionID, func(ctx context.Context) error {
		state, err := e.store.Load(ctx, executionID)
		if err != nil {
			return err
		}
		if state.Status != domain.StatusAwaitingInput {
			return &domain.InvalidStateTransitionError{
				ExecutionID: executionID,
				Status:      state.Status,
				Operation:   "submit user input",
			}
		}

		patch := domain.Context{}.Merged(input)
		if state.PendingInput != nil && state.PendingInput.Key != "" {
			if answer, ok := input["answer"]; ok {
				patch.SetPath(state.PendingInput.Key, answer)
			}
		}

		state.Context = state.Context.Merged(patch)
		state.History = append(state.History, domain.ExecutionLogEntry{
			NodeID:       state.CurrentNodeID,
			EnteredAt:    e.now().UTC(),
			Outcome:      domain.OutcomeInputReceived,
			ContextPatch: patch,
		})
		state.Status = domain.StatusRunning
		state.PendingInput = nil

		if err := e.save(ctx, state); err != nil {
			return err
		}
		status = state.Status
		return nil
	})
	return status, err
}
