package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillflow/quillflow/pkg/domain"
)

// RunStatePersistenceContract runs a suite of tests verifying that a
// StatePersistence implementation adheres to the port contract.
func RunStatePersistenceContract(t *testing.T, store StatePersistence) {
	ctx := context.Background()
	executionID := "contract-exec-" + time.Now().Format("20060102150405.000")

	plan := &domain.WorkflowPlan{
		ID:          "contract-plan",
		Version:     "1",
		EntryNodeID: "start",
		Nodes:       map[string]domain.Node{"start": {ID: "start", Type: domain.NodeTypeTask}},
	}

	t.Run("SaveAndLoad", func(t *testing.T) {
		state := domain.NewExecutionState(executionID, plan, domain.Context{"topic": "onboarding"}, time.Now().UTC())
		state.RetryCounts["start"] = 2
		state.History = append(state.History, domain.ExecutionLogEntry{
			NodeID:       "start",
			EnteredAt:    time.Now().UTC(),
			Outcome:      "generated",
			RetryAttempt: 0,
			EdgeTaken:    "done",
		})

		require.NoError(t, store.Save(ctx, state))

		loaded, err := store.Load(ctx, executionID)
		require.NoError(t, err)
		assert.Equal(t, state.ExecutionID, loaded.ExecutionID)
		assert.Equal(t, state.PlanID, loaded.PlanID)
		assert.Equal(t, state.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, domain.StatusRunning, loaded.Status)
		assert.Equal(t, 2, loaded.RetryCounts["start"])
		require.Len(t, loaded.History, 1)
		assert.Equal(t, "generated", loaded.History[0].Outcome)
		assert.Equal(t, "done", loaded.History[0].EdgeTaken)
		assert.Equal(t, "onboarding", loaded.Context["topic"])
	})

	t.Run("SaveIsolation", func(t *testing.T) {
		state := domain.NewExecutionState(executionID+"-iso", plan, domain.Context{}, time.Now().UTC())
		require.NoError(t, store.Save(ctx, state))

		// Mutating after save must not leak into the stored copy.
		state.Status = domain.StatusFailed
		state.Context["late"] = true

		loaded, err := store.Load(ctx, state.ExecutionID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRunning, loaded.Status)
		_, ok := loaded.Context["late"]
		assert.False(t, ok, "post-save mutation must not be visible")
	})

	t.Run("Overwrite", func(t *testing.T) {
		state := domain.NewExecutionState(executionID+"-ow", plan, domain.Context{}, time.Now().UTC())
		require.NoError(t, store.Save(ctx, state))

		state.Status = domain.StatusAwaitingInput
		state.PendingInput = &domain.InputRequest{NodeID: "start", Prompt: "region?", Key: "answers.region"}
		require.NoError(t, store.Save(ctx, state))

		loaded, err := store.Load(ctx, state.ExecutionID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAwaitingInput, loaded.Status)
		require.NotNil(t, loaded.PendingInput)
		assert.Equal(t, "region?", loaded.PendingInput.Prompt)
	})

	t.Run("LoadNonExistent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+executionID)
		assert.ErrorIs(t, err, domain.ErrExecutionNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1 := executionID + "-l1"
		id2 := executionID + "-l2"
		require.NoError(t, store.Save(ctx, domain.NewExecutionState(id1, plan, domain.Context{}, time.Now().UTC())))
		require.NoError(t, store.Save(ctx, domain.NewExecutionState(id2, plan, domain.Context{}, time.Now().UTC())))

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

// RunLockerContract verifies mutual exclusion and release semantics of
// an ExecutionLocker implementation.
func RunLockerContract(t *testing.T, locker ExecutionLocker) {
	ctx := context.Background()
	key := "contract-lock-" + time.Now().Format("20060102150405.000")

	t.Run("AcquireAndRelease", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, unlock)
		require.NoError(t, unlock(ctx))
	})

	t.Run("MutualExclusion", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, key)
		require.NoError(t, err)

		blocked := make(chan struct{})
		go func() {
			u2, err2 := locker.Lock(ctx, key)
			if err2 == nil {
				_ = u2(ctx)
			}
			close(blocked)
		}()

		select {
		case <-blocked:
			t.Fatal("second Lock acquired while first still held")
		case <-time.After(150 * time.Millisecond):
		}

		require.NoError(t, unlock(ctx))

		select {
		case <-blocked:
		case <-time.After(2 * time.Second):
			t.Fatal("second Lock did not acquire after release")
		}
	})
}
