package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillflow/quillflow/pkg/adapters/memory"
	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/executors"
	"github.com/quillflow/quillflow/pkg/ports"
)

// stubResolver serves plans from a map, standing in for the registry.
type stubResolver map[domain.PlanKey]*domain.WorkflowPlan

func (r stubResolver) Resolve(planID, version string) (*domain.WorkflowPlan, error) {
	p, ok := r[domain.PlanKey{ID: planID, Version: version}]
	if !ok {
		return nil, domain.ErrPlanNotFound
	}
	return p, nil
}

// flakyStore wraps a StatePersistence and fails saves on demand.
type flakyStore struct {
	ports.StatePersistence
	failSaves bool
}

func (s *flakyStore) Save(ctx context.Context, state *domain.ExecutionState) error {
	if s.failSaves {
		return errors.New("disk full")
	}
	return s.StatePersistence.Save(ctx, state)
}

func intakePlan() *domain.WorkflowPlan {
	return &domain.WorkflowPlan{
		ID:          "intake",
		Version:     "v1",
		EntryNodeID: "classify",
		Nodes: map[string]domain.Node{
			"classify": {
				ID: "classify", Type: domain.NodeTypeGate,
				RequiredInputs: []string{"topic"},
				ExecutorConfig: map[string]any{
					"rules": []any{
						map[string]any{"outcome": "in_scope", "requires": []any{"topic"}},
					},
					"default_outcome": "out_of_scope",
				},
			},
			"summarize": {
				ID: "summarize", Type: domain.NodeTypeTask,
				ExecutorConfig: map[string]any{
					"generator":  "summarizer",
					"output_key": "summary",
				},
			},
			"done": {
				ID: "done", Type: domain.NodeTypeEnd,
				ExecutorConfig: map[string]any{"outcome": "done"},
			},
		},
		Edges: []domain.Edge{
			{From: "classify", To: "summarize", MatchOutcome: "in_scope", Priority: 1},
			{From: "classify", To: "done", MatchOutcome: "*", Priority: 2},
			{From: "summarize", To: "done", MatchOutcome: "*", Priority: 1},
		},
		OutcomeMap: map[string]string{"done": "stabilized"},
	}
}

func newTestEngine(t *testing.T, plans stubResolver, store ports.StatePersistence, generators *executors.Registry, opts ...Option) *Engine {
	t.Helper()
	if store == nil {
		store = memory.NewStore()
	}
	if generators == nil {
		generators = executors.NewRegistry()
	}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seq := 0
	opts = append([]Option{
		WithClock(func() time.Time { base = base.Add(time.Second); return base }),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("exec-%d", seq) }),
	}, opts...)
	return NewEngine(plans, executors.NewDefaultBinding(generators), store, opts...)
}

func TestEngine_HappyPath(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	generators := executors.NewRegistry()
	generators.Register("summarizer", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
		topic, _ := snapshot.Lookup("topic")
		return fmt.Sprintf("summary of %v", topic), nil
	})

	plans := stubResolver{{ID: "intake", Version: "v1"}: intakePlan()}
	engine := newTestEngine(t, plans, store, generators)

	id, err := engine.StartExecution(ctx, "intake", "v1", map[string]any{"topic": "onboarding"})
	require.NoError(t, err)
	require.Equal(t, "exec-1", id)

	status, err := engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)

	state, err := engine.GetExecutionStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "stabilized", state.TerminalOutcome)
	require.NotNil(t, state.CompletedAt)
	assert.Equal(t, "summary of onboarding", state.Context["summary"])

	require.Len(t, state.History, 3)
	assert.Equal(t, "classify", state.History[0].NodeID)
	assert.Equal(t, "in_scope", state.History[0].Outcome)
	assert.Equal(t, "summarize", state.History[0].EdgeTaken)
	assert.Equal(t, "summarize", state.History[1].NodeID)
	assert.Equal(t, "done", state.History[1].EdgeTaken)
	assert.Equal(t, "done", state.History[2].NodeID)
	assert.Empty(t, state.History[2].EdgeTaken)
}

func TestEngine_StartExecution_MissingInputs(t *testing.T) {
	engine := newTestEngine(t, stubResolver{{ID: "intake", Version: "v1"}: intakePlan()}, nil, nil)

	_, err := engine.StartExecution(context.Background(), "intake", "v1", nil)
	var missing *domain.MissingInputsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"topic"}, missing.Missing)

	// Empty values count as missing; they are never inferred.
	_, err = engine.StartExecution(context.Background(), "intake", "v1", map[string]any{"topic": ""})
	require.ErrorAs(t, err, &missing)
}

func TestEngine_StartExecution_UnknownPlan(t *testing.T) {
	engine := newTestEngine(t, stubResolver{}, nil, nil)
	_, err := engine.StartExecution(context.Background(), "ghost", "v1", nil)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func conciergePlan() *domain.WorkflowPlan {
	return &domain.WorkflowPlan{
		ID:          "brief",
		Version:     "v1",
		EntryNodeID: "intake",
		Nodes: map[string]domain.Node{
			"intake": {
				ID: "intake", Type: domain.NodeTypeConcierge,
				ExecutorConfig: map[string]any{
					"questions": []any{
						map[string]any{"id": "region", "prompt": "Which region?"},
						map[string]any{"id": "audience", "prompt": "Who reads this?"},
					},
				},
			},
			"done": {ID: "done", Type: domain.NodeTypeEnd},
		},
		Edges: []domain.Edge{
			{From: "intake", To: "done", MatchOutcome: "briefed", Priority: 1},
		},
	}
}

func TestEngine_PauseAndResume(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, stubResolver{{ID: "brief", Version: "v1"}: conciergePlan()}, nil, nil)

	id, err := engine.StartExecution(ctx, "brief", "v1", nil)
	require.NoError(t, err)

	status, err := engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingInput, status)

	state, err := engine.GetExecutionStatus(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, state.PendingInput)
	assert.Equal(t, "Which region?", state.PendingInput.Prompt)
	assert.Equal(t, "answers.region", state.PendingInput.Key)

	// A step cannot run while the execution waits for input.
	_, err = engine.ExecuteStep(ctx, id)
	assert.True(t, domain.IsInvalidStateTransition(err))

	status, err = engine.SubmitUserInput(ctx, id, map[string]any{"answer": "eu"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, status)

	// Second question pauses again.
	status, err = engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingInput, status)

	state, err = engine.GetExecutionStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Who reads this?", state.PendingInput.Prompt)

	_, err = engine.SubmitUserInput(ctx, id, map[string]any{"answer": "legal team"})
	require.NoError(t, err)

	status, err = engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)

	state, err = engine.GetExecutionStatus(ctx, id)
	require.NoError(t, err)
	region, ok := state.Context.Lookup("answers.region")
	require.True(t, ok)
	assert.Equal(t, "eu", region)
	audience, _ := state.Context.Lookup("answers.audience")
	assert.Equal(t, "legal team", audience)

	asked, _ := state.Context.Lookup("questions_asked")
	assert.Equal(t, []any{"region", "audience"}, asked)

	var outcomes []string
	for _, entry := range state.History {
		outcomes = append(outcomes, entry.Outcome)
	}
	assert.Equal(t, []string{
		domain.OutcomeAwaitingInput,
		domain.OutcomeInputReceived,
		domain.OutcomeAwaitingInput,
		domain.OutcomeInputReceived,
		"briefed",
		"done",
	}, outcomes)
}

func TestEngine_SubmitUserInput_OnlyWhileAwaiting(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, stubResolver{{ID: "intake", Version: "v1"}: intakePlan()}, nil, nil)

	id, err := engine.StartExecution(ctx, "intake", "v1", map[string]any{"topic": "x"})
	require.NoError(t, err)

	_, err = engine.SubmitUserInput(ctx, id, map[string]any{"answer": "y"})
	assert.True(t, domain.IsInvalidStateTransition(err))
}

func escalationPlan(maxRetries int) *domain.WorkflowPlan {
	return &domain.WorkflowPlan{
		ID:          "draft",
		Version:     "v1",
		EntryNodeID: "generate",
		Nodes: map[string]domain.Node{
			"generate": {
				ID: "generate", Type: domain.NodeTypeTask,
				MaxRetries: maxRetries,
				ExecutorConfig: map[string]any{
					"generator":  "flaky",
					"output_key": "draft",
				},
			},
			"done": {ID: "done", Type: domain.NodeTypeEnd},
		},
		Edges: []domain.Edge{
			{From: "generate", To: "done", MatchOutcome: "*", Priority: 1},
		},
	}
}

func TestEngine_RetryThenEscalate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	generators := executors.NewRegistry()
	calls := 0
	generators.Register("flaky", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
		calls++
		return nil, errors.New("backend unavailable")
	})

	engine := newTestEngine(t, stubResolver{{ID: "draft", Version: "v1"}: escalationPlan(2)}, store, generators)

	id, err := engine.StartExecution(ctx, "draft", "v1", nil)
	require.NoError(t, err)

	status, err := engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEscalated, status)

	// max_retries=2 means the initial attempt plus two retries.
	assert.Equal(t, 3, calls)

	state, err := engine.GetExecutionStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, state.RetryCounts["generate"])
	require.NotNil(t, state.Escalation)
	assert.Equal(t, "generate", state.Escalation.NodeID)
	assert.Equal(t, 3, state.Escalation.RetryCount)
	assert.Contains(t, state.Escalation.LastError, "backend unavailable")

	last := state.History[len(state.History)-1]
	assert.Equal(t, domain.OutcomeEscalated, last.Outcome)
	assert.Contains(t, last.Error, "backend unavailable")

	// Escalated executions cannot step.
	_, err = engine.ExecuteStep(ctx, id)
	assert.True(t, domain.IsInvalidStateTransition(err))
}

func TestEngine_ZeroRetriesEscalatesImmediately(t *testing.T) {
	ctx := context.Background()
	generators := executors.NewRegistry()
	calls := 0
	generators.Register("flaky", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
		calls++
		return nil, errors.New("boom")
	})
	engine := newTestEngine(t, stubResolver{{ID: "draft", Version: "v1"}: escalationPlan(0)}, nil, generators)

	id, err := engine.StartExecution(ctx, "draft", "v1", nil)
	require.NoError(t, err)

	status, err := engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEscalated, status)
	assert.Equal(t, 1, calls)
}

func TestEngine_EscalationChoices(t *testing.T) {
	ctx := context.Background()

	escalate := func(t *testing.T, generators *executors.Registry) (*Engine, string) {
		t.Helper()
		engine := newTestEngine(t, stubResolver{{ID: "draft", Version: "v1"}: escalationPlan(1)}, nil, generators)
		id, err := engine.StartExecution(ctx, "draft", "v1", nil)
		require.NoError(t, err)
		status, err := engine.RunToCompletionOrPause(ctx, id)
		require.NoError(t, err)
		require.Equal(t, domain.StatusEscalated, status)
		return engine, id
	}

	t.Run("Abandon", func(t *testing.T) {
		generators := executors.NewRegistry()
		generators.Register("flaky", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
			return nil, errors.New("boom")
		})
		engine, id := escalate(t, generators)

		status, err := engine.HandleEscalationChoice(ctx, id, EscalationAbandon)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, status)

		state, err := engine.GetExecutionStatus(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, state.CompletedAt)
		assert.Equal(t, domain.OutcomeAbandoned, state.History[len(state.History)-1].Outcome)
	})

	t.Run("Resubmit", func(t *testing.T) {
		generators := executors.NewRegistry()
		calls := 0
		generators.Register("flaky", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
			calls++
			if calls <= 2 {
				return nil, errors.New("boom")
			}
			return "recovered draft", nil
		})
		engine, id := escalate(t, generators)

		status, err := engine.HandleEscalationChoice(ctx, id, EscalationResubmit)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRunning, status)

		status, err = engine.RunToCompletionOrPause(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, status)

		state, err := engine.GetExecutionStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "recovered draft", state.Context["draft"])
		assert.Nil(t, state.Escalation)
	})

	t.Run("ForceOutcome", func(t *testing.T) {
		generators := executors.NewRegistry()
		generators.Register("flaky", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
			return nil, errors.New("boom")
		})
		engine, id := escalate(t, generators)

		status, err := engine.HandleEscalationChoice(ctx, id, "force:generated")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRunning, status)

		state, err := engine.GetExecutionStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "done", state.CurrentNodeID)

		status, err = engine.RunToCompletionOrPause(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, status)
	})

	t.Run("UnknownChoice", func(t *testing.T) {
		generators := executors.NewRegistry()
		generators.Register("flaky", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
			return nil, errors.New("boom")
		})
		engine, id := escalate(t, generators)

		_, err := engine.HandleEscalationChoice(ctx, id, "shrug")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown escalation choice")
	})

	t.Run("CustomHandler", func(t *testing.T) {
		generators := executors.NewRegistry()
		generators.Register("flaky", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
			return nil, errors.New("boom")
		})
		engine := newTestEngine(t, stubResolver{{ID: "draft", Version: "v1"}: escalationPlan(0)}, nil, generators,
			WithEscalationHandler("defer", func(ctx context.Context, e *Engine, plan *domain.WorkflowPlan, state *domain.ExecutionState, choice string) error {
				state.Context["deferred"] = true
				state.Escalation = nil
				state.Status = domain.StatusFailed
				return nil
			}))

		id, err := engine.StartExecution(ctx, "draft", "v1", nil)
		require.NoError(t, err)
		_, err = engine.RunToCompletionOrPause(ctx, id)
		require.NoError(t, err)

		status, err := engine.HandleEscalationChoice(ctx, id, "defer")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFailed, status)
	})

	t.Run("OnlyWhileEscalated", func(t *testing.T) {
		engine := newTestEngine(t, stubResolver{{ID: "intake", Version: "v1"}: intakePlan()}, nil, nil)
		id, err := engine.StartExecution(ctx, "intake", "v1", map[string]any{"topic": "x"})
		require.NoError(t, err)

		_, err = engine.HandleEscalationChoice(ctx, id, EscalationAbandon)
		assert.True(t, domain.IsInvalidStateTransition(err))
	})
}

func TestEngine_AbandonExecution(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, stubResolver{{ID: "brief", Version: "v1"}: conciergePlan()}, nil, nil)

	id, err := engine.StartExecution(ctx, "brief", "v1", nil)
	require.NoError(t, err)
	_, err = engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)

	status, err := engine.AbandonExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, status)

	state, err := engine.GetExecutionStatus(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, state.PendingInput)
	assert.NotNil(t, state.CompletedAt)

	// Terminal executions cannot be abandoned again.
	_, err = engine.AbandonExecution(ctx, id)
	assert.True(t, domain.IsInvalidStateTransition(err))
}

func TestEngine_GetExecutionStatus_NotFound(t *testing.T) {
	engine := newTestEngine(t, stubResolver{}, nil, nil)
	_, err := engine.GetExecutionStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrExecutionNotFound)
}

func TestEngine_ListExecutions(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, stubResolver{
		{ID: "intake", Version: "v1"}: intakePlan(),
		{ID: "brief", Version: "v1"}:  conciergePlan(),
	}, nil, nil)

	id1, err := engine.StartExecution(ctx, "intake", "v1", map[string]any{"topic": "a"})
	require.NoError(t, err)
	_, err = engine.StartExecution(ctx, "brief", "v1", nil)
	require.NoError(t, err)
	_, err = engine.RunToCompletionOrPause(ctx, id1)
	require.NoError(t, err)

	all, err := engine.ListExecutions(ctx, domain.ExecutionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := engine.ListExecutions(ctx, domain.ExecutionFilter{Status: domain.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, id1, completed[0].ExecutionID)

	briefs, err := engine.ListExecutions(ctx, domain.ExecutionFilter{PlanID: "brief"})
	require.NoError(t, err)
	assert.Len(t, briefs, 1)
}

func TestEngine_PersistenceFailureDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{StatePersistence: memory.NewStore()}
	generators := executors.NewRegistry()
	generators.Register("summarizer", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
		return "text", nil
	})

	engine := newTestEngine(t, stubResolver{{ID: "intake", Version: "v1"}: intakePlan()}, store, generators)

	id, err := engine.StartExecution(ctx, "intake", "v1", map[string]any{"topic": "x"})
	require.NoError(t, err)

	store.failSaves = true
	_, err = engine.ExecuteStep(ctx, id)
	require.Error(t, err)
	assert.True(t, domain.IsPersistenceError(err))

	// The previously persisted state stays authoritative.
	store.failSaves = false
	state, err := engine.GetExecutionStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "classify", state.CurrentNodeID)
	assert.Empty(t, state.History)

	// The execution resumes cleanly from it.
	status, err := engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)
}

func TestEngine_LifecycleHooks(t *testing.T) {
	ctx := context.Background()
	var entered, left []string
	var ended int
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, ev *domain.NodeEvent) { entered = append(entered, ev.NodeID) },
		OnNodeLeave: func(ctx context.Context, ev *domain.NodeEvent) { left = append(left, ev.NodeID) },
		OnExecutionEnd: func(ctx context.Context, ev *domain.ExecutionEvent) {
			ended++
			assert.Equal(t, "stabilized", ev.TerminalOutcome)
		},
	}

	generators := executors.NewRegistry()
	generators.Register("summarizer", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
		return "text", nil
	})
	engine := newTestEngine(t, stubResolver{{ID: "intake", Version: "v1"}: intakePlan()}, nil, generators,
		WithHooks(hooks))

	id, err := engine.StartExecution(ctx, "intake", "v1", map[string]any{"topic": "x"})
	require.NoError(t, err)
	_, err = engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, []string{"classify", "summarize", "done"}, entered)
	assert.Equal(t, []string{"classify", "summarize", "done"}, left)
	assert.Equal(t, 1, ended)
}

func TestEngine_Determinism(t *testing.T) {
	ctx := context.Background()

	run := func() *domain.ExecutionState {
		generators := executors.NewRegistry()
		generators.Register("summarizer", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
			return "text", nil
		})
		engine := newTestEngine(t, stubResolver{{ID: "intake", Version: "v1"}: intakePlan()}, nil, generators)
		id, err := engine.StartExecution(ctx, "intake", "v1", map[string]any{"topic": "x"})
		require.NoError(t, err)
		_, err = engine.RunToCompletionOrPause(ctx, id)
		require.NoError(t, err)
		state, err := engine.GetExecutionStatus(ctx, id)
		require.NoError(t, err)
		return state
	}

	a, b := run(), run()
	require.Len(t, b.History, len(a.History))
	for i := range a.History {
		assert.Equal(t, a.History[i].NodeID, b.History[i].NodeID)
		assert.Equal(t, a.History[i].Outcome, b.History[i].Outcome)
		assert.Equal(t, a.History[i].EdgeTaken, b.History[i].EdgeTaken)
	}
	assert.Equal(t, a.TerminalOutcome, b.TerminalOutcome)
}
