package quillflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillflow/quillflow"
	"github.com/quillflow/quillflow/internal/runtime"
	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/observability"
	"github.com/quillflow/quillflow/pkg/plan"
	"github.com/quillflow/quillflow/pkg/ports"
)

const onboardingYAML = `
id: onboarding
version: v1
entry_node_id: intake
outcome_map:
  done: stabilized
nodes:
  - id: intake
    type: concierge
    executor_config:
      questions:
        - id: region
          prompt: Which region does this document target?
  - id: draft
    type: task
    executor_config:
      generator: drafter
      output_key: document
  - id: review
    type: qa
    executor_config:
      checks:
        - key: document
          min_length: 5
  - id: done
    type: end
edges:
  - from: intake
    to: draft
    match_outcome: briefed
  - from: draft
    to: review
  - from: review
    to: draft
    match_outcome: fail
  - from: review
    to: done
    match_outcome: pass
`

func newFacade(t *testing.T, opts ...quillflow.Option) *quillflow.Engine {
	t.Helper()
	source := plan.NewMemorySource()
	source.Put("onboarding", "v1", []byte(onboardingYAML))

	opts = append([]quillflow.Option{
		quillflow.WithGenerator("drafter", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
			region, _ := snapshot.Lookup("answers.region")
			return "document for " + region.(string), nil
		}),
	}, opts...)
	return quillflow.New(source, opts...)
}

func TestEngine_FullWorkflow(t *testing.T) {
	ctx := context.Background()
	engine := newFacade(t)

	id, err := engine.StartExecution(ctx, "onboarding", "v1", nil)
	require.NoError(t, err)

	status, err := engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingInput, status)

	state, err := engine.GetExecutionStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Which region does this document target?", state.PendingInput.Prompt)

	_, err = engine.SubmitUserInput(ctx, id, map[string]any{"answer": "emea"})
	require.NoError(t, err)

	status, err = engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)

	state, err = engine.GetExecutionStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "stabilized", state.TerminalOutcome)
	assert.Equal(t, "document for emea", state.Context["document"])

	require.NoError(t, engine.VerifyReplay(ctx, id))
}

func TestEngine_CustomExecutor(t *testing.T) {
	ctx := context.Background()
	engine := newFacade(t, quillflow.WithExecutor(domain.NodeTypeQA,
		ports.ExecutorFunc(func(ctx context.Context, node domain.Node, snapshot domain.Context) (ports.NodeResult, error) {
			return ports.NodeResult{Outcome: "pass"}, nil
		})))

	id, err := engine.StartExecution(ctx, "onboarding", "v1", nil)
	require.NoError(t, err)
	_, err = engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	_, err = engine.SubmitUserInput(ctx, id, map[string]any{"answer": "emea"})
	require.NoError(t, err)

	status, err := engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)
}

func TestEngine_MetricsWiring(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewMetrics()
	engine := newFacade(t, quillflow.WithMetrics(metrics))

	id, err := engine.StartExecution(ctx, "onboarding", "v1", nil)
	require.NoError(t, err)
	status, err := engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingInput, status)
}

func TestEngine_CustomEscalationHandler(t *testing.T) {
	ctx := context.Background()
	source := plan.NewMemorySource()
	source.Put("fragile", "v1", []byte(`
id: fragile
version: v1
entry_node_id: generate
nodes:
  - id: generate
    type: task
    executor_config:
      generator: broken
  - id: done
    type: end
edges:
  - from: generate
    to: done
`))

	engine := quillflow.New(source,
		quillflow.WithGenerator("broken", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
			return nil, errors.New("always down")
		}),
		quillflow.WithEscalationHandler("park", func(ctx context.Context, e *runtime.Engine, p *domain.WorkflowPlan, state *domain.ExecutionState, choice string) error {
			state.Status = domain.StatusFailed
			state.Escalation = nil
			return nil
		}),
	)

	id, err := engine.StartExecution(ctx, "fragile", "v1", nil)
	require.NoError(t, err)
	status, err := engine.RunToCompletionOrPause(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusEscalated, status)

	status, err = engine.HandleEscalationChoice(ctx, id, "park")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, status)
}
