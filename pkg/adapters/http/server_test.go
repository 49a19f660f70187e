package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillflow/quillflow"
	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/plan"
)

const intakeYAML = `
id: intake
version: v1
entry_node_id: classify
outcome_map:
  done: stabilized
nodes:
  - id: classify
    type: gate
    required_inputs: [topic]
    executor_config:
      rules:
        - outcome: in_scope
          requires: [topic]
  - id: summarize
    type: task
    executor_config:
      generator: summarizer
      output_key: summary
  - id: done
    type: end
edges:
  - from: classify
    to: summarize
    match_outcome: in_scope
  - from: classify
    to: done
  - from: summarize
    to: done
`

const flakyYAML = `
id: flaky
version: v1
entry_node_id: generate
nodes:
  - id: generate
    type: task
    max_retries: 1
    executor_config:
      generator: broken
  - id: done
    type: end
edges:
  - from: generate
    to: done
`

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	source := plan.NewMemorySource()
	source.Put("intake", "v1", []byte(intakeYAML))
	source.Put("flaky", "v1", []byte(flakyYAML))

	engine := quillflow.New(source,
		quillflow.WithGenerator("summarizer", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
			return "text", nil
		}),
		quillflow.WithGenerator("broken", func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error) {
			return nil, errors.New("backend down")
		}),
	)
	return NewHandler(engine, nil)
}

func do(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServer_ExecutionLifecycle(t *testing.T) {
	handler := newTestServer(t)

	rec := do(t, handler, http.MethodPost, "/executions", map[string]any{
		"plan_id":        "intake",
		"plan_version":   "v1",
		"initial_inputs": map[string]any{"topic": "pricing"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	started := decode[statusResponse](t, rec)
	require.NotEmpty(t, started.ExecutionID)
	assert.Equal(t, domain.StatusRunning, started.Status)

	rec = do(t, handler, http.MethodPost, "/executions/"+started.ExecutionID+"/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusCompleted, decode[statusResponse](t, rec).Status)

	rec = do(t, handler, http.MethodGet, "/executions/"+started.ExecutionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[domain.ExecutionState](t, rec)
	assert.Equal(t, "stabilized", state.TerminalOutcome)
	assert.Len(t, state.History, 3)

	rec = do(t, handler, http.MethodGet, "/executions?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.ExecutionState](t, rec), 1)
}

func TestServer_SingleStep(t *testing.T) {
	handler := newTestServer(t)

	started := decode[statusResponse](t, do(t, handler, http.MethodPost, "/executions", map[string]any{
		"plan_id":        "intake",
		"plan_version":   "v1",
		"initial_inputs": map[string]any{"topic": "pricing"},
	}))

	rec := do(t, handler, http.MethodPost, "/executions/"+started.ExecutionID+"/step", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusRunning, decode[statusResponse](t, rec).Status)

	state := decode[domain.ExecutionState](t, do(t, handler, http.MethodGet, "/executions/"+started.ExecutionID, nil))
	assert.Equal(t, "summarize", state.CurrentNodeID)
}

func TestServer_EscalationFlow(t *testing.T) {
	handler := newTestServer(t)

	started := decode[statusResponse](t, do(t, handler, http.MethodPost, "/executions", map[string]any{
		"plan_id":      "flaky",
		"plan_version": "v1",
	}))

	rec := do(t, handler, http.MethodPost, "/executions/"+started.ExecutionID+"/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, domain.StatusEscalated, decode[statusResponse](t, rec).Status)

	// Stepping an escalated execution conflicts.
	rec = do(t, handler, http.MethodPost, "/executions/"+started.ExecutionID+"/step", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, handler, http.MethodPost, "/executions/"+started.ExecutionID+"/escalation", map[string]any{
		"choice": "force:generated",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, handler, http.MethodPost, "/executions/"+started.ExecutionID+"/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusCompleted, decode[statusResponse](t, rec).Status)
}

func TestServer_Abandon(t *testing.T) {
	handler := newTestServer(t)

	started := decode[statusResponse](t, do(t, handler, http.MethodPost, "/executions", map[string]any{
		"plan_id":        "intake",
		"plan_version":   "v1",
		"initial_inputs": map[string]any{"topic": "x"},
	}))

	rec := do(t, handler, http.MethodPost, "/executions/"+started.ExecutionID+"/abandon", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusFailed, decode[statusResponse](t, rec).Status)
}

func TestServer_ErrorMapping(t *testing.T) {
	handler := newTestServer(t)

	t.Run("UnknownExecutionIs404", func(t *testing.T) {
		rec := do(t, handler, http.MethodGet, "/executions/ghost", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("UnknownPlanIs404", func(t *testing.T) {
		rec := do(t, handler, http.MethodPost, "/executions", map[string]any{
			"plan_id": "ghost", "plan_version": "v1",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("MissingInputsIs400", func(t *testing.T) {
		rec := do(t, handler, http.MethodPost, "/executions", map[string]any{
			"plan_id": "intake", "plan_version": "v1",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[errorResponse](t, rec)
		assert.Contains(t, resp.Error, "topic")
	})

	t.Run("InputWhileRunningIs409", func(t *testing.T) {
		started := decode[statusResponse](t, do(t, handler, http.MethodPost, "/executions", map[string]any{
			"plan_id":        "intake",
			"plan_version":   "v1",
			"initial_inputs": map[string]any{"topic": "x"},
		}))
		rec := do(t, handler, http.MethodPost, "/executions/"+started.ExecutionID+"/input", map[string]any{
			"answer": "y",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("MalformedBodyIs400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/executions", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Plans(t *testing.T) {
	handler := newTestServer(t)

	rec := do(t, handler, http.MethodGet, "/plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	refs := decode[[]map[string]string](t, rec)
	assert.Len(t, refs, 2)

	rec = do(t, handler, http.MethodGet, "/plans/intake/v1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[domain.WorkflowPlan](t, rec)
	assert.Equal(t, "classify", p.EntryNodeID)

	rec = do(t, handler, http.MethodGet, "/plans/ghost/v1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
