package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillflow/quillflow/pkg/domain"
)

func TestMetrics_Hooks(t *testing.T) {
	ctx := context.Background()
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	hooks := m.Hooks()
	m.ExecutionStarted("intake")

	hooks.EmitNodeEnter(ctx, &domain.NodeEvent{PlanID: "intake", NodeID: "classify", NodeType: "gate"})
	hooks.EmitNodeEnter(ctx, &domain.NodeEvent{PlanID: "intake", NodeID: "classify", NodeType: "gate", RetryAttempt: 1})
	hooks.EmitNodeLeave(ctx, &domain.NodeEvent{PlanID: "intake", NodeType: "gate", Duration: 50 * time.Millisecond})
	hooks.EmitEscalation(ctx, &domain.EscalationEvent{PlanID: "intake", NodeID: "classify", RetryCount: 3})
	hooks.EmitExecutionEnd(ctx, &domain.ExecutionEvent{PlanID: "intake", Status: domain.StatusCompleted})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.executionsStarted.WithLabelValues("intake")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.nodeVisits.WithLabelValues("intake", "classify", "gate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.nodeRetries.WithLabelValues("intake", "classify")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.escalations.WithLabelValues("intake", "classify")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.executionsEnded.WithLabelValues("intake", "completed")))
}

func TestMetrics_RegisterTwiceFails(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg))
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	var order []string

	chained := Chain(
		domain.LifecycleHooks{
			OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) { order = append(order, "first") },
		},
		domain.LifecycleHooks{}, // all nil, must be skipped safely
		domain.LifecycleHooks{
			OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) { order = append(order, "second") },
			OnExecutionEnd: func(ctx context.Context, e *domain.ExecutionEvent) {
				order = append(order, "end")
			},
		},
	)

	chained.EmitNodeEnter(ctx, &domain.NodeEvent{})
	chained.EmitExecutionEnd(ctx, &domain.ExecutionEvent{})

	assert.Equal(t, []string{"first", "second", "end"}, order)
}
