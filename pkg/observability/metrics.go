package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quillflow/quillflow/pkg/domain"
)

// Metrics holds the engine's Prometheus collectors. Wire it into the
// engine through Hooks and register it on a prometheus.Registerer.
type Metrics struct {
	executionsStarted *prometheus.CounterVec
	executionsEnded   *prometheus.CounterVec
	escalations       *prometheus.CounterVec
	nodeVisits        *prometheus.CounterVec
	nodeDuration      *prometheus.HistogramVec
	nodeRetries       *prometheus.CounterVec
}

// NewMetrics creates the collector set.
func NewMetrics() *Metrics {
	return &Metrics{
		executionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quillflow_executions_started_total",
			Help: "Executions started, by plan",
		}, []string{"plan_id"}),
		executionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quillflow_executions_ended_total",
			Help: "Executions reaching a terminal or paused status, by plan and status",
		}, []string{"plan_id", "status"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quillflow_escalations_total",
			Help: "Circuit-breaker escalations, by plan and node",
		}, []string{"plan_id", "node_id"}),
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quillflow_node_visits_total",
			Help: "Node executor invocations, by plan, node, and type",
		}, []string{"plan_id", "node_id", "node_type"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "quillflow_node_duration_seconds",
			Help: "Duration of node executor invocations",
		}, []string{"plan_id", "node_type"}),
		nodeRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quillflow_node_retries_total",
			Help: "Retried node attempts, by plan and node",
		}, []string{"plan_id", "node_id"}),
	}
}

// Register registers all collectors on reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.executionsStarted,
		m.executionsEnded,
		m.escalations,
		m.nodeVisits,
		m.nodeDuration,
		m.nodeRetries,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Hooks returns lifecycle hooks feeding the collectors. Chain them with
// any host-provided hooks before handing them to the engine.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(e.PlanID, e.NodeID, e.NodeType).Inc()
			if e.RetryAttempt > 0 {
				m.nodeRetries.WithLabelValues(e.PlanID, e.NodeID).Inc()
			}
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			m.nodeDuration.WithLabelValues(e.PlanID, e.NodeType).Observe(e.Duration.Seconds())
		},
		OnEscalation: func(ctx context.Context, e *domain.EscalationEvent) {
			m.escalations.WithLabelValues(e.PlanID, e.NodeID).Inc()
		},
		OnExecutionEnd: func(ctx context.Context, e *domain.ExecutionEvent) {
			m.executionsEnded.WithLabelValues(e.PlanID, string(e.Status)).Inc()
		},
	}
}

// ExecutionStarted records a start; call it next to StartExecution
// since the engine has no dedicated start hook.
func (m *Metrics) ExecutionStarted(planID string) {
	m.executionsStarted.WithLabelValues(planID).Inc()
}

// Chain merges hook sets; every non-nil hook fires in order.
func Chain(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			for _, h := range hooks {
				h.EmitNodeEnter(ctx, e)
			}
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			for _, h := range hooks {
				h.EmitNodeLeave(ctx, e)
			}
		},
		OnEscalation: func(ctx context.Context, e *domain.EscalationEvent) {
			for _, h := range hooks {
				h.EmitEscalation(ctx, e)
			}
		},
		OnExecutionEnd: func(ctx context.Context, e *domain.ExecutionEvent) {
			for _, h := range hooks {
				h.EmitExecutionEnd(ctx, e)
			}
		},
	}
}
