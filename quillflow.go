// Package quillflow is a document interaction workflow engine: a
// graph-based runtime that advances a document-producing process
// through typed nodes (task, gate, concierge, qa, end) connected by
// conditionally evaluated edges, with durable resumable executions,
// retry/escalation policy, and pause/resume for human-in-the-loop
// steps.
package quillflow

import (
	"context"
	"log/slog"

	"github.com/quillflow/quillflow/internal/logging"
	"github.com/quillflow/quillflow/internal/runtime"
	"github.com/quillflow/quillflow/pkg/adapters/memory"
	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/executors"
	"github.com/quillflow/quillflow/pkg/observability"
	"github.com/quillflow/quillflow/pkg/plan"
	"github.com/quillflow/quillflow/pkg/ports"
	"github.com/quillflow/quillflow/pkg/session"
)

// Version is the release version, overridable at build time with
// -ldflags "-X github.com/quillflow/quillflow.Version=...".
var Version = "0.3.0"

// Engine is the high-level entry point for the library. It wires the
// plan registry, the executor binding, persistence, and the internal
// plan executor behind one API, the same surface the HTTP and CLI
// adapters consume.
type Engine struct {
	registry   *plan.Registry
	generators *executors.Registry
	binding    *executors.Binding
	store      ports.StatePersistence
	locker     ports.ExecutionLocker
	metrics    *observability.Metrics
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	runtime    *runtime.Engine

	runtimeOpts []runtime.Option
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore injects the persistence backend. Default: in-memory.
func WithStore(store ports.StatePersistence) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker enables distributed execution locking for multi-replica
// deployments over shared persistence.
func WithLocker(locker ports.ExecutionLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHooks registers host lifecycle hooks alongside the built-in
// metric hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithMetrics attaches a Prometheus collector set.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithExecutor overrides the executor bound to a node type.
func WithExecutor(nodeType string, exec ports.NodeExecutor) Option {
	return func(e *Engine) {
		e.binding.Register(nodeType, exec)
	}
}

// WithExecutorKind binds an executor for a specific executor_config
// kind within a node type.
func WithExecutorKind(nodeType, kind string, exec ports.NodeExecutor) Option {
	return func(e *Engine) {
		e.binding.RegisterKind(nodeType, kind, exec)
	}
}

// WithGenerator registers a content-generation backend by name.
func WithGenerator(name string, fn executors.GenerationFunc) Option {
	return func(e *Engine) {
		e.generators.Register(name, fn)
	}
}

// WithEscalationHandler registers an operator escalation choice.
func WithEscalationHandler(choice string, h runtime.EscalationHandler) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithEscalationHandler(choice, h))
	}
}

// New creates an Engine over a plan source.
func New(source ports.PlanSource, opts ...Option) *Engine {
	e := &Engine{
		generators: executors.NewRegistry(),
		logger:     logging.NewNop(),
	}
	e.binding = executors.NewDefaultBinding(e.generators)
	e.registry = plan.NewRegistry(source)

	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = memory.NewStore()
	}

	hooks := e.hooks
	if e.metrics != nil {
		hooks = observability.Chain(e.metrics.Hooks(), hooks)
	}

	sessionOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(e.locker))
	}

	runtimeOpts := append([]runtime.Option{
		runtime.WithLogger(e.logger),
		runtime.WithHooks(hooks),
		runtime.WithSessionManager(session.NewManager(sessionOpts...)),
	}, e.runtimeOpts...)

	e.runtime = runtime.NewEngine(e.registry, e.binding, e.store, runtimeOpts...)
	return e
}

// StartExecution creates a new execution of (planID, version) and
// returns its ID. Initial inputs must cover the entry node's required
// keys; missing inputs fail explicitly, never inferred.
func (e *Engine) StartExecution(ctx context.Context, planID, version string, initialInputs map[string]any) (string, error) {
	id, err := e.runtime.StartExecution(ctx, planID, version, initialInputs)
	if err == nil && e.metrics != nil {
		e.metrics.ExecutionStarted(planID)
	}
	return id, err
}

// ExecuteStep executes exactly the current node once and persists the
// updated state.
func (e *Engine) ExecuteStep(ctx context.Context, executionID string) (domain.ExecutionStatus, error) {
	return e.runtime.ExecuteStep(ctx, executionID)
}

// RunToCompletionOrPause steps the execution until it leaves Running.
func (e *Engine) RunToCompletionOrPause(ctx context.Context, executionID string) (domain.ExecutionStatus, error) {
	return e.runtime.RunToCompletionOrPause(ctx, executionID)
}

// SubmitUserInput answers a pending input request and resumes the
// execution to Running without executing a step.
func (e *Engine) SubmitUserInput(ctx context.Context, executionID string, input map[string]any) (domain.ExecutionStatus, error) {
	return e.runtime.SubmitUserInput(ctx, executionID, input)
}

// HandleEscalationChoice applies an operator decision to an escalated
// execution.
func (e *Engine) HandleEscalationChoice(ctx context.Context, executionID, choice string) (domain.ExecutionStatus, error) {
	return e.runtime.HandleEscalationChoice(ctx, executionID, choice)
}

// AbandonExecution transitions any non-terminal execution to Failed.
func (e *Engine) AbandonExecution(ctx context.Context, executionID string) (domain.ExecutionStatus, error) {
	return e.runtime.AbandonExecution(ctx, executionID)
}

// GetExecutionStatus returns a copy of the persisted execution state.
func (e *Engine) GetExecutionStatus(ctx context.Context, executionID string) (*domain.ExecutionState, error) {
	return e.runtime.GetExecutionStatus(ctx, executionID)
}

// ListExecutions returns persisted executions matching the filter.
func (e *Engine) ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionState, error) {
	return e.runtime.ListExecutions(ctx, filter)
}

// ListPlans returns the plans the source can supply.
func (e *Engine) ListPlans() ([]ports.PlanRef, error) {
	return e.registry.List()
}

// DescribePlan resolves and returns a validated plan for inspection.
func (e *Engine) DescribePlan(planID, version string) (*domain.WorkflowPlan, error) {
	return e.registry.Describe(planID, version)
}

// InvalidatePlan drops a cached plan so the next resolve reloads it.
func (e *Engine) InvalidatePlan(planID, version string) {
	e.registry.Invalidate(planID, version)
}

// VerifyReplay re-derives every routing decision in an execution's
// persisted history against its plan and reports the first divergence.
// A clean replay proves the stored history fully explains the path.
func (e *Engine) VerifyReplay(ctx context.Context, executionID string) error {
	state, err := e.runtime.GetExecutionStatus(ctx, executionID)
	if err != nil {
		return err
	}
	p, err := e.registry.Resolve(state.PlanID, state.PlanVersion)
	if err != nil {
		return err
	}
	return e.runtime.ReplayHistory(p, state)
}
