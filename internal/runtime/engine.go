package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quillflow/quillflow/internal/logging"
	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/ports"
	"github.com/quillflow/quillflow/pkg/session"
)

// PlanResolver supplies validated plans to the engine. Implemented by
// the plan registry; kept as a local interface so the runtime does not
// depend on the registry's caching concerns.
type PlanResolver interface {
	Resolve(planID, version string) (*domain.WorkflowPlan, error)
}

// Engine is the plan executor: it drives a single execution forward one
// node at a time, applying circuit-breaker and escalation policy,
// invoking the bound executors and the edge router, and persisting
// state after every step.
//
// All mutating operations serialize per execution ID through the
// session manager; distinct executions share no mutable state except
// the persistence port.
type Engine struct {
	plans    PlanResolver
	binding  ports.ExecutorBinding
	store    ports.StatePersistence
	sessions *session.Manager
	router   *EdgeRouter
	mapper   *OutcomeMapper

	escalations map[string]EscalationHandler

	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithSessionManager replaces the default in-process session manager,
// typically to add a distributed locker.
func WithSessionManager(m *session.Manager) Option {
	return func(e *Engine) {
		e.sessions = m
	}
}

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator replaces the execution ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// WithEscalationHandler registers (or overrides) an operator escalation
// choice. The choice vocabulary is policy, not a closed enum.
func WithEscalationHandler(choice string, h EscalationHandler) Option {
	return func(e *Engine) {
		e.escalations[choice] = h
	}
}

// NewEngine creates a plan executor.
func NewEngine(plans PlanResolver, binding ports.ExecutorBinding, store ports.StatePersistence, opts ...Option) *Engine {
	e := &Engine{
		plans:       plans,
		binding:     binding,
		store:       store,
		router:      NewEdgeRouter(),
		mapper:      NewOutcomeMapper(),
		escalations: make(map[string]EscalationHandler),
		logger:      logging.NewNop(),
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}
	registerBuiltinEscalations(e)
	for _, opt := range opts {
		opt(e)
	}
	if e.sessions == nil {
		e.sessions = session.NewManager(session.WithLogger(e.logger))
	}
	return e
}

// StartExecution creates a new execution of (planID, version) at the
// plan's entry node and persists it. Initial inputs must cover the
// entry node's required keys with non-empty values; missing inputs are
// rejected, never inferred.
func (e *Engine) StartExecution(ctx context.Context, planID, version string, initialInputs map[string]any) (string, error) {
	plan, err := e.plans.Resolve(planID, version)
	if err != nil {
		return "", err
	}

	entry := plan.Nodes[plan.EntryNodeID]
	if err := checkRequiredInputs(entry, initialInputs); err != nil {
		return "", err
	}

	state := domain.NewExecutionState(e.newID(), plan, domain.Context(initialInputs), e.now().UTC())
	if err := e.save(ctx, state); err != nil {
		return "", err
	}

	e.logger.Info("execution started",
		"execution_id", state.ExecutionID,
		"plan_id", planID,
		"plan_version", version,
		"entry_node", plan.EntryNodeID)

	return state.ExecutionID, nil
}

func checkRequiredInputs(entry domain.Node, inputs map[string]any) error {
	var missing []string
	for _, key := range entry.RequiredInputs {
		v, ok := inputs[key]
		if !ok || v == nil || v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &domain.MissingInputsError{NodeID: entry.ID, Missing: missing}
	}
	return nil
}

// GetExecutionStatus returns a copy of the persisted state. It answers
// from persistence only and never re-executes anything.
func (e *Engine) GetExecutionStatus(ctx context.Context, executionID string) (*domain.ExecutionState, error) {
	state, err := e.store.Load(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return state.Clone(), nil
}

// ListExecutions returns persisted executions matching the filter.
func (e *Engine) ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionState, error) {
	ids, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.ExecutionState
	for _, id := range ids {
		state, err := e.store.Load(ctx, id)
		if err != nil {
			// Concurrent stores may drop entries between List and Load.
			if domain.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if filter.Matches(state) {
			out = append(out, state.Clone())
		}
	}
	return out, nil
}

// AbandonExecution transitions any non-terminal execution to Failed.
// This is the only cancellation path; the engine has no timeouts.
func (e *Engine) AbandonExecution(ctx context.Context, executionID string) (domain.ExecutionStatus, error) {
	var status domain.ExecutionStatus
	err := e.sessions.WithLock(ctx, executionID, func(ctx context.Context) error {
		state, err := e.store.Load(ctx, executionID)
		if err != nil {
			return err
		}
		if state.Status.Terminal() {
			return &domain.InvalidStateTransitionError{
				ExecutionID: executionID,
				Status:      state.Status,
				Operation:   "abandon",
			}
		}
		e.markAbandoned(state)
		if err := e.save(ctx, state); err != nil {
			return err
		}
		e.hooks.EmitExecutionEnd(ctx, &domain.ExecutionEvent{
			ExecutionID: executionID,
			PlanID:      state.PlanID,
			Status:      state.Status,
		})
		status = state.Status
		return nil
	})
	return status, err
}

func (e *Engine) markAbandoned(state *domain.ExecutionState) {
	state.History = append(state.History, domain.ExecutionLogEntry{
		NodeID:    state.CurrentNodeID,
		EnteredAt: e.now().UTC(),
		Outcome:   domain.OutcomeAbandoned,
	})
	state.Status = domain.StatusFailed
	state.PendingInput = nil
	now := e.now().UTC()
	state.CompletedAt = &now
}

// save persists state, wrapping failures in the PersistenceError
// taxonomy. Callers must not advance past a failed save.
func (e *Engine) save(ctx context.Context, state *domain.ExecutionState) error {
	if err := e.store.Save(ctx, state); err != nil {
		return &domain.PersistenceError{Op: "save", ExecutionID: state.ExecutionID, Err: err}
	}
	return nil
}

func (e *Engine) resolvePlan(state *domain.ExecutionState) (*domain.WorkflowPlan, error) {
	return e.plans.Resolve(state.PlanID, state.PlanVersion)
}
