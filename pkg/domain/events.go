package domain

import (
	"context"
	"time"
)

// NodeEvent describes a node visit for observability hooks.
type NodeEvent struct {
	ExecutionID  string
	PlanID       string
	NodeID       string
	NodeType     string
	Outcome      string
	RetryAttempt int
	Duration     time.Duration
}

// EscalationEvent fires when a circuit breaker trips.
type EscalationEvent struct {
	ExecutionID string
	PlanID      string
	NodeID      string
	RetryCount  int
	LastError   string
}

// ExecutionEvent fires when an execution reaches a terminal or paused status.
type ExecutionEvent struct {
	ExecutionID     string
	PlanID          string
	Status          ExecutionStatus
	TerminalOutcome string
}

// LifecycleHooks lets hosts observe engine progress without coupling
// the engine to any metrics or logging backend. Nil hooks are skipped.
type LifecycleHooks struct {
	OnNodeEnter    func(ctx context.Context, e *NodeEvent)
	OnNodeLeave    func(ctx context.Context, e *NodeEvent)
	OnEscalation   func(ctx context.Context, e *EscalationEvent)
	OnExecutionEnd func(ctx context.Context, e *ExecutionEvent)
}

// EmitNodeEnter invokes the hook if registered.
func (h LifecycleHooks) EmitNodeEnter(ctx context.Context, e *NodeEvent) {
	if h.OnNodeEnter != nil {
		h.OnNodeEnter(ctx, e)
	}
}

// EmitNodeLeave invokes the hook if registered.
func (h LifecycleHooks) EmitNodeLeave(ctx context.Context, e *NodeEvent) {
	if h.OnNodeLeave != nil {
		h.OnNodeLeave(ctx, e)
	}
}

// EmitEscalation invokes the hook if registered.
func (h LifecycleHooks) EmitEscalation(ctx context.Context, e *EscalationEvent) {
	if h.OnEscalation != nil {
		h.OnEscalation(ctx, e)
	}
}

// EmitExecutionEnd invokes the hook if registered.
func (h LifecycleHooks) EmitExecutionEnd(ctx context.Context, e *ExecutionEvent) {
	if h.OnExecutionEnd != nil {
		h.OnExecutionEnd(ctx, e)
	}
}
