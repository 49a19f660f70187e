package domain

import "time"

// ExecutionStatus defines the lifecycle state of one plan instantiation.
type ExecutionStatus string

const (
	StatusRunning       ExecutionStatus = "running"
	StatusAwaitingInput ExecutionStatus = "awaiting_input"
	StatusCompleted     ExecutionStatus = "completed"
	StatusEscalated     ExecutionStatus = "escalated"
	StatusFailed        ExecutionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExecutionLogEntry is the immutable audit record of one node visit.
// It is distinct from Context, which is mutable working memory.
type ExecutionLogEntry struct {
	NodeID       string    `json:"node_id"`
	EnteredAt    time.Time `json:"entered_at"`
	Outcome      string    `json:"outcome"`
	RetryAttempt int       `json:"retry_attempt"`

	// EdgeTaken is the destination node of the selected edge, empty when
	// the node was terminal or the step escalated.
	EdgeTaken string `json:"edge_taken,omitempty"`

	// ContextPatch is the working-memory delta this entry applied.
	// Recording it makes the history self-sufficient for replay:
	// starting from InitialContext and applying patches in order
	// re-derives every routing decision.
	ContextPatch map[string]any `json:"context_patch,omitempty"`

	// Error records the failure message for escalation entries.
	Error string `json:"error,omitempty"`
}

// Audit outcomes recorded in history entries that do not correspond to
// a node returning a routing outcome.
const (
	OutcomeAwaitingInput = "awaiting_input"
	OutcomeInputReceived = "input_received"
	OutcomeEscalated     = "escalated"
	OutcomeResubmitted   = "resubmitted"
	OutcomeAbandoned     = "abandoned"
)

// InputRequest describes what a paused execution is waiting for.
type InputRequest struct {
	NodeID string `json:"node_id"`
	Prompt string `json:"prompt"`

	// Key is the context key the submitted answer will be stored under.
	Key string `json:"key,omitempty"`
}

// EscalationDetail carries enough for an operator to decide remediation.
type EscalationDetail struct {
	NodeID     string `json:"node_id"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error"`
}

// ExecutionState is the durable, resumable record of one in-flight plan
// instantiation. It is mutated exclusively by the plan executor and
// persisted after every node completion; it is never deleted, only
// transitioned to a terminal status.
type ExecutionState struct {
	ExecutionID   string          `json:"execution_id"`
	PlanID        string          `json:"plan_id"`
	PlanVersion   string          `json:"plan_version"`
	CurrentNodeID string          `json:"current_node_id"`
	Status        ExecutionStatus `json:"status"`

	// RetryCounts tracks raised-failure retries per node for the
	// circuit breaker. Negative outcomes never touch it.
	RetryCounts map[string]int `json:"retry_counts"`

	// History is the append-only audit trail.
	History []ExecutionLogEntry `json:"history"`

	// PendingInput is set while Status == StatusAwaitingInput.
	PendingInput *InputRequest `json:"pending_input,omitempty"`

	// Escalation is set while Status == StatusEscalated.
	Escalation *EscalationDetail `json:"escalation,omitempty"`

	// InitialContext is the working memory the execution started with,
	// kept immutable as the replay baseline.
	InitialContext Context `json:"initial_context"`

	// Context is structured working memory carried between node
	// executions. Executors receive a snapshot, never the history.
	Context Context `json:"context"`

	// TerminalOutcome is set when the execution completes.
	TerminalOutcome string `json:"terminal_outcome,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewExecutionState creates a fresh running state positioned at the
// plan's entry node.
func NewExecutionState(executionID string, plan *WorkflowPlan, initial Context, now time.Time) *ExecutionState {
	ctx := Context{}.Merged(initial)
	return &ExecutionState{
		ExecutionID:    executionID,
		PlanID:         plan.ID,
		PlanVersion:    plan.Version,
		CurrentNodeID:  plan.EntryNodeID,
		Status:         StatusRunning,
		RetryCounts:    make(map[string]int),
		InitialContext: ctx.Clone(),
		Context:        ctx,
		StartedAt:      now,
	}
}

// Clone returns a deep copy safe for concurrent readers.
func (s *ExecutionState) Clone() *ExecutionState {
	if s == nil {
		return nil
	}
	next := *s
	next.RetryCounts = make(map[string]int, len(s.RetryCounts))
	for k, v := range s.RetryCounts {
		next.RetryCounts[k] = v
	}
	next.History = append([]ExecutionLogEntry(nil), s.History...)
	next.InitialContext = s.InitialContext.Clone()
	next.Context = s.Context.Clone()
	if s.PendingInput != nil {
		pi := *s.PendingInput
		next.PendingInput = &pi
	}
	if s.Escalation != nil {
		esc := *s.Escalation
		next.Escalation = &esc
	}
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		next.CompletedAt = &at
	}
	return &next
}

// ExecutionFilter narrows ListExecutions results. Zero value matches all.
type ExecutionFilter struct {
	PlanID string
	Status ExecutionStatus
}

// Matches reports whether the state satisfies the filter.
func (f ExecutionFilter) Matches(s *ExecutionState) bool {
	if f.PlanID != "" && s.PlanID != f.PlanID {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}
