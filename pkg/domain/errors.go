package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExecutionNotFound is returned when an execution ID cannot be found
// in the persistence store.
var ErrExecutionNotFound = errors.New("execution not found")

// ErrPlanNotFound is returned when a (plan id, version) pair is unknown
// to the registry and its source.
var ErrPlanNotFound = errors.New("plan not found")

// ValidationFinding is one specific structural or semantic defect in a
// plan definition.
type ValidationFinding struct {
	Code    string `json:"code"`
	NodeID  string `json:"node_id,omitempty"`
	Message string `json:"message"`
}

func (f ValidationFinding) String() string {
	if f.NodeID != "" {
		return fmt.Sprintf("%s [%s]: %s", f.Code, f.NodeID, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Finding codes reported by the plan validator.
const (
	FindingMalformed       = "malformed"
	FindingMissingEntry    = "missing_entry"
	FindingDuplicateNode   = "duplicate_node"
	FindingUnknownNodeType = "unknown_node_type"
	FindingDanglingEdge    = "dangling_edge"
	FindingOrphanNode      = "orphan_node"
	FindingNoOutgoingEdge  = "no_outgoing_edge"
	FindingTerminalEdge    = "terminal_edge"
	FindingNegativeRetries = "negative_retries"
)

// ValidationError rejects a plan as a whole. A plan is never partially
// accepted; Findings lists every defect discovered.
type ValidationError struct {
	PlanID   string
	Findings []ValidationFinding
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Findings))
	for i, f := range e.Findings {
		msgs[i] = f.String()
	}
	return fmt.Sprintf("plan %q invalid: %s", e.PlanID, strings.Join(msgs, "; "))
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// MissingInputsError rejects a start request whose initial inputs do
// not cover the entry node's required keys. Missing inputs are never
// inferred; the caller must supply them.
type MissingInputsError struct {
	NodeID  string
	Missing []string
}

func (e *MissingInputsError) Error() string {
	return fmt.Sprintf("entry node %s requires inputs that are missing or empty: %s", e.NodeID, strings.Join(e.Missing, ", "))
}

// InvalidStateTransitionError signals caller misuse: an operation was
// invoked against an execution whose status does not permit it. It is
// never retried.
type InvalidStateTransitionError struct {
	ExecutionID string
	Status      ExecutionStatus
	Operation   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("execution %s: cannot %s while %s", e.ExecutionID, e.Operation, e.Status)
}

// IsInvalidStateTransition reports whether err wraps an
// InvalidStateTransitionError.
func IsInvalidStateTransition(err error) bool {
	var te *InvalidStateTransitionError
	return errors.As(err, &te)
}

// ExecutorFailure wraps a raised executor error. It is transient from
// the engine's point of view: retried under the node's circuit-breaker
// policy, then escalated.
type ExecutorFailure struct {
	NodeID  string
	Attempt int
	Err     error
}

func (e *ExecutorFailure) Error() string {
	return fmt.Sprintf("executor failed at node %s (attempt %d): %v", e.NodeID, e.Attempt, e.Err)
}

func (e *ExecutorFailure) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failed save or load. It is fatal to the
// in-progress step: the step is not complete and current_node_id must
// not advance past the last successful save.
type PersistenceError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err wraps a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsNotFound reports whether err is either not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound) || errors.Is(err, ErrPlanNotFound)
}
