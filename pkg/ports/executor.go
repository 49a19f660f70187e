package ports

import (
	"context"

	"github.com/quillflow/quillflow/pkg/domain"
)

// NodeResult is what an executor returns on a normal (non-raised)
// completion. A negative outcome (e.g. "fail", "out_of_scope") is
// normal control flow routed by the engine, never retried.
type NodeResult struct {
	// Outcome is the routing token matched against edge MatchOutcome.
	Outcome string

	// ContextPatch is merged into the execution context after the node
	// completes. Nil means no change.
	ContextPatch map[string]any

	// RequiresInput pauses the execution until the user answers.
	RequiresInput bool

	// InputPrompt describes what to ask when RequiresInput is set.
	InputPrompt *domain.InputRequest
}

// NodeExecutor performs the work associated with one node.
//
// Executors perform work, not control flow; routing lives entirely in
// the engine's edge router. Implementations receive the node's opaque
// configuration and a snapshot of the execution context, never the
// execution history. A returned error is a transient failure handled
// by the circuit breaker; negative outcomes must be returned as a
// NodeResult instead.
type NodeExecutor interface {
	Execute(ctx context.Context, node domain.Node, snapshot domain.Context) (NodeResult, error)
}

// ExecutorFunc adapts a function to the NodeExecutor interface.
type ExecutorFunc func(ctx context.Context, node domain.Node, snapshot domain.Context) (NodeResult, error)

// Execute implements NodeExecutor.
func (f ExecutorFunc) Execute(ctx context.Context, node domain.Node, snapshot domain.Context) (NodeResult, error) {
	return f(ctx, node, snapshot)
}

// ExecutorBinding resolves the concrete executor for a node. The
// binding is fixed at plan load time; it is the sole extension point
// for adding generation or validation backends.
type ExecutorBinding interface {
	// Resolve returns the executor bound to the node's type and
	// optional executor_config kind. An unresolvable node is a binding
	// configuration error, not routable data.
	Resolve(node domain.Node) (NodeExecutor, error)
}
