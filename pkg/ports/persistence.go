package ports

import (
	"context"

	"github.com/quillflow/quillflow/pkg/domain"
)

// StatePersistence is the port for durable execution state. The engine
// saves after every node completion and before the next node begins;
// durability is preferred over availability, so a failed save aborts
// the step.
//
// Implementations must support concurrent access keyed by execution ID.
// A single execution is never driven by two callers at once (the
// session manager enforces that), so last-writer-wins per execution is
// acceptable.
type StatePersistence interface {
	// Save persists the state. Implementations must store a copy; the
	// engine may keep mutating the passed value after Save returns.
	Save(ctx context.Context, state *domain.ExecutionState) error

	// Load retrieves the state for an execution ID.
	// Returns domain.ErrExecutionNotFound if it does not exist.
	Load(ctx context.Context, executionID string) (*domain.ExecutionState, error)

	// List returns the IDs of all stored executions.
	List(ctx context.Context) ([]string, error)
}

// ExecutionLocker coordinates exclusive access to one execution across
// replicas. In-process serialization is handled by the session manager;
// this port extends it to multi-instance deployments.
type ExecutionLocker interface {
	// Lock blocks until the lock for key is held, the context is
	// canceled, or the implementation gives up. The returned UnlockFunc
	// MUST be called to release the lock.
	Lock(ctx context.Context, key string) (UnlockFunc, error)
}

// UnlockFunc releases a held execution lock.
type UnlockFunc func(ctx context.Context) error
