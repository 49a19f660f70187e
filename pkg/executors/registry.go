package executors

import (
	"context"
	"fmt"
	"sync"

	"github.com/quillflow/quillflow/pkg/domain"
)

// GenerationFunc is the signature for a content-producing backend
// (e.g. an adapter over a language-model service). It receives the
// node's declared parameters and a snapshot of the execution context,
// and returns the produced artifact. Errors are transient failures
// handled by the engine's circuit breaker.
type GenerationFunc func(ctx context.Context, params map[string]any, snapshot domain.Context) (any, error)

// Registry manages the available generation backends.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]GenerationFunc
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]GenerationFunc)}
}

// Register adds a generation function to the registry.
// If a function with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn GenerationFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Execute looks up a function by name and executes it.
// Returns an error if the function is not found.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, snapshot domain.Context) (any, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("generation function not found: %s", name)
	}
	return fn(ctx, params, snapshot)
}
