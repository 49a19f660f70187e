package plan

import (
	"fmt"
	"sync"

	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/ports"
)

// Registry caches validated plans by (plan id, version) so executions
// do not reparse on every step. The cache lives for the process;
// entries leave only through explicit invalidation.
type Registry struct {
	source ports.PlanSource
	loader *Loader

	mu    sync.RWMutex
	cache map[domain.PlanKey]*domain.WorkflowPlan
}

// NewRegistry creates a registry over a plan source.
func NewRegistry(source ports.PlanSource) *Registry {
	return &Registry{
		source: source,
		loader: NewLoader(),
		cache:  make(map[domain.PlanKey]*domain.WorkflowPlan),
	}
}

// Resolve returns the cached validated plan or loads, validates, and
// caches it. A plan that fails validation is never cached.
func (r *Registry) Resolve(planID, version string) (*domain.WorkflowPlan, error) {
	key := domain.PlanKey{ID: planID, Version: version}

	r.mu.RLock()
	p, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	raw, err := r.source.GetPlan(planID, version)
	if err != nil {
		return nil, err
	}

	p, err = r.loader.Load(raw)
	if err != nil {
		return nil, err
	}
	if p.ID != planID || p.Version != version {
		return nil, fmt.Errorf("plan source returned %s@%s for requested %s@%s", p.ID, p.Version, planID, version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A concurrent Resolve may have won; keep the first cached copy so
	// callers always share one immutable instance.
	if cached, ok := r.cache[key]; ok {
		return cached, nil
	}
	r.cache[key] = p
	return p, nil
}

// Invalidate drops a cached plan, forcing the next Resolve to reload.
func (r *Registry) Invalidate(planID, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, domain.PlanKey{ID: planID, Version: version})
}

// List returns the plans the underlying source can supply.
func (r *Registry) List() ([]ports.PlanRef, error) {
	return r.source.ListPlans()
}

// Describe resolves a plan and returns it for inspection (CLI and HTTP
// detail views). Identical to Resolve; the name documents intent.
func (r *Registry) Describe(planID, version string) (*domain.WorkflowPlan, error) {
	return r.Resolve(planID, version)
}
