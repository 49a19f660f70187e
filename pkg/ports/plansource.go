package ports

// PlanSource supplies raw plan definitions to the loader. It decouples
// the registry from where definitions live (directory tree, in-memory
// map, object store).
type PlanSource interface {
	// GetPlan returns the raw definition for a (plan id, version) pair.
	// Returns domain.ErrPlanNotFound if the source has no such plan.
	GetPlan(planID, version string) ([]byte, error)

	// ListPlans returns the (id, version) pairs the source can supply.
	ListPlans() ([]PlanRef, error)
}

// PlanRef identifies one available plan definition.
type PlanRef struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}
