package domain

// NodeType constants define what kind of work a node performs.
// Routing never depends on the type; it only selects which bound
// executor the engine invokes.
const (
	// NodeTypeTask produces content through an external service (soft step).
	NodeTypeTask = "task"
	// NodeTypeGate evaluates a decision and returns one of an enumerated outcome set.
	NodeTypeGate = "gate"
	// NodeTypeConcierge runs a multi-turn intake, pausing for user input (hard step).
	NodeTypeConcierge = "concierge"
	// NodeTypeQA validates a prior task's output, with a bounded remediation loop.
	NodeTypeQA = "qa"
	// NodeTypeEnd is terminal; it reports the plan's terminal outcome.
	NodeTypeEnd = "end"
)

// MatchAny is the reserved wildcard for Edge.MatchOutcome.
const MatchAny = "*"

// Node represents a unit of work in a plan. It is bound at runtime to a
// NodeExecutor selected by Type (and optionally ExecutorConfig["kind"]).
type Node struct {
	ID   string `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"`

	// ExecutorConfig is an opaque configuration blob handed to the bound
	// executor. The engine never interprets it.
	ExecutorConfig map[string]any `json:"executor_config,omitempty" yaml:"executor_config,omitempty"`

	// MaxRetries bounds the circuit breaker for raised executor failures.
	// Zero means a single failure escalates immediately.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`

	// RequiredInputs lists context keys that must be present before this
	// node may run. Only enforced for the entry node at start time.
	RequiredInputs []string `json:"required_inputs,omitempty" yaml:"required_inputs,omitempty"`

	// Metadata allows for extensible key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Terminal reports whether the node ends an execution.
func (n *Node) Terminal() bool {
	return n.Type == NodeTypeEnd
}

// Edge defines a conditional transition between two nodes.
//
// Edges from the same node are evaluated in declared order; the first
// edge whose MatchOutcome equals the node's returned outcome (or is the
// wildcard) and whose Condition evaluates true is selected.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`

	// MatchOutcome is the outcome string this edge responds to, or "*".
	MatchOutcome string `json:"match_outcome" yaml:"match_outcome"`

	// Condition is an optional boolean expression over the execution
	// context, e.g. "answers.region == 'eu'". Empty means always true.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Priority is the declared order. Assigned by the loader from list
	// position when absent, it is the deterministic tie-break.
	Priority int `json:"priority" yaml:"priority"`
}

// WorkflowPlan is the immutable node/edge graph defining a
// document-production workflow. Instances are only handed out after
// validation; callers must treat them as read-only.
type WorkflowPlan struct {
	ID          string          `json:"id" yaml:"id"`
	Version     string          `json:"version" yaml:"version"`
	EntryNodeID string          `json:"entry_node_id" yaml:"entry_node_id"`
	Nodes       map[string]Node `json:"nodes" yaml:"nodes"`
	Edges       []Edge          `json:"edges" yaml:"edges"`

	// OutcomeMap translates node-local outcome vocabulary into the
	// plan's terminal outcome vocabulary. Identity for missing keys.
	OutcomeMap map[string]string `json:"outcome_map,omitempty" yaml:"outcome_map,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// PlanKey identifies a validated plan in the registry.
type PlanKey struct {
	ID      string
	Version string
}

// Key returns the registry cache key for the plan.
func (p *WorkflowPlan) Key() PlanKey {
	return PlanKey{ID: p.ID, Version: p.Version}
}

// OutgoingEdges returns the edges leaving nodeID in declared priority order.
// The plan's edge list is already ordered, so this preserves that order.
func (p *WorkflowPlan) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range p.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Node returns the node by ID, if present.
func (p *WorkflowPlan) Node(nodeID string) (Node, bool) {
	n, ok := p.Nodes[nodeID]
	return n, ok
}
