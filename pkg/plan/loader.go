package plan

import (
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/quillflow/quillflow/pkg/domain"
)

// planDocument is the external shape of a plan definition. Nodes are
// declared as a list; the loader indexes them by ID and assigns edge
// priorities from declaration order.
type planDocument struct {
	ID          string            `yaml:"id" json:"id"`
	Version     string            `yaml:"version" json:"version"`
	EntryNodeID string            `yaml:"entry_node_id" json:"entry_node_id"`
	Nodes       []domain.Node     `yaml:"nodes" json:"nodes"`
	Edges       []domain.Edge     `yaml:"edges" json:"edges"`
	OutcomeMap  map[string]string `yaml:"outcome_map" json:"outcome_map"`
	Metadata    map[string]string `yaml:"metadata" json:"metadata"`
}

// Loader parses plan definitions into validated WorkflowPlans.
// YAML and JSON are both accepted (JSON is a YAML subset).
type Loader struct {
	validator *Validator
}

// NewLoader creates a loader with the standard validator.
func NewLoader() *Loader {
	return &Loader{validator: NewValidator()}
}

// Load parses and validates a plan definition. Parsing failures and
// semantic failures are both reported as *domain.ValidationError; a
// plan is never partially accepted.
func (l *Loader) Load(source []byte) (*domain.WorkflowPlan, error) {
	var doc planDocument
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, &domain.ValidationError{
			PlanID: doc.ID,
			Findings: []domain.ValidationFinding{{
				Code:    domain.FindingMalformed,
				Message: err.Error(),
			}},
		}
	}

	p := &domain.WorkflowPlan{
		ID:          doc.ID,
		Version:     doc.Version,
		EntryNodeID: doc.EntryNodeID,
		Nodes:       make(map[string]domain.Node, len(doc.Nodes)),
		Edges:       make([]domain.Edge, 0, len(doc.Edges)),
		OutcomeMap:  doc.OutcomeMap,
		Metadata:    doc.Metadata,
	}

	var findings []domain.ValidationFinding
	for _, n := range doc.Nodes {
		if _, dup := p.Nodes[n.ID]; dup {
			findings = append(findings, domain.ValidationFinding{
				Code:    domain.FindingDuplicateNode,
				NodeID:  n.ID,
				Message: "node id declared more than once",
			})
			continue
		}
		p.Nodes[n.ID] = n
	}

	for i, e := range doc.Edges {
		if e.Priority == 0 {
			e.Priority = i + 1
		}
		if e.MatchOutcome == "" {
			e.MatchOutcome = domain.MatchAny
		}
		p.Edges = append(p.Edges, e)
	}
	// Declared order is the canonical priority; an explicit priority
	// field reorders, ties keep declaration order.
	sort.SliceStable(p.Edges, func(i, j int) bool {
		return p.Edges[i].Priority < p.Edges[j].Priority
	})

	findings = append(findings, l.validator.Check(p)...)
	if len(findings) > 0 {
		return nil, &domain.ValidationError{PlanID: doc.ID, Findings: findings}
	}
	return p, nil
}
