package plan

import (
	"fmt"
	"sort"

	"github.com/quillflow/quillflow/pkg/domain"
)

var knownNodeTypes = map[string]bool{
	domain.NodeTypeTask:      true,
	domain.NodeTypeGate:      true,
	domain.NodeTypeConcierge: true,
	domain.NodeTypeQA:        true,
	domain.NodeTypeEnd:       true,
}

// Validator checks the structural and semantic legality of a plan.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Check returns every defect found. An empty result means the plan is
// legal: exactly one existing entry node, all edges reference existing
// nodes, every non-terminal node has at least one outgoing edge, no
// terminal node has any, and every node is reachable from the entry.
func (v *Validator) Check(p *domain.WorkflowPlan) []domain.ValidationFinding {
	var findings []domain.ValidationFinding

	if p.ID == "" {
		findings = append(findings, domain.ValidationFinding{
			Code:    domain.FindingMalformed,
			Message: "plan id is required",
		})
	}
	if p.Version == "" {
		findings = append(findings, domain.ValidationFinding{
			Code:    domain.FindingMalformed,
			Message: "plan version is required",
		})
	}

	if p.EntryNodeID == "" {
		findings = append(findings, domain.ValidationFinding{
			Code:    domain.FindingMissingEntry,
			Message: "entry_node_id is required",
		})
	} else if _, ok := p.Nodes[p.EntryNodeID]; !ok {
		findings = append(findings, domain.ValidationFinding{
			Code:    domain.FindingMissingEntry,
			NodeID:  p.EntryNodeID,
			Message: "entry node does not exist",
		})
	}

	for id, n := range p.Nodes {
		if !knownNodeTypes[n.Type] {
			findings = append(findings, domain.ValidationFinding{
				Code:    domain.FindingUnknownNodeType,
				NodeID:  id,
				Message: fmt.Sprintf("unknown node type %q", n.Type),
			})
		}
		if n.MaxRetries < 0 {
			findings = append(findings, domain.ValidationFinding{
				Code:    domain.FindingNegativeRetries,
				NodeID:  id,
				Message: fmt.Sprintf("max_retries must be >= 0, got %d", n.MaxRetries),
			})
		}
	}

	outgoing := make(map[string]int)
	for i, e := range p.Edges {
		if _, ok := p.Nodes[e.From]; !ok {
			findings = append(findings, domain.ValidationFinding{
				Code:    domain.FindingDanglingEdge,
				NodeID:  e.From,
				Message: fmt.Sprintf("edge %d: from references nonexistent node %q", i, e.From),
			})
		}
		if _, ok := p.Nodes[e.To]; !ok {
			findings = append(findings, domain.ValidationFinding{
				Code:    domain.FindingDanglingEdge,
				NodeID:  e.To,
				Message: fmt.Sprintf("edge %d (%s -> %s): to references nonexistent node %q", i, e.From, e.To, e.To),
			})
		}
		outgoing[e.From]++
	}

	for id, n := range p.Nodes {
		if n.Terminal() && outgoing[id] > 0 {
			findings = append(findings, domain.ValidationFinding{
				Code:    domain.FindingTerminalEdge,
				NodeID:  id,
				Message: fmt.Sprintf("terminal node has %d outgoing edges, want 0", outgoing[id]),
			})
		}
		if !n.Terminal() && outgoing[id] == 0 {
			findings = append(findings, domain.ValidationFinding{
				Code:    domain.FindingNoOutgoingEdge,
				NodeID:  id,
				Message: "non-terminal node has no outgoing edges",
			})
		}
	}

	// Reachability from the entry node. Unreachable nodes are an error,
	// not a warning.
	if _, ok := p.Nodes[p.EntryNodeID]; ok {
		reachable := v.crawl(p)
		for id := range p.Nodes {
			if !reachable[id] {
				findings = append(findings, domain.ValidationFinding{
					Code:    domain.FindingOrphanNode,
					NodeID:  id,
					Message: "node unreachable from entry node",
				})
			}
		}
	}

	// Map iteration order is random; keep findings deterministic.
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Code != findings[j].Code {
			return findings[i].Code < findings[j].Code
		}
		if findings[i].NodeID != findings[j].NodeID {
			return findings[i].NodeID < findings[j].NodeID
		}
		return findings[i].Message < findings[j].Message
	})
	return findings
}

func (v *Validator) crawl(p *domain.WorkflowPlan) map[string]bool {
	visited := make(map[string]bool)
	queue := []string{p.EntryNodeID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		for _, e := range p.Edges {
			if e.From == current && !visited[e.To] {
				queue = append(queue, e.To)
			}
		}
	}
	return visited
}
