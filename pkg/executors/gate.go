package executors

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/ports"
)

// gateRule declares one decision branch. A rule matches when all its
// required keys resolve to non-empty values and every equals entry
// matches the context.
type gateRule struct {
	Outcome  string         `mapstructure:"outcome"`
	Requires []string       `mapstructure:"requires"`
	Equals   map[string]any `mapstructure:"equals"`
}

type gateConfig struct {
	Rules []gateRule `mapstructure:"rules"`

	// DefaultOutcome is returned when no rule matches.
	// Defaults to "needs_clarification".
	DefaultOutcome string `mapstructure:"default_outcome"`
}

// Gate evaluates a declarative decision over the context and returns
// one of a small enumerated outcome set. It is deterministic: the same
// context always yields the same outcome, which the routing layer
// depends on.
type Gate struct{}

// NewGate creates a gate executor.
func NewGate() *Gate {
	return &Gate{}
}

// Execute implements ports.NodeExecutor. Rules are evaluated in
// declared order; the first match wins.
func (g *Gate) Execute(ctx context.Context, node domain.Node, snapshot domain.Context) (ports.NodeResult, error) {
	var cfg gateConfig
	if err := mapstructure.Decode(node.ExecutorConfig, &cfg); err != nil {
		return ports.NodeResult{}, fmt.Errorf("gate %s: invalid executor_config: %w", node.ID, err)
	}
	if cfg.DefaultOutcome == "" {
		cfg.DefaultOutcome = "needs_clarification"
	}

	for _, rule := range cfg.Rules {
		if rule.Outcome == "" {
			return ports.NodeResult{}, fmt.Errorf("gate %s: rule missing outcome", node.ID)
		}
		if g.matches(rule, snapshot) {
			return ports.NodeResult{Outcome: rule.Outcome}, nil
		}
	}
	return ports.NodeResult{Outcome: cfg.DefaultOutcome}, nil
}

func (g *Gate) matches(rule gateRule, snapshot domain.Context) bool {
	for _, key := range rule.Requires {
		v, ok := snapshot.Lookup(key)
		if !ok || v == nil || v == "" {
			return false
		}
	}
	for key, want := range rule.Equals {
		got, ok := snapshot.Lookup(key)
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}
