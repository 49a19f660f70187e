package executors

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/ports"
)

// taskConfig is the executor_config shape for task nodes.
type taskConfig struct {
	// Generator names a registered GenerationFunc. Empty means the
	// node produces no artifact and just reports its outcome.
	Generator string `mapstructure:"generator"`

	// OutputKey is the context key the produced artifact lands under.
	OutputKey string `mapstructure:"output_key"`

	// Params are passed through to the generation function.
	Params map[string]any `mapstructure:"params"`

	// Outcome reported on success. Defaults to "generated".
	Outcome string `mapstructure:"outcome"`
}

// Task produces content through an external generation backend and
// returns a single outcome. It is stateless per invocation and safe to
// retry; any failure from the backend surfaces as a raised error for
// the circuit breaker.
type Task struct {
	generators *Registry
}

// NewTask creates a task executor over a generation registry.
func NewTask(generators *Registry) *Task {
	return &Task{generators: generators}
}

// Execute implements ports.NodeExecutor.
func (t *Task) Execute(ctx context.Context, node domain.Node, snapshot domain.Context) (ports.NodeResult, error) {
	var cfg taskConfig
	if err := mapstructure.Decode(node.ExecutorConfig, &cfg); err != nil {
		return ports.NodeResult{}, fmt.Errorf("task %s: invalid executor_config: %w", node.ID, err)
	}
	if cfg.Outcome == "" {
		cfg.Outcome = "generated"
	}
	if cfg.OutputKey == "" {
		cfg.OutputKey = node.ID
	}

	result := ports.NodeResult{Outcome: cfg.Outcome}

	if cfg.Generator != "" {
		artifact, err := t.generators.Execute(ctx, cfg.Generator, cfg.Params, snapshot)
		if err != nil {
			return ports.NodeResult{}, fmt.Errorf("task %s: generator %s: %w", node.ID, cfg.Generator, err)
		}
		result.ContextPatch = map[string]any{cfg.OutputKey: artifact}
	}

	return result, nil
}
