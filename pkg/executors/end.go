package executors

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/ports"
)

type endConfig struct {
	// Outcome is the node-local terminal outcome, translated by the
	// plan's outcome map. Defaults to "done".
	Outcome string `mapstructure:"outcome"`
}

// End is terminal. It reports the node's outcome; the engine maps it
// through the plan's outcome vocabulary and completes the execution.
// End nodes have no outgoing edges by construction.
type End struct{}

// NewEnd creates an end executor.
func NewEnd() *End {
	return &End{}
}

// Execute implements ports.NodeExecutor.
func (e *End) Execute(ctx context.Context, node domain.Node, snapshot domain.Context) (ports.NodeResult, error) {
	var cfg endConfig
	if err := mapstructure.Decode(node.ExecutorConfig, &cfg); err != nil {
		return ports.NodeResult{}, fmt.Errorf("end %s: invalid executor_config: %w", node.ID, err)
	}
	if cfg.Outcome == "" {
		cfg.Outcome = "done"
	}
	return ports.NodeResult{Outcome: cfg.Outcome}, nil
}
