package executors

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/ports"
)

type conciergeQuestion struct {
	ID     string `mapstructure:"id"`
	Prompt string `mapstructure:"prompt"`
}

type conciergeConfig struct {
	Questions []conciergeQuestion `mapstructure:"questions"`

	// Outcome reported once every question is answered.
	// Defaults to "briefed".
	Outcome string `mapstructure:"outcome"`
}

// Concierge drives a multi-turn intake. Each invocation is single-turn:
// it inspects the answers already present in the context, asks for the
// first missing one by returning RequiresInput, and concludes once all
// questions are answered. Continuity flows entirely through the
// context (answers.<id>, questions_asked), never through replayed
// conversation transcripts.
type Concierge struct{}

// NewConcierge creates a concierge executor.
func NewConcierge() *Concierge {
	return &Concierge{}
}

// Execute implements ports.NodeExecutor.
func (c *Concierge) Execute(ctx context.Context, node domain.Node, snapshot domain.Context) (ports.NodeResult, error) {
	var cfg conciergeConfig
	if err := mapstructure.Decode(node.ExecutorConfig, &cfg); err != nil {
		return ports.NodeResult{}, fmt.Errorf("concierge %s: invalid executor_config: %w", node.ID, err)
	}
	if cfg.Outcome == "" {
		cfg.Outcome = "briefed"
	}
	if len(cfg.Questions) == 0 {
		return ports.NodeResult{}, fmt.Errorf("concierge %s: no questions configured", node.ID)
	}

	asked := askedSet(snapshot)

	for _, q := range cfg.Questions {
		if q.ID == "" {
			return ports.NodeResult{}, fmt.Errorf("concierge %s: question missing id", node.ID)
		}
		if _, answered := snapshot.Lookup("answers." + q.ID); answered {
			continue
		}

		patch := map[string]any{}
		if !asked[q.ID] {
			patch["questions_asked"] = appendAsked(snapshot, q.ID)
		}
		return ports.NodeResult{
			RequiresInput: true,
			InputPrompt: &domain.InputRequest{
				NodeID: node.ID,
				Prompt: q.Prompt,
				Key:    "answers." + q.ID,
			},
			ContextPatch: patch,
		}, nil
	}

	return ports.NodeResult{Outcome: cfg.Outcome}, nil
}

func askedSet(snapshot domain.Context) map[string]bool {
	out := map[string]bool{}
	raw, _ := snapshot.Lookup("questions_asked")
	list, _ := raw.([]any)
	for _, v := range list {
		if s, ok := v.(string); ok {
			out[s] = true
		}
	}
	return out
}

func appendAsked(snapshot domain.Context, id string) []any {
	raw, _ := snapshot.Lookup("questions_asked")
	list, _ := raw.([]any)
	return append(append([]any(nil), list...), id)
}
