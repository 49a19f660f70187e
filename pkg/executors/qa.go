package executors

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/ports"
)

type qaCheck struct {
	// Key is the context key holding the artifact to validate.
	Key string `mapstructure:"key"`

	// MinLength applies to string artifacts. Zero disables it.
	MinLength int `mapstructure:"min_length"`
}

type qaConfig struct {
	Checks []qaCheck `mapstructure:"checks"`

	// Remediator names a generation function invoked on a failed check
	// to repair the artifact in place. Empty disables remediation.
	Remediator string `mapstructure:"remediator"`

	// MaxRemediationRounds bounds the internal repair loop.
	MaxRemediationRounds int `mapstructure:"max_remediation_rounds"`

	PassOutcome string `mapstructure:"pass_outcome"`
	FailOutcome string `mapstructure:"fail_outcome"`
}

// QA validates artifacts a prior task left in the context. It may loop
// internally through a configured remediator up to a bound, then
// returns pass or fail. A fail outcome is normal control flow for the
// router, never a retried failure.
type QA struct {
	generators *Registry
}

// NewQA creates a QA executor over a generation registry.
func NewQA(generators *Registry) *QA {
	return &QA{generators: generators}
}

// Execute implements ports.NodeExecutor.
func (q *QA) Execute(ctx context.Context, node domain.Node, snapshot domain.Context) (ports.NodeResult, error) {
	var cfg qaConfig
	if err := mapstructure.Decode(node.ExecutorConfig, &cfg); err != nil {
		return ports.NodeResult{}, fmt.Errorf("qa %s: invalid executor_config: %w", node.ID, err)
	}
	if cfg.PassOutcome == "" {
		cfg.PassOutcome = "pass"
	}
	if cfg.FailOutcome == "" {
		cfg.FailOutcome = "fail"
	}
	if len(cfg.Checks) == 0 {
		return ports.NodeResult{}, fmt.Errorf("qa %s: no checks configured", node.ID)
	}

	working := snapshot.Clone()
	patch := domain.Context{}

	for round := 0; ; round++ {
		failed := q.failures(cfg.Checks, working)
		if len(failed) == 0 {
			patch["qa_rounds"] = round
			return ports.NodeResult{Outcome: cfg.PassOutcome, ContextPatch: patch}, nil
		}
		if cfg.Remediator == "" || round >= cfg.MaxRemediationRounds {
			patch["qa_rounds"] = round
			patch["qa_failed_checks"] = toAnySlice(failed)
			return ports.NodeResult{Outcome: cfg.FailOutcome, ContextPatch: patch}, nil
		}

		for _, key := range failed {
			repaired, err := q.generators.Execute(ctx, cfg.Remediator, map[string]any{"key": key}, working)
			if err != nil {
				return ports.NodeResult{}, fmt.Errorf("qa %s: remediator %s on %s: %w", node.ID, cfg.Remediator, key, err)
			}
			working.SetPath(key, repaired)
			patch.SetPath(key, repaired)
		}
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func (q *QA) failures(checks []qaCheck, snapshot domain.Context) []string {
	var failed []string
	for _, check := range checks {
		v, ok := snapshot.Lookup(check.Key)
		if !ok || v == nil || v == "" {
			failed = append(failed, check.Key)
			continue
		}
		if check.MinLength > 0 {
			s, isStr := v.(string)
			if !isStr || len(s) < check.MinLength {
				failed = append(failed, check.Key)
			}
		}
	}
	return failed
}
