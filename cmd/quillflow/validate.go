package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillflow/quillflow/pkg/domain"
	"github.com/quillflow/quillflow/pkg/plan"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan-file>...",
	Short: "Check plan definitions for consistency",
	Long:  `Loads each plan file and reports structural defects: dangling edges, unreachable nodes, missing entry nodes, and terminal-node violations.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(args)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(paths []string) error {
	loader := plan.NewLoader()
	failed := false

	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		p, err := loader.Load(raw)
		if err != nil {
			failed = true
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				fmt.Printf("%s: INVALID (%d findings)\n", path, len(ve.Findings))
				for _, f := range ve.Findings {
					fmt.Printf("  - %s\n", f)
				}
				continue
			}
			return err
		}
		fmt.Printf("%s: ok (%s@%s, %d nodes, %d edges)\n", path, p.ID, p.Version, len(p.Nodes), len(p.Edges))
	}

	if failed {
		return fmt.Errorf("validation failed")
	}
	return nil
}
