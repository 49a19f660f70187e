package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillflow/quillflow/pkg/domain"
)

var runCmd = &cobra.Command{
	Use:   "run <plan-id> <version>",
	Short: "Drive a plan execution from the terminal",
	Long:  `Starts an execution and advances it, answering concierge prompts on stdin and resolving escalations interactively.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd, args[0], args[1])
	},
}

func init() {
	runCmd.Flags().StringToString("input", nil, "Initial inputs as key=value pairs")
	rootCmd.AddCommand(runCmd)
}

func runPlan(cmd *cobra.Command, planID, version string) error {
	eng, cleanup, err := newEngine(cmd)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	inputs, _ := cmd.Flags().GetStringToString("input")
	initial := make(map[string]any, len(inputs))
	for k, v := range inputs {
		initial[k] = v
	}

	ctx := context.Background()
	executionID, err := eng.StartExecution(ctx, planID, version, initial)
	if err != nil {
		return err
	}
	fmt.Printf("execution %s started\n", executionID)

	reader := bufio.NewReader(os.Stdin)
	for {
		status, err := eng.RunToCompletionOrPause(ctx, executionID)
		if err != nil {
			return err
		}

		switch status {
		case domain.StatusAwaitingInput:
			state, err := eng.GetExecutionStatus(ctx, executionID)
			if err != nil {
				return err
			}
			prompt := "input required"
			if state.PendingInput != nil && state.PendingInput.Prompt != "" {
				prompt = state.PendingInput.Prompt
			}
			fmt.Printf("%s\n> ", prompt)
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			if _, err := eng.SubmitUserInput(ctx, executionID, map[string]any{"answer": strings.TrimSpace(line)}); err != nil {
				return err
			}

		case domain.StatusEscalated:
			state, err := eng.GetExecutionStatus(ctx, executionID)
			if err != nil {
				return err
			}
			if state.Escalation != nil {
				fmt.Printf("escalated at node %s after %d attempts: %s\n",
					state.Escalation.NodeID, state.Escalation.RetryCount, state.Escalation.LastError)
			}
			fmt.Print("choice (resubmit, abandon, force:<outcome>)\n> ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			if _, err := eng.HandleEscalationChoice(ctx, executionID, strings.TrimSpace(line)); err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}

		case domain.StatusCompleted:
			state, err := eng.GetExecutionStatus(ctx, executionID)
			if err != nil {
				return err
			}
			fmt.Printf("completed with outcome %q after %d steps\n", state.TerminalOutcome, len(state.History))
			return nil

		case domain.StatusFailed:
			fmt.Println("execution failed")
			return nil
		}
	}
}
