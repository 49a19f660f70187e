package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/quillflow/quillflow/pkg/domain"
)

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "Manage persisted executions",
	Long:  `List, inspect, verify, and abandon executions held in the configured state store.`,
}

var executionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := newEngine(cmd)
		if err != nil {
			return err
		}
		if cleanup != nil {
			defer cleanup()
		}

		planID, _ := cmd.Flags().GetString("plan")
		status, _ := cmd.Flags().GetString("status")

		states, err := engine.ListExecutions(cmd.Context(), domain.ExecutionFilter{
			PlanID: planID,
			Status: domain.ExecutionStatus(status),
		})
		if err != nil {
			return err
		}

		if len(states) == 0 {
			fmt.Println("No executions found.")
			return nil
		}

		for _, s := range states {
			fmt.Printf("%s  %s@%s  %-15s  node=%s\n", s.ExecutionID, s.PlanID, s.PlanVersion, s.Status, s.CurrentNodeID)
		}
		return nil
	},
}

var executionsInspectCmd = &cobra.Command{
	Use:   "inspect <execution-id>",
	Short: "Print the full state of an execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := newEngine(cmd)
		if err != nil {
			return err
		}
		if cleanup != nil {
			defer cleanup()
		}

		state, err := engine.GetExecutionStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var executionsVerifyCmd = &cobra.Command{
	Use:   "verify <execution-id>",
	Short: "Replay an execution's history and check it matches the recorded routing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := newEngine(cmd)
		if err != nil {
			return err
		}
		if cleanup != nil {
			defer cleanup()
		}

		if err := engine.VerifyReplay(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Execution '%s' replays cleanly.\n", args[0])
		return nil
	},
}

var executionsAbandonCmd = &cobra.Command{
	Use:   "abandon <execution-id>...",
	Short: "Abandon one or more executions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := newEngine(cmd)
		if err != nil {
			return err
		}
		if cleanup != nil {
			defer cleanup()
		}

		hasError := false
		for _, id := range args {
			if _, err := engine.AbandonExecution(cmd.Context(), id); err != nil {
				fmt.Fprintf(os.Stderr, "Error abandoning '%s': %v\n", id, err)
				hasError = true
				continue
			}
			fmt.Printf("Abandoned execution '%s'\n", id)
		}

		if hasError {
			return fmt.Errorf("some executions could not be abandoned")
		}
		return nil
	},
}

func init() {
	executionsLsCmd.Flags().String("plan", "", "Only show executions of this plan")
	executionsLsCmd.Flags().String("status", "", "Only show executions in this status")

	executionsCmd.AddCommand(executionsLsCmd)
	executionsCmd.AddCommand(executionsInspectCmd)
	executionsCmd.AddCommand(executionsVerifyCmd)
	executionsCmd.AddCommand(executionsAbandonCmd)
	rootCmd.AddCommand(executionsCmd)
}
