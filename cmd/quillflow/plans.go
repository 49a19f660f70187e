package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List and inspect available plans",
}

var plansLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List plans discovered in the plans directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := newEngine(cmd)
		if err != nil {
			return err
		}
		if cleanup != nil {
			defer cleanup()
		}

		refs, err := engine.ListPlans()
		if err != nil {
			return err
		}

		if len(refs) == 0 {
			fmt.Println("No plans found.")
			return nil
		}
		for _, ref := range refs {
			fmt.Printf("%s@%s\n", ref.ID, ref.Version)
		}
		return nil
	},
}

var plansShowCmd = &cobra.Command{
	Use:   "show <plan-id> <version>",
	Short: "Print a plan's nodes and edges",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := newEngine(cmd)
		if err != nil {
			return err
		}
		if cleanup != nil {
			defer cleanup()
		}

		p, err := engine.DescribePlan(args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("%s@%s (entry: %s)\n\n", p.ID, p.Version, p.EntryNodeID)
		ids := make([]string, 0, len(p.Nodes))
		for id := range p.Nodes {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Println("Nodes:")
		for _, id := range ids {
			fmt.Printf("  %-20s %s\n", id, p.Nodes[id].Type)
		}
		fmt.Println("\nEdges:")
		for _, e := range p.Edges {
			cond := ""
			if e.Condition != "" {
				cond = "  if " + e.Condition
			}
			fmt.Printf("  %s -[%s]-> %s%s\n", e.From, e.MatchOutcome, e.To, cond)
		}
		return nil
	},
}

func init() {
	plansCmd.AddCommand(plansLsCmd)
	plansCmd.AddCommand(plansShowCmd)
	rootCmd.AddCommand(plansCmd)
}
