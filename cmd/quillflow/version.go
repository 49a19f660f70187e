package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillflow/quillflow"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of quillflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("quillflow version %s\n", strings.TrimSpace(quillflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
