package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillflow/quillflow"
	"github.com/quillflow/quillflow/internal/logging"
	"github.com/quillflow/quillflow/pkg/adapters/badger"
	"github.com/quillflow/quillflow/pkg/adapters/memory"
	"github.com/quillflow/quillflow/pkg/adapters/redis"
	"github.com/quillflow/quillflow/pkg/plan"
	"github.com/quillflow/quillflow/pkg/ports"
)

var rootCmd = &cobra.Command{
	Use:   "quillflow",
	Short: "Quillflow is a document interaction workflow engine",
	Long:  `Quillflow drives document-producing workflows through plans of typed nodes: generation tasks, decision gates, multi-turn intake, QA loops, and terminal outcomes.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("plans", ".", "Directory containing plan definitions")
	rootCmd.PersistentFlags().String("store", "memory", "State store backend: memory, redis, or badger")
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address (store=redis)")
	rootCmd.PersistentFlags().String("badger-path", "./quillflow-data", "Badger database path (store=badger)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}

// newLogger builds the CLI logger from the persistent flags.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return logging.New(level)
}

// newStore builds the configured persistence backend. The returned
// cleanup releases backend resources and may be nil.
func newStore(cmd *cobra.Command) (ports.StatePersistence, func() error, error) {
	kind, _ := cmd.Flags().GetString("store")
	switch kind {
	case "memory":
		return memory.NewStore(), nil, nil
	case "redis":
		addr, _ := cmd.Flags().GetString("redis-addr")
		return redis.New(addr, "", 0), nil, nil
	case "badger":
		path, _ := cmd.Flags().GetString("badger-path")
		store, err := badger.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", kind)
	}
}

// newEngine wires an engine over the flag-configured source and store.
func newEngine(cmd *cobra.Command, opts ...quillflow.Option) (*quillflow.Engine, func() error, error) {
	plansDir, _ := cmd.Flags().GetString("plans")
	store, cleanup, err := newStore(cmd)
	if err != nil {
		return nil, nil, err
	}

	opts = append([]quillflow.Option{
		quillflow.WithStore(store),
		quillflow.WithLogger(newLogger(cmd)),
	}, opts...)

	eng := quillflow.New(plan.NewFSSource(plansDir), opts...)
	return eng, cleanup, nil
}
