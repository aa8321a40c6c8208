package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Domain-orchestration engine",
	Long: `Conductor is a tick-driven control-loop scheduler. It coordinates a
set of pluggable domain controllers ("chiefs"): on every tick each
registered chief observes its domain, decides on one action, applies
it, and reports a reward. Chiefs that manage goal decomposition run a
hierarchical plan tree with priority scheduling and stall recovery.
Rewards are recorded as trajectories for offline policy training.

Start the scheduler with 'conductor run', optionally passing goals to
decompose. Inspect state with 'conductor status', watch it live with
'conductor run --tui', and dump training data with 'conductor export'.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
