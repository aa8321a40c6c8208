package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conductor-sh/conductor/internal/trajectory"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded trajectories as JSON Lines",
	Long: `Export streams every recorded trajectory step as one JSON object per
line, ordered by (chief, tick), for consumption by an external
training pipeline. Writes to stdout unless --output is given.`,
	RunE: exportTrajectories,
}

func init() {
	exportCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "config file (default: XDG config + project overrides)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
}

func exportTrajectories(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sink, err := trajectory.OpenSQLite(cfg.Trajectory.DBPath)
	if err != nil {
		return fmt.Errorf("open trajectory store: %w", err)
	}
	defer sink.Close()

	out := os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	count, err := sink.Export(func(rec trajectory.Record) error {
		return enc.Encode(rec)
	})
	if err != nil {
		return fmt.Errorf("export trajectory steps: %w", err)
	}

	if exportOutput != "" {
		fmt.Fprintf(os.Stderr, "exported %d steps to %s\n", count, exportOutput)
	}
	return nil
}
