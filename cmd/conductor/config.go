package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conductor-sh/conductor/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		dim := color.New(color.Faint)
		if p := config.GetProjectConfigPath(); p != "" {
			dim.Printf("project config: %s\n", p)
		}
		dim.Printf("user config:    %s\n\n", config.GetUserConfigPath())

		fmt.Printf("conductor.tick_interval:        %s\n", cfg.Conductor.TickInterval)
		fmt.Printf("conductor.ema_alpha:            %g\n", cfg.Conductor.EMAAlpha)
		fmt.Printf("conductor.cycle_warn_threshold: %s\n", cfg.Conductor.CycleWarnThreshold)
		fmt.Printf("conductor.policies_dir:         %s\n", cfg.Conductor.PoliciesDir)
		fmt.Printf("plan.parallelism:               %d\n", cfg.Plan.Parallelism)
		fmt.Printf("plan.stall_threshold:           %s\n", cfg.Plan.StallThreshold)
		fmt.Printf("plan.max_attempts:              %d\n", cfg.Plan.MaxAttempts)
		fmt.Printf("plan.retention:                 %s\n", cfg.Plan.Retention)
		fmt.Printf("plan.db_path:                   %s\n", cfg.Plan.DBPath)
		fmt.Printf("trajectory.enabled:             %t\n", cfg.Trajectory.Enabled)
		fmt.Printf("trajectory.db_path:             %s\n", cfg.Trajectory.DBPath)
		fmt.Printf("nats.enabled:                   %t\n", cfg.NATS.Enabled)
		fmt.Printf("nats.url:                       %s\n", cfg.NATS.URL)
		fmt.Printf("nats.subject:                   %s\n", cfg.NATS.Subject)
		fmt.Printf("metrics.enabled:                %t\n", cfg.Metrics.Enabled)
		fmt.Printf("metrics.listen_addr:            %s\n", cfg.Metrics.ListenAddr)
		fmt.Printf("tui.refresh_rate:               %s\n", cfg.TUI.RefreshRate)
		fmt.Printf("debug.enabled:                  %t\n", cfg.Debug.Enabled)
		fmt.Printf("debug.log_path:                 %s\n", cfg.Debug.LogPath)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the user config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetUserConfigPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := config.Save(config.Default()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("wrote default config to %s\n", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file paths",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.GetUserConfigPath())
		if p := config.GetProjectConfigPath(); p != "" {
			fmt.Println(p)
		}
	},
}

func init() {
	configViewCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "config file (default: XDG config + project overrides)")
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}
