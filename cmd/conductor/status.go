package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conductor-sh/conductor/internal/conductor"
	"github.com/conductor-sh/conductor/internal/plantree"
	"github.com/conductor-sh/conductor/internal/trajectory"
	"github.com/conductor-sh/conductor/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show plan and trajectory state",
	Long: `Status reads the persisted plan and trajectory databases and prints
active trees with their node progress, terminal tree counts, and the
number of recorded trajectory steps.`,
	RunE: showStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "config file (default: XDG config + project overrides)")
}

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	header := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed)

	header.Println("Recent Cycles")
	if hist, err := conductor.OpenCycleHistory(historyPath(cfg.Plan.DBPath)); err == nil {
		cycles, err := hist.Recent(10)
		if err != nil || len(cycles) == 0 {
			dim.Println("  no recorded cycles")
		}
		for _, c := range cycles {
			fmt.Printf("  tick %-6d %d actions in %s", c.Tick, c.ActionsTaken, c.Duration.Round(time.Millisecond))
			if c.FailedTurns > 0 {
				bad.Printf("  %d failed turns", c.FailedTurns)
			}
			fmt.Println()
		}
		hist.Close()
	} else {
		dim.Println("  no recorded cycles")
	}

	fmt.Println()
	header.Println("Plan Trees")
	dim.Printf("  db: %s\n", cfg.Plan.DBPath)

	store, err := openPlanStore(cfg.Plan.DBPath)
	if err != nil {
		return fmt.Errorf("open plan store: %w", err)
	}
	defer store.Close()
	engine := plantree.NewEngine(store, plantree.Config{})

	active, err := engine.ActiveTrees()
	if err != nil {
		return fmt.Errorf("list active trees: %w", err)
	}
	if len(active) == 0 {
		dim.Println("  no active trees")
	}
	for _, t := range active {
		fmt.Printf("  %s  %s", t.ID[:8], t.Goal)
		view, err := engine.BuildView(t.ID)
		if err != nil {
			fmt.Println()
			continue
		}
		counts := view.CountByStatus()
		total := 0
		for _, n := range counts {
			total += n
		}
		fmt.Printf("  [%s]  %d/%d nodes done", t.Status, counts[models.NodeStatusDone], total)
		if failed := counts[models.NodeStatusFailed]; failed > 0 {
			bad.Printf("  %d failed", failed)
		}
		fmt.Println()
	}

	completed, failed, cancelled := 0, 0, 0
	if trees, err := store.ListTreesByStatus(models.TreeStatusCompleted); err == nil {
		completed = len(trees)
	}
	if trees, err := store.ListTreesByStatus(models.TreeStatusFailed); err == nil {
		failed = len(trees)
	}
	if trees, err := store.ListTreesByStatus(models.TreeStatusCancelled); err == nil {
		cancelled = len(trees)
	}
	fmt.Print("  history: ")
	good.Printf("%d completed", completed)
	fmt.Print(", ")
	bad.Printf("%d failed", failed)
	fmt.Printf(", %d cancelled\n", cancelled)

	fmt.Println()
	header.Println("Trajectory")
	dim.Printf("  db: %s\n", cfg.Trajectory.DBPath)
	if !cfg.Trajectory.Enabled {
		dim.Println("  recording disabled")
		return nil
	}
	if _, err := os.Stat(cfg.Trajectory.DBPath); err != nil {
		dim.Println("  no recorded steps yet")
		return nil
	}

	sink, err := trajectory.OpenSQLite(cfg.Trajectory.DBPath)
	if err != nil {
		return fmt.Errorf("open trajectory store: %w", err)
	}
	defer sink.Close()

	perChief := make(map[string]int)
	total, err := sink.Export(func(rec trajectory.Record) error {
		perChief[rec.Chief]++
		return nil
	})
	if err != nil {
		return fmt.Errorf("read trajectory steps: %w", err)
	}
	fmt.Printf("  %d recorded steps\n", total)
	for chief, n := range perChief {
		dim.Printf("    %-10s %d\n", chief, n)
	}
	return nil
}
