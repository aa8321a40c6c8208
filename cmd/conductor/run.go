package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/conductor-sh/conductor/internal/chiefs"
	"github.com/conductor-sh/conductor/internal/conductor"
	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/planstore"
	"github.com/conductor-sh/conductor/internal/plantree"
	"github.com/conductor-sh/conductor/internal/tick"
	"github.com/conductor-sh/conductor/internal/trajectory"
	"github.com/conductor-sh/conductor/internal/tui"
)

var (
	runConfigPath string
	runWithTUI    bool
)

var runCmd = &cobra.Command{
	Use:   "run [goal ...]",
	Short: "Start the scheduling loop",
	Long: `Run starts the conductor: it registers the built-in chiefs, seeds
any goals given as arguments into the plan domain, subscribes to the
tick source, and processes cycles until interrupted.`,
	RunE: runConductor,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "config file (default: XDG config + project overrides)")
	runCmd.Flags().BoolVar(&runWithTUI, "tui", false, "show the live monitor while running")
}

func runConductor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var logger *conductor.DebugLogger
	if cfg.Debug.Enabled {
		logger, err = conductor.NewDebugLogger(cfg.Debug.LogPath)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer logger.Close()
	}

	policies := config.NewPolicySet()
	var watcher *config.PolicyWatcher
	if cfg.Conductor.PoliciesDir != "" {
		policies, err = config.LoadPolicies(cfg.Conductor.PoliciesDir)
		if err != nil {
			return fmt.Errorf("load policies: %w", err)
		}
		watcher, err = config.WatchPolicies(cfg.Conductor.PoliciesDir, policies, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: policy hot-reload disabled: %v\n", err)
		} else {
			defer watcher.Close()
		}
	}

	store, err := openPlanStore(cfg.Plan.DBPath)
	if err != nil {
		return fmt.Errorf("open plan store: %w", err)
	}
	defer store.Close()

	engine := plantree.NewEngine(store, plantree.Config{
		Parallelism:    cfg.Plan.Parallelism,
		StallThreshold: cfg.Plan.StallThreshold,
		MaxAttempts:    cfg.Plan.MaxAttempts,
		Retention:      cfg.Plan.Retention,
	})

	var sink trajectory.Sink
	if cfg.Trajectory.Enabled {
		sqlSink, err := trajectory.OpenSQLite(cfg.Trajectory.DBPath)
		if err != nil {
			return fmt.Errorf("open trajectory store: %w", err)
		}
		defer sqlSink.Close()
		sink = sqlSink
	}

	var registry prometheus.Registerer
	if cfg.Metrics.Enabled {
		registry = prometheus.DefaultRegisterer
	}

	history, err := conductor.OpenCycleHistory(historyPath(cfg.Plan.DBPath))
	if err != nil {
		return fmt.Errorf("open cycle history: %w", err)
	}
	defer history.Close()

	var onCycle func(*conductor.CycleSummary)
	if cfg.NATS.Enabled {
		publisher, err := conductor.NewCyclePublisher(cfg.NATS.URL, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cycle publishing disabled: %v\n", err)
		} else {
			defer publisher.Close()
			onCycle = publisher.Publish
		}
	}

	c := conductor.New(conductor.Options{
		Sink:               sink,
		Policies:           policies,
		Logger:             logger,
		Registry:           registry,
		EMAAlpha:           cfg.Conductor.EMAAlpha,
		CycleWarnThreshold: cfg.Conductor.CycleWarnThreshold,
		History:            history,
		OnCycle:            onCycle,
	})
	defer c.Close()

	c.RegisterChief(chiefs.NewQueueChief(policies))
	c.RegisterChief(chiefs.NewMemoryChief(policies))
	c.RegisterChief(chiefs.NewBridgeChief(policies))
	c.RegisterChief(chiefs.NewJanitorChief(policies))
	c.RegisterChief(chiefs.NewPlanChief(engine, policies))

	for _, goal := range args {
		chiefs.QueueGoal(c.Context("plan"), goal)
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.ListenAddr)
	}

	natsURL := ""
	if cfg.NATS.Enabled {
		natsURL = cfg.NATS.URL
	}
	src, err := tick.Connect(natsURL, cfg.NATS.Subject, cfg.Conductor.TickInterval)
	if err != nil {
		return fmt.Errorf("connect tick source: %w", err)
	}
	defer src.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if runWithTUI {
		return runMonitored(ctx, c, src, cfg.TUI.RefreshRate)
	}

	fmt.Printf("conductor running with %d chiefs (tick every %s)\n", len(c.Chiefs()), cfg.Conductor.TickInterval)
	if err := c.Run(ctx, src); err != nil && err != context.Canceled {
		return err
	}
	fmt.Println("conductor stopped")
	return nil
}

// runMonitored runs the scheduling loop in the background and blocks on
// the live monitor. Quitting the monitor stops the run.
func runMonitored(ctx context.Context, c *conductor.Conductor, src tick.Source, refresh time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		err := c.Run(ctx, src)
		if err == context.Canceled {
			err = nil
		}
		runErr <- err
	}()

	if err := tui.Run(ctx, c, refresh); err != nil {
		return err
	}
	cancel()
	return <-runErr
}

// historyPath places the cycle history next to the plan database, or
// in memory when plans are in memory.
func historyPath(planDBPath string) string {
	if planDBPath == ":memory:" {
		return ":memory:"
	}
	return filepath.Join(filepath.Dir(planDBPath), "history.db")
}

// openPlanStore selects the plan persistence backend. The reserved
// path ":memory:" keeps plans in memory only.
func openPlanStore(dbPath string) (planstore.Store, error) {
	if dbPath == ":memory:" {
		return planstore.NewMemoryStore(), nil
	}
	return planstore.Open(dbPath)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: metrics listener failed: %v\n", err)
	}
}

// loadConfig honors the --config flag, falling back to the standard
// search path.
func loadConfig() (*config.Config, error) {
	if runConfigPath != "" {
		return config.LoadFromPath(runConfigPath)
	}
	return config.Load()
}
