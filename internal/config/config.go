// Package config handles configuration loading and management for the
// conductor. It supports XDG config paths, project-level overrides,
// environment variables, and per-chief policy files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the conductor.
type Config struct {
	Conductor  ConductorConfig  `mapstructure:"conductor"`
	Plan       PlanConfig       `mapstructure:"plan"`
	Trajectory TrajectoryConfig `mapstructure:"trajectory"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	TUI        TUIConfig        `mapstructure:"tui"`
	Debug      DebugConfig      `mapstructure:"debug"`
}

// ConductorConfig holds scheduling loop settings.
type ConductorConfig struct {
	// TickInterval is the cadence of the local tick source.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// EMAAlpha is the smoothing factor for the cycle-duration average.
	EMAAlpha float64 `mapstructure:"ema_alpha"`
	// CycleWarnThreshold logs a warning when a full cycle exceeds it.
	CycleWarnThreshold time.Duration `mapstructure:"cycle_warn_threshold"`
	// PoliciesDir is the directory holding per-chief policy YAML files.
	PoliciesDir string `mapstructure:"policies_dir"`
}

// PlanConfig holds plan tree engine settings.
type PlanConfig struct {
	// Parallelism caps nodes acted on per scheduling cycle.
	Parallelism int `mapstructure:"parallelism"`
	// StallThreshold is how long a node may run before recovery.
	StallThreshold time.Duration `mapstructure:"stall_threshold"`
	// MaxAttempts bounds executions per node, retries included.
	MaxAttempts int `mapstructure:"max_attempts"`
	// Retention is how long terminal trees stay in the working set.
	Retention time.Duration `mapstructure:"retention"`
	// DBPath is the SQLite file for plan persistence. Empty selects
	// the default data path; ":memory:" keeps plans in memory only.
	DBPath string `mapstructure:"db_path"`
}

// TrajectoryConfig holds trajectory recorder settings.
type TrajectoryConfig struct {
	// Enabled toggles recording entirely.
	Enabled bool `mapstructure:"enabled"`
	// DBPath is the SQLite file for trajectory steps. Empty selects
	// the default data path.
	DBPath string `mapstructure:"db_path"`
}

// NATSConfig holds distributed tick source settings.
type NATSConfig struct {
	// Enabled switches the tick source from the local ticker to NATS.
	Enabled bool `mapstructure:"enabled"`
	// URL is the NATS server URL.
	URL string `mapstructure:"url"`
	// Subject is the tick subject to subscribe to.
	Subject string `mapstructure:"subject"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled toggles the /metrics listener.
	Enabled bool `mapstructure:"enabled"`
	// ListenAddr is the address the metrics endpoint binds to.
	ListenAddr string `mapstructure:"listen_addr"`
}

// TUIConfig holds monitor display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	// Enabled toggles the file-backed debug log.
	Enabled bool `mapstructure:"enabled"`
	// LogPath is the debug log file. Empty selects the default data
	// path.
	LogPath string `mapstructure:"log_path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (CONDUCTOR_*)
// 2. Project config (.conductor.yaml in current directory or parent)
// 3. User config (~/.config/conductor/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("CONDUCTOR")
	v.AutomaticEnv()
	v.BindEnv("nats.url", "CONDUCTOR_NATS_URL", "NATS_URL")
	v.BindEnv("nats.subject", "CONDUCTOR_NATS_SUBJECT")
	v.BindEnv("metrics.listen_addr", "CONDUCTOR_METRICS_ADDR")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyPathDefaults(cfg)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyPathDefaults(cfg)
	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("conductor.tick_interval", cfg.Conductor.TickInterval.String())
	v.Set("conductor.ema_alpha", cfg.Conductor.EMAAlpha)
	v.Set("conductor.cycle_warn_threshold", cfg.Conductor.CycleWarnThreshold.String())
	v.Set("conductor.policies_dir", cfg.Conductor.PoliciesDir)
	v.Set("plan.parallelism", cfg.Plan.Parallelism)
	v.Set("plan.stall_threshold", cfg.Plan.StallThreshold.String())
	v.Set("plan.max_attempts", cfg.Plan.MaxAttempts)
	v.Set("plan.retention", cfg.Plan.Retention.String())
	v.Set("plan.db_path", cfg.Plan.DBPath)
	v.Set("trajectory.enabled", cfg.Trajectory.Enabled)
	v.Set("trajectory.db_path", cfg.Trajectory.DBPath)
	v.Set("nats.enabled", cfg.NATS.Enabled)
	v.Set("nats.url", cfg.NATS.URL)
	v.Set("nats.subject", cfg.NATS.Subject)
	v.Set("metrics.enabled", cfg.Metrics.Enabled)
	v.Set("metrics.listen_addr", cfg.Metrics.ListenAddr)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())
	v.Set("debug.enabled", cfg.Debug.Enabled)
	v.Set("debug.log_path", cfg.Debug.LogPath)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Scheduling loop defaults
	v.SetDefault("conductor.tick_interval", "1s")
	v.SetDefault("conductor.ema_alpha", 0.2)
	v.SetDefault("conductor.cycle_warn_threshold", "800ms")
	v.SetDefault("conductor.policies_dir", "")

	// Plan tree defaults
	v.SetDefault("plan.parallelism", 4)
	v.SetDefault("plan.stall_threshold", "30s")
	v.SetDefault("plan.max_attempts", 3)
	v.SetDefault("plan.retention", "10m")
	v.SetDefault("plan.db_path", "")

	// Trajectory defaults
	v.SetDefault("trajectory.enabled", true)
	v.SetDefault("trajectory.db_path", "")

	// Tick source defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject", "conductor.tick.v1")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9464")

	// TUI defaults
	v.SetDefault("tui.refresh_rate", "100ms")

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.log_path", "")
}

// applyPathDefaults fills in data-dir derived paths left empty.
func applyPathDefaults(cfg *Config) {
	dataDir := getUserDataDir()
	if cfg.Plan.DBPath == "" {
		cfg.Plan.DBPath = filepath.Join(dataDir, "plans.db")
	}
	if cfg.Trajectory.DBPath == "" {
		cfg.Trajectory.DBPath = filepath.Join(dataDir, "trajectory.db")
	}
	if cfg.Debug.LogPath == "" {
		cfg.Debug.LogPath = filepath.Join(dataDir, "debug.log")
	}
}

// getUserConfigDir returns the XDG config directory for the conductor.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "conductor")
	}

	// Fall back to ~/.config/conductor
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "conductor")
	}
	return filepath.Join(home, ".config", "conductor")
}

// getUserDataDir returns the XDG data directory for the conductor.
func getUserDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "conductor")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "conductor")
	}
	return filepath.Join(home, ".local", "share", "conductor")
}

// findProjectConfig searches for .conductor.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".conductor.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	cfg := &Config{
		Conductor: ConductorConfig{
			TickInterval:       time.Second,
			EMAAlpha:           0.2,
			CycleWarnThreshold: 800 * time.Millisecond,
		},
		Plan: PlanConfig{
			Parallelism:    4,
			StallThreshold: 30 * time.Second,
			MaxAttempts:    3,
			Retention:      10 * time.Minute,
		},
		Trajectory: TrajectoryConfig{
			Enabled: true,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Subject: "conductor.tick.v1",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9464",
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
	applyPathDefaults(cfg)
	return cfg
}
