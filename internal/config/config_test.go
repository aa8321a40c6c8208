package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Conductor.TickInterval != time.Second {
		t.Errorf("tick interval = %v, want 1s", cfg.Conductor.TickInterval)
	}
	if cfg.Conductor.EMAAlpha != 0.2 {
		t.Errorf("ema alpha = %v, want 0.2", cfg.Conductor.EMAAlpha)
	}
	if cfg.Plan.Parallelism != 4 {
		t.Errorf("parallelism = %d, want 4", cfg.Plan.Parallelism)
	}
	if cfg.Plan.StallThreshold != 30*time.Second {
		t.Errorf("stall threshold = %v, want 30s", cfg.Plan.StallThreshold)
	}
	if cfg.Plan.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", cfg.Plan.MaxAttempts)
	}
	if !cfg.Trajectory.Enabled {
		t.Error("expected trajectory recording enabled by default")
	}
	if cfg.NATS.Enabled {
		t.Error("expected NATS disabled by default")
	}
	if cfg.NATS.Subject != "conductor.tick.v1" {
		t.Errorf("nats subject = %q", cfg.NATS.Subject)
	}
	if cfg.Plan.DBPath == "" || cfg.Trajectory.DBPath == "" {
		t.Error("expected data paths to be filled in")
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `conductor:
  tick_interval: 250ms
  ema_alpha: 0.5
plan:
  parallelism: 8
  stall_threshold: 45s
  max_attempts: 5
nats:
  enabled: true
  url: nats://broker:4222
metrics:
  enabled: true
  listen_addr: ":9000"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Conductor.TickInterval != 250*time.Millisecond {
		t.Errorf("tick interval = %v, want 250ms", cfg.Conductor.TickInterval)
	}
	if cfg.Conductor.EMAAlpha != 0.5 {
		t.Errorf("ema alpha = %v, want 0.5", cfg.Conductor.EMAAlpha)
	}
	if cfg.Plan.Parallelism != 8 {
		t.Errorf("parallelism = %d, want 8", cfg.Plan.Parallelism)
	}
	if cfg.Plan.StallThreshold != 45*time.Second {
		t.Errorf("stall threshold = %v, want 45s", cfg.Plan.StallThreshold)
	}
	if !cfg.NATS.Enabled {
		t.Error("expected NATS enabled")
	}
	if cfg.NATS.URL != "nats://broker:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
	if cfg.Metrics.ListenAddr != ":9000" {
		t.Errorf("metrics addr = %q", cfg.Metrics.ListenAddr)
	}

	// Unspecified values keep their defaults.
	if cfg.Plan.Retention != 10*time.Minute {
		t.Errorf("retention = %v, want default 10m", cfg.Plan.Retention)
	}
	if cfg.TUI.RefreshRate != 100*time.Millisecond {
		t.Errorf("refresh rate = %v, want default 100ms", cfg.TUI.RefreshRate)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()

	queuePolicy := `domain: queue
tick_every: 1
thresholds:
  pending_high: 3
  energy_low: 0.3
parameters:
  strategy: priority
`
	memoryPolicy := `disabled: true
tick_every: 10
`
	if err := os.WriteFile(filepath.Join(dir, "queue.yaml"), []byte(queuePolicy), 0644); err != nil {
		t.Fatalf("write queue policy: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "memory.yml"), []byte(memoryPolicy), 0644); err != nil {
		t.Fatalf("write memory policy: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644); err != nil {
		t.Fatalf("write non-policy file: %v", err)
	}

	set, err := LoadPolicies(dir)
	if err != nil {
		t.Fatalf("load policies: %v", err)
	}

	queue := set.Get("queue")
	if queue == nil {
		t.Fatal("expected queue policy")
	}
	if got := queue.Threshold("pending_high", 0); got != 3 {
		t.Errorf("pending_high = %v, want 3", got)
	}
	if got := queue.Threshold("absent", 0.7); got != 0.7 {
		t.Errorf("absent threshold fallback = %v, want 0.7", got)
	}
	if queue.Parameters["strategy"] != "priority" {
		t.Errorf("strategy = %v, want priority", queue.Parameters["strategy"])
	}

	// Domain inferred from the file name.
	memory := set.Get("memory")
	if memory == nil {
		t.Fatal("expected memory policy inferred from file name")
	}
	if !memory.Disabled {
		t.Error("expected memory policy disabled")
	}

	if set.Get("bridge") != nil {
		t.Error("expected nil policy for unknown domain")
	}
	if len(set.Domains()) != 2 {
		t.Errorf("domains = %v, want 2 entries", set.Domains())
	}
}

func TestLoadPoliciesMissingDir(t *testing.T) {
	set, err := LoadPolicies(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("expected empty set for missing dir, got error: %v", err)
	}
	if len(set.Domains()) != 0 {
		t.Errorf("expected empty set, got %v", set.Domains())
	}
}

func TestPolicyActive(t *testing.T) {
	tests := []struct {
		name   string
		policy *ChiefPolicy
		tick   uint64
		want   bool
	}{
		{"nil policy always active", nil, 7, true},
		{"disabled never active", &ChiefPolicy{Disabled: true}, 10, false},
		{"every tick by default", &ChiefPolicy{}, 3, true},
		{"tick_every matches", &ChiefPolicy{TickEvery: 5}, 10, true},
		{"tick_every misses", &ChiefPolicy{TickEvery: 5}, 11, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Active(tt.tick); got != tt.want {
				t.Errorf("Active(%d) = %v, want %v", tt.tick, got, tt.want)
			}
		})
	}
}

func TestPolicyWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.yaml")
	if err := os.WriteFile(path, []byte("domain: queue\nthresholds:\n  energy_low: 0.3\n"), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	set := NewPolicySet()
	reloaded := make(chan struct{}, 4)
	w, err := WatchPolicies(dir, set, func(*PolicySet) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch policies: %v", err)
	}
	defer w.Close()

	if got := set.Get("queue").Threshold("energy_low", 0); got != 0.3 {
		t.Fatalf("initial energy_low = %v, want 0.3", got)
	}

	if err := os.WriteFile(path, []byte("domain: queue\nthresholds:\n  energy_low: 0.5\n"), 0644); err != nil {
		t.Fatalf("rewrite policy: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-reloaded:
			if got := set.Get("queue").Threshold("energy_low", 0); got == 0.5 {
				return
			}
		case <-deadline:
			t.Fatalf("policy reload not observed; energy_low = %v",
				set.Get("queue").Threshold("energy_low", 0))
		}
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Plan.Parallelism = 6
	cfg.NATS.Enabled = true

	if err := Save(cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	loaded, err := LoadFromPath(GetUserConfigPath())
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if loaded.Plan.Parallelism != 6 {
		t.Errorf("parallelism = %d, want 6", loaded.Plan.Parallelism)
	}
	if !loaded.NATS.Enabled {
		t.Error("expected NATS enabled after round trip")
	}
}
