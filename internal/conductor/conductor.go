package conductor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/tick"
	"github.com/conductor-sh/conductor/internal/trajectory"
	"github.com/conductor-sh/conductor/pkg/models"
)

// Options configures a Conductor.
type Options struct {
	// Sink receives trajectory steps from successful turns. Nil
	// disables recording.
	Sink trajectory.Sink
	// Policies tunes per-chief cadence and thresholds. Nil means every
	// chief runs every tick.
	Policies *config.PolicySet
	// Logger is the debug logger. Nil selects a no-op logger.
	Logger *DebugLogger
	// Registry receives the conductor's Prometheus metrics. Nil skips
	// registration but metrics still update internally.
	Registry prometheus.Registerer
	// EMAAlpha is the smoothing factor for the cycle-duration average.
	EMAAlpha float64
	// CycleWarnThreshold logs a warning when a cycle exceeds it. Zero
	// disables the warning.
	CycleWarnThreshold time.Duration
	// EventBuffer sizes the event channel. Zero selects 128.
	EventBuffer int
	// ActionLogSize bounds the retained action records. Zero selects
	// 256.
	ActionLogSize int
	// History persists cycle summaries. Nil disables persistence.
	History *CycleHistory
	// OnCycle is invoked with every completed cycle's summary, after
	// history and telemetry. Nil disables the hook.
	OnCycle func(*CycleSummary)
}

// Conductor is the tick-driven scheduler. It holds the chief registry,
// subscribes to a tick source, and on each tick runs every registered
// chief through observe, decide, act, and report, isolating failures
// per chief and aggregating telemetry.
type Conductor struct {
	registry  *ChiefRegistry
	sink      trajectory.Sink
	policies  *config.PolicySet
	emitter   *EventEmitter
	logger    *DebugLogger
	pauseCtrl *PauseController
	metrics   *Metrics
	actionLog *ActionLog
	history   *CycleHistory
	onCycle   func(*CycleSummary)

	// tickCount is the last processed tick sequence.
	tickCount atomic.Uint64
	// warnThreshold flags slow cycles in the debug log.
	warnThreshold time.Duration

	// states holds each chief's last successful observation. Retained
	// across paused ticks.
	states  map[string]models.Observation
	stateMu sync.RWMutex
}

// New creates a Conductor with the given options.
func New(opts Options) *Conductor {
	logger := opts.Logger
	if logger == nil {
		logger = NopLogger()
	}
	setPackageLogger(logger)

	bufferSize := opts.EventBuffer
	if bufferSize <= 0 {
		bufferSize = 128
	}
	emitter := NewEventEmitter(bufferSize)

	return &Conductor{
		registry:      NewChiefRegistry(),
		sink:          opts.Sink,
		policies:      opts.Policies,
		emitter:       emitter,
		logger:        logger,
		pauseCtrl:     NewPauseController(),
		metrics:       NewMetrics(opts.Registry, emitter, opts.EMAAlpha),
		actionLog:     NewActionLog(opts.ActionLogSize),
		history:       opts.History,
		onCycle:       opts.OnCycle,
		warnThreshold: opts.CycleWarnThreshold,
		states:        make(map[string]models.Observation),
	}
}

// RegisterChief adds a chief under its domain name. Exactly one chief
// is registered per domain; re-registration replaces, never duplicates.
func (c *Conductor) RegisterChief(impl chief.Chief) {
	c.registry.Register(impl)
	c.logger.Log("[conductor] registered chief %s", impl.Domain())
}

// UnregisterChief removes a chief and its domain context.
func (c *Conductor) UnregisterChief(domain string) {
	c.registry.Unregister(domain)
	c.logger.Log("[conductor] unregistered chief %s", domain)
}

// Context returns the domain context for a registered chief, or nil.
// Callers use it to seed initial domain state before the first tick.
func (c *Conductor) Context(domain string) *chief.DomainContext {
	return c.registry.Context(domain)
}

// Chiefs returns the registered domains in registration order.
func (c *Conductor) Chiefs() []string {
	return c.registry.Ordered()
}

// Pause stops cycles from starting. Arriving ticks are no-ops; chief
// states are retained from the last successful cycle.
func (c *Conductor) Pause() {
	c.pauseCtrl.Pause()
	c.emitter.Emit(ConductorEvent{Type: EventPaused, Timestamp: time.Now()})
}

// Resume re-enables cycle processing.
func (c *Conductor) Resume() {
	c.pauseCtrl.Resume()
	c.emitter.Emit(ConductorEvent{Type: EventResumed, Timestamp: time.Now()})
}

// IsPaused reports whether cycles are currently disabled.
func (c *Conductor) IsPaused() bool {
	return c.pauseCtrl.IsPaused()
}

// GetStates returns each chief's last successful observation.
func (c *Conductor) GetStates() map[string]models.Observation {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	out := make(map[string]models.Observation, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out
}

// TickCount returns the last processed tick sequence.
func (c *Conductor) TickCount() uint64 {
	return c.tickCount.Load()
}

// Events returns the conductor's event stream.
func (c *Conductor) Events() <-chan ConductorEvent {
	return c.emitter.Events()
}

// ActionLog returns the bounded log of recent action records.
func (c *Conductor) ActionLog() *ActionLog {
	return c.actionLog
}

// CycleEMA returns the cycle-duration EMA in seconds.
func (c *Conductor) CycleEMA() float64 {
	return c.metrics.CycleEMA()
}

// Tick runs one cycle manually with the next sequence number. Used by
// operators and tests for deterministic single-step execution.
func (c *Conductor) Tick() *CycleSummary {
	return c.Cycle(c.tickCount.Load() + 1)
}

// Run subscribes to the tick source and processes cycles until the
// context is cancelled or the source closes. Paused ticks are no-ops.
func (c *Conductor) Run(ctx context.Context, src tick.Source) error {
	c.logger.Log("[conductor] run loop started with %d chiefs", c.registry.Count())
	for {
		select {
		case <-ctx.Done():
			c.pauseCtrl.Stop()
			return ctx.Err()
		case t, ok := <-src.Ticks():
			if !ok {
				c.logger.Log("[conductor] tick source closed")
				return nil
			}
			if c.pauseCtrl.IsStopped() {
				return nil
			}
			if c.pauseCtrl.IsPaused() {
				c.logger.Log("[conductor] tick %d skipped (paused)", t.Seq)
				continue
			}
			c.Cycle(t.Seq)
		}
	}
}

// Cycle runs every registered chief through its full contract for the
// given tick. Chiefs run sequentially in registration order; a failing
// chief aborts only its own turn.
func (c *Conductor) Cycle(tickSeq uint64) *CycleSummary {
	start := time.Now()
	c.tickCount.Store(tickSeq)

	summary := &CycleSummary{Tick: tickSeq}

	c.emitter.Emit(ConductorEvent{
		Type:      EventCycleStarted,
		Tick:      tickSeq,
		Timestamp: start,
	})

	for _, domain := range c.registry.Ordered() {
		impl := c.registry.Get(domain)
		dctx := c.registry.Context(domain)
		if impl == nil || dctx == nil {
			// Unregistered mid-cycle.
			continue
		}
		summary.Chiefs = append(summary.Chiefs, domain)

		if c.policies != nil {
			if policy := c.policies.Get(domain); !policy.Active(tickSeq) {
				summary.Turns = append(summary.Turns, TurnSummary{Chief: domain, Skipped: true})
				continue
			}
		}

		turn := c.runTurn(domain, impl, dctx, tickSeq)
		summary.Turns = append(summary.Turns, turn)
		if turn.OK && turn.Dispatched {
			summary.ActionsTaken++
		}
	}

	summary.Duration = time.Since(start)
	ema := c.metrics.ObserveCycle(summary.Duration.Seconds())

	if c.warnThreshold > 0 && summary.Duration > c.warnThreshold {
		c.logger.Log("[conductor] slow cycle %d: %s (ema %.1fms)",
			tickSeq, summary.Duration, ema*1000)
	}

	c.emitter.Emit(ConductorEvent{
		Type:         EventCycleCompleted,
		Tick:         tickSeq,
		Duration:     summary.Duration,
		ActionsTaken: summary.ActionsTaken,
		Timestamp:    time.Now(),
	})

	if c.history != nil {
		if err := c.history.Append(summary); err != nil {
			c.logger.Log("[conductor] persist cycle %d: %v", tickSeq, err)
		}
	}
	if c.onCycle != nil {
		c.onCycle(summary)
	}

	return summary
}

// Close stops the conductor and releases the event channel. The
// trajectory sink is owned by the caller and is not closed here.
func (c *Conductor) Close() {
	c.pauseCtrl.Stop()
	c.emitter.Close()
}
