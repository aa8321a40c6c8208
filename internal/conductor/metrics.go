package conductor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the conductor's telemetry via Prometheus. The
// cycle-duration EMA is kept alongside a raw histogram so operators
// get both the smoothed trend and the distribution.
type Metrics struct {
	cyclesTotal   prometheus.Counter
	cycleDuration prometheus.Histogram
	cycleEMA      prometheus.Gauge
	actionsTotal  *prometheus.CounterVec
	turnErrors    *prometheus.CounterVec
	turnReward    *prometheus.GaugeVec
	droppedEvents prometheus.CounterFunc

	// ema holds the exponential moving average of cycle duration in
	// seconds.
	ema      float64
	emaInit  bool
	emaAlpha float64
	emaMu    sync.Mutex
}

// NewMetrics creates conductor metrics registered against reg. The
// emitter supplies the dropped-event count; alpha is the EMA smoothing
// factor.
func NewMetrics(reg prometheus.Registerer, emitter *EventEmitter, alpha float64) *Metrics {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	m := &Metrics{
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "cycles_total",
			Help:      "Total scheduling cycles run.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "conductor",
			Name:      "cycle_duration_seconds",
			Help:      "Distribution of full-cycle durations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		cycleEMA: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "conductor",
			Name:      "cycle_duration_ema_seconds",
			Help:      "Exponential moving average of cycle duration.",
		}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "actions_total",
			Help:      "Actions taken, by chief and action tag.",
		}, []string{"chief", "tag"}),
		turnErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conductor",
			Name:      "turn_errors_total",
			Help:      "Aborted chief turns, by chief and failure stage.",
		}, []string{"chief", "stage"}),
		turnReward: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "conductor",
			Name:      "turn_reward",
			Help:      "Most recent reported reward, by chief.",
		}, []string{"chief"}),
		emaAlpha: alpha,
	}
	m.droppedEvents = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "conductor",
		Name:      "dropped_events_total",
		Help:      "Events dropped because the event channel was full.",
	}, func() float64 {
		if emitter == nil {
			return 0
		}
		return float64(emitter.DroppedCount())
	})

	if reg != nil {
		reg.MustRegister(
			m.cyclesTotal,
			m.cycleDuration,
			m.cycleEMA,
			m.actionsTotal,
			m.turnErrors,
			m.turnReward,
			m.droppedEvents,
		)
	}
	return m
}

// ObserveCycle records one finished cycle and updates the EMA.
// Returns the updated EMA in seconds.
func (m *Metrics) ObserveCycle(seconds float64) float64 {
	m.cyclesTotal.Inc()
	m.cycleDuration.Observe(seconds)

	m.emaMu.Lock()
	if !m.emaInit {
		m.ema = seconds
		m.emaInit = true
	} else {
		m.ema = m.emaAlpha*seconds + (1-m.emaAlpha)*m.ema
	}
	ema := m.ema
	m.emaMu.Unlock()

	m.cycleEMA.Set(ema)
	return ema
}

// CycleEMA returns the current cycle-duration EMA in seconds.
func (m *Metrics) CycleEMA() float64 {
	m.emaMu.Lock()
	defer m.emaMu.Unlock()
	return m.ema
}

// CountAction records one applied action.
func (m *Metrics) CountAction(chiefName, tag string) {
	m.actionsTotal.WithLabelValues(chiefName, tag).Inc()
}

// CountTurnError records one aborted turn.
func (m *Metrics) CountTurnError(chiefName, stage string) {
	m.turnErrors.WithLabelValues(chiefName, stage).Inc()
}

// SetReward records a chief's most recent reward.
func (m *Metrics) SetReward(chiefName string, reward float64) {
	m.turnReward.WithLabelValues(chiefName).Set(reward)
}
