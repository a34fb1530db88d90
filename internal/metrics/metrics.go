// Package metrics exposes the sentinel's Prometheus collectors
package metrics

import (
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Watch cycle outcomes.
const (
	CycleIdle     = "idle"     // no window on record
	CyclePaused   = "paused"   // watching disabled, capture refreshed
	CycleFound    = "found"    // reference present
	CycleNotFound = "notfound" // reference absent, alert raised
	CycleReused   = "reused"   // band unchanged, previous verdict kept
	CycleGone     = "gone"     // window lost
	CycleTimeout  = "timeout"
	CycleStale    = "stale" // state moved on mid-cycle
	CycleError    = "error"
)

// Metrics holds all sentinel metrics
type Metrics struct {
	// Gauges read through GaugeFuncs
	Watching     atomic.Uint64 // 0 = off, 1 = on
	MatchPending atomic.Uint64
	lastDistance atomic.Uint64 // float64 bits

	cycles     *prometheus.CounterVec
	alerts     *prometheus.CounterVec
	windowLost prometheus.Counter
	steps      *prometheus.HistogramVec
	breakers   *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_watch_cycles_total",
			Help: "Watch cycles by outcome",
		}, []string{"outcome"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_alerts_total",
			Help: "Alert tones by outcome",
		}, []string{"outcome"}),
		windowLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_window_lost_total",
			Help: "Times the target window disappeared",
		}),
		steps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_step_duration_seconds",
			Help:    "Duration of traced steps (capture, match, detection)",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"step", "status"}),
		breakers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinel_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
	}
	m.lastDistance.Store(math.Float64bits(math.NaN()))
	m.register()
	return m
}

func (m *Metrics) register() {
	m.registry.MustRegister(m.cycles, m.alerts, m.windowLost, m.steps, m.breakers)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sentinel_watching",
			Help: "Watching enabled (0=off, 1=on)",
		},
		func() float64 { return float64(m.Watching.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sentinel_match_pending",
			Help: "Reference image found in the last cycle (0=no, 1=yes)",
		},
		func() float64 { return float64(m.MatchPending.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sentinel_last_match_distance",
			Help: "Distance of the last found match (NaN when none)",
		},
		func() float64 { return m.LastDistance() },
	))
}

// Cycle counts one watch cycle outcome.
func (m *Metrics) Cycle(outcome string) {
	m.cycles.WithLabelValues(outcome).Inc()
}

// Alert counts one alert outcome.
func (m *Metrics) Alert(outcome string) {
	m.alerts.WithLabelValues(outcome).Inc()
}

// WindowLost counts a lost target window.
func (m *Metrics) WindowLost() {
	m.windowLost.Inc()
}

// ObserveStep records a finished span. Its signature matches trace.Observer.
func (m *Metrics) ObserveStep(name string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.steps.WithLabelValues(name, status).Observe(d.Seconds())
}

// BreakerState records a breaker transition.
func (m *Metrics) BreakerState(name string, state uint32) {
	m.breakers.WithLabelValues(name).Set(float64(state))
}

// SetVerdict updates the pending gauge and the last distance.
func (m *Metrics) SetVerdict(found bool, distance float64) {
	if found {
		m.MatchPending.Store(1)
		m.lastDistance.Store(math.Float64bits(distance))
		return
	}
	m.MatchPending.Store(0)
	m.lastDistance.Store(math.Float64bits(math.NaN()))
}

// SetWatching updates the watching gauge.
func (m *Metrics) SetWatching(on bool) {
	if on {
		m.Watching.Store(1)
	} else {
		m.Watching.Store(0)
	}
}

// LastDistance returns the distance of the last found match.
func (m *Metrics) LastDistance() float64 {
	return math.Float64frombits(m.lastDistance.Load())
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
