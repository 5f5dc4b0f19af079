// Package metrics exposes module lifecycle counters and an optional local
// diagnostics listener.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Lifecycle stages used as the "stage" label on failures.
const (
	StageDiscovery  = "discovery"
	StageInitialize = "initialize"
	StageRegister   = "register"
	StageShutdown   = "shutdown"
)

// Lifecycle holds the module lifecycle collectors. A nil *Lifecycle is valid
// and records nothing.
type Lifecycle struct {
	discovered  prometheus.Counter
	failures    *prometheus.CounterVec
	live        prometheus.Gauge
	initSeconds *prometheus.HistogramVec
}

// NewLifecycle creates the collectors and registers them with reg.
func NewLifecycle(reg prometheus.Registerer) *Lifecycle {
	l := &Lifecycle{
		discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nextool",
			Subsystem: "modules",
			Name:      "discovered_total",
			Help:      "Module candidates resolved and instantiated by the loader.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nextool",
			Subsystem: "modules",
			Name:      "failures_total",
			Help:      "Module failures by lifecycle stage.",
		}, []string{"stage"}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nextool",
			Subsystem: "modules",
			Name:      "live",
			Help:      "Modules that initialized and are mounted.",
		}),
		initSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nextool",
			Subsystem: "modules",
			Name:      "initialize_seconds",
			Help:      "Time spent in module Initialize.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"module"}),
	}
	reg.MustRegister(l.discovered, l.failures, l.live, l.initSeconds)
	return l
}

// Discovered counts one instantiated candidate.
func (l *Lifecycle) Discovered() {
	if l == nil {
		return
	}
	l.discovered.Inc()
}

// Failed counts one failure at stage.
func (l *Lifecycle) Failed(stage string) {
	if l == nil {
		return
	}
	l.failures.WithLabelValues(stage).Inc()
}

// SetLive sets the live module gauge.
func (l *Lifecycle) SetLive(n int) {
	if l == nil {
		return
	}
	l.live.Set(float64(n))
}

// ObserveInit records how long module took to initialize.
func (l *Lifecycle) ObserveInit(module string, d time.Duration) {
	if l == nil {
		return
	}
	l.initSeconds.WithLabelValues(module).Observe(d.Seconds())
}
