// Package metrics instruments the runtime with Prometheus counters and
// histograms, implementing runtime.Metrics so the runtime package itself
// never imports prometheus directly.
//
// Grounded on sttp/Metrics.go's package-level counter/histogram
// registration shape, generalized from one fixed metadata-refresh metric
// set to a per-rig-labeled vector set (one process instruments many rigs).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric this process exposes and implements
// runtime.Metrics.
type Registry struct {
	state        *prometheus.GaugeVec
	ioErrors     *prometheus.CounterVec
	timeouts     *prometheus.CounterVec
	exchangeDur  *prometheus.HistogramVec
	pollCycles   *prometheus.CounterVec
}

// states mirrors runtime's state constants as gauge label values; kept as
// plain strings here so metrics does not need to import runtime.
var states = []string{"not_connected", "initializing", "online", "not_responding", "disabled"}

// NewRegistry builds and registers every holyrig metric against reg.
// Callers typically pass prometheus.DefaultRegisterer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "holyrig",
			Subsystem: "rig",
			Name:      "state",
			Help:      "1 if the rig is currently in this state, 0 otherwise.",
		}, []string{"rig", "state"}),

		ioErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "holyrig",
			Subsystem: "rig",
			Name:      "io_errors_total",
			Help:      "Unrecoverable serial I/O errors observed per rig.",
		}, []string{"rig"}),

		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "holyrig",
			Subsystem: "rig",
			Name:      "timeouts_total",
			Help:      "Per-exchange timeouts observed per rig.",
		}, []string{"rig"}),

		exchangeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "holyrig",
			Subsystem: "rig",
			Name:      "exchange_duration_seconds",
			Help:      "Duration of a single write+reply serial exchange.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"rig"}),

		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "holyrig",
			Subsystem: "rig",
			Name:      "status_poll_total",
			Help:      "Completed status-poll exchanges per rig.",
		}, []string{"rig"}),
	}

	reg.MustRegister(r.state, r.ioErrors, r.timeouts, r.exchangeDur, r.pollCycles)
	return r
}

// SetState zeroes every other known state's gauge for rigID and sets the
// current one to 1, so a Grafana panel can graph "time spent per state"
// without needing a separate counter per transition.
func (r *Registry) SetState(rigID, state string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1.0
		}
		r.state.WithLabelValues(rigID, s).Set(v)
	}
}

func (r *Registry) IncIOError(rigID string) { r.ioErrors.WithLabelValues(rigID).Inc() }
func (r *Registry) IncTimeout(rigID string) { r.timeouts.WithLabelValues(rigID).Inc() }
func (r *Registry) IncPollCycle(rigID string) { r.pollCycles.WithLabelValues(rigID).Inc() }

func (r *Registry) ObserveExchange(rigID string, d time.Duration) {
	r.exchangeDur.WithLabelValues(rigID).Observe(d.Seconds())
}
