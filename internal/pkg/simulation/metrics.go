package simulation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports replication progress and results. A nil *Metrics
// records nothing.
type Metrics struct {
	replications *prometheus.CounterVec
	ens          *prometheus.HistogramVec
	saidi        *prometheus.HistogramVec
	saifi        *prometheus.GaugeVec
	tick         prometheus.Histogram
}

// NewMetrics registers the simulation metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		replications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relsim_replications_total",
			Help: "Replications finished, by outcome.",
		}, []string{"system", "outcome"}),
		ens: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relsim_replication_ens_mwh",
			Help:    "Energy not supplied per replication in MWh.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"system"}),
		saidi: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relsim_replication_saidi_hours",
			Help:    "SAIDI per replication in hours.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"system"}),
		saifi: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relsim_mean_saifi",
			Help: "Running mean of SAIFI over the finished replications.",
		}, []string{"system"}),
		tick: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relsim_tick_duration_seconds",
			Help:    "Wall time spent on one simulated tick.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
}

func (m *Metrics) observeTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tick.Observe(d.Seconds())
}

func (m *Metrics) observeReplication(system string, s Summary) {
	if m == nil {
		return
	}
	if s.Failed() {
		m.replications.WithLabelValues(system, "failed").Inc()
		return
	}
	m.replications.WithLabelValues(system, "completed").Inc()
	m.ens.WithLabelValues(system).Observe(s.System.ENS)
	m.saidi.WithLabelValues(system).Observe(s.System.SAIDI)
}

func (m *Metrics) setMeanSAIFI(system string, v float64) {
	if m == nil {
		return
	}
	m.saifi.WithLabelValues(system).Set(v)
}
