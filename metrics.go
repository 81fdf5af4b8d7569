package rcforest

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the optional Prometheus instrumentation a Forest reports
// through, following the pack's own prometheus/client_golang usage
// (DataDog-datadog-agent's telemetryimpl package builds its counters and
// histograms the same way, via *Vec constructors registered against a
// caller-supplied prometheus.Registerer). Metrics is nil-safe: a Forest
// built without a registerer records nothing.
type Metrics struct {
	updatesTotal    prometheus.Counter
	evictionsTotal  prometheus.Counter
	scoreDuration   prometheus.Histogram
	treeMass        prometheus.Gauge
	sampleSize      prometheus.Gauge
}

// NewMetrics constructs and registers a Metrics against reg. reg may be
// nil, in which case every subsequent call is a no-op.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		updatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Total number of points submitted to the forest.",
		}),
		evictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sampler_evictions_total",
			Help:      "Total number of reservoir evictions across every tree's sampler.",
		}),
		scoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score_duration_seconds",
			Help:      "Wall-clock time spent computing one anomaly score.",
			Buckets:   prometheus.DefBuckets,
		}),
		treeMass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tree_mass",
			Help:      "Total point mass held by the first tree, sampled on update.",
		}),
		sampleSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_size",
			Help:      "Current number of entries held by the first tree's sampler, sampled on update.",
		}),
	}
	reg.MustRegister(m.updatesTotal, m.evictionsTotal, m.scoreDuration, m.treeMass, m.sampleSize)
	return m
}

func (m *Metrics) observeUpdate() {
	if m == nil {
		return
	}
	m.updatesTotal.Inc()
}

func (m *Metrics) observeEviction() {
	if m == nil {
		return
	}
	m.evictionsTotal.Inc()
}

func (m *Metrics) observeScoreDuration(seconds float64) {
	if m == nil {
		return
	}
	m.scoreDuration.Observe(seconds)
}

func (m *Metrics) setTreeMass(mass int) {
	if m == nil {
		return
	}
	m.treeMass.Set(float64(mass))
}

func (m *Metrics) setSampleSize(size int) {
	if m == nil {
		return
	}
	m.sampleSize.Set(float64(size))
}
