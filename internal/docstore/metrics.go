package docstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Load and save outcomes recorded by Metrics.
const (
	resultCacheHit = "cache_hit"
	resultReparse  = "reparse"
	resultOK       = "ok"
	resultError    = "error"
	resultConflict = "conflict"
)

// Metrics exposes gateway activity to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	loads   *prometheus.CounterVec
	saves   *prometheus.CounterVec
	version prometheus.Gauge
}

// NewMetrics registers the gateway collectors with reg. A nil reg creates
// unregistered collectors, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		loads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "officedesk",
			Subsystem: "document",
			Name:      "loads_total",
			Help:      "Document loads by result (cache_hit, reparse, error).",
		}, []string{"result"}),
		saves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "officedesk",
			Subsystem: "document",
			Name:      "saves_total",
			Help:      "Document saves by result (ok, error, conflict).",
		}, []string{"result"}),
		version: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "officedesk",
			Subsystem: "document",
			Name:      "cache_version",
			Help:      "Version of the cached document.",
		}),
	}
}

func (m *Metrics) load(result string) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(result).Inc()
}

func (m *Metrics) save(result string) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(result).Inc()
}

func (m *Metrics) setVersion(v uint64) {
	if m == nil {
		return
	}
	m.version.Set(float64(v))
}
