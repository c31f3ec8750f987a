package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the ingestion pipeline.
type Metrics struct {
	EventsAdmitted    prometheus.Counter
	EventsDuplicate   prometheus.Counter
	EventsQuarantined *prometheus.CounterVec
	PIIRedactions     prometheus.Counter
	DedupeFastPath    prometheus.Counter
}

// New creates and registers all ingestion metrics.
func New() *Metrics {
	return &Metrics{
		EventsAdmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tidemark_events_admitted_total",
			Help: "Canonical events admitted on first delivery",
		}),
		EventsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tidemark_events_duplicate_total",
			Help: "Redeliveries collapsed onto an existing canonical event",
		}),
		EventsQuarantined: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tidemark_events_quarantined_total",
			Help: "Admission attempts routed to the dead-letter store",
		}, []string{"error_code"}),
		PIIRedactions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tidemark_pii_redactions_total",
			Help: "PII values redacted by the runtime middleware",
		}),
		DedupeFastPath: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tidemark_dedupe_fastpath_total",
			Help: "Duplicates detected by the Redis hint before the store",
		}),
	}
}

// ObserveRedactions satisfies pii.RedactionObserver.
func (m *Metrics) ObserveRedactions(n int) {
	m.PIIRedactions.Add(float64(n))
}
