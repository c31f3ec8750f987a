package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for taxonomy governance.
type Metrics struct {
	Transitions *prometheus.CounterVec
	Corrections *prometheus.CounterVec
}

// New creates and registers all taxonomy metrics.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tidemark_channel_transitions_total",
			Help: "Channel lifecycle transitions by target state",
		}, []string{"to_state"}),
		Corrections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tidemark_channel_corrections_total",
			Help: "Channel assignment corrections by entity type",
		}, []string{"entity_type"}),
	}
}
