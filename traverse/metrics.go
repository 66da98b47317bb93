package traverse

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts traversal activity.
type Metrics struct {
	Fetches   prometheus.Counter
	CacheHits prometheus.Counter
	// Shared counts callers served by a fetch that other callers joined.
	Shared prometheus.Counter
	// Errors is labelled by kind: transport, timeout or decode.
	Errors *prometheus.CounterVec
}

// NewMetrics creates the traversal metrics and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hypermedia",
			Subsystem: "traverse",
			Name:      "fetches_total",
			Help:      "Total number of documents requested from the transport",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hypermedia",
			Subsystem: "traverse",
			Name:      "cache_hits_total",
			Help:      "Total number of follows served from the session cache",
		}),
		Shared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hypermedia",
			Subsystem: "traverse",
			Name:      "shared_fetches_total",
			Help:      "Total number of callers served by a coalesced in-flight fetch",
		}),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hypermedia",
				Subsystem: "traverse",
				Name:      "errors_total",
				Help:      "Total number of failed fetches by kind",
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Fetches, m.CacheHits, m.Shared, m.Errors)
	}
	return m
}
