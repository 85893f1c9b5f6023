package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wamesh"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive     prometheus.Gauge
	SessionTransitions *prometheus.CounterVec // label: to

	// Send metrics
	SendsTotal *prometheus.CounterVec // labels: mode (sync|async), result

	// Blob store metrics
	BlobSavesTotal  *prometheus.CounterVec // label: result
	BlobPrunedTotal prometheus.Counter

	// Transport metrics
	TransportDisconnects prometheus.Counter

	// Circuit breaker state per component (0=closed, 1=half-open, 2=open)
	CircuitBreakerState *prometheus.GaugeVec
}

// NewRegistry creates a registry with Go runtime, process and wamesh
// metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of session handles held by the manager",
		}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions by target state",
		}, []string{"to"}),
		SendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Outbound sends by convention and result",
		}, []string{"mode", "result"}),
		BlobSavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_saves_total",
			Help:      "Session blob saves by result",
		}, []string{"result"}),
		BlobPrunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_pruned_total",
			Help:      "Superseded session blob versions deleted after a save",
		}),
		TransportDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_disconnects_total",
			Help:      "Disconnect events reported by transports",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"component"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.SessionsActive,
		r.SessionTransitions,
		r.SendsTotal,
		r.BlobSavesTotal,
		r.BlobPrunedTotal,
		r.TransportDisconnects,
		r.CircuitBreakerState,
	)
	return r
}

// Prometheus returns the underlying registry so other components (the
// Badger engine, custom collectors) can register on it.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// MustRegister registers additional collectors.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.registry.MustRegister(cs...)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
