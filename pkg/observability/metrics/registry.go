// Package metrics exposes Prometheus metrics for relation synchronization.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry manages Prometheus metrics registration and exposure. It carries
// the synchronization metrics and the Go runtime collectors.
type Registry struct {
	registry *prometheus.Registry
	sync     *SyncMetrics
}

// NewRegistry creates a registry with the sync metrics and runtime
// collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	sm := NewSyncMetrics()
	reg.MustRegister(sm.collectors()...)

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Registry{registry: reg, sync: sm}
}

// Sync returns the synchronization metrics bound to this registry.
func (r *Registry) Sync() *SyncMetrics {
	return r.sync
}

// Register registers an additional collector.
func (r *Registry) Register(collector prometheus.Collector) error {
	return r.registry.Register(collector)
}

// MustRegister registers collectors and panics on error.
func (r *Registry) MustRegister(collectors ...prometheus.Collector) {
	r.registry.MustRegister(collectors...)
}

// Handler returns an HTTP handler that exposes metrics in Prometheus format.
//
//	http.Handle("/metrics", registry.Handler())
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer returns the underlying prometheus.Gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
