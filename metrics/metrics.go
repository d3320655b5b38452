// Package metrics exposes coordinator-side Prometheus instrumentation. The
// core protocol has no observability of its own (see SPEC_FULL.md's ambient
// stack section); this package is an enrichment grounded in how the rest of
// the example pack instruments long-running network daemons, served over a
// dedicated HTTP listener rather than folded into the control-plane socket.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the gauges and counters a coordinator updates over the
// lifetime of a single job.
type Registry struct {
	reg *prometheus.Registry

	RegisteredClients    prometheus.Gauge
	BarrierEpochsTotal   prometheus.Counter
	MutexGrantsTotal     prometheus.Counter
	MutexConstructsTotal prometheus.Counter
}

// New builds a Registry with all metrics registered against a private
// prometheus.Registry (not the global default, so embedding this package in
// another binary never collides with its metrics).
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		RegisteredClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heimdallr",
			Subsystem: "daemon",
			Name:      "registered_clients",
			Help:      "Number of clients registered for the current job.",
		}),
		BarrierEpochsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heimdallr",
			Subsystem: "daemon",
			Name:      "barrier_epochs_released_total",
			Help:      "Number of barrier epochs fully released.",
		}),
		MutexGrantsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heimdallr",
			Subsystem: "daemon",
			Name:      "mutex_grants_total",
			Help:      "Number of distributed mutex lock grants.",
		}),
		MutexConstructsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heimdallr",
			Subsystem: "daemon",
			Name:      "mutex_constructs_total",
			Help:      "Number of distributed mutexes fully constructed.",
		}),
	}

	reg.MustRegister(m.RegisteredClients, m.BarrierEpochsTotal, m.MutexGrantsTotal, m.MutexConstructsTotal)
	return m
}

// Serve starts an HTTP server exposing the registry at /metrics and blocks
// until ctx is canceled or the server fails.
func (m *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics: serve %s: %w", addr, err)
		}
		return nil
	}
}
