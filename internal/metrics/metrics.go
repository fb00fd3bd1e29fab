package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/harun/skillbridge/pkg/plugin"
)

const namespace = "skillbridge"

// Metrics holds all Prometheus metrics of the bridge
type Metrics struct {
	registry *prometheus.Registry

	CallsTotal             *prometheus.CounterVec
	CallDuration           *prometheus.HistogramVec
	PluginsRegistered      prometheus.Gauge
	DiscoveryFailuresTotal prometheus.Counter
	DecodeFailuresTotal    prometheus.Counter
}

var _ plugin.Recorder = (*Metrics)(nil)

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Total number of plugin calls by outcome",
			},
			[]string{"plugin", "method", "status"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Duration of plugin calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"plugin"},
		),
		PluginsRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plugins_registered",
				Help:      "Number of registered plugin keys",
			},
		),
		DiscoveryFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discovery_failures_total",
				Help:      "Total number of plugin files that failed to load",
			},
		),
		DecodeFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_failures_total",
				Help:      "Total number of input lines that were not valid messages",
			},
		),
	}

	registry.MustRegister(
		m.CallsTotal,
		m.CallDuration,
		m.PluginsRegistered,
		m.DiscoveryFailuresTotal,
		m.DecodeFailuresTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveCall implements plugin.Recorder
func (m *Metrics) ObserveCall(key, method, code string, elapsed time.Duration) {
	m.CallsTotal.WithLabelValues(key, method, code).Inc()
	m.CallDuration.WithLabelValues(key).Observe(elapsed.Seconds())
}

// ObserveDiscoveryFailure implements plugin.Recorder
func (m *Metrics) ObserveDiscoveryFailure() {
	m.DiscoveryFailuresTotal.Inc()
}

// SetRegistered implements plugin.Recorder
func (m *Metrics) SetRegistered(count int) {
	m.PluginsRegistered.Set(float64(count))
}

// ObserveDecodeFailure counts an input line that could not be decoded
func (m *Metrics) ObserveDecodeFailure() {
	m.DecodeFailuresTotal.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
