package obs

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors, registered on a
// private registry.
type Metrics struct {
	RequestsTotal      prometheus.Counter
	CacheHitsTotal     prometheus.Counter
	AggregationsTotal  prometheus.Counter
	DegradedTotal      *prometheus.CounterVec
	ProviderErrors     *prometheus.CounterVec
	ProviderLatency    *prometheus.HistogramVec
	BreakerState       *prometheus.GaugeVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec

	registry *prometheus.Registry
	logger   *slog.Logger
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg *prometheus.Registry, logger *slog.Logger) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "location_data_requests_total",
			Help: "Total number of location data requests",
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "location_data_cache_hits_total",
			Help: "Number of requests served from the result cache",
		}),
		AggregationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "location_data_aggregations_total",
			Help: "Number of aggregations computed from providers",
		}),
		DegradedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "location_data_degraded_total",
			Help: "Number of result blocks replaced by fallback data",
		}, []string{"category"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_errors_total",
			Help: "Errors returned by each provider",
		}, []string{"provider"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provider_latency_seconds",
			Help:    "Latency of provider calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "provider_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		}, []string{"provider"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		registry: reg,
		logger:   logger,
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.CacheHitsTotal,
		m.AggregationsTotal,
		m.DegradedTotal,
		m.ProviderErrors,
		m.ProviderLatency,
		m.BreakerState,
		m.HTTPRequestsTotal,
		m.HTTPRequestLatency,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.RequestsTotal.Inc()
}

// IncCacheHits increments the cache hits counter.
func (m *Metrics) IncCacheHits() {
	m.CacheHitsTotal.Inc()
}

// IncAggregations increments the computed aggregations counter.
func (m *Metrics) IncAggregations() {
	m.AggregationsTotal.Inc()
}

// IncDegraded records a result block served from fallback data.
func (m *Metrics) IncDegraded(category string) {
	m.DegradedTotal.WithLabelValues(category).Inc()
}

// IncProviderErrors increments the error counter of a provider.
func (m *Metrics) IncProviderErrors(provider string) {
	m.ProviderErrors.WithLabelValues(provider).Inc()
}

// ObserveProviderLatency records the duration of one provider call.
func (m *Metrics) ObserveProviderLatency(provider string, d time.Duration) {
	m.ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// SetBreakerState records the circuit breaker state of a provider.
func (m *Metrics) SetBreakerState(provider string, state int) {
	m.BreakerState.WithLabelValues(provider).Set(float64(state))
}

// Handler returns a handler for /metrics requests.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(m.logger.Handler(), slog.LevelError),
	})
}

// HealthHandler returns a handler for /healthz requests.
func HealthHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write health response", "error", err)
		}
	}
}
