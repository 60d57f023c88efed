package networking

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the dispatch pipeline and
// token cache. It is safe for concurrent use, and a nil collector is a no-op.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec

	tokenCacheHits      *prometheus.CounterVec
	tokenCacheMisses    *prometheus.CounterVec
	tokenAcquisitions   *prometheus.CounterVec
	tokenAcquireLatency *prometheus.HistogramVec

	encryptionDeclines *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	buildInfo prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	mc := &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "networking_requests_total",
				Help: "Total number of dispatched requests by outcome",
			},
			[]string{"endpoint", "auth", "outcome", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "networking_request_duration_seconds",
				Help:    "Duration of dispatched requests in seconds, auth resolution included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "auth", "outcome"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "networking_requests_in_flight",
				Help: "Number of requests currently being dispatched",
			},
			[]string{"endpoint"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "networking_errors_total",
				Help: "Total number of failed calls by error kind",
			},
			[]string{"kind", "endpoint"},
		),
		tokenCacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "networking_token_cache_hits_total",
				Help: "Total number of token cache hits",
			},
			[]string{"token"},
		),
		tokenCacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "networking_token_cache_misses_total",
				Help: "Total number of token cache misses",
			},
			[]string{"token"},
		),
		tokenAcquisitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "networking_token_acquisitions_total",
				Help: "Total number of token acquisition requests",
			},
			[]string{"token", "result"},
		),
		tokenAcquireLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "networking_token_acquisition_duration_seconds",
				Help:    "Duration of token acquisition requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"token"},
		),
		encryptionDeclines: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "networking_encryption_declines_total",
				Help: "Total number of requests sent in plain text because the encryptor declined",
			},
			[]string{"endpoint"},
		),
		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "networking_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		buildInfo: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "networking_build_info",
				Help:        "Library build metadata, always 1",
				ConstLabels: GetVersionInfo(),
			},
		),
	}
	mc.buildInfo.Set(1)
	mc.registry, _ = registry.(*prometheus.Registry)

	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(endpoint string, auth AuthMode, outcome string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.requestsTotal.WithLabelValues(endpoint, auth.String(), outcome, strconv.Itoa(statusCode)).Inc()
	mc.requestDuration.WithLabelValues(endpoint, auth.String(), outcome).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(endpoint).Dec()
}

// RecordError increments error counter by kind.
func (mc *MetricsCollector) RecordError(kind ErrorKind, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(string(kind), endpoint).Inc()
}

// RecordTokenCacheHit increments token cache hit counter.
func (mc *MetricsCollector) RecordTokenCacheHit(token string) {
	if mc == nil {
		return
	}

	mc.tokenCacheHits.WithLabelValues(token).Inc()
}

// RecordTokenCacheMiss increments token cache miss counter.
func (mc *MetricsCollector) RecordTokenCacheMiss(token string) {
	if mc == nil {
		return
	}

	mc.tokenCacheMisses.WithLabelValues(token).Inc()
}

// RecordTokenAcquisition counts one issuer round trip.
func (mc *MetricsCollector) RecordTokenAcquisition(token string, success bool, duration time.Duration) {
	if mc == nil {
		return
	}

	result := "success"
	if !success {
		result = "failure"
	}
	mc.tokenAcquisitions.WithLabelValues(token, result).Inc()
	mc.tokenAcquireLatency.WithLabelValues(token).Observe(duration.Seconds())
}

// RecordEncryptionDeclined counts a request sent in plain text after the
// encryptor declined.
func (mc *MetricsCollector) RecordEncryptionDeclined(endpoint string) {
	if mc == nil {
		return
	}

	mc.encryptionDeclines.WithLabelValues(endpoint).Inc()
}

// RecordCircuitBreakerState sets gauge to breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	var stateValue float64
	switch state {
	case StateClosed:
		stateValue = 0
	case StateOpen:
		stateValue = 1
	case StateHalfOpen:
		stateValue = 2
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(stateValue)
}

// GetRegistry exposes the underlying prometheus registry. It is nil when the
// collector was built on a Registerer that is not a *prometheus.Registry.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}
