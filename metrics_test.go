package networking

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollectorRecordsRequests(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequest("POST /api/x", AuthSigned, "success", 200, 10*time.Millisecond)
	mc.RecordRequest("POST /api/x", AuthSigned, "success", 200, 20*time.Millisecond)
	mc.RecordError(HTTPFailure, "POST /api/x")

	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("POST /api/x", AuthSigned.String(), "success", "200")); got != 2 {
		t.Errorf("Expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues(string(HTTPFailure), "POST /api/x")); got != 1 {
		t.Errorf("Expected 1 error, got %v", got)
	}
	if got := testutil.CollectAndCount(mc.requestDuration); got != 1 {
		t.Errorf("Expected 1 duration series, got %d", got)
	}
}

func TestMetricsCollectorInFlight(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	mc.RecordRequestStart("e")
	mc.RecordRequestStart("e")
	mc.RecordRequestEnd("e")

	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("e")); got != 1 {
		t.Errorf("Expected 1 in flight, got %v", got)
	}
}

func TestMetricsCollectorTokens(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	mc.RecordTokenCacheHit("t")
	mc.RecordTokenCacheMiss("t")
	mc.RecordTokenCacheMiss("t")
	mc.RecordTokenAcquisition("t", true, time.Millisecond)
	mc.RecordTokenAcquisition("t", false, time.Millisecond)

	if got := testutil.ToFloat64(mc.tokenCacheHits.WithLabelValues("t")); got != 1 {
		t.Errorf("Expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(mc.tokenCacheMisses.WithLabelValues("t")); got != 2 {
		t.Errorf("Expected 2 misses, got %v", got)
	}
	if got := testutil.ToFloat64(mc.tokenAcquisitions.WithLabelValues("t", "failure")); got != 1 {
		t.Errorf("Expected 1 failed acquisition, got %v", got)
	}
}

func TestMetricsCollectorCircuitState(t *testing.T) {
	mc := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())

	mc.RecordCircuitBreakerState("api", StateHalfOpen)
	if got := testutil.ToFloat64(mc.circuitBreakerState.WithLabelValues("api")); got != 2 {
		t.Errorf("Expected half-open (2), got %v", got)
	}
	mc.RecordEncryptionDeclined("e")
	if got := testutil.ToFloat64(mc.encryptionDeclines.WithLabelValues("e")); got != 1 {
		t.Errorf("Expected 1 decline, got %v", got)
	}
}

func TestMetricsCollectorRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	if NewMetricsCollectorWithRegistry(registry).GetRegistry() != registry {
		t.Error("Expected GetRegistry to return the registry")
	}

	wrapped := prometheus.WrapRegistererWithPrefix("app_", prometheus.NewRegistry())
	if NewMetricsCollectorWithRegistry(wrapped).GetRegistry() != nil {
		t.Error("Expected nil registry for a non-Registry registerer")
	}
}

func TestMetricsCollectorBuildInfo(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	if got := testutil.ToFloat64(mc.buildInfo); got != 1 {
		t.Errorf("Expected build info 1, got %v", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	labels := map[string]string{}
	for _, mf := range families {
		if mf.GetName() != "networking_build_info" {
			continue
		}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
	}
	if labels["version"] != Version || labels["commit"] != GitCommit {
		t.Errorf("Expected version labels from the build metadata, got %v", labels)
	}
}

func TestNilMetricsCollectorIsNoop(t *testing.T) {
	var mc *MetricsCollector

	mc.RecordRequest("e", AuthNone, "success", 200, time.Millisecond)
	mc.RecordRequestStart("e")
	mc.RecordRequestEnd("e")
	mc.RecordError(TransportFailure, "e")
	mc.RecordTokenCacheHit("t")
	mc.RecordTokenCacheMiss("t")
	mc.RecordTokenAcquisition("t", true, time.Millisecond)
	mc.RecordEncryptionDeclined("e")
	mc.RecordCircuitBreakerState("n", StateOpen)

	if mc.GetRegistry() != nil {
		t.Error("Expected nil registry from nil collector")
	}
}
