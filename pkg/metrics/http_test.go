package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe(http.MethodPost, "/api/v1/events/{eventId}/verify", http.StatusOK, 20*time.Millisecond)
	m.Observe(http.MethodPost, "/api/v1/events/{eventId}/verify", http.StatusConflict, 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "http_requests_total", "status", "409"); err != nil || got != 1 {
		t.Fatalf("expected one 409, got %f (%v)", got, err)
	}
	sum, err := fetchHistogramSum(mfs, "http_request_duration_seconds", "route", "/api/v1/events/{eventId}/verify")
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	if sum < 0.029 || sum > 0.031 {
		t.Fatalf("unexpected duration sum %f", sum)
	}
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.Observe(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	NewHTTPMetrics(nil).Observe(http.MethodGet, "/", http.StatusOK, time.Millisecond)
}
