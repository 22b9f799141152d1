package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsByRouteAndClass(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.ObserveRequest("POST", "/api/v1/alerts", 201, 20*time.Millisecond)
	m.ObserveRequest("POST", "/api/v1/alerts", 409, 5*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)
	done := m.StreamOpened()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if v, err := fetchValue(mfs, "nursecall_http_requests_total", map[string]string{"route": "/api/v1/alerts", "class": "4xx"}); err != nil || v != 1 {
		t.Fatalf("4xx count=%v err=%v", v, err)
	}
	if v, err := fetchValue(mfs, "nursecall_http_requests_total", map[string]string{"route": "unmatched"}); err != nil || v != 1 {
		t.Fatalf("unmatched count=%v err=%v", v, err)
	}
	if v, _ := fetchValue(mfs, "nursecall_http_live_streams_open", nil); v != 1 {
		t.Fatalf("expected one open stream, got %v", v)
	}

	done()
	mfs, _ = reg.Gather()
	if v, _ := fetchValue(mfs, "nursecall_http_live_streams_open", nil); v != 0 {
		t.Fatalf("expected stream closed, got %v", v)
	}
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
	m.StreamOpened()()
	NewHTTPMetrics(nil).ObserveRequest("GET", "/", 500, 0)
}
