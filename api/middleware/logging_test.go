package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/metrics"
)

func TestLoggingRecordsRouteTemplate(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(Logging(logg, m))
	r.Get("/api/v1/rooms/{roomId}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("room"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/rooms/r-101", nil))

	out := buf.String()
	if !strings.Contains(out, `"route":"/api/v1/rooms/{roomId}"`) || !strings.Contains(out, `"bytes":4`) {
		t.Fatalf("unexpected entry %s", out)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var series int
	for _, mf := range families {
		if mf.GetName() == "nursecall_http_requests_total" {
			series = len(mf.GetMetric())
		}
	}
	if series != 1 {
		t.Fatalf("expected one request series, got %d", series)
	}
}

func TestLoggingWarnsOnServerErrorsAndQuietsProbes(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	h := Logging(logg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if buf.Len() != 0 {
		t.Fatalf("probe should log at debug only: %s", buf.String())
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	if !strings.Contains(buf.String(), `"level":"warn"`) || !strings.Contains(buf.String(), "request.failed") {
		t.Fatalf("expected warn entry, got %s", buf.String())
	}
}
