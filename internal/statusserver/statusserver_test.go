package statusserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/user/myreplicate/pkg/supervisor"
)

type stubReporter struct {
	report supervisor.Report
}

func (s stubReporter) Report() supervisor.Report { return s.report }

func TestHandleReadyzReportsNotReadyWhilePaused(t *testing.T) {
	srv := New(":0", stubReporter{report: supervisor.Report{SourcesPaused: true}}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while sources paused, got %d", rec.Code)
	}
}

func TestHandleReadyzReportsReadyOnceStreaming(t *testing.T) {
	srv := New(":0", stubReporter{report: supervisor.Report{SourcesPaused: false}}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 once streaming, got %d", rec.Code)
	}
}

func TestHandleStatusReturnsJSON(t *testing.T) {
	report := supervisor.Report{
		Sources:  []supervisor.WorkerReport{{Name: "src1"}},
		BusUsage: 0.42,
	}
	srv := New(":0", stubReporter{report: report}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"src1"`) || !strings.Contains(body, `"bus_usage":0.42`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHealthzAndLivezAlwaysOK(t *testing.T) {
	srv := New(":0", stubReporter{}, zerolog.Nop())
	for _, path := range []string{"/healthz", "/livez"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.routes().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
