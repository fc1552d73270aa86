package server

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler(t *testing.T) {
	GetMetrics().RecordLoginAttempt()
	GetMetrics().RecordLoginSuccess()

	rec := httptest.NewRecorder()
	NewPrometheusExporter("1.2.3").Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `st_info{version="1.2.3"} 1`) {
		t.Fatalf("missing version info line:\n%s", body)
	}
	for _, name := range []string{
		"st_intakes_total",
		"st_transfers_completed_total",
		"st_transfers_failed_total",
		"st_downloads_total",
		"st_login_attempts_total",
		"st_requests_total",
	} {
		if !strings.Contains(body, "# TYPE "+name+" counter") {
			t.Errorf("missing counter %s", name)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type = %q", ct)
	}
}
