// prometheus.go - Prometheus text-format exporter for the /metrics endpoint.
package server

import (
	"fmt"
	"net/http"
	"strings"
)

// PrometheusExporter converts internal metrics to Prometheus exposition format.
type PrometheusExporter struct {
	version string
}

// NewPrometheusExporter creates an exporter stamping the given version.
func NewPrometheusExporter(version string) *PrometheusExporter {
	if version == "" {
		version = "dev"
	}
	return &PrometheusExporter{version: version}
}

// Handler returns an HTTP handler for the /metrics endpoint
func (p *PrometheusExporter) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := GetMetrics().Snapshot()

		var out strings.Builder

		out.WriteString("# HELP st_info Application version info\n")
		out.WriteString("# TYPE st_info gauge\n")
		fmt.Fprintf(&out, "st_info{version=%q} 1\n\n", p.version)

		writeCounter(&out, "st_intakes_total", "Files accepted into blob storage", s.IntakesTotal)
		writeCounter(&out, "st_intake_bytes_total", "Bytes accepted into blob storage", s.IntakeBytesTotal)
		writeCounter(&out, "st_transfers_completed_total", "Transfers that reached COMPLETED", s.TransfersCompleted)
		writeCounter(&out, "st_transfers_failed_total", "Transfers that reached FAILED", s.TransfersFailed)
		writeCounter(&out, "st_processing_seconds_total", "Cumulative background processing time", int64(s.ProcessingDurTotal.Seconds()))
		writeCounter(&out, "st_downloads_total", "Completed content downloads", s.DownloadsTotal)
		writeCounter(&out, "st_download_bytes_total", "Bytes delivered to receivers", s.DownloadBytesTotal)
		writeCounter(&out, "st_download_errors_total", "Failed content downloads", s.DownloadErrorsTotal)
		writeCounter(&out, "st_login_attempts_total", "Login attempts", s.LoginAttemptsTotal)
		writeCounter(&out, "st_login_success_total", "Successful logins", s.LoginSuccessTotal)
		writeCounter(&out, "st_login_failures_total", "Failed logins", s.LoginFailuresTotal)
		writeCounter(&out, "st_requests_total", "HTTP requests handled", s.RequestsTotal)
		writeCounter(&out, "st_request_errors_4xx_total", "HTTP 4xx responses", s.RequestErrors4xx)
		writeCounter(&out, "st_request_errors_5xx_total", "HTTP 5xx responses", s.RequestErrors5xx)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(out.String()))
	}
}

func writeCounter(out *strings.Builder, name, help string, value int64) {
	fmt.Fprintf(out, "# HELP %s %s\n", name, help)
	fmt.Fprintf(out, "# TYPE %s counter\n", name)
	fmt.Fprintf(out, "%s %d\n\n", name, value)
}
