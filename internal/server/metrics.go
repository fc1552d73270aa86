// metrics.go - Process-local counters exposed via /metrics.
package server

import (
	"sync"
	"time"
)

// Metrics holds application metrics
type Metrics struct {
	mu sync.RWMutex

	// Intake metrics
	intakesTotal     int64
	intakeBytesTotal int64
	initiateDurTotal time.Duration

	// Transfer lifecycle metrics
	transfersCompleted int64
	transfersFailed    int64
	processingDurTotal time.Duration

	// Download metrics
	downloadsTotal      int64
	downloadBytesTotal  int64
	downloadErrorsTotal int64
	downloadDurTotal    time.Duration

	// Auth metrics
	loginAttemptsTotal int64
	loginSuccessTotal  int64
	loginFailuresTotal int64

	// System metrics
	requestsTotal    int64
	requestErrors4xx int64
	requestErrors5xx int64
}

var globalMetrics = &Metrics{}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordIntake records bytes accepted into the blob store.
func (m *Metrics) RecordIntake(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intakesTotal++
	m.intakeBytesTotal += bytes
}

// RecordInitiateDuration records end-to-end intake latency.
func (m *Metrics) RecordInitiateDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initiateDurTotal += d
}

// RecordTransferCompleted records a transfer reaching COMPLETED.
func (m *Metrics) RecordTransferCompleted(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfersCompleted++
	m.processingDurTotal += d
}

// RecordTransferFailed records a transfer reaching FAILED.
func (m *Metrics) RecordTransferFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfersFailed++
}

// RecordDownload records a successful content delivery.
func (m *Metrics) RecordDownload(bytes int64, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadsTotal++
	m.downloadBytesTotal += bytes
	m.downloadDurTotal += d
}

// RecordDownloadError records a failed content delivery.
func (m *Metrics) RecordDownloadError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadErrorsTotal++
}

// RecordLoginAttempt records a login attempt.
func (m *Metrics) RecordLoginAttempt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginAttemptsTotal++
}

// RecordLoginSuccess records a successful login.
func (m *Metrics) RecordLoginSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginSuccessTotal++
}

// RecordLoginFailure records a failed login.
func (m *Metrics) RecordLoginFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginFailuresTotal++
}

// RecordRequest records an HTTP request by status class.
func (m *Metrics) RecordRequest(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++
	switch {
	case status >= 500:
		m.requestErrors5xx++
	case status >= 400:
		m.requestErrors4xx++
	}
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	IntakesTotal        int64
	IntakeBytesTotal    int64
	InitiateDurTotal    time.Duration
	TransfersCompleted  int64
	TransfersFailed     int64
	ProcessingDurTotal  time.Duration
	DownloadsTotal      int64
	DownloadBytesTotal  int64
	DownloadErrorsTotal int64
	DownloadDurTotal    time.Duration
	LoginAttemptsTotal  int64
	LoginSuccessTotal   int64
	LoginFailuresTotal  int64
	RequestsTotal       int64
	RequestErrors4xx    int64
	RequestErrors5xx    int64
}

// Snapshot returns a consistent copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		IntakesTotal:        m.intakesTotal,
		IntakeBytesTotal:    m.intakeBytesTotal,
		InitiateDurTotal:    m.initiateDurTotal,
		TransfersCompleted:  m.transfersCompleted,
		TransfersFailed:     m.transfersFailed,
		ProcessingDurTotal:  m.processingDurTotal,
		DownloadsTotal:      m.downloadsTotal,
		DownloadBytesTotal:  m.downloadBytesTotal,
		DownloadErrorsTotal: m.downloadErrorsTotal,
		DownloadDurTotal:    m.downloadDurTotal,
		LoginAttemptsTotal:  m.loginAttemptsTotal,
		LoginSuccessTotal:   m.loginSuccessTotal,
		LoginFailuresTotal:  m.loginFailuresTotal,
		RequestsTotal:       m.requestsTotal,
		RequestErrors4xx:    m.requestErrors4xx,
		RequestErrors5xx:    m.requestErrors5xx,
	}
}
