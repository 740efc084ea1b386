// Package metrics is the backend-neutral metrics surface used by the import
// pipeline and the HTTP API.
//
// Callers record through the package-level helpers; the process installs a
// concrete Backend (Datadog, or the no-op default) once at startup.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names understood by backends.
const (
	DocumentsTotal      = "import_documents_total"       // labels: status
	StepDurationSeconds = "import_step_duration_seconds" // labels: step, status
	ClientsTotal        = "import_clients_total"         // labels: kind
	BatchesTotal        = "import_batches_total"
	RequestsTotal       = "api_requests_total"           // labels: status
	RequestDuration     = "api_request_duration_seconds" // labels: status
)

// Status label values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Client kind label values.
const (
	ClientExtracted = "extracted"
	ClientAbsent    = "absent"
	ClientUpserted  = "upserted"
	ClientUnchanged = "unchanged"
	ClientSkipped   = "skipped"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs b process-wide. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	current = b
	mu.Unlock()
}

func active() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	active().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	active().ObserveHistogram(name, value, labels)
}

// Flush asks the installed backend to submit buffered data.
func Flush() error { return active().Flush() }

// RecordDocument counts one processed document.
func RecordDocument(ok bool) {
	IncCounter(DocumentsTotal, 1, Labels{"status": statusOf(ok)})
}

// RecordStep observes the duration of one pipeline step.
func RecordStep(step string, d time.Duration, ok bool) {
	ObserveHistogram(StepDurationSeconds, d.Seconds(), Labels{"step": step, "status": statusOf(ok)})
}

// RecordClients counts n client outcomes of the given kind.
func RecordClients(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(ClientsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatch counts one completed batch.
func RecordBatch() { IncCounter(BatchesTotal, 1, nil) }

// RecordRequest counts one API request and observes its latency.
func RecordRequest(status int, d time.Duration) {
	l := Labels{"status": strconv.Itoa(status)}
	IncCounter(RequestsTotal, 1, l)
	ObserveHistogram(RequestDuration, d.Seconds(), l)
}

func statusOf(ok bool) string {
	if ok {
		return StatusOK
	}
	return StatusFailed
}
