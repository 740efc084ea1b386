package metrics

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type call struct {
	kind   string
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu       sync.Mutex
	calls    []call
	flushErr error
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"counter", name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{"histogram", name, value, labels})
}

func (r *recorder) Flush() error { return r.flushErr }

// Not parallel: these tests swap the process-wide backend.
func TestHelpers_ForwardToBackend(t *testing.T) {
	rec := &recorder{flushErr: errors.New("flush failed")}
	SetBackend(rec)
	t.Cleanup(func() { SetBackend(nil) })

	RecordDocument(true)
	RecordDocument(false)
	RecordStep("parse", 1500*time.Millisecond, true)
	RecordClients(ClientUpserted, 3)
	RecordClients(ClientSkipped, 0)
	RecordBatch()
	RecordRequest(201, 250*time.Millisecond)

	want := []call{
		{"counter", DocumentsTotal, 1, Labels{"status": "ok"}},
		{"counter", DocumentsTotal, 1, Labels{"status": "failed"}},
		{"histogram", StepDurationSeconds, 1.5, Labels{"step": "parse", "status": "ok"}},
		{"counter", ClientsTotal, 3, Labels{"kind": "upserted"}},
		{"counter", BatchesTotal, 1, nil},
		{"counter", RequestsTotal, 1, Labels{"status": "201"}},
		{"histogram", RequestDuration, 0.25, Labels{"status": "201"}},
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("calls=%#v\nwant %#v", rec.calls, want)
	}

	if err := Flush(); err == nil {
		t.Fatalf("Flush must return the backend error")
	}
}

func TestSetBackend_NilRestoresNop(t *testing.T) {
	SetBackend(nil)
	IncCounter("anything", 1, nil)
	ObserveHistogram("anything", 1, nil)
	if err := Flush(); err != nil {
		t.Fatalf("nop Flush err=%v", err)
	}
}
