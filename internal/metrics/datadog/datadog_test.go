package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"mislaka/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

// quietOptions never ticks during a test.
func quietOptions(fs *fakeSubmitter) Options {
	return Options{
		JobName:    "job1",
		FlushEvery: 24 * time.Hour,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(1000, 0) },
		newTicker:  func(time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	}
}

func newQuietBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), quietOptions(fs))
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func metricNames(p datadogV2.MetricPayload) []string {
	var out []string
	for _, s := range p.Series {
		out = append(out, s.Metric)
	}
	sort.Strings(out)
	return out
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name, env, dd, want string
	}{
		{"ENV_wins", "prod", "stage", "env:prod"},
		{"DD_ENV_used_when_ENV_empty", "", "stage", "env:stage"},
		{"whitespace_ignored", "   ", "\n\t", "env:unknown"},
		{"default_unknown", "", "", "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestWrapInitErr(t *testing.T) {
	if wrapInitErr(nil) != nil {
		t.Fatalf("wrapInitErr(nil) must be nil")
	}
	in := errors.New("boom")
	got := wrapInitErr(in)
	if !errors.Is(got, in) || !strings.HasPrefix(got.Error(), "datadog metrics init:") {
		t.Fatalf("wrapInitErr=%v", got)
	}

	if _, err := NewBackend(nil, Options{}); err == nil {
		t.Fatalf("nil context must fail")
	}
}

func TestStepStatusKeyRoundTrip(t *testing.T) {
	for _, tc := range []struct{ step, status string }{
		{"parse", "ok"}, {"", "ok"}, {"report", ""}, {"", ""},
	} {
		step, status := splitStepStatusKey(stepStatusKey(tc.step, tc.status))
		if step != tc.step || status != tc.status {
			t.Fatalf("roundtrip got=(%q,%q), want=(%q,%q)", step, status, tc.step, tc.status)
		}
	}
	if step, status := splitStepStatusKey("no-sep"); step != "no-sep" || status != "unknown" {
		t.Fatalf("splitStepStatusKey(no-sep)=(%q,%q)", step, status)
	}
}

func TestWithTags_DoesNotAliasBase(t *testing.T) {
	base := []string{"env:test", "job:mislaka"}
	got := withTags(base, "step:parse")
	if !reflect.DeepEqual(got, []string{"env:test", "job:mislaka", "step:parse"}) {
		t.Fatalf("withTags()=%v", got)
	}
	got[0] = "env:mutated"
	if base[0] != "env:test" {
		t.Fatalf("withTags output aliases base")
	}
}

func TestPercentileNearestRank(t *testing.T) {
	tests := []struct {
		name string
		s    []float64
		p    float64
		want float64
	}{
		{"empty", nil, 0.50, 0},
		{"single", []float64{7}, 0.95, 7},
		{"p_le_0", []float64{1, 2, 3}, -1, 1},
		{"p_ge_1", []float64{1, 2, 3}, 2, 3},
		{"median", []float64{1, 2, 3, 4, 5}, 0.50, 3},
		{"p90_small_n", []float64{1, 2, 3, 4, 5}, 0.90, 5},
	}
	for _, tc := range tests {
		if got := percentileNearestRank(tc.s, tc.p); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAddPercentiles_DoesNotMutateSamples(t *testing.T) {
	orig := []float64{5, 1, 3, 2, 4}
	in := append([]float64(nil), orig...)

	var series []datadogV2.MetricSeries
	addPercentiles(&series, "mislaka.import.step.duration_seconds", []string{"step:parse"}, in, 999)

	if len(series) != 6 {
		t.Fatalf("series.len=%d, want 6", len(series))
	}
	if !reflect.DeepEqual(in, orig) {
		t.Fatalf("samples mutated: %v", in)
	}
	last := series[len(series)-1]
	if last.Metric != "mislaka.import.step.duration_seconds.samples" || *last.Points[0].Value != 5 {
		t.Fatalf("samples gauge=%s %v", last.Metric, *last.Points[0].Value)
	}
	if *series[0].Type != datadogV2.METRICINTAKETYPE_GAUGE || *series[0].Points[0].Timestamp != 999 {
		t.Fatalf("unexpected gauge shape: %+v", series[0])
	}
}

func TestNewBackend_Defaults(t *testing.T) {
	fs := &fakeSubmitter{}
	opts := quietOptions(fs)
	opts.JobName = ""
	opts.FlushEvery = 0
	opts.Tags = []string{"team:sales"}

	b, err := NewBackend(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}
	defer func() { _ = b.Close() }()

	if !contains(b.baseTags, "job:mislaka") || !contains(b.baseTags, "team:sales") {
		t.Fatalf("baseTags=%v", b.baseTags)
	}
	if b.flushEvery != 60*time.Second {
		t.Fatalf("flushEvery=%s, want 60s", b.flushEvery)
	}
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newQuietBackend(t, fs)

	b.IncCounter(metrics.DocumentsTotal, 2, metrics.Labels{"status": "ok"})
	b.IncCounter(metrics.ClientsTotal, 3, metrics.Labels{"kind": "upserted"})
	b.IncCounter(metrics.BatchesTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.5, metrics.Labels{"step": "parse", "status": "ok"})
	b.IncCounter(metrics.RequestsTotal, 7, metrics.Labels{"status": "200"})
	b.ObserveHistogram(metrics.RequestDuration, 0.1, metrics.Labels{"status": "200"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("submit calls=%d, want 1", fs.count())
	}
	if !b.snapshotAndReset().isEmpty() {
		t.Fatalf("buffers not reset after Flush")
	}

	payload, _ := fs.last()
	names := metricNames(payload)
	for _, w := range []string{
		"mislaka.import.documents.total",
		"mislaka.import.clients.total",
		"mislaka.import.batches.total",
		"mislaka.import.step.duration_seconds.p50",
		"mislaka.import.step.duration_seconds.samples",
		"mislaka.api.requests.total",
		"mislaka.api.request.duration_seconds.p99",
	} {
		if !contains(names, w) {
			t.Fatalf("payload missing %q; got=%v", w, names)
		}
	}
}

func TestFlush_NoDataDoesNotSubmit(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newQuietBackend(t, fs)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	if fs.count() != 0 {
		t.Fatalf("unexpected submission count=%d", fs.count())
	}
}

func TestFlush_WrapsSubmitError(t *testing.T) {
	boom := errors.New("403 forbidden")
	fs := &fakeSubmitter{err: boom}
	b := newQuietBackend(t, fs)

	b.IncCounter(metrics.BatchesTotal, 1, nil)
	err := b.Flush()
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "datadog submit") {
		t.Fatalf("Flush err=%v", err)
	}
	// The window is dropped, not retried.
	fs.err = nil
	if err := b.Flush(); err != nil || fs.count() != 1 {
		t.Fatalf("second flush err=%v count=%d", err, fs.count())
	}
}

func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		JobName:    "job1",
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
		now:        func() time.Time { return time.Unix(2000, 0) },
	})
	if err != nil {
		t.Fatalf("NewBackend() err=%v", err)
	}

	b.IncCounter(metrics.BatchesTotal, 1, nil)

	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) && fs.count() < 1 {
		time.Sleep(2 * time.Millisecond)
	}
	if fs.count() < 1 {
		_ = b.Close()
		t.Fatalf("expected a background flush; got %d", fs.count())
	}

	b.IncCounter(metrics.BatchesTotal, 1, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() err=%v", err)
	}
	if fs.count() < 2 {
		t.Fatalf("expected a final flush on Close; got %d submissions", fs.count())
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close() err=%v", err)
	}
}

func TestBackend_ConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newQuietBackend(t, fs)

	workers := runtime.GOMAXPROCS(0) * 4
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 2000; j++ {
				b.IncCounter(metrics.BatchesTotal, 1, nil)
				b.IncCounter(metrics.DocumentsTotal, 1, metrics.Labels{"status": "ok"})
				b.IncCounter(metrics.ClientsTotal, 1, metrics.Labels{"kind": "extracted"})
				b.ObserveHistogram(metrics.StepDurationSeconds, 0.01, metrics.Labels{"step": "report", "status": "ok"})
				b.ObserveHistogram(metrics.RequestDuration, 0.02, metrics.Labels{"status": "200"})
			}
		}()
	}
	wg.Wait()

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	payload, _ := fs.last()
	for _, s := range payload.Series {
		if s.Metric == "mislaka.import.batches.total" && *s.Points[0].Value != float64(workers*2000) {
			t.Fatalf("batches=%v want %d", *s.Points[0].Value, workers*2000)
		}
	}
}

func TestIncCounterAndObserveHistogram_EdgeCases(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newQuietBackend(t, fs)

	b.IncCounter(metrics.BatchesTotal, 0, nil)
	b.IncCounter(metrics.ClientsTotal, 1, metrics.Labels{})
	b.IncCounter("unknown_total", 1, metrics.Labels{"x": "y"})
	b.ObserveHistogram(metrics.StepDurationSeconds, -1, metrics.Labels{"step": "parse", "status": "ok"})
	b.IncCounter(metrics.DocumentsTotal, 1, nil)
	b.ObserveHistogram(metrics.RequestDuration, 0.1, metrics.Labels{})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() err=%v", err)
	}
	payload, ok := fs.last()
	if !ok {
		t.Fatalf("missing payload")
	}

	var sawDocs, sawP50 bool
	for _, s := range payload.Series {
		switch {
		case s.Metric == "mislaka.import.documents.total" && contains(s.Tags, "status:unknown"):
			sawDocs = true
		case s.Metric == "mislaka.api.request.duration_seconds.p50" && contains(s.Tags, "status:unknown"):
			sawP50 = true
		case strings.HasPrefix(s.Metric, "mislaka.import.clients"), strings.HasPrefix(s.Metric, "mislaka.import.step"):
			t.Fatalf("ignored observation leaked: %s", s.Metric)
		}
	}
	if !sawDocs || !sawP50 {
		t.Fatalf("missing defaulted series: docs=%v p50=%v", sawDocs, sawP50)
	}
}

func contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty_returns_nil", "", nil},
		{"trims_and_skips_empty_segments", " env:prod , ,team:sales,  ,region:il ", []string{"env:prod", "team:sales", "region:il"}},
		{"single_tag", "team:sales", []string{"team:sales"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseTagsCSV(tc.in); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseTagsCSV(%q)=%v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
