// Package datadog implements a Datadog backend for internal/metrics.
//
// Observations are buffered in memory and submitted on a ticker (default
// once per minute) so a long-running API server produces a time series, and
// once more on Close so a short CLI import does not lose its tail.
//
// Flush snapshots and resets the buffers under the lock, then submits
// outside it. A failed submission drops that window.
package datadog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"mislaka/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

const metricPrefix = "mislaka."

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "mislaka".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "team:sales"}).
	Tags []string

	// FlushEvery is the submission interval. Defaults to 60 seconds.
	FlushEvery time.Duration

	// Test seams; production leaves them nil.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the slice of *datadogV2.MetricsApi we use, so tests
// can capture payloads without HTTP.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	documentCounts  map[string]float64   // status -> count
	clientCounts    map[string]float64   // kind -> count
	batchCount      float64
	stepSamples     map[string][]float64 // step\x00status -> seconds
	requestCounts   map[string]float64   // http status -> count
	requestDuration map[string][]float64 // http status -> seconds
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend starts the flush loop. The Datadog client reads DD_API_KEY and
// DD_SITE from the environment through dd.NewDefaultContext; network errors
// surface from Flush, not from here.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if parent == nil {
		return nil, wrapInitErr(errors.New("nil context"))
	}

	job := opts.JobName
	if job == "" {
		job = "mislaka"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
	}
	b.reset()

	go b.loop()
	return b, nil
}

func (b *Backend) reset() {
	b.documentCounts = make(map[string]float64)
	b.clientCounts = make(map[string]float64)
	b.batchCount = 0
	b.stepSamples = make(map[string][]float64)
	b.requestCounts = make(map[string]float64)
	b.requestDuration = make(map[string][]float64)
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Later calls
// only flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.DocumentsTotal:
		b.documentCounts[labelOr(labels, "status", "unknown")] += delta

	case metrics.ClientsTotal:
		kind := labels["kind"]
		if kind == "" {
			return
		}
		b.clientCounts[kind] += delta

	case metrics.BatchesTotal:
		b.batchCount += delta

	case metrics.RequestsTotal:
		b.requestCounts[labelOr(labels, "status", "unknown")] += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepDurationSeconds:
		k := stepStatusKey(labels["step"], labels["status"])
		b.stepSamples[k] = append(b.stepSamples[k], value)

	case metrics.RequestDuration:
		status := labelOr(labels, "status", "unknown")
		b.requestDuration[status] = append(b.requestDuration[status], value)
	}
}

// snapshot is one detached collection window.
type snapshot struct {
	documentCounts  map[string]float64
	clientCounts    map[string]float64
	batchCount      float64
	stepSamples     map[string][]float64
	requestCounts   map[string]float64
	requestDuration map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		documentCounts:  b.documentCounts,
		clientCounts:    b.clientCounts,
		batchCount:      b.batchCount,
		stepSamples:     b.stepSamples,
		requestCounts:   b.requestCounts,
		requestDuration: b.requestDuration,
	}
	b.reset()
	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.documentCounts) == 0 &&
		len(s.clientCounts) == 0 &&
		s.batchCount == 0 &&
		len(s.stepSamples) == 0 &&
		len(s.requestCounts) == 0 &&
		len(s.requestDuration) == 0
}

// Flush submits the buffered window. It returns nil without submitting when
// nothing was recorded.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries is pure: it maps a snapshot to Datadog series at nowUnix.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.documentCounts)+len(s.clientCounts)+6*len(s.stepSamples)+8)

	for _, status := range sortedKeys(s.documentCounts) {
		tags := withTags(b.baseTags, "status:"+status)
		series = append(series, countSeries(metricPrefix+"import.documents.total", s.documentCounts[status], tags, nowUnix))
	}
	for _, kind := range sortedKeys(s.clientCounts) {
		tags := withTags(b.baseTags, "kind:"+kind)
		series = append(series, countSeries(metricPrefix+"import.clients.total", s.clientCounts[kind], tags, nowUnix))
	}
	if s.batchCount != 0 {
		series = append(series, countSeries(metricPrefix+"import.batches.total", s.batchCount, b.baseTags, nowUnix))
	}
	for _, k := range sortedKeys(s.stepSamples) {
		step, status := splitStepStatusKey(k)
		tags := withTags(b.baseTags, "step:"+step, "status:"+status)
		addPercentiles(&series, metricPrefix+"import.step.duration_seconds", tags, s.stepSamples[k], nowUnix)
	}
	for _, status := range sortedKeys(s.requestCounts) {
		tags := withTags(b.baseTags, "status:"+status)
		series = append(series, countSeries(metricPrefix+"api.requests.total", s.requestCounts[status], tags, nowUnix))
	}
	for _, status := range sortedKeys(s.requestDuration) {
		tags := withTags(b.baseTags, "status:"+status)
		addPercentiles(&series, metricPrefix+"api.request.duration_seconds", tags, s.requestDuration[status], nowUnix)
	}
	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges. samples is not
// modified.
func addPercentiles(series *[]datadogV2.MetricSeries, metric string, tags []string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series,
		gaugeSeries(metric+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(metric+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(metric+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(metric+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(metric+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(metric+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return point(metric, datadogV2.METRICINTAKETYPE_COUNT, value, tags, nowUnix)
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return point(metric, datadogV2.METRICINTAKETYPE_GAUGE, value, tags, nowUnix)
}

func point(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func stepStatusKey(step, status string) string {
	return step + "\x00" + status
}

func splitStepStatusKey(k string) (step, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func labelOr(l metrics.Labels, key, def string) string {
	if v := l[key]; v != "" {
		return v
	}
	return def
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,team:sales".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}
