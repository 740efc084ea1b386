// Package importer runs the extraction pipeline over a batch of documents
// and optionally persists the client records it finds.
package importer

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mislaka/internal/client"
	"mislaka/internal/consolidate"
	"mislaka/internal/extract"
	"mislaka/internal/metrics"
)

// Batch is the ordered outcome of one import: Results[i] belongs to the
// i-th input document.
type Batch struct {
	ID        string           `json:"batchId"`
	Results   []extract.Result `json:"results"`
	Persisted *Persisted       `json:"persisted,omitempty"`
}

// Persisted summarizes what the Runner wrote to storage.
type Persisted struct {
	Written   int `json:"written"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// Combined merges the field sets of every successful document.
func (b *Batch) Combined() *consolidate.FieldSet {
	out := consolidate.New()
	if b == nil {
		return out
	}
	for _, r := range b.Results {
		if r.OK() {
			out.Merge(r.ConsolidatedData)
		}
	}
	return out
}

// Failed counts documents that did not process.
func (b *Batch) Failed() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, r := range b.Results {
		if !r.OK() {
			n++
		}
	}
	return n
}

// Clients returns the client records in document order.
func (b *Batch) Clients() []*client.Record {
	if b == nil {
		return nil
	}
	var out []*client.Record
	for _, r := range b.Results {
		if r.HasClient() {
			out = append(out, r.ClientData)
		}
	}
	return out
}

// Importer fans documents out over a bounded number of goroutines.
type Importer struct {
	workers int
	process func(extract.Document) extract.Result
	newID   func() string
}

// New returns an Importer over ex. workers <= 0 means GOMAXPROCS.
// Step timings from ex are forwarded to the metrics facade.
func New(ex *extract.Extractor, workers int) *Importer {
	if ex == nil {
		ex = extract.New(nil, nil)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ex = ex.WithObserver(func(step string, d time.Duration, err error) {
		metrics.RecordStep(step, d, err == nil)
	})
	return &Importer{
		workers: workers,
		process: ex.Process,
		newID:   uuid.NewString,
	}
}

// Import processes docs and returns results in input order. A failing
// document yields a failed Result and never aborts the batch. If ctx is
// cancelled the partial batch is discarded and ctx.Err() is returned.
func (im *Importer) Import(ctx context.Context, docs []extract.Document) (*Batch, error) {
	batch := &Batch{ID: im.newID(), Results: make([]extract.Result, len(docs))}
	log := zerolog.Ctx(ctx).With().Str("batch_id", batch.ID).Logger()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.workers)

	for i, doc := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch.Results[i] = im.processSafe(doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, r := range batch.Results {
		metrics.RecordDocument(r.OK())
		if !r.OK() {
			log.Warn().Str("file", r.FileName).Str("error", r.Error).Msg("document failed")
			continue
		}
		if r.HasClient() {
			metrics.RecordClients(metrics.ClientExtracted, 1)
		} else {
			metrics.RecordClients(metrics.ClientAbsent, 1)
		}
	}
	metrics.RecordBatch()

	log.Info().
		Int("documents", len(docs)).
		Int("failed", batch.Failed()).
		Dur("elapsed", time.Since(start)).
		Msg("batch imported")
	return batch, nil
}

// processSafe turns a panic inside one document into that document's
// failure.
func (im *Importer) processSafe(doc extract.Document) (res extract.Result) {
	defer func() {
		if p := recover(); p != nil {
			res = extract.Result{
				FileName:         doc.Name,
				ConsolidatedData: consolidate.New(),
				Error:            fmt.Sprintf("%s: panic: %v", doc.Name, p),
			}
		}
	}()
	return im.process(doc)
}
