// Package extract runs the per-document pipeline:
// parse → consolidate → report → client record.
package extract

import (
	"fmt"
	"time"

	"mislaka/internal/client"
	"mislaka/internal/consolidate"
	"mislaka/internal/report"
	"mislaka/internal/xmltree"
)

// Pipeline steps, as reported to a StepObserver.
const (
	StepParse       = "parse"
	StepConsolidate = "consolidate"
	StepReport      = "report"
	StepClient      = "client"
)

// Document is one named XML payload, already in memory.
type Document struct {
	Name string
	Data []byte
}

// Result is the outcome for one document. On failure Error is set, Report
// and ClientData are nil and ConsolidatedData is empty. A nil ClientData
// on success means the document carried no client identity.
type Result struct {
	FileName         string                `json:"fileName"`
	ConsolidatedData *consolidate.FieldSet `json:"consolidatedData"`
	Report           *report.Report        `json:"report"`
	ClientData       *client.Record        `json:"clientData"`
	Error            string                `json:"error,omitempty"`
}

// OK reports whether the document was processed.
func (r Result) OK() bool { return r.Error == "" }

// HasClient reports whether a client record was found.
func (r Result) HasClient() bool { return r.ClientData != nil }

// StepObserver is told how long each step took and whether it failed.
type StepObserver func(step string, d time.Duration, err error)

// Extractor is stateless across documents and safe for concurrent use.
type Extractor struct {
	reports *report.Builder
	clients *client.Extractor
	observe StepObserver
	now     func() time.Time
}

// New wires an Extractor. Nil collaborators fall back to defaults over the
// embedded dictionary.
func New(reports *report.Builder, clients *client.Extractor) *Extractor {
	if reports == nil {
		reports = report.NewBuilder(nil, nil, report.DefaultSummaryOptions())
	}
	if clients == nil {
		clients = client.NewExtractor(nil)
	}
	return &Extractor{
		reports: reports,
		clients: clients,
		observe: func(string, time.Duration, error) {},
		now:     time.Now,
	}
}

// WithObserver returns a copy of e that reports step timings to obs.
func (e *Extractor) WithObserver(obs StepObserver) *Extractor {
	cp := *e
	if obs == nil {
		obs = func(string, time.Duration, error) {}
	}
	cp.observe = obs
	return &cp
}

// Process never fails as a whole; a parse failure is recorded on the result.
func (e *Extractor) Process(doc Document) Result {
	res := Result{FileName: doc.Name}

	tree, err := e.parse(doc)
	if err != nil {
		res.ConsolidatedData = consolidate.New()
		res.Error = err.Error()
		return res
	}

	start := e.now()
	res.ConsolidatedData = consolidate.Consolidate(tree)
	e.observe(StepConsolidate, e.now().Sub(start), nil)

	start = e.now()
	res.Report = e.reports.Build(res.ConsolidatedData)
	e.observe(StepReport, e.now().Sub(start), nil)

	start = e.now()
	res.ClientData = e.clients.Extract(res.ConsolidatedData)
	e.observe(StepClient, e.now().Sub(start), nil)

	return res
}

// Inspect parses and consolidates data without building a report.
func (e *Extractor) Inspect(doc Document) (*consolidate.FieldSet, error) {
	tree, err := e.parse(doc)
	if err != nil {
		return nil, err
	}
	return consolidate.Consolidate(tree), nil
}

func (e *Extractor) parse(doc Document) (xmltree.Node, error) {
	start := e.now()
	tree, err := xmltree.Parse(doc.Data)
	if err != nil {
		err = fmt.Errorf("%s: %w", doc.Name, err)
	}
	e.observe(StepParse, e.now().Sub(start), err)
	return tree, err
}
