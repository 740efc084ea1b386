// Package report groups a consolidated field set into category sections of
// formatted, summarized values.
package report

import (
	"mislaka/internal/consolidate"
	"mislaka/internal/dictionary"
	"mislaka/internal/format"
)

// Row is one field of a section.
type Row struct {
	Field   string `json:"field"`
	Summary string `json:"summary"`
}

// Section is one category heading and its rows.
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// Report is the display document for one field set.
type Report struct {
	Sections []Section `json:"sections"`
}

// Empty reports whether no category matched.
func (r *Report) Empty() bool { return r == nil || len(r.Sections) == 0 }

// RowCount returns the number of rows across sections.
func (r *Report) RowCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, s := range r.Sections {
		n += len(s.Rows)
	}
	return n
}

// Builder is safe for concurrent use; it holds no per-report state.
type Builder struct {
	dict      *dictionary.Dictionary
	formatter *format.Formatter
	summary   SummaryOptions
}

// NewBuilder wires a Builder. A nil dict means dictionary.Default() and a
// nil formatter means one with default options over dict.
func NewBuilder(dict *dictionary.Dictionary, f *format.Formatter, opts SummaryOptions) *Builder {
	if dict == nil {
		dict = dictionary.Default()
	}
	if f == nil {
		// Default options always parse.
		f, _ = format.New(dict, format.Options{})
	}
	return &Builder{dict: dict, formatter: f, summary: opts.withDefaults()}
}

// Build walks the categories in order and emits a section for each one that
// has at least one field in fs. Fields not in any category are not reported.
func (b *Builder) Build(fs *consolidate.FieldSet) *Report {
	rep := &Report{Sections: []Section{}}
	if fs.Len() == 0 {
		return rep
	}
	present := fs.Fields()

	for _, cat := range b.dict.Categories.Categories() {
		fields := cat.Arrange(present)
		if len(fields) == 0 {
			continue
		}
		sec := Section{Key: cat.Key, Title: cat.Title, Rows: make([]Row, 0, len(fields))}
		for _, field := range fields {
			raw := fs.Values(field)
			formatted := make([]string, 0, len(raw))
			for _, v := range raw {
				formatted = append(formatted, b.formatter.Format(field, v))
			}
			sec.Rows = append(sec.Rows, Row{Field: field, Summary: Summarize(formatted, b.summary)})
		}
		rep.Sections = append(rep.Sections, sec)
	}
	return rep
}
