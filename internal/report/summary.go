package report

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultMaxValues = 3
	DefaultDelimiter = " | "
	DefaultEllipsis  = "..."
)

// SummaryOptions bounds how many values a report cell shows.
type SummaryOptions struct {
	MaxValues int
	Delimiter string
	Ellipsis  string
}

// DefaultSummaryOptions returns the 3-value " | " joined summary.
func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{
		MaxValues: DefaultMaxValues,
		Delimiter: DefaultDelimiter,
		Ellipsis:  DefaultEllipsis,
	}
}

func (o SummaryOptions) withDefaults() SummaryOptions {
	if o.MaxValues <= 0 {
		o.MaxValues = DefaultMaxValues
	}
	if o.Delimiter == "" {
		o.Delimiter = DefaultDelimiter
	}
	if o.Ellipsis == "" {
		o.Ellipsis = DefaultEllipsis
	}
	return o
}

// numericNoise is stripped before a formatted value is compared as a number.
var numericNoise = strings.NewReplacer(
	"₪", "", "$", "", "€", "", "%", "", ",", "",
	" ", "", "\u00a0", "", "\u200e", "", "\u200f", "",
)

// Summarize dedupes values, sorts them and joins at most opts.MaxValues of
// them. Values sort numerically when every one of them parses as a number
// once currency symbols, percent signs and separators are removed; otherwise
// they sort as strings. Dropped values are marked with opts.Ellipsis.
func Summarize(values []string, opts SummaryOptions) string {
	opts = opts.withDefaults()

	uniq := dedupe(values)
	if len(uniq) == 0 {
		return ""
	}
	sortValues(uniq)

	if len(uniq) <= opts.MaxValues {
		return strings.Join(uniq, opts.Delimiter)
	}
	return strings.Join(uniq[:opts.MaxValues], opts.Delimiter) + opts.Ellipsis
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func sortValues(vals []string) {
	nums := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		d, ok := numericValue(v)
		if !ok {
			sort.Strings(vals)
			return
		}
		nums[i] = d
	}

	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if c := nums[idx[a]].Cmp(nums[idx[b]]); c != 0 {
			return c < 0
		}
		return vals[idx[a]] < vals[idx[b]]
	})

	sorted := make([]string, len(vals))
	for i, j := range idx {
		sorted[i] = vals[j]
	}
	copy(vals, sorted)
}

func numericValue(v string) (decimal.Decimal, bool) {
	s := numericNoise.Replace(v)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
