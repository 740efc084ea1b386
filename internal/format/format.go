// Package format turns raw clearing-house values into display strings.
package format

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"mislaka/internal/dictionary"
)

const (
	DefaultLocale         = "he-IL"
	DefaultCurrencySymbol = "₪"
)

var (
	integerLike  = regexp.MustCompile(`^-?\d+$`)
	rawDate      = regexp.MustCompile(`^\d{8}$`)
	// plainDecimal excludes exponent forms that decimal.NewFromString accepts.
	plainDecimal = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)$`)
)

// Options configures number rendering.
type Options struct {
	Locale         string // BCP 47 tag; empty means DefaultLocale
	CurrencySymbol string // empty means DefaultCurrencySymbol
}

// Formatter is safe for concurrent use.
type Formatter struct {
	dict   *dictionary.Dictionary
	symbol string
	group  string // thousands separator, may be empty
	point  string // decimal separator
}

// New builds a Formatter over dict. A nil dict means dictionary.Default().
func New(dict *dictionary.Dictionary, opts Options) (*Formatter, error) {
	if dict == nil {
		dict = dictionary.Default()
	}
	loc := strings.TrimSpace(opts.Locale)
	if loc == "" {
		loc = DefaultLocale
	}
	tag, err := language.Parse(loc)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", loc, err)
	}
	sym := opts.CurrencySymbol
	if sym == "" {
		sym = DefaultCurrencySymbol
	}
	group, point := separators(message.NewPrinter(tag))
	return &Formatter{
		dict:   dict,
		symbol: sym,
		group:  group,
		point:  point,
	}, nil
}

// separators reads the locale's grouping and decimal marks off a sample
// rendering of 1234.50. Bidi marks the printer may add are ignored.
func separators(p *message.Printer) (group, point string) {
	sample := p.Sprint(number.Decimal(1234.5, number.Scale(2)))

	var seps []string
	var cur strings.Builder
	digits := false
	for _, r := range sample {
		switch {
		case unicode.IsDigit(r):
			if digits && cur.Len() > 0 {
				seps = append(seps, cur.String())
			}
			cur.Reset()
			digits = true
		case r == '\u200e' || r == '\u200f' || r == '\u061c':
		default:
			cur.WriteRune(r)
		}
	}
	switch len(seps) {
	case 2:
		return seps[0], seps[1]
	case 1:
		return "", seps[0]
	default:
		return ",", "."
	}
}

// Symbol returns the currency symbol prepended to amounts.
func (f *Formatter) Symbol() string { return f.symbol }

// Format renders value for field. First matching rule wins:
//
//  1. integer code with a code table for the field: label, or the code if unmapped
//  2. date field: YYYYMMDD becomes DD/MM/YYYY, anything else is left as is
//  3. number: currency for amount fields, N.NN% for rate fields, plain
//     2-decimal number otherwise; zero is always "0"
//
// Values that match no rule are returned unchanged.
func (f *Formatter) Format(field, value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return value
	}

	if f.dict.Codes.Has(field) && integerLike.MatchString(v) {
		if label, ok := f.dict.Codes.Lookup(field, v); ok {
			return label
		}
		return v
	}

	conv := f.dict.Conventions
	if conv.IsDate(field) {
		return formatDate(v)
	}

	if !plainDecimal.MatchString(v) {
		return v
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return v
	}
	if d.IsZero() {
		return "0"
	}

	sign := ""
	if d.IsNegative() && !d.Round(2).IsZero() {
		sign = "-"
	}
	n := f.grouped(d.Abs())
	switch {
	case conv.IsAmount(field):
		return sign + f.symbol + n
	case conv.IsRate(field):
		return sign + n + "%"
	default:
		return sign + n
	}
}

// grouped renders a non-negative d with two decimals and locale separators,
// keeping every digit of the parsed value.
func (f *Formatter) grouped(d decimal.Decimal) string {
	whole, frac, _ := strings.Cut(d.StringFixed(2), ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(f.group)
		}
		b.WriteRune(r)
	}
	b.WriteString(f.point)
	b.WriteString(frac)
	return b.String()
}

func formatDate(v string) string {
	if !rawDate.MatchString(v) {
		return v
	}
	return v[6:8] + "/" + v[4:6] + "/" + v[0:4]
}
