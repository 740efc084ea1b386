package dictionary

import "strings"

// Conventions recognises field kinds by name prefix.
type Conventions struct {
	DatePrefixes   []string
	AmountPrefixes []string
	RatePrefixes   []string
}

// IsDate reports whether field holds a YYYYMMDD date.
func (c Conventions) IsDate(field string) bool { return hasAnyPrefix(field, c.DatePrefixes) }

// IsAmount reports whether field holds a currency amount.
func (c Conventions) IsAmount(field string) bool { return hasAnyPrefix(field, c.AmountPrefixes) }

// IsRate reports whether field holds a percentage.
func (c Conventions) IsRate(field string) bool { return hasAnyPrefix(field, c.RatePrefixes) }

func hasAnyPrefix(field string, prefixes []string) bool {
	f := strings.ToUpper(field)
	for _, p := range prefixes {
		if strings.HasPrefix(f, p) {
			return true
		}
	}
	return false
}
