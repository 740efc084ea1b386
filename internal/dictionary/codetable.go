package dictionary

// CodeTables maps a field name to its code → label table.
type CodeTables struct {
	m map[string]map[string]string
}

// Lookup returns the label registered for code under field.
// ok is false when the field has no table or the code is unmapped; callers
// keep the raw code in that case.
func (c CodeTables) Lookup(field, code string) (label string, ok bool) {
	t, found := c.m[field]
	if !found {
		return "", false
	}
	label, ok = t[code]
	return label, ok
}

// Has reports whether field has a code table.
func (c CodeTables) Has(field string) bool {
	_, ok := c.m[field]
	return ok
}

// Len returns the number of fields with a code table.
func (c CodeTables) Len() int { return len(c.m) }

func newCodeTables(raw map[string]map[string]string) CodeTables {
	m := make(map[string]map[string]string, len(raw))
	for field, t := range raw {
		cp := make(map[string]string, len(t))
		for code, label := range t {
			cp[code] = label
		}
		m[field] = cp
	}
	return CodeTables{m: m}
}
