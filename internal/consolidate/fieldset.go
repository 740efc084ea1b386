// Package consolidate flattens a parsed clearing-house document into a
// ConsolidatedFieldSet: every distinct scalar value seen per leaf field name.
package consolidate

import (
	"encoding/json"
	"strings"
)

// FieldSet maps a field name to the ordered set of distinct values observed
// for it. Both fields and values iterate in first-insertion order.
//
// A FieldSet is built by Consolidate (or Add/Merge) and is read-only after
// that; it is not safe for concurrent mutation.
type FieldSet struct {
	order  []string
	values map[string]*valueSet
}

type valueSet struct {
	list []string
	seen map[string]struct{}
}

// New returns an empty FieldSet.
func New() *FieldSet {
	return &FieldSet{values: make(map[string]*valueSet)}
}

// Add trims value and records it under field. Empty values are ignored, as
// are repeats of a value already present for that field.
func (fs *FieldSet) Add(field, value string) {
	value = strings.TrimSpace(value)
	if field == "" || value == "" {
		return
	}
	vs, ok := fs.values[field]
	if !ok {
		vs = &valueSet{seen: make(map[string]struct{})}
		fs.values[field] = vs
		fs.order = append(fs.order, field)
	}
	if _, dup := vs.seen[value]; dup {
		return
	}
	vs.seen[value] = struct{}{}
	vs.list = append(vs.list, value)
}

// Merge adds every value of other into fs, preserving other's order for
// anything new. A nil other is a no-op.
func (fs *FieldSet) Merge(other *FieldSet) {
	if other == nil {
		return
	}
	for _, f := range other.order {
		for _, v := range other.values[f].list {
			fs.Add(f, v)
		}
	}
}

// Fields returns the field names in first-insertion order.
func (fs *FieldSet) Fields() []string {
	if fs == nil {
		return nil
	}
	return append([]string(nil), fs.order...)
}

// Values returns a copy of the values recorded for field.
func (fs *FieldSet) Values(field string) []string {
	if fs == nil {
		return nil
	}
	vs, ok := fs.values[field]
	if !ok {
		return nil
	}
	return append([]string(nil), vs.list...)
}

// First returns the first value inserted for field, or "".
func (fs *FieldSet) First(field string) string {
	if fs == nil {
		return ""
	}
	vs, ok := fs.values[field]
	if !ok || len(vs.list) == 0 {
		return ""
	}
	return vs.list[0]
}

// Has reports whether field has at least one value.
func (fs *FieldSet) Has(field string) bool {
	if fs == nil {
		return false
	}
	_, ok := fs.values[field]
	return ok
}

// Len returns the number of distinct fields.
func (fs *FieldSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.order)
}

// Map returns a detached map-of-slices view, the serializable form consumed
// by inspection views.
func (fs *FieldSet) Map() map[string][]string {
	out := make(map[string][]string, fs.Len())
	if fs == nil {
		return out
	}
	for _, f := range fs.order {
		out[f] = append([]string(nil), fs.values[f].list...)
	}
	return out
}

// SetEqual reports whether fs and other hold the same fields and the same
// values per field, ignoring insertion order.
func (fs *FieldSet) SetEqual(other *FieldSet) bool {
	if fs.Len() != other.Len() {
		return false
	}
	for _, f := range fs.Fields() {
		a, ok := other.values[f]
		if !ok || len(a.list) != len(fs.values[f].list) {
			return false
		}
		for _, v := range fs.values[f].list {
			if _, ok := a.seen[v]; !ok {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the set as {"FIELD": ["v1", ...]}.
func (fs *FieldSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(fs.Map())
}

// UnmarshalJSON decodes the map-of-arrays form. Field order follows the
// sorted key order produced by encoding/json maps, values keep array order.
func (fs *FieldSet) UnmarshalJSON(b []byte) error {
	var m map[string][]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*fs = *New()
	for _, f := range sortedKeys(m) {
		for _, v := range m[f] {
			fs.Add(f, v)
		}
	}
	return nil
}
