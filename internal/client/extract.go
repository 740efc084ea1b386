package client

import (
	"strings"

	"mislaka/internal/consolidate"
	"mislaka/internal/dictionary"
)

// nanLiteral is what a failed numeric conversion upstream leaves behind.
const nanLiteral = "NaN"

// Extractor maps dictionary source fields onto Record fields.
type Extractor struct {
	fields dictionary.ClientFields
}

// NewExtractor uses the client field chains of dict, or of
// dictionary.Default() when dict is nil.
func NewExtractor(dict *dictionary.Dictionary) *Extractor {
	if dict == nil {
		dict = dictionary.Default()
	}
	return &Extractor{fields: dict.Client}
}

// Extract returns the client described by fs, or nil when first name, last
// name and id number are all empty. Each output field takes the first value
// of the first source field in its chain that has a usable value. Freshly
// extracted clients are always active.
func (e *Extractor) Extract(fs *consolidate.FieldSet) *Record {
	rec := Record{
		FirstName:     firstOf(fs, e.fields.FirstName),
		LastName:      firstOf(fs, e.fields.LastName),
		IDNumber:      firstOf(fs, e.fields.IDNumber),
		Email:         firstOf(fs, e.fields.Email),
		Phone:         firstOf(fs, e.fields.Phone),
		AddressStreet: firstOf(fs, e.fields.AddressStreet),
		AddressCity:   firstOf(fs, e.fields.AddressCity),
		Status:        StatusActive,
	}
	if rec.FirstName == "" && rec.LastName == "" && rec.IDNumber == "" {
		return nil
	}
	return &rec
}

func firstOf(fs *consolidate.FieldSet, chain []string) string {
	for _, field := range chain {
		if v := usable(fs.First(field)); v != "" {
			return v
		}
	}
	return ""
}

func usable(v string) string {
	v = strings.TrimSpace(v)
	if v == nanLiteral {
		return ""
	}
	return v
}
