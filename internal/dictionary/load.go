// Package dictionary holds the static knowledge about clearing-house field
// names: code → label tables, report categories, the naming conventions
// that mark dates, amounts and rates, and which fields feed a client record.
//
// A Dictionary is built once and never mutated.
package dictionary

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var embeddedTables []byte

// ClientFields lists, per client attribute, the source fields to try in order.
type ClientFields struct {
	FirstName     []string `yaml:"first_name"`
	LastName      []string `yaml:"last_name"`
	IDNumber      []string `yaml:"id_number"`
	Email         []string `yaml:"email"`
	Phone         []string `yaml:"phone"`
	AddressStreet []string `yaml:"address_street"`
	AddressCity   []string `yaml:"address_city"`
}

// Dictionary bundles every static table the engine consults.
type Dictionary struct {
	Conventions Conventions
	Codes       CodeTables
	Categories  *Classifier
	Client      ClientFields
}

type rawCategory struct {
	Key          string   `yaml:"key"`
	Title        string   `yaml:"title"`
	DisplayOrder []string `yaml:"display_order"`
	Fields       []string `yaml:"fields"`
}

type rawDictionary struct {
	Conventions struct {
		DatePrefixes   []string `yaml:"date_prefixes"`
		AmountPrefixes []string `yaml:"amount_prefixes"`
		RatePrefixes   []string `yaml:"rate_prefixes"`
	} `yaml:"conventions"`
	CodeTables   map[string]map[string]string `yaml:"code_tables"`
	Categories   []rawCategory                `yaml:"categories"`
	ClientFields ClientFields                 `yaml:"client_fields"`
}

var (
	defaultOnce sync.Once
	defaultDict *Dictionary
)

// Default returns the dictionary compiled into the binary.
// It panics if the embedded tables are malformed, which is a build defect.
func Default() *Dictionary {
	defaultOnce.Do(func() {
		d, err := Parse(embeddedTables)
		if err != nil {
			panic(fmt.Sprintf("dictionary: embedded tables: %v", err))
		}
		defaultDict = d
	})
	return defaultDict
}

// Load returns Default when path is empty, otherwise the dictionary read from path.
func Load(path string) (*Dictionary, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary %s: %w", path, err)
	}
	d, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("dictionary %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes and validates a YAML dictionary.
func Parse(b []byte) (*Dictionary, error) {
	var raw rawDictionary
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := raw.validate(); err != nil {
		return nil, err
	}

	cl := &Classifier{byKey: make(map[string]int, len(raw.Categories))}
	for i, rc := range raw.Categories {
		cl.cats = append(cl.cats, newCategory(rc.Key, rc.Title, rc.DisplayOrder, rc.Fields))
		cl.byKey[rc.Key] = i
	}

	return &Dictionary{
		Conventions: Conventions{
			DatePrefixes:   upperAll(raw.Conventions.DatePrefixes),
			AmountPrefixes: upperAll(raw.Conventions.AmountPrefixes),
			RatePrefixes:   upperAll(raw.Conventions.RatePrefixes),
		},
		Codes:      newCodeTables(raw.CodeTables),
		Categories: cl,
		Client:     raw.ClientFields,
	}, nil
}

func (r rawDictionary) validate() error {
	if len(r.Categories) == 0 {
		return errors.New("no categories defined")
	}
	seen := make(map[string]struct{}, len(r.Categories))
	for i, c := range r.Categories {
		if strings.TrimSpace(c.Key) == "" {
			return fmt.Errorf("category %d: empty key", i)
		}
		if _, dup := seen[c.Key]; dup {
			return fmt.Errorf("category %q defined twice", c.Key)
		}
		seen[c.Key] = struct{}{}
	}
	cf := r.ClientFields
	if len(cf.FirstName) == 0 || len(cf.LastName) == 0 || len(cf.IDNumber) == 0 {
		return errors.New("client_fields: first_name, last_name and id_number are required")
	}
	return nil
}

func upperAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
