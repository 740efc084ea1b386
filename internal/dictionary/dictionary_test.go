package dictionary

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefault_LoadsEmbeddedTables(t *testing.T) {
	t.Parallel()

	d := Default()
	if d != Default() {
		t.Fatalf("Default must return the same instance")
	}

	if got := len(d.Categories.Categories()); got != 12 {
		t.Fatalf("categories=%d want 12", got)
	}
	if got, ok := d.Codes.Lookup("SUG-MUTZAR", "2"); !ok || got != "קרן פנסיה" {
		t.Fatalf("SUG-MUTZAR/2 = %q,%v", got, ok)
	}
	if _, ok := d.Codes.Lookup("SUG-MUTZAR", "99"); ok {
		t.Fatalf("unmapped code must report !ok")
	}
	if _, ok := d.Codes.Lookup("NO-SUCH-FIELD", "1"); ok {
		t.Fatalf("unknown field must report !ok")
	}
	if !d.Codes.Has("MIN") || d.Codes.Has("SHEM-PRATI") {
		t.Fatalf("Has mismatch")
	}
	if !reflect.DeepEqual(d.Client.Phone, []string{"MISPAR-TELEPHONE-CELLULARI", "MISPAR-TELEPHONE-KAVI"}) {
		t.Fatalf("phone chain=%v", d.Client.Phone)
	}
}

func TestClassifier_OrderAndLookup(t *testing.T) {
	t.Parallel()

	cl := Default().Categories
	cats := cl.Categories()
	if cats[0].Key != "personal" || cats[len(cats)-1].Key != "study_fund" {
		t.Fatalf("iteration order changed: first=%s last=%s", cats[0].Key, cats[len(cats)-1].Key)
	}

	// Mutating the returned slice must not leak back.
	cats[0].Key = "mutated"
	if cl.Categories()[0].Key != "personal" {
		t.Fatalf("Categories returned shared storage")
	}

	tests := []struct {
		field string
		want  string
		ok    bool
	}{
		{"SHEM-PRATI", "personal", true},
		{"E-MAIL", "personal", true},
		{"SHEUR-DMEI-NIHUL-HAFKADA", "management_fees", true},
		{"TSUA-NETO", "performance", true},
		{"UNKNOWN-FIELD", "", false},
	}
	for _, tt := range tests {
		got, ok := cl.Classify(tt.field)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Classify(%s)=%q,%v want %q,%v", tt.field, got, ok, tt.want, tt.ok)
		}
	}

	if _, ok := cl.Category("nope"); ok {
		t.Fatalf("unknown category key must report !ok")
	}
}

func TestCategory_Arrange(t *testing.T) {
	t.Parallel()

	cat := newCategory("c", "C", []string{"B", "A"}, []string{"Z", "Y"})
	got := cat.Arrange([]string{"Z", "A", "OTHER", "Y", "B"})
	want := []string{"B", "A", "Y", "Z"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Arrange=%v want %v", got, want)
	}
	if got := cat.Arrange(nil); len(got) != 0 {
		t.Fatalf("Arrange(nil)=%v", got)
	}
	if got := cat.Fields(); !reflect.DeepEqual(got, []string{"A", "B", "Y", "Z"}) {
		t.Fatalf("Fields=%v", got)
	}
}

func TestConventions(t *testing.T) {
	t.Parallel()

	c := Default().Conventions
	tests := []struct {
		field              string
		date, amount, rate bool
	}{
		{"TAARICH-LEYDA", true, false, false},
		{"TOTAL-CHISACHON-MTZBR", false, true, false},
		{"YITRAT-KASPEY-TAGMULIM", false, true, false},
		{"SCHUM-BITUACH-MAVET", false, true, false},
		{"SHEUR-DMEI-NIHUL-HAFKADA", false, false, true},
		{"tsua-neto", false, false, true},
		{"SHEM-PRATI", false, false, false},
	}
	for _, tt := range tests {
		if c.IsDate(tt.field) != tt.date || c.IsAmount(tt.field) != tt.amount || c.IsRate(tt.field) != tt.rate {
			t.Errorf("%s: date=%v amount=%v rate=%v", tt.field, c.IsDate(tt.field), c.IsAmount(tt.field), c.IsRate(tt.field))
		}
	}
}

func TestParse_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, doc, wantErr string
	}{
		{"bad_yaml", "categories: [", "decode yaml"},
		{"no_categories", "client_fields: {first_name: [A], last_name: [B], id_number: [C]}", "no categories"},
		{"dup_category", `
categories: [{key: a}, {key: a}]
client_fields: {first_name: [A], last_name: [B], id_number: [C]}`, "defined twice"},
		{"empty_key", `
categories: [{key: " "}]
client_fields: {first_name: [A], last_name: [B], id_number: [C]}`, "empty key"},
		{"missing_client", "categories: [{key: a}]", "client_fields"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err=%v want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_OverrideFile(t *testing.T) {
	t.Parallel()

	if d, err := Load("  "); err != nil || d != Default() {
		t.Fatalf("empty path must yield Default: %v", err)
	}

	p := filepath.Join(t.TempDir(), "dict.yaml")
	doc := `
conventions:
  amount_prefixes: [" sum "]
code_tables:
  KIND:
    "1": one
categories:
  - key: only
    title: Only
    display_order: [KIND]
client_fields:
  first_name: [FN]
  last_name: [LN]
  id_number: [ID]
`
	if err := os.WriteFile(p, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, _ := d.Codes.Lookup("KIND", "1"); got != "one" {
		t.Fatalf("lookup=%q", got)
	}
	if !d.Conventions.IsAmount("SUM-X") {
		t.Fatalf("prefixes must be normalised")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file must fail")
	}
}
