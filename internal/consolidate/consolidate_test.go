package consolidate

import (
	"encoding/json"
	"reflect"
	"testing"

	x "mislaka/internal/xmltree"
)

func productBlock(amount, kind string) x.Node {
	return x.Object(
		x.F("SUG-MUTZAR", x.Scalar(kind)),
		x.F("TOTAL-CHISACHON-MTZBR", x.Scalar(amount)),
	)
}

func TestConsolidate_MergesLeafNamesAcrossBranches(t *testing.T) {
	t.Parallel()

	root := x.Object(x.F("Mimshak", x.Object(
		x.F("Lakoach", x.Object(
			x.F("SHEM-PRATI", x.Scalar("  Dana ")),
			x.F("SHEM-MISHPACHA", x.Scalar("")),
		)),
		x.F("Mutzar", x.Sequence(
			productBlock("1000", "2"),
			productBlock("2500.5", "2"),
			x.Scalar("stray"),
		)),
		x.F("Heshbon", x.Object(
			x.F("Mutzar", productBlock("1000", "3")),
		)),
	)))

	fs := Consolidate(root)

	want := map[string][]string{
		"SHEM-PRATI":            {"Dana"},
		"SUG-MUTZAR":            {"2", "3"},
		"TOTAL-CHISACHON-MTZBR": {"1000", "2500.5"},
		"Mutzar":                {"stray"},
	}
	if got := fs.Map(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Map()=%#v\nwant %#v", got, want)
	}
	if fs.Has("SHEM-MISHPACHA") {
		t.Fatalf("empty value must not create a field")
	}
	if got := fs.Fields(); !reflect.DeepEqual(got, []string{"SHEM-PRATI", "SUG-MUTZAR", "TOTAL-CHISACHON-MTZBR", "Mutzar"}) {
		t.Fatalf("field order = %v", got)
	}
}

func TestConsolidate_SkipsUnexpectedShapes(t *testing.T) {
	t.Parallel()

	// Root that is not an object, nested sequences and invalid nodes are no-ops.
	if fs := Consolidate(x.Scalar("top")); fs.Len() != 0 {
		t.Fatalf("scalar root produced %v", fs.Map())
	}

	root := x.Object(
		x.F("A", x.Sequence(x.Sequence(x.Scalar("deep")), x.Node{})),
		x.F("B", x.Node{}),
		x.F("C", x.Scalar("ok")),
	)
	fs := Consolidate(root)
	if !reflect.DeepEqual(fs.Map(), map[string][]string{"C": {"ok"}}) {
		t.Fatalf("unexpected %v", fs.Map())
	}
}

func TestConsolidate_Idempotent(t *testing.T) {
	t.Parallel()

	root := x.Object(x.F("R", x.Sequence(productBlock("1", "2"), productBlock("3", "4"))))
	a, b := Consolidate(root), Consolidate(root)
	if !reflect.DeepEqual(a.Map(), b.Map()) || !reflect.DeepEqual(a.Fields(), b.Fields()) {
		t.Fatalf("consolidation is not idempotent: %v vs %v", a.Map(), b.Map())
	}
}

func TestConsolidate_OrderIndependentAsSets(t *testing.T) {
	t.Parallel()

	forward := x.Object(x.F("R", x.Sequence(productBlock("1", "2"), productBlock("3", "4"))))
	backward := x.Object(
		x.F("Other", productBlock("3", "4")),
		x.F("R", productBlock("1", "2")),
	)

	a, b := Consolidate(forward), Consolidate(backward)
	if !a.SetEqual(b) || !b.SetEqual(a) {
		t.Fatalf("sets differ: %v vs %v", a.Map(), b.Map())
	}
	if reflect.DeepEqual(a.Values("SUG-MUTZAR"), b.Values("SUG-MUTZAR")) {
		t.Fatalf("expected insertion order to differ for this fixture")
	}
}

func TestConsolidateAll_AccumulatesExplicitly(t *testing.T) {
	t.Parallel()

	d1 := x.Object(x.F("R", productBlock("1", "2")))
	d2 := x.Object(x.F("R", productBlock("5", "2")))

	all := ConsolidateAll(d1, d2)
	if got := all.Values("TOTAL-CHISACHON-MTZBR"); !reflect.DeepEqual(got, []string{"1", "5"}) {
		t.Fatalf("accumulated amounts = %v", got)
	}

	// Per-document sets stay isolated.
	if got := Consolidate(d2).Values("TOTAL-CHISACHON-MTZBR"); !reflect.DeepEqual(got, []string{"5"}) {
		t.Fatalf("leak across documents: %v", got)
	}

	merged := Consolidate(d1)
	merged.Merge(Consolidate(d2))
	merged.Merge(nil)
	if !merged.SetEqual(all) {
		t.Fatalf("Merge result %v differs from ConsolidateAll %v", merged.Map(), all.Map())
	}
}

func TestFieldSet_FirstAndJSON(t *testing.T) {
	t.Parallel()

	fs := New()
	fs.Add("E-MAIL", " a@b.co ")
	fs.Add("E-MAIL", "c@d.co")
	fs.Add("E-MAIL", "a@b.co")
	fs.Add("", "ignored")

	if got := fs.First("E-MAIL"); got != "a@b.co" {
		t.Fatalf("First=%q", got)
	}
	if got := fs.First("MISSING"); got != "" {
		t.Fatalf("First(missing)=%q", got)
	}

	b, err := json.Marshal(fs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"E-MAIL":["a@b.co","c@d.co"]}` {
		t.Fatalf("json=%s", b)
	}

	var back FieldSet
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.SetEqual(fs) {
		t.Fatalf("round trip mismatch: %v", back.Map())
	}

	var nilSet *FieldSet
	if nilSet.Len() != 0 || nilSet.First("x") != "" || nilSet.Values("x") != nil || nilSet.Has("x") {
		t.Fatalf("nil FieldSet accessors must be safe")
	}
}
