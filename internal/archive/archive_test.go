package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func buildZip(t *testing.T, entries map[string]string, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestFromZip_FiltersAndSorts(t *testing.T) {
	t.Parallel()

	entries := map[string]string{
		"b.xml":            "<B/>",
		"a.XML":            "<A/>",
		"notes.txt":        "skip",
		"__MACOSX/._a.xml": "fork",
		"nested/c.xml":     "<C/>",
		"nested/":          "",
	}
	data := buildZip(t, entries, "b.xml", "notes.txt", "__MACOSX/._a.xml", "nested/", "nested/c.xml", "a.XML")

	docs, err := FromZip(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("FromZip: %v", err)
	}
	var got []string
	for _, d := range docs {
		got = append(got, d.Name)
	}
	want := []string{"a.XML", "b.xml", "nested/c.xml"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	if string(docs[1].Data) != "<B/>" {
		t.Fatalf("data=%q", docs[1].Data)
	}
}

func TestFromZip_Corrupt(t *testing.T) {
	t.Parallel()
	b := []byte("PK\x03\x04garbage")
	if _, err := FromZip(bytes.NewReader(b), int64(len(b))); err == nil {
		t.Fatalf("expected error for corrupt archive")
	}
}

func TestFromUpload(t *testing.T) {
	t.Parallel()

	docs, err := FromUpload("report.xml", []byte("<A/>"))
	if err != nil || len(docs) != 1 || docs[0].Name != "report.xml" {
		t.Fatalf("docs=%v err=%v", docs, err)
	}

	docs, err = FromUpload("", []byte("<A/>"))
	if err != nil || docs[0].Name != "upload.xml" {
		t.Fatalf("docs=%v err=%v", docs, err)
	}

	// detected by magic bytes even without a .zip name
	z := buildZip(t, map[string]string{"x.xml": "<X/>"}, "x.xml")
	docs, err = FromUpload("body", z)
	if err != nil || len(docs) != 1 || docs[0].Name != "x.xml" {
		t.Fatalf("docs=%v err=%v", docs, err)
	}

	empty := buildZip(t, map[string]string{"readme.txt": "hi"}, "readme.txt")
	if _, err := FromUpload("batch.zip", empty); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("err=%v want ErrNoDocuments", err)
	}
}

func TestLoad_FilesDirsAndZips(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	single := write("single.xml", []byte("<S/>"))
	write("in/2.xml", []byte("<Two/>"))
	write("in/1.xml", []byte("<One/>"))
	write("in/skip.csv", []byte("a,b"))
	write("in/sub/deep.xml", []byte("<Deep/>"))
	zipPath := write("batch.zip", buildZip(t, map[string]string{"z.xml": "<Z/>"}, "z.xml"))

	docs, err := Load(single, filepath.Join(dir, "in"), zipPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var got []string
	for _, d := range docs {
		got = append(got, d.Name)
	}
	want := []string{"single.xml", "1.xml", "2.xml", "z.xml"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}

	if _, err := Load(filepath.Join(dir, "missing.xml")); err == nil {
		t.Fatalf("expected error for missing path")
	}
	if _, err := Load(filepath.Join(dir, "in", "sub", "..", "..", "in", "sub")); err != nil {
		t.Fatalf("Load(sub): %v", err)
	}
	emptyDir := filepath.Join(dir, "empty")
	if err := os.Mkdir(emptyDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(emptyDir); !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("err=%v want ErrNoDocuments", err)
	}
}
