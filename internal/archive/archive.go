// Package archive turns files, directories and zip archives into in-memory
// documents for the importer.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"mislaka/internal/extract"
)

// MaxEntryBytes caps a single decompressed zip entry. Larger entries are
// skipped.
const MaxEntryBytes = 64 << 20

var zipMagic = []byte("PK\x03\x04")

// ErrNoDocuments is returned when an input yields no XML documents.
var ErrNoDocuments = errors.New("archive: no xml documents")

// Load reads every path in order. A directory contributes its *.xml files
// (not recursive), a .zip its *.xml entries, anything else is read as one
// document.
func Load(paths ...string) ([]extract.Document, error) {
	var docs []extract.Document
	for _, p := range paths {
		got, err := loadPath(p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, got...)
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs, nil
}

func loadPath(p string) ([]extract.Document, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	if info.IsDir() {
		return FromDir(p)
	}

	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	if isZip(p, b) {
		docs, err := FromZip(bytes.NewReader(b), int64(len(b)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		return docs, nil
	}
	return []extract.Document{{Name: filepath.Base(p), Data: b}}, nil
}

// FromDir reads the *.xml files directly under dir, sorted by name.
// Unreadable files are skipped.
func FromDir(dir string) ([]extract.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var docs []extract.Document
	for _, e := range entries {
		if e.IsDir() || !isXMLName(e.Name()) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		docs = append(docs, extract.Document{Name: e.Name(), Data: b})
	}
	return docs, nil
}

// FromZip reads the *.xml entries of a zip archive, sorted by entry name.
// Directory entries, macOS resource forks, unreadable and oversized entries
// are skipped.
func FromZip(r io.ReaderAt, size int64) ([]extract.Document, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isXMLName(f.Name) || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		if f.UncompressedSize64 > MaxEntryBytes {
			continue
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	docs := make([]extract.Document, 0, len(files))
	for _, f := range files {
		b, err := readEntry(f)
		if err != nil {
			continue
		}
		docs = append(docs, extract.Document{Name: f.Name, Data: b})
	}
	return docs, nil
}

// FromUpload interprets an uploaded body: a zip archive (by magic bytes or
// .zip name) expands to its entries, anything else is one document.
func FromUpload(name string, data []byte) ([]extract.Document, error) {
	if isZip(name, data) {
		docs, err := FromZip(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return nil, ErrNoDocuments
		}
		return docs, nil
	}
	if name == "" {
		name = "upload.xml"
	}
	return []extract.Document{{Name: name, Data: data}}, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	b, err := io.ReadAll(io.LimitReader(rc, MaxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > MaxEntryBytes {
		return nil, fmt.Errorf("%s: entry larger than %d bytes", f.Name, MaxEntryBytes)
	}
	return b, nil
}

func isXMLName(name string) bool {
	return strings.EqualFold(path.Ext(name), ".xml")
}

func isZip(name string, data []byte) bool {
	return bytes.HasPrefix(data, zipMagic) || strings.EqualFold(filepath.Ext(name), ".zip")
}
