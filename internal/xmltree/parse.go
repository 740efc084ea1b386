package xmltree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/htmlindex"
)

var (
	// ErrEmptyDocument is returned for input that is empty or whitespace only.
	ErrEmptyDocument = errors.New("xmltree: empty document")

	// ErrNoRoot is returned when the input parses but has no root element.
	ErrNoRoot = errors.New("xmltree: document has no root element")

	// ErrMultipleRoots is returned when elements follow the root element.
	ErrMultipleRoots = errors.New("xmltree: document has more than one root element")
)

// Parse parses one XML document and converts it into a Node.
//
// The result is always an Object holding a single field named after the root
// element, so a document such as <A><B>1</B></A> becomes {A: {B: "1"}}.
//
// Documents declaring a legacy charset (windows-1255, iso-8859-8, ...) are
// decoded through x/text before parsing.
func Parse(data []byte) (Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Node{}, ErrEmptyDocument
	}

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(data); err != nil {
		return Node{}, fmt.Errorf("parse xml: %w", err)
	}

	tops := doc.ChildElements()
	switch {
	case len(tops) == 0:
		return Node{}, ErrNoRoot
	case len(tops) > 1:
		return Node{}, fmt.Errorf("parse xml: %w: <%s> after <%s>", ErrMultipleRoots, tops[1].Tag, tops[0].Tag)
	}
	root := tops[0]
	return Object(F(root.Tag, FromElement(root))), nil
}

// FromElement converts an etree element into a Node.
//
// Rules:
//   - an element without child elements is a Scalar of its text;
//   - otherwise it is an Object; a child tag seen more than once under the
//     same parent becomes one Sequence field, placed where the tag first
//     appeared;
//   - attributes and text mixed with child elements are dropped.
func FromElement(el *etree.Element) Node {
	children := el.ChildElements()
	if len(children) == 0 {
		return Scalar(el.Text())
	}

	counts := make(map[string]int, len(children))
	for _, c := range children {
		counts[c.Tag]++
	}

	fields := make([]Field, 0, len(counts))
	index := make(map[string]int, len(counts))
	for _, c := range children {
		v := FromElement(c)
		if counts[c.Tag] == 1 {
			fields = append(fields, F(c.Tag, v))
			continue
		}
		if i, ok := index[c.Tag]; ok {
			fields[i].Value.Items = append(fields[i].Value.Items, v)
			continue
		}
		index[c.Tag] = len(fields)
		fields = append(fields, F(c.Tag, Sequence(v)))
	}
	return Object(fields...)
}

// charsetReader resolves non-UTF-8 encodings declared in the XML prolog.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || label == "utf-8" || label == "utf8" {
		return input, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
