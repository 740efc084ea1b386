// Package xmltree converts parsed clearing-house XML into a small tagged
// variant (Scalar | Sequence | Object) so the rest of the pipeline never has
// to ask "is this a string, a list or a map".
package xmltree

// Kind tags the variant held by a Node.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindScalar
	KindSequence
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Field is one named member of an Object node.
type Field struct {
	Name  string
	Value Node
}

// Node is a RawDocumentTree node.
//
// Only the member matching Kind is meaningful. The zero Node is KindInvalid
// and is skipped by every consumer.
type Node struct {
	Kind   Kind
	Text   string  // KindScalar
	Items  []Node  // KindSequence
	Fields []Field // KindObject, document order
}

// Scalar returns a scalar node.
func Scalar(text string) Node {
	return Node{Kind: KindScalar, Text: text}
}

// Sequence returns a sequence node over items.
func Sequence(items ...Node) Node {
	return Node{Kind: KindSequence, Items: items}
}

// Object returns an object node with fields in the given order.
func Object(fields ...Field) Node {
	return Node{Kind: KindObject, Fields: fields}
}

// F is shorthand for building a Field, mostly for tests and fixtures.
func F(name string, value Node) Field {
	return Field{Name: name, Value: value}
}

// Get returns the first field named name of an object node.
func (n Node) Get(name string) (Node, bool) {
	if n.Kind != KindObject {
		return Node{}, false
	}
	for _, f := range n.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Node{}, false
}
