package consolidate

import (
	"sort"

	"mislaka/internal/xmltree"
)

// Consolidate walks root depth-first and returns a fresh FieldSet.
//
// Values are keyed by their leaf field name, not by their full path: the same
// field recurring in different product blocks is merged into one set. The
// dotted path is tracked during the walk but is not part of the key.
//
// Nodes of an unexpected shape are skipped; Consolidate never fails.
func Consolidate(root xmltree.Node) *FieldSet {
	fs := New()
	walkObject(fs, root, "")
	return fs
}

// ConsolidateAll merges the consolidation of every tree into one set, in the
// order given. This is the explicit replacement for reusing one accumulator
// across documents.
func ConsolidateAll(roots ...xmltree.Node) *FieldSet {
	fs := New()
	for _, r := range roots {
		walkObject(fs, r, "")
	}
	return fs
}

func walkObject(fs *FieldSet, n xmltree.Node, path string) {
	if n.Kind != xmltree.KindObject {
		return
	}
	for _, f := range n.Fields {
		walkValue(fs, f.Name, f.Value, joinPath(path, f.Name))
	}
}

func walkValue(fs *FieldSet, key string, v xmltree.Node, path string) {
	switch v.Kind {
	case xmltree.KindScalar:
		fs.Add(key, v.Text)

	case xmltree.KindSequence:
		for _, item := range v.Items {
			switch item.Kind {
			case xmltree.KindScalar:
				fs.Add(key, item.Text)
			case xmltree.KindObject:
				walkObject(fs, item, path)
			}
		}

	case xmltree.KindObject:
		walkObject(fs, v, path)
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
