package dictionary

import "sort"

// Category is one report section: the set of fields that belong to it and
// the order its declared fields are shown in.
type Category struct {
	Key          string
	Title        string
	DisplayOrder []string

	members map[string]struct{}
}

// Contains reports whether field belongs to the category.
func (c Category) Contains(field string) bool {
	_, ok := c.members[field]
	return ok
}

// Fields returns every member field, alphabetically.
func (c Category) Fields() []string {
	out := make([]string, 0, len(c.members))
	for f := range c.members {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Arrange filters present down to the category's members and orders them:
// DisplayOrder entries first, in declared order, then the rest alphabetically.
func (c Category) Arrange(present []string) []string {
	have := make(map[string]struct{}, len(present))
	for _, f := range present {
		if c.Contains(f) {
			have[f] = struct{}{}
		}
	}

	out := make([]string, 0, len(have))
	for _, f := range c.DisplayOrder {
		if _, ok := have[f]; ok {
			out = append(out, f)
			delete(have, f)
		}
	}

	rest := make([]string, 0, len(have))
	for f := range have {
		rest = append(rest, f)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Classifier holds the categories in their fixed iteration order.
type Classifier struct {
	cats  []Category
	byKey map[string]int
}

// Categories returns the categories in iteration order.
func (c *Classifier) Categories() []Category {
	return append([]Category(nil), c.cats...)
}

// Category returns the category registered under key.
func (c *Classifier) Category(key string) (Category, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Category{}, false
	}
	return c.cats[i], true
}

// Classify returns the key of the first category containing field.
func (c *Classifier) Classify(field string) (string, bool) {
	for _, cat := range c.cats {
		if cat.Contains(field) {
			return cat.Key, true
		}
	}
	return "", false
}

func newCategory(key, title string, order, extra []string) Category {
	members := make(map[string]struct{}, len(order)+len(extra))
	for _, f := range order {
		members[f] = struct{}{}
	}
	for _, f := range extra {
		members[f] = struct{}{}
	}
	return Category{
		Key:          key,
		Title:        title,
		DisplayOrder: append([]string(nil), order...),
		members:      members,
	}
}
