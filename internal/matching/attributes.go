package matching

import "strings"

// Bag is a plain attribute map. Nested maps are reached with dot paths.
type Bag map[string]any

// Lookup implements Attributes.
func (b Bag) Lookup(path string) (any, bool) {
	return LookupPath(map[string]any(b), path)
}

// LookupPath walks a dot path through nested maps and Attributes values.
// The first segment may itself contain dots when the map has such a key.
func LookupPath(root map[string]any, path string) (any, bool) {
	if v, ok := root[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	v, ok := root[head]
	if !ok {
		return nil, false
	}
	switch next := v.(type) {
	case map[string]any:
		return LookupPath(next, rest)
	case Bag:
		return LookupPath(next, rest)
	case Attributes:
		return next.Lookup(rest)
	}
	return nil, false
}
