// Package name interns hierarchical, dot-separated names.
//
// Two names with equal paths are the same *Name, so pointers can be compared
// with == and used directly as map keys. Interning is process-wide: the trie
// only ever grows, and each node publishes its child table copy-on-write so
// lookups of existing names never take a lock.
package name

import (
	"strings"
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/signalflow/internal/runtime/errors"
)

// Separator joins the parts of a path.
const Separator = '.'

// Name is an interned node in the name trie.
type Name struct {
	part      string
	path      string
	enclosure *Name
	depth     int

	mu       sync.Mutex
	children atomic.Pointer[map[string]*Name]
}

var root = &Name{}

// Parse interns a dot-separated path such as "metrics.http.requests".
func Parse(path string) (*Name, error) {
	if path == "" {
		return nil, errspkg.ErrNameRequired
	}
	return Of(strings.Split(path, string(Separator))...)
}

// MustParse is Parse for static names; it panics on malformed input.
func MustParse(path string) *Name {
	n, err := Parse(path)
	if err != nil {
		panic(err)
	}
	return n
}

// Of interns the name made of parts. Parts must not be empty; a part may
// itself contain separators, in which case it is split.
func Of(parts ...string) (*Name, error) {
	if len(parts) == 0 {
		return nil, errspkg.ErrNameRequired
	}
	n := root
	for _, p := range parts {
		var err error
		if n, err = n.child(p); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Child returns the interned name n + "." + part.
func (n *Name) Child(part string) (*Name, error) {
	if n == nil {
		return Parse(part)
	}
	return n.child(part)
}

// MustChild is Child that panics on malformed input.
func (n *Name) MustChild(part string) *Name {
	c, err := n.Child(part)
	if err != nil {
		panic(err)
	}
	return c
}

// Extend appends every part of suffix below n.
func (n *Name) Extend(suffix *Name) *Name {
	if suffix == nil {
		return n
	}
	out := n
	for _, p := range suffix.Parts() {
		out, _ = out.child(p)
	}
	return out
}

func (n *Name) child(part string) (*Name, error) {
	if strings.ContainsRune(part, Separator) {
		out := n
		for _, p := range strings.Split(part, string(Separator)) {
			var err error
			if out, err = out.child(p); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	if part == "" {
		return nil, errspkg.ErrInvalidName
	}
	if m := n.children.Load(); m != nil {
		if c, ok := (*m)[part]; ok {
			return c, nil
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	old := n.children.Load()
	if old != nil {
		if c, ok := (*old)[part]; ok {
			return c, nil
		}
	}
	c := &Name{part: part, depth: n.depth + 1}
	if n != root {
		c.enclosure = n
		c.path = n.path + string(Separator) + part
	} else {
		c.path = part
	}
	var next map[string]*Name
	if old != nil {
		next = make(map[string]*Name, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
	} else {
		next = make(map[string]*Name, 1)
	}
	next[part] = c
	n.children.Store(&next)
	return c, nil
}

// Part is the last segment.
func (n *Name) Part() string { return n.part }

// Path is the full dot-separated path.
func (n *Name) Path() string { return n.path }

func (n *Name) String() string {
	if n == nil {
		return ""
	}
	return n.path
}

// Enclosure is the parent name, or nil for a top-level name.
func (n *Name) Enclosure() *Name { return n.enclosure }

// Depth is the number of segments.
func (n *Name) Depth() int { return n.depth }

// Parts returns the segments from outermost to innermost.
func (n *Name) Parts() []string {
	parts := make([]string, n.depth)
	for c := n; c != nil && c != root; c = c.enclosure {
		parts[c.depth-1] = c.part
	}
	return parts
}

// Within reports whether n equals other or is nested below it.
func (n *Name) Within(other *Name) bool {
	for c := n; c != nil; c = c.enclosure {
		if c == other {
			return true
		}
	}
	return false
}

// Compare orders names by path.
func Compare(a, b *Name) int {
	return strings.Compare(a.String(), b.String())
}
