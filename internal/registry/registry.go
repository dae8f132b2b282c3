// Package registry issues short, stable file tags of the form
// "basename:index".
package registry

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Entry is one issued tag and the path string it was issued for.
type Entry struct {
	Tag  string
	Path string
}

// Registry assigns each distinct path string a tag made of its basename and
// a per-basename index starting at 1, in first-seen order. A tag, once
// issued, never changes. Paths are not canonicalized: "a/x.go" and
// "./a/x.go" get different tags.
//
// A Registry is safe for concurrent use, but tag values depend on call
// order; callers that need reproducible output must call Tag in a
// deterministic order.
type Registry struct {
	mu      sync.Mutex
	byBase  map[string]map[string]int
	entries []Entry
}

// New returns an empty registry scoped to a single run.
func New() *Registry {
	return &Registry{byBase: make(map[string]map[string]int)}
}

// Tag returns the tag for path, issuing a new one on first sight.
func (r *Registry) Tag(path string) string {
	base := filepath.Base(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	paths, ok := r.byBase[base]
	if !ok {
		paths = make(map[string]int)
		r.byBase[base] = paths
	}
	idx, ok := paths[path]
	if !ok {
		idx = len(paths) + 1
		paths[path] = idx
		r.entries = append(r.entries, Entry{Tag: format(base, idx), Path: path})
	}
	return format(base, idx)
}

// Len returns the number of tags issued so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entries returns every issued tag in the order it was issued.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func format(base string, idx int) string {
	return fmt.Sprintf("%s:%d", base, idx)
}
