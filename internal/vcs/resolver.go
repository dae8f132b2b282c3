// Package vcs maps source paths to commit-pinned hyperlinks, taking nested
// git submodules into account.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrNotInsideRepository is returned when a path lies outside the repository
// root and every known submodule.
var ErrNotInsideRepository = errors.New("path is not inside the repository")

// PathError records the path that failed to resolve.
type PathError struct {
	Path string
	Root string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %s (root %s)", e.Path, e.Err.Error(), e.Root)
}

func (e *PathError) Unwrap() error { return e.Err }

// Submodule is a direct submodule of the repository.
type Submodule struct {
	Name   string
	Path   string // relative to the repository root, slash-separated
	URL    string
	Commit string // commit pinned by the parent repository
}

// Inspector supplies the facts about a repository that the resolver needs.
type Inspector interface {
	WorkTree(ctx context.Context) (string, error)
	Submodules(ctx context.Context) ([]Submodule, error)
}

// URLParts are the pieces a report joins into a hyperlink.
type URLParts struct {
	URLStart   string
	CommitHash string
	PathHTML   string
}

// Link joins the parts as {url_start}/blob/{commit}/{path}, with a line
// anchor when line is positive.
func (p URLParts) Link(line int) string {
	link := strings.TrimRight(p.URLStart, "/") + "/blob/" + p.CommitHash + "/" + p.PathHTML
	if line > 0 {
		link += fmt.Sprintf("#L%d", line)
	}
	return link
}

// Resolver turns absolute paths into URLParts. It is read-only after
// construction and safe for concurrent use.
type Resolver struct {
	root       string
	baseURL    string
	submodules []submoduleRoot
}

type submoduleRoot struct {
	Submodule
	abs string
}

// NewResolver binds a resolver to the repository described by insp and to
// baseURL. Submodules are enumerated once, here. Any inspector error, such
// as the directory not being a repository, is returned as is.
func NewResolver(ctx context.Context, insp Inspector, baseURL string) (*Resolver, error) {
	root, err := insp.WorkTree(ctx)
	if err != nil {
		return nil, err
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving repository root: %w", err)
	}
	root = realPath(root)

	subs, err := insp.Submodules(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing submodules: %w", err)
	}

	r := &Resolver{root: root, baseURL: baseURL}
	for _, sm := range subs {
		r.submodules = append(r.submodules, submoduleRoot{
			Submodule: sm,
			abs:       filepath.Join(root, filepath.FromSlash(sm.Path)),
		})
	}
	return r, nil
}

// Root returns the repository working-tree root.
func (r *Resolver) Root() string {
	return r.root
}

// Submodules returns the submodules found at construction, in the order the
// inspector reported them.
func (r *Resolver) Submodules() []Submodule {
	out := make([]Submodule, len(r.submodules))
	for i := range r.submodules {
		out[i] = r.submodules[i].Submodule
	}
	return out
}

// PathToURL resolves path. Paths inside a submodule are pinned to the
// submodule's commit; other paths in the repository use commitID. The first
// submodule whose root contains the path wins. Symlinks are resolved on both
// sides, so a path reached through a link matches its real location.
func (r *Resolver) PathToURL(path, commitID string) (URLParts, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return URLParts{}, fmt.Errorf("resolving %s: %w", path, err)
	}
	abs = realPath(abs)

	for i := range r.submodules {
		sm := &r.submodules[i]
		rel, ok := within(sm.abs, abs)
		if !ok {
			continue
		}
		return URLParts{
			URLStart:   strings.TrimRight(r.baseURL, "/") + "/" + strings.TrimLeft(sm.URL, "/"),
			CommitHash: sm.Commit,
			PathHTML:   encodePath(rel),
		}, nil
	}

	rel, ok := within(r.root, abs)
	if !ok {
		return URLParts{}, &PathError{Path: abs, Root: r.root, Err: ErrNotInsideRepository}
	}
	return URLParts{
		URLStart:   r.baseURL,
		CommitHash: commitID,
		PathHTML:   encodePath(rel),
	}, nil
}

// realPath resolves symlinks in an absolute, clean path. Trailing elements
// that do not exist yet are kept as written on top of the nearest existing
// parent.
func realPath(path string) string {
	var missing []string
	p := path
	for {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path
		}
		missing = append([]string{filepath.Base(p)}, missing...)
		p = parent
	}
}

// within returns path relative to root when path is root itself or lies
// below it.
func within(root, path string) (string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		rel = ""
	}
	return rel, true
}

// encodePath percent-encodes each segment of a relative path and joins them
// with forward slashes.
func encodePath(rel string) string {
	if rel == "" {
		return ""
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
