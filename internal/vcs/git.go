package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotARepository is returned when the inspected directory is not inside
// a git working tree.
var ErrNotARepository = errors.New("not a git repository")

const gitTimeout = 10 * time.Second

// GitInspector answers repository questions by running the git CLI in Dir.
type GitInspector struct {
	Dir string
}

// NewGitInspector returns an inspector for the working tree containing dir.
func NewGitInspector(dir string) *GitInspector {
	return &GitInspector{Dir: dir}
}

// WorkTree returns the top-level directory of the working tree.
func (g *GitInspector) WorkTree(ctx context.Context) (string, error) {
	out, err := g.git(ctx, g.Dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("%s: %w", g.Dir, ErrNotARepository)
	}
	return filepath.FromSlash(strings.TrimSpace(out)), nil
}

// HeadCommit returns the commit checked out in the working tree.
func (g *GitInspector) HeadCommit(ctx context.Context) (string, error) {
	out, err := g.git(ctx, g.Dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Submodules lists the direct submodules. Names and URLs come from
// .gitmodules; pinned commits come from the gitlink entries in the index.
// Gitlinks without a .gitmodules entry are reported with their path as name
// and an empty URL.
func (g *GitInspector) Submodules(ctx context.Context) ([]Submodule, error) {
	root, err := g.WorkTree(ctx)
	if err != nil {
		return nil, err
	}

	stage, err := g.git(ctx, root, "ls-files", "--stage", "-z")
	if err != nil {
		return nil, fmt.Errorf("listing index: %w", err)
	}
	links := parseGitlinks(stage)
	if len(links) == 0 {
		return nil, nil
	}

	// A missing .gitmodules makes git config exit non-zero; treat that as no
	// configured submodules.
	cfg, _ := g.git(ctx, root, "config", "-z", "--file", ".gitmodules", "--get-regexp", `^submodule\..*\.(path|url)$`)
	byPath := parseGitmodules(cfg)

	subs := make([]Submodule, 0, len(links))
	for _, l := range links {
		sm := Submodule{Name: l.path, Path: l.path, Commit: l.commit}
		if m, ok := byPath[l.path]; ok {
			sm.Name = m.Name
			sm.URL = m.URL
		}
		subs = append(subs, sm)
	}
	return subs, nil
}

func (g *GitInspector) git(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

type gitlink struct {
	path   string
	commit string
}

// parseGitlinks extracts mode-160000 entries from `git ls-files --stage -z`
// output ("<mode> <object> <stage>\t<path>\x00"), in index order. Paths are
// verbatim, without quoting.
func parseGitlinks(out string) []gitlink {
	var links []gitlink
	for _, rec := range strings.Split(out, "\x00") {
		meta, path, ok := strings.Cut(rec, "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) != 3 || fields[0] != "160000" {
			continue
		}
		links = append(links, gitlink{path: path, commit: fields[1]})
	}
	return links
}

// parseGitmodules reads `git config -z --get-regexp` output
// ("submodule.<name>.path\n<value>\x00") into submodules keyed by path.
func parseGitmodules(out string) map[string]Submodule {
	type entry struct{ path, url string }
	byName := make(map[string]*entry)
	var order []string

	for _, rec := range strings.Split(out, "\x00") {
		key, value, ok := strings.Cut(rec, "\n")
		if !ok || !strings.HasPrefix(key, "submodule.") {
			continue
		}
		key = strings.TrimPrefix(key, "submodule.")
		dot := strings.LastIndex(key, ".")
		if dot < 0 {
			continue
		}
		name, field := key[:dot], key[dot+1:]
		e, ok := byName[name]
		if !ok {
			e = &entry{}
			byName[name] = e
			order = append(order, name)
		}
		switch field {
		case "path":
			e.path = value
		case "url":
			e.url = value
		}
	}

	byPath := make(map[string]Submodule, len(byName))
	for _, name := range order {
		e := byName[name]
		if e.path == "" {
			continue
		}
		byPath[e.path] = Submodule{Name: name, Path: e.path, URL: e.url}
	}
	return byPath
}
