// Package extract turns discovered source files into level items: it
// detects constructs concurrently, classifies their annotations and assigns
// file tags and hyperlinks in a deterministic order.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/reqtrace/internal/annotate"
	"github.com/phobologic/reqtrace/internal/discover"
	"github.com/phobologic/reqtrace/internal/lang"
	"github.com/phobologic/reqtrace/internal/logx"
	"github.com/phobologic/reqtrace/internal/model"
	"github.com/phobologic/reqtrace/internal/parse"
	"github.com/phobologic/reqtrace/internal/registry"
	"github.com/phobologic/reqtrace/internal/vcs"
)

const defaultSourceCacheSize = 512

// Options configures an Extractor. Registry and Scanner are required.
type Options struct {
	Registry *registry.Registry
	Scanner  *annotate.Scanner
	// Resolver is optional; without it items carry no URL.
	Resolver *vcs.Resolver
	Commit   string
	Workers  int
	// KeepUnannotated keeps constructs without an annotation as items with
	// no refs, so they show up as up-tracing violations.
	KeepUnannotated bool
	Log             *logx.Logger
	// SourceCacheSize bounds how many files stay in memory between Run
	// calls over overlapping file sets.
	SourceCacheSize int
}

// Extractor runs extraction passes. One Extractor serves every level of a
// run so that file tags are shared.
type Extractor struct {
	opts    Options
	sources *lru.Cache[string, []byte]
}

// New returns an Extractor.
func New(opts Options) (*Extractor, error) {
	if opts.Registry == nil {
		return nil, errors.New("extract: registry is required")
	}
	if opts.Scanner == nil {
		return nil, errors.New("extract: scanner is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Log == nil {
		opts.Log = logx.Discard()
	}
	size := opts.SourceCacheSize
	if size <= 0 {
		size = defaultSourceCacheSize
	}
	sources, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("extract: source cache: %w", err)
	}
	return &Extractor{opts: opts, sources: sources}, nil
}

// Selects reports whether a construct belongs to a level of the given kind:
// test levels take test cases and suites, code levels take everything else.
func Selects(kind model.Kind, c parse.Construct) bool {
	switch kind {
	case model.Test:
		return c.IsTest()
	case model.Code:
		return !c.IsTest()
	}
	return false
}

type parsed struct {
	source     []byte
	constructs []parse.Construct
	ok         bool
}

// Run extracts the items of a level of the given kind from files, which
// must be sorted and relative to root. Items come back in file order, then
// position order.
func (e *Extractor) Run(ctx context.Context, root string, files []discover.FileEntry, kind model.Kind) ([]model.Item, error) {
	results, err := e.parseConcurrent(ctx, root, files)
	if err != nil {
		return nil, err
	}

	var items []model.Item
	for i, f := range files {
		r := results[i]
		if !r.ok {
			continue
		}
		l := lang.Languages[f.Language]
		lines := splitLines(r.source)
		abs := filepath.Join(root, f.Path)
		rel := filepath.ToSlash(f.Path)

		var tag string
		var parts *vcs.URLParts
		for _, c := range r.constructs {
			if !Selects(kind, c) {
				continue
			}
			annotated := e.opts.Scanner.HasAnnotation(lines, c.Index, l.Comment)
			if !annotated && !e.opts.KeepUnannotated {
				continue
			}

			if tag == "" {
				tag = e.opts.Registry.Tag(rel)
				parts, err = e.resolve(abs)
				if err != nil {
					return nil, err
				}
			}

			item := model.Item{
				ID:        c.Name,
				File:      rel,
				Line:      c.Line,
				Tag:       tag,
				Annotated: annotated,
			}
			if annotated {
				item.Refs = e.opts.Scanner.References(lines, c.Index, l.Comment)
			}
			if parts != nil {
				item.URL = parts.Link(c.Line)
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// resolve returns nil parts when there is no resolver or the file lies
// outside the repository; the latter is reported and the item kept.
func (e *Extractor) resolve(abs string) (*vcs.URLParts, error) {
	if e.opts.Resolver == nil {
		return nil, nil
	}
	parts, err := e.opts.Resolver.PathToURL(abs, e.opts.Commit)
	if errors.Is(err, vcs.ErrNotInsideRepository) {
		e.opts.Log.Warnf("%v: no link", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &parts, nil
}

type parserPair struct {
	lang   *lang.Language
	parser *sitter.Parser
	query  *sitter.Query
}

// parseConcurrent reads and parses files on a bounded pool. Each worker owns
// its parsers; results land at the file's index so order is preserved.
func (e *Extractor) parseConcurrent(ctx context.Context, root string, files []discover.FileEntry) ([]parsed, error) {
	results := make([]parsed, len(files))
	if len(files) == 0 {
		return results, nil
	}

	numWorkers := e.opts.Workers
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	for i := range files {
		work <- i
	}
	close(work)

	g, ctx := errgroup.WithContext(ctx)
	for range numWorkers {
		g.Go(func() error {
			parsers := make(map[string]*parserPair)
			for idx := range work {
				if err := ctx.Err(); err != nil {
					return err
				}
				f := files[idx]
				pp, ok := parsers[f.Language]
				if !ok {
					l := lang.Languages[f.Language]
					if l == nil {
						e.opts.Log.Warnf("%s: unsupported language %q", f.Path, f.Language)
						continue
					}
					q, err := l.GetConstructQuery()
					if err != nil {
						e.opts.Log.Warnf("failed to compile query for %s: %v", f.Language, err)
						continue
					}
					pp = &parserPair{lang: l, parser: l.NewParser(), query: q}
					parsers[f.Language] = pp
				}

				source, err := e.readSource(filepath.Join(root, f.Path))
				if err != nil {
					e.opts.Log.Warnf("failed to read %s: %v", f.Path, err)
					continue
				}

				results[idx] = parsed{
					source:     source,
					constructs: parse.DetectConstructs(pp.lang, pp.parser, pp.query, source),
					ok:         true,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Extractor) readSource(abs string) ([]byte, error) {
	if src, ok := e.sources.Get(abs); ok {
		return src, nil
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	e.sources.Add(abs, src)
	return src, nil
}

func splitLines(source []byte) []string {
	lines := strings.Split(string(source), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Fill stores items as the level's source and records every reference
// token they carry, in first-seen order, as its raw trace requirements.
func Fill(l *model.Level, items []model.Item) {
	if items == nil {
		items = []model.Item{}
	}
	l.Source = items
	l.RawTraceRequirements = nil
	seen := make(map[string]struct{})
	for _, it := range items {
		for _, ref := range it.Refs {
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			l.RawTraceRequirements = append(l.RawTraceRequirements, ref)
		}
	}
}
