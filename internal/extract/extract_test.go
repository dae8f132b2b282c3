package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/reqtrace/internal/annotate"
	"github.com/phobologic/reqtrace/internal/discover"
	"github.com/phobologic/reqtrace/internal/model"
	"github.com/phobologic/reqtrace/internal/parse"
	"github.com/phobologic/reqtrace/internal/registry"
	"github.com/phobologic/reqtrace/internal/vcs"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type staticInspector struct {
	root string
	subs []vcs.Submodule
}

func (s staticInspector) WorkTree(context.Context) (string, error) { return s.root, nil }

func (s staticInspector) Submodules(context.Context) ([]vcs.Submodule, error) { return s.subs, nil }

func newExtractor(t *testing.T, opts Options) *Extractor {
	t.Helper()
	if opts.Registry == nil {
		opts.Registry = registry.New()
	}
	if opts.Scanner == nil {
		s, err := annotate.NewScanner(annotate.DefaultKeyword)
		require.NoError(t, err)
		opts.Scanner = s
	}
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func sampleTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "a/parser_test.go", `package a

// @requirement REQ-1, REQ-2
func TestParse(t *testing.T) {}

func TestUnannotated(t *testing.T) {}
`)
	writeFile(t, dir, "b/parser_test.go", `package b

/*
 * @requirement REQ-3
 */
func TestOther(t *testing.T) {}
`)
	writeFile(t, dir, "a/parser.go", `package a

// @requirement REQ-1
func Parse() {}
`)
	return dir
}

func TestRunTestLevel(t *testing.T) {
	t.Parallel()
	dir := sampleTree(t)

	files, err := discover.Find(dir, discover.Options{Tests: discover.OnlyTests})
	require.NoError(t, err)

	reg := registry.New()
	e := newExtractor(t, Options{Registry: reg, Workers: 2})
	items, err := e.Run(context.Background(), dir, files, model.Test)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "TestParse", items[0].ID)
	assert.Equal(t, "a/parser_test.go", items[0].File)
	assert.Equal(t, 4, items[0].Line)
	assert.Equal(t, "parser_test.go:1", items[0].Tag)
	assert.Equal(t, []string{"REQ-1", "REQ-2"}, items[0].Refs)
	assert.True(t, items[0].Annotated)
	assert.Empty(t, items[0].URL)

	assert.Equal(t, "TestOther", items[1].ID)
	assert.Equal(t, "parser_test.go:2", items[1].Tag)
	assert.Equal(t, []string{"REQ-3"}, items[1].Refs)
}

func TestRunKeepUnannotated(t *testing.T) {
	t.Parallel()
	dir := sampleTree(t)

	files, err := discover.Find(dir, discover.Options{Paths: []string{"a"}, Tests: discover.OnlyTests})
	require.NoError(t, err)

	e := newExtractor(t, Options{KeepUnannotated: true})
	items, err := e.Run(context.Background(), dir, files, model.Test)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "TestUnannotated", items[1].ID)
	assert.False(t, items[1].Annotated)
	assert.Empty(t, items[1].Refs)
}

func TestRunCodeLevel(t *testing.T) {
	t.Parallel()
	dir := sampleTree(t)

	files, err := discover.Find(dir, discover.Options{Tests: discover.NoTests})
	require.NoError(t, err)

	e := newExtractor(t, Options{})
	items, err := e.Run(context.Background(), dir, files, model.Code)
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "Parse", items[0].ID)
	assert.Equal(t, "parser.go:1", items[0].Tag)
}

func TestRunDeterministicTags(t *testing.T) {
	t.Parallel()
	dir := sampleTree(t)

	files, err := discover.Find(dir, discover.Options{Tests: discover.OnlyTests})
	require.NoError(t, err)

	var first []model.Item
	for i := range 5 {
		e := newExtractor(t, Options{Workers: 4})
		items, err := e.Run(context.Background(), dir, files, model.Test)
		require.NoError(t, err)
		if i == 0 {
			first = items
			continue
		}
		assert.Equal(t, first, items)
	}
}

func TestRunSharedRegistryAcrossLevels(t *testing.T) {
	t.Parallel()
	dir := sampleTree(t)

	reg := registry.New()
	e := newExtractor(t, Options{Registry: reg})

	tests, err := discover.Find(dir, discover.Options{Tests: discover.OnlyTests})
	require.NoError(t, err)
	_, err = e.Run(context.Background(), dir, tests, model.Test)
	require.NoError(t, err)

	code, err := discover.Find(dir, discover.Options{Tests: discover.NoTests})
	require.NoError(t, err)
	items, err := e.Run(context.Background(), dir, code, model.Code)
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "parser.go:1", items[0].Tag)
	assert.Equal(t, 3, reg.Len())
}

func TestRunWithResolver(t *testing.T) {
	t.Parallel()
	dir := sampleTree(t)

	r, err := vcs.NewResolver(context.Background(), staticInspector{
		root: dir,
		subs: []vcs.Submodule{{Name: "b", Path: "b", URL: "group/b", Commit: "sub123"}},
	}, "https://git.example.com")
	require.NoError(t, err)

	files, err := discover.Find(dir, discover.Options{Tests: discover.OnlyTests})
	require.NoError(t, err)

	e := newExtractor(t, Options{Resolver: r, Commit: "main456"})
	items, err := e.Run(context.Background(), dir, files, model.Test)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "https://git.example.com/blob/main456/a/parser_test.go#L4", items[0].URL)
	assert.Equal(t, "https://git.example.com/group/b/blob/sub123/parser_test.go#L6", items[1].URL)
}

func TestRunOutsideRepositoryKeepsItem(t *testing.T) {
	t.Parallel()
	dir := sampleTree(t)

	r, err := vcs.NewResolver(context.Background(), staticInspector{root: filepath.Join(dir, "b")}, "https://h")
	require.NoError(t, err)

	files, err := discover.Find(dir, discover.Options{Paths: []string{"a"}, Tests: discover.OnlyTests})
	require.NoError(t, err)

	e := newExtractor(t, Options{Resolver: r})
	items, err := e.Run(context.Background(), dir, files, model.Test)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].URL)
}

func TestRunMissingFileIsSkipped(t *testing.T) {
	t.Parallel()
	dir := sampleTree(t)

	files := []discover.FileEntry{
		{Path: "gone_test.go", Language: "go"},
		{Path: filepath.Join("a", "parser_test.go"), Language: "go"},
	}
	e := newExtractor(t, Options{})
	items, err := e.Run(context.Background(), dir, files, model.Test)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()
	dir := sampleTree(t)

	files, err := discover.Find(dir, discover.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newExtractor(t, Options{})
	_, err = e.Run(ctx, dir, files, model.Test)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRequiresRegistryAndScanner(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Registry: registry.New()})
	assert.Error(t, err)
}

func TestSelects(t *testing.T) {
	t.Parallel()

	test := parse.Construct{Kind: parse.Test}
	suite := parse.Construct{Kind: parse.Suite}
	fn := parse.Construct{Kind: parse.Function}

	assert.True(t, Selects(model.Test, test))
	assert.True(t, Selects(model.Test, suite))
	assert.False(t, Selects(model.Test, fn))
	assert.True(t, Selects(model.Code, fn))
	assert.False(t, Selects(model.Code, test))
	assert.False(t, Selects(model.Requirements, fn))
}

func TestFill(t *testing.T) {
	t.Parallel()

	l := model.NewLevel("tests", model.Test)
	Fill(l, []model.Item{
		{ID: "a", Refs: []string{"R1", "R2"}},
		{ID: "b", Refs: []string{"R2", "R3"}},
	})
	assert.Len(t, l.Source, 2)
	assert.Equal(t, []string{"R1", "R2", "R3"}, l.RawTraceRequirements)

	Fill(l, nil)
	assert.Equal(t, []model.Item{}, l.Source)
	assert.Empty(t, l.RawTraceRequirements)
}

func TestSplitLines(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a", "b", ""}, splitLines([]byte("a\r\nb\n")))
	assert.True(t, strings.HasPrefix(splitLines([]byte("x"))[0], "x"))
}
