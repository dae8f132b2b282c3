package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGitlinks(t *testing.T) {
	t.Parallel()

	out := "100644 e69de29bb2d1d6434b8b29ae775ad8c2e48c5391 0\tREADME.md\x00" +
		"160000 4b825dc642cb6eb9a060e54bf8d69288fbee4904 0\tdom/driving\x00" +
		"100644 e69de29bb2d1d6434b8b29ae775ad8c2e48c5391 0\tdom/x.go\x00" +
		"160000 1111111111111111111111111111111111111111 0\tvendor/lib\x00"

	assert.Equal(t, []gitlink{
		{path: "dom/driving", commit: "4b825dc642cb6eb9a060e54bf8d69288fbee4904"},
		{path: "vendor/lib", commit: "1111111111111111111111111111111111111111"},
	}, parseGitlinks(out))
	assert.Empty(t, parseGitlinks(""))

	// Unusual names are not quoted in -z output.
	odd := "160000 2222222222222222222222222222222222222222 0\tdom/dr\u00efving\x00" +
		"160000 3333333333333333333333333333333333333333 0\tmy \"lib\"\x00"
	assert.Equal(t, []gitlink{
		{path: "dom/drïving", commit: "2222222222222222222222222222222222222222"},
		{path: `my "lib"`, commit: "3333333333333333333333333333333333333333"},
	}, parseGitlinks(odd))
}

func TestParseGitmodules(t *testing.T) {
	t.Parallel()

	out := "submodule.driving.path\ndom/driving\x00" +
		"submodule.driving.url\n/group/driving\x00" +
		"submodule.lib.v2.path\nvendor/lib\x00" +
		"submodule.lib.v2.url\nhttps://example.com/lib.git\x00" +
		"submodule.spaced.path\nthird party/lib\x00" +
		"submodule.orphan.url\nnowhere\x00"

	got := parseGitmodules(out)
	assert.Equal(t, map[string]Submodule{
		"dom/driving":     {Name: "driving", Path: "dom/driving", URL: "/group/driving"},
		"vendor/lib":      {Name: "lib.v2", Path: "vendor/lib", URL: "https://example.com/lib.git"},
		"third party/lib": {Name: "spaced", Path: "third party/lib"},
	}, got)
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func TestGitInspectorSubmodules(t *testing.T) {
	t.Parallel()
	requireGit(t)

	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	const pinned = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"
	runGit(t, dir, "update-index", "--add", "--cacheinfo", "160000,"+pinned+",dom/driving")
	gitmodules := "[submodule \"driving\"]\n\tpath = dom/driving\n\turl = /group/driving\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitmodules"), []byte(gitmodules), 0o644))

	g := NewGitInspector(dir)
	ctx := context.Background()

	root, err := g.WorkTree(ctx)
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, root)

	subs, err := g.Submodules(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Submodule{
		{Name: "driving", Path: "dom/driving", URL: "/group/driving", Commit: pinned},
	}, subs)

	r, err := NewResolver(ctx, g, "https://git.example.com")
	require.NoError(t, err)
	parts, err := r.PathToURL(filepath.Join(root, "dom", "driving", "x", "y.cpp"), "head")
	require.NoError(t, err)
	assert.Equal(t, pinned, parts.CommitHash)
	assert.Equal(t, "x/y.cpp", parts.PathHTML)
	assert.Equal(t, "https://git.example.com/group/driving", parts.URLStart)
}

func TestGitInspectorSubmoduleNonASCIIPath(t *testing.T) {
	t.Parallel()
	requireGit(t)

	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	const pinned = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"
	runGit(t, dir, "update-index", "--add", "--cacheinfo", "160000,"+pinned+",dom/drïving")
	gitmodules := "[submodule \"drïving\"]\n\tpath = dom/drïving\n\turl = /group/driving\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitmodules"), []byte(gitmodules), 0o644))

	subs, err := NewGitInspector(dir).Submodules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Submodule{
		{Name: "drïving", Path: "dom/drïving", URL: "/group/driving", Commit: pinned},
	}, subs)
}

func TestGitInspectorNoSubmodules(t *testing.T) {
	t.Parallel()
	requireGit(t)

	dir := t.TempDir()
	runGit(t, dir, "init", "-q")

	subs, err := NewGitInspector(dir).Submodules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestGitInspectorNotARepository(t *testing.T) {
	t.Parallel()
	requireGit(t)

	dir := t.TempDir()
	_, err := NewResolver(context.Background(), NewGitInspector(dir), "https://h")
	if err == nil {
		// The temp dir may itself live inside a checkout.
		t.Skip("temp dir is inside a git working tree")
	}
	assert.ErrorIs(t, err, ErrNotARepository)
}
