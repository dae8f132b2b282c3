package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/reqtrace/internal/config"
	"github.com/phobologic/reqtrace/internal/model"
)

const starterConfig = `# reqtrace configuration. Every key can also be set through a
# REQTRACE_<KEY> environment variable or the matching extract flag.

# base_url: https://git.example.com/group/repo
levels_file: reqtrace.levels.json
annotation_keyword: "@requirement"

sources:
  code:
    tests: exclude
  tests:
    tests: only
`

// starterLevels returns a three-level hierarchy: requirements traced down by
// code and tests.
func starterLevels() []*model.Level {
	reqs := model.NewLevel("requirements", model.Requirements)
	reqs.NeedsTracingDown = model.Some(true)
	reqs.Source = []model.Item{{ID: "REQ-1"}}

	code := model.NewLevel("code", model.Code)
	code.Traces = []string{"requirements"}
	code.NeedsTracingUp = model.Some(true)

	tests := model.NewLevel("tests", model.Test)
	tests.Traces = []string{"requirements"}
	tests.NeedsTracingUp = model.Some(true)

	return []*model.Level{reqs, code, tests}
}

type starterFile struct {
	name    string
	content []byte
}

func starterFiles() ([]starterFile, error) {
	var levels bytes.Buffer
	if err := model.WriteLevels(&levels, starterLevels()); err != nil {
		return nil, err
	}
	return []starterFile{
		{name: "reqtrace.yaml", content: []byte(starterConfig)},
		{name: config.Default.LevelsFile, content: levels.Bytes()},
	}, nil
}

func newInitCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter config and levels document",
		Long: `Init writes reqtrace.yaml and reqtrace.levels.json into dir (default: the
current directory). Files that already exist are left untouched, so running
init again is safe.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(dir, dryRun, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without creating files")
	return cmd
}

func runInit(dir string, dryRun bool, stdout, stderr io.Writer) error {
	files, err := starterFiles()
	if err != nil {
		return err
	}

	for _, f := range files {
		path := filepath.Join(dir, f.name)
		_, err := os.Stat(path)
		exists := err == nil
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", path, err)
		}

		if dryRun {
			if exists {
				_, _ = fmt.Fprintf(stdout, "# %s exists, would be kept\n", path)
				continue
			}
			_, _ = fmt.Fprintf(stdout, "# %s\n%s", path, f.content)
			continue
		}

		if exists {
			_, _ = fmt.Fprintf(stderr, "kept existing %s\n", path)
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		if err := os.WriteFile(path, f.content, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		_, _ = fmt.Fprintf(stderr, "wrote %s\n", path)
	}
	return nil
}
