// reqtrace extracts requirement annotations from source trees and reports
// how well each traceability level covers the next.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/phobologic/reqtrace/internal/annotate"
	"github.com/phobologic/reqtrace/internal/cache"
	"github.com/phobologic/reqtrace/internal/config"
	"github.com/phobologic/reqtrace/internal/discover"
	"github.com/phobologic/reqtrace/internal/extract"
	"github.com/phobologic/reqtrace/internal/graph"
	"github.com/phobologic/reqtrace/internal/logx"
	"github.com/phobologic/reqtrace/internal/model"
	"github.com/phobologic/reqtrace/internal/registry"
	"github.com/phobologic/reqtrace/internal/toon"
	"github.com/phobologic/reqtrace/internal/vcs"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(context.Background())
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	config  string
	quiet   bool
	verbose bool
	noColor bool
}

func (g *globalFlags) logger(cmd *cobra.Command) *logx.Logger {
	level := logx.Normal
	switch {
	case g.quiet:
		level = logx.Quiet
	case g.verbose:
		level = logx.Verbose
	}
	return logx.New(cmd.ErrOrStderr(), level)
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "reqtrace",
		Short:         "Trace requirements through design, code and tests",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.noColor {
				logx.DisableColor()
			}
			return config.LoadDotEnv(".")
		},
	}
	root.SetVersionTemplate("reqtrace {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVarP(&g.config, "config", "c", "", "config file (default: reqtrace.yaml|json in the scan root)")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "print warnings only")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "print debug messages")
	pf.BoolVar(&g.noColor, "no-color", false, "disable colored log output")

	root.AddCommand(newExtractCmd(g))
	root.AddCommand(newURLCmd(g))
	root.AddCommand(newTagCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "reqtrace %s\n", version)
			return err
		},
	}
}

type extractFlags struct {
	json bool
}

func newExtractCmd(g *globalFlags) *cobra.Command {
	ef := &extractFlags{}
	cmd := &cobra.Command{
		Use:   "extract [root]",
		Short: "Extract annotated items and report tracing coverage",
		Long: `Extract reads the levels document, fills every code and test level with
the annotated constructs found under root, checks tracing between levels and
prints a TOON report, or the filled levels document with --json.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			return runExtract(cmd, g, ef, root)
		},
	}

	f := cmd.Flags()
	f.String("levels", config.Default.LevelsFile, "levels document, relative to root")
	f.String("base-url", "", "repository web URL used for item links")
	f.String("commit", "", "commit id for links (default: HEAD)")
	f.String("keyword", config.Default.AnnotationKeyword, "annotation keyword")
	f.Int64("max-file-size", config.Default.MaxFileSize, "skip files larger than this many bytes")
	f.Int("workers", 0, "parser workers (default: GOMAXPROCS)")
	f.Bool("all", false, "keep unannotated constructs so they show up as violations")
	f.String("cache", "", "cache file path")
	f.BoolVar(&ef.json, "json", false, "print the filled levels document as JSON")
	return cmd
}

func runExtract(cmd *cobra.Command, g *globalFlags, ef *extractFlags, root string) error {
	ctx := cmd.Context()
	log := g.logger(cmd)
	stdout := cmd.OutOrStdout()

	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", root)
	}
	// git reports the working tree with symlinks resolved.
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}

	cfg, err := config.Load(config.Options{Root: root, File: g.config, Flags: cmd.Flags()})
	if err != nil {
		return err
	}

	levelsPath := cfg.LevelsPath(root)
	levelsData, err := os.ReadFile(levelsPath)
	if err != nil {
		return fmt.Errorf("reading levels: %w", err)
	}
	levels, err := model.LoadLevels(bytes.NewReader(levelsData))
	if err != nil {
		return fmt.Errorf("%s: %w", levelsPath, err)
	}

	// Discover files per extracted level
	levelFiles := make(map[string][]discover.FileEntry)
	var allFiles []string
	for _, l := range levels {
		if !l.Kind.Extracted() {
			continue
		}
		files, err := discover.Find(root, cfg.Discovery(l))
		if err != nil {
			return fmt.Errorf("discovering files for %s: %w", l.Name, err)
		}
		files = filterBySize(root, files, cfg.MaxFileSize, log)
		log.Debugf("%s: %d files", l.Name, len(files))
		levelFiles[l.Name] = files
		for _, f := range files {
			allFiles = append(allFiles, f.Path)
		}
	}

	var resolver *vcs.Resolver
	commit := cfg.Commit
	if cfg.BaseURL != "" {
		insp := vcs.NewGitInspector(root)
		resolver, err = vcs.NewResolver(ctx, insp, cfg.BaseURL)
		if err != nil {
			return fmt.Errorf("resolving repository: %w", err)
		}
		if commit == "" {
			if commit, err = insp.HeadCommit(ctx); err != nil {
				return err
			}
		}
	} else if commit == "" {
		if head, err := vcs.NewGitInspector(root).HeadCommit(ctx); err == nil {
			commit = head
		} else {
			log.Debugf("no commit id: %v", err)
		}
	}

	// Check cache freshness
	var fp uint64
	if cfg.Cache != "" {
		extras := []string{
			version, string(levelsData), cfg.AnnotationKeyword, cfg.BaseURL, commit,
			strconv.FormatBool(cfg.KeepUnannotated), strconv.FormatBool(ef.json),
		}
		// Submodule links are pinned to the gitlink commit.
		if resolver != nil {
			for _, sm := range resolver.Submodules() {
				extras = append(extras, sm.Path+"@"+sm.Commit)
			}
		}
		fp, err = cache.Fingerprint(root, allFiles, extras...)
		if err != nil {
			log.Warnf("cache disabled: %v", err)
			cfg.Cache = ""
		} else if data, err := cache.Load(cfg.Cache, fp); err == nil {
			log.Debugf("using cached report %s", cfg.Cache)
			_, err = stdout.Write(data)
			return err
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Debugf("cache miss: %v", err)
		}
	}

	scanner, err := annotate.NewScanner(cfg.AnnotationKeyword)
	if err != nil {
		return err
	}
	reg := registry.New()
	ex, err := extract.New(extract.Options{
		Registry:        reg,
		Scanner:         scanner,
		Resolver:        resolver,
		Commit:          commit,
		Workers:         cfg.Workers,
		KeepUnannotated: cfg.KeepUnannotated,
		Log:             log,
	})
	if err != nil {
		return err
	}

	for _, l := range levels {
		files, ok := levelFiles[l.Name]
		if !ok {
			continue
		}
		items, err := ex.Run(ctx, root, files, l.Kind)
		if err != nil {
			return fmt.Errorf("extracting %s: %w", l.Name, err)
		}
		extract.Fill(l, items)
		log.Infof("%s: %d items from %d files", l.Name, len(items), len(files))
	}

	violations, err := graph.Check(levels)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		log.Infof("%d tracing violations", len(violations))
	}

	var out bytes.Buffer
	if ef.json {
		if err := model.WriteLevels(&out, levels); err != nil {
			return err
		}
	} else {
		report := &model.Report{
			Repo:       filepath.Base(root),
			Commit:     commit,
			Levels:     levels,
			Violations: violations,
		}
		for _, e := range reg.Entries() {
			report.Files = append(report.Files, model.FileTag{Tag: e.Tag, Path: e.Path})
		}
		out.WriteString(toon.Encode(report))
		out.WriteByte('\n')
	}

	if cfg.Cache != "" {
		if err := cache.Store(cfg.Cache, fp, out.Bytes()); err != nil {
			log.Warnf("writing cache: %v", err)
		}
	}

	_, err = stdout.Write(out.Bytes())
	return err
}

func filterBySize(root string, files []discover.FileEntry, maxSize int64, log *logx.Logger) []discover.FileEntry {
	var kept []discover.FileEntry
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(root, f.Path))
		if err != nil {
			kept = append(kept, f) // keep if can't stat
			continue
		}
		if fi.Size() > maxSize {
			log.Warnf("%s: skipped (>%d bytes)", f.Path, maxSize)
			continue
		}
		kept = append(kept, f)
	}
	return kept
}
