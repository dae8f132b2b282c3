package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/reqtrace/internal/config"
	"github.com/phobologic/reqtrace/internal/registry"
	"github.com/phobologic/reqtrace/internal/vcs"
)

func newURLCmd(g *globalFlags) *cobra.Command {
	var (
		repo string
		line int
	)
	cmd := &cobra.Command{
		Use:   "url <path>...",
		Short: "Print commit-pinned links for source paths",
		Long: `URL resolves each path to a link pinned to the commit that contains it.
Paths inside a submodule use the commit the parent repository pins.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(config.Options{Root: repo, File: g.config, Flags: cmd.Flags()})
			if err != nil {
				return err
			}

			insp := vcs.NewGitInspector(repo)
			r, err := vcs.NewResolver(ctx, insp, cfg.BaseURL)
			if err != nil {
				return fmt.Errorf("resolving repository: %w", err)
			}
			commit := cfg.Commit
			if commit == "" {
				if commit, err = insp.HeadCommit(ctx); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, p := range args {
				abs, err := filepath.Abs(p)
				if err != nil {
					return fmt.Errorf("resolving %s: %w", p, err)
				}
				parts, err := r.PathToURL(abs, commit)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, parts.Link(line))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&repo, "repo", "C", ".", "directory inside the repository")
	f.String("base-url", "", "repository web URL")
	f.String("commit", "", "commit id for paths outside submodules (default: HEAD)")
	f.IntVarP(&line, "line", "l", 0, "line anchor to append")
	return cmd
}

func newTagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tag <path>...",
		Short: "Print the short file tags issued for paths, in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.New()
			out := cmd.OutOrStdout()
			for _, p := range args {
				fmt.Fprintf(out, "%s\t%s\n", reg.Tag(p), p)
			}
			return nil
		},
	}
}
