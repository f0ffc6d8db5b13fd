package cli

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dshills/veridoc/internal/affected"
	"github.com/dshills/veridoc/internal/continuous"
	"github.com/dshills/veridoc/internal/envsubst"
	"github.com/dshills/veridoc/internal/project"
)

var (
	flagFiles    []string
	flagCategory string
	flagBase     string
	flagTarget   string
	flagWorking  bool
)

var affectedCmd = &cobra.Command{
	Use:   "affected",
	Short: "List the units affected by changed files",
	Long: "List the units whose evidence references the given files. Paths are matched exactly " +
		"against the project's references. Without --files the changes come from git diff " +
		"--name-only between --base and --target in every category root, or from the " +
		"working tree with --working.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appCfg
		p, err := loadProject(cfg)
		if err != nil {
			fail(err)
			return nil
		}

		var category project.Category
		if flagCategory != "" {
			category = project.Category(flagCategory)
			if !slices.Contains(project.Categories, category) {
				return usagef("unknown category %q", flagCategory)
			}
		}

		units, err := p.Select(nil)
		if err != nil {
			fail(err)
			return nil
		}

		var names []string
		switch {
		case len(flagFiles) > 0 && category != "":
			names = affected.ResolveCategory(flagFiles, units, category).Sorted()
		case len(flagFiles) > 0:
			names = affected.Resolve(flagFiles, units).Sorted()
		default:
			ctx, cancel := signalContext()
			defer cancel()
			roots := map[project.Category]string{}
			for _, c := range project.Categories {
				if category != "" && c != category {
					continue
				}
				if root := envsubst.String(p.Root(c), cfg.Lookup()); root != "" {
					roots[c] = root
				}
			}
			changed, err := continuous.ChangedFiles(ctx, roots, cfg.CR, cfg.Exclude, gitRun, logger)
			if err != nil {
				fail(err)
				return nil
			}
			names = continuous.Affected(p, changed, flagMatchByCategory || cfg.CR.MatchByCategory)
		}

		out := cmd.OutOrStdout()
		if cfg.Format == "json" {
			data, err := json.MarshalIndent(map[string]any{"affected": names}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No units affected.")
			return nil
		}
		for _, n := range names {
			fmt.Fprintln(out, n)
		}
		return nil
	},
}

func init() {
	affectedCmd.Flags().StringSliceVarP(&flagFiles, "files", "f", nil, "Changed file paths (comma-separated or repeated)")
	affectedCmd.Flags().StringVar(&flagCategory, "category", "", "Only match references of this category (documentation, frontend, backend)")
	affectedCmd.Flags().StringVar(&flagBase, "base", "", "Base revision (default HEAD~1)")
	affectedCmd.Flags().StringVar(&flagTarget, "target", "", "Target revision (default HEAD)")
	affectedCmd.Flags().BoolVar(&flagWorking, "working", false, "Use uncommitted and untracked changes instead of a revision range (local mode)")
	affectedCmd.Flags().BoolVar(&flagMatchByCategory, "match-by-category", false, "Match changed files only against references of their own category")
}
