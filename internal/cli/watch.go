package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/veridoc/internal/continuous"
	"github.com/dshills/veridoc/internal/envsubst"
	"github.com/dshills/veridoc/internal/output"
	"github.com/dshills/veridoc/internal/project"
	"github.com/dshills/veridoc/internal/verify"
	"github.com/dshills/veridoc/internal/watch"
)

var flagDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-verify affected units whenever evidence files change",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appCfg
		p, err := loadProject(cfg)
		if err != nil {
			fail(err)
			return nil
		}

		var roots []watch.Root
		for _, c := range project.Categories {
			if dir := envsubst.String(p.Root(c), cfg.Lookup()); dir != "" {
				roots = append(roots, watch.Root{Category: c, Dir: dir})
			}
		}
		if len(roots) == 0 {
			return usagef("project %q has no category roots to watch", p.Name)
		}

		ctx, cancel := signalContext()
		defer cancel()

		prog := startProgress(cmd.ErrOrStderr(), cfg, flagQuiet, flagEventsJSON)
		defer prog.Stop()

		eng, err := newEngine(ctx, cfg, p, prog.Sink())
		if err != nil {
			fail(err)
			return nil
		}
		w, err := watch.New(watch.Config{
			Roots:    roots,
			Debounce: flagDebounce,
			Exclude:  cfg.Exclude,
			Logger:   logger,
		})
		if err != nil {
			fail(err)
			return nil
		}
		for _, r := range w.Roots() {
			logger.Info("watching", zap.String("category", string(r.Category)), zap.String("dir", r.Dir))
		}

		err = w.Run(ctx, func(ctx context.Context, b watch.Batch) {
			names := continuous.Affected(p, b.Changed, flagMatchByCategory)
			if len(names) == 0 {
				logger.Debug("changes touch no unit", zap.Strings("files", b.All()))
				return
			}
			res, err := eng.coord.Run(ctx, p, names, verify.Sequential)
			if err != nil {
				logger.Error("verification failed to start", zap.Error(err))
				return
			}
			finishBatch(ctx, cfg, eng, res, "watch")
			if err := output.WriteResult(cmd.OutOrStdout(), res, cfg.Format, "", flagNoColor); err != nil {
				logger.Warn("writing summary failed", zap.Error(err))
			}
		})
		if err != nil && ctx.Err() == nil {
			fail(err)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a batch of changes is verified")
	watchCmd.Flags().BoolVar(&flagMatchByCategory, "match-by-category", false, "Match changed files only against references of their own category")
	addExecFlags(watchCmd)
}
