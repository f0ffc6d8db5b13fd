package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/veridoc/internal/output"
	"github.com/dshills/veridoc/internal/verify"
)

// Execution flags shared by run, cr and watch.
var (
	flagConcurrent  bool
	flagSequential  bool
	flagConcurrency int
	flagStream      bool
	flagSavePrompt  bool
	flagCache       bool
	flagQuiet       bool
	flagEventsJSON  bool
)

// run-only flags
var (
	flagUnits []string
	flagOut   string
)

func addExecFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "Maximum units in flight for the concurrent discipline (0 = unlimited)")
	cmd.Flags().BoolVar(&flagStream, "stream", false, "Stream backend output when the backend supports it")
	cmd.Flags().BoolVar(&flagSavePrompt, "save-prompt", false, "Write the composed prompt next to each report")
	cmd.Flags().BoolVar(&flagCache, "cache", false, "Reuse cached backend responses for identical prompts")
	cmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "Do not print progress events")
	cmd.Flags().BoolVar(&flagEventsJSON, "events-json", false, "Print progress events as JSON lines")
}

// signalContext returns a context cancelled on interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Verify units of a project",
	Long:  "Run the named verification units (all units when --unit is omitted) and write one report per unit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagConcurrent && flagSequential {
			return usagef("--concurrent and --sequential are mutually exclusive")
		}
		cfg := appCfg
		d, err := verify.ParseDiscipline(cfg.Discipline)
		if err != nil {
			return err
		}
		p, err := loadProject(cfg)
		if err != nil {
			fail(err)
			return nil
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

		res, err := eng.coord.Run(ctx, p, flagUnits, d)
		prog.Stop()
		if err != nil {
			fail(err)
			return nil
		}
		finishBatch(ctx, cfg, eng, res, "run")

		if err := output.WriteResult(cmd.OutOrStdout(), res, cfg.Format, flagOut, flagNoColor); err != nil {
			fail(err)
			return nil
		}
		if !res.OK() {
			logger.Info("batch had failures", zap.Int("failed", res.Failed))
		}
		exitCode = batchExit(res)
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVarP(&flagUnits, "unit", "u", nil, "Unit name to verify (repeatable)")
	runCmd.Flags().BoolVar(&flagConcurrent, "concurrent", false, "Verify units concurrently")
	runCmd.Flags().BoolVar(&flagSequential, "sequential", false, "Verify units one at a time, in order")
	runCmd.Flags().StringVarP(&flagOut, "out", "o", "", "Write the summary to a file instead of stdout")
	addExecFlags(runCmd)
}
