package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/veridoc/internal/output"
	"github.com/dshills/veridoc/internal/verify"
)

var (
	flagRender bool
	flagStyle  string
	flagWidth  int
	flagPrompt bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect written reports",
}

var reportShowCmd = &cobra.Command{
	Use:   "show <unit>",
	Short: "Print the report for a unit under the current backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appCfg
		p, err := loadProject(cfg)
		if err != nil {
			fail(err)
			return nil
		}
		if _, ok := p.Unit(args[0]); !ok {
			return usagef("unknown verification unit %q", args[0])
		}
		bcfg, err := cfg.Backend(p)
		if err != nil {
			fail(err)
			return nil
		}
		// Mirror the coordinator's naming so the path matches what run wrote.
		coord := verify.New(nil, bcfg, nil, verify.WithLookup(cfg.Lookup()))
		path := coord.Reports().ReportPath(p, args[0], coord.Target())
		if flagPrompt {
			path = filepath.Join(coord.Reports().UnitDir(p, args[0]), verify.PromptFileName(coord.Target()))
		}

		data, err := os.ReadFile(path)
		if err != nil {
			fail(fmt.Errorf("reading report: %w", err))
			return nil
		}
		text := string(data)
		if flagRender {
			style := flagStyle
			if flagNoColor && style == "" {
				style = "notty"
			}
			text, err = output.RenderMarkdown(text, style, flagWidth)
			if err != nil {
				fail(err)
				return nil
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}

func init() {
	reportCmd.AddCommand(reportShowCmd)
	reportShowCmd.Flags().BoolVar(&flagRender, "render", false, "Render markdown for the terminal")
	reportShowCmd.Flags().StringVar(&flagStyle, "style", "", "Render style (dark, light, notty, ...; default detects the terminal)")
	reportShowCmd.Flags().IntVar(&flagWidth, "width", 100, "Wrap width when rendering")
	reportShowCmd.Flags().BoolVar(&flagPrompt, "prompt", false, "Show the saved prompt capture instead of the report")
}
