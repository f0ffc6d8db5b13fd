package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/veridoc/internal/envsubst"
	"github.com/dshills/veridoc/internal/publish"
)

var flagPublishRoot string

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the reports already present in an output folder",
	Long: "Build a summary of the reports under the output folder (the project's output_folder " +
		"unless --dir is given) and hand it to the configured publishers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appCfg
		root := flagPublishRoot
		if root == "" {
			root = cfg.CR.OutputFolder
		}
		if root == "" {
			p, err := loadProject(cfg)
			if err != nil {
				fail(err)
				return nil
			}
			root = p.OutputRoot
		}
		root = envsubst.String(root, cfg.Lookup())

		pub, err := buildPublisher(cfg)
		if err != nil {
			return err
		}
		summary, err := publish.NewSummary(nil, root, time.Now())
		if err != nil {
			fail(err)
			return nil
		}
		summary.Mode = cfg.CR.Mode

		ctx, cancel := signalContext()
		defer cancel()
		if err := pub.Publish(ctx, summary, root); err != nil {
			fail(err)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Published %d reports from %s via %d publisher(s)\n", len(summary.Reports), root, pub.Len())
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&flagPublishRoot, "dir", "", "Output folder to publish")
	publishCmd.Flags().StringVar(&flagPublish, "publish", "", "Publish methods (comma-separated: local, github, ftp, nats)")
}
