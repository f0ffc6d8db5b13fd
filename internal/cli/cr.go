package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/veridoc/internal/config"
	"github.com/dshills/veridoc/internal/continuous"
	"github.com/dshills/veridoc/internal/gitctx"
	"github.com/dshills/veridoc/internal/output"
	"github.com/dshills/veridoc/internal/publish"
)

var (
	flagCRMode          string
	flagWorkspace       string
	flagKeepWorkspace   bool
	flagRunAll          bool
	flagSpecific        []string
	flagMatchByCategory bool
	flagPublish         string
	flagNoPublish       bool
)

// gitRun is swapped out in tests.
var gitRun gitctx.RunFunc = gitctx.Exec

var crCmd = &cobra.Command{
	Use:   "cr",
	Short: "Continuous review: verify the units affected by recent commits",
	Long: "Detect changed files between two revisions, verify the affected units sequentially " +
		"and publish the results. Outside local mode the configured repositories are cloned " +
		"into a scratch workspace first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appCfg
		cr := cfg.CR
		if flagKeepWorkspace {
			cr.KeepWorkspace = true
		}
		if flagRunAll {
			cr.RunAll = true
		}
		if len(flagSpecific) > 0 {
			cr.Specific = flagSpecific
		}
		if flagMatchByCategory {
			cr.MatchByCategory = true
		}
		if flagPublish != "" {
			cr.PublishResults = true
		}
		if flagNoPublish {
			cr.PublishResults = false
		}

		if cr.WorkingTree && cr.Mode != "" && cr.Mode != config.ModeLocal {
			return usagef("--working needs --mode %s", config.ModeLocal)
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

		var pub publish.Publisher
		if cr.PublishResults {
			m, err := buildPublisher(cfg)
			if err != nil {
				return err
			}
			pub = m
		}

		res, err := continuous.Run(ctx, p, continuous.Options{
			CR:        cr,
			Lookup:    cfg.Lookup(),
			Exclude:   cfg.Exclude,
			Git:       gitRun,
			Batcher:   eng.coord,
			Publisher: pub,
			Logger:    logger,
		})
		prog.Stop()
		if err != nil {
			fail(err)
			return nil
		}
		if res.Batch == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No units affected by the changes.")
			return nil
		}
		finishBatch(ctx, cfg, eng, res.Batch, "cr:"+res.Mode)

		if err := output.WriteResult(cmd.OutOrStdout(), res.Batch, cfg.Format, "", flagNoColor); err != nil {
			fail(err)
			return nil
		}
		if res.PublishErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: publishing failed: %v\n", res.PublishErr)
		}
		exitCode = batchExit(res.Batch)
		return nil
	},
}

// buildPublisher assembles the configured publishers. With no methods
// configured the local summary file is written.
func buildPublisher(cfg config.Config) (*publish.Multi, error) {
	methods := cfg.Publish.Methods
	if len(methods) == 0 {
		methods = []string{"local"}
	}
	var pubs []publish.Publisher
	for _, m := range methods {
		switch strings.ToLower(strings.TrimSpace(m)) {
		case "local":
			pubs = append(pubs, publish.Local{})
		case "github":
			g, err := publish.NewGitHub(publish.GitHubConfig{
				Token:  cfg.Publish.GitHub.Token,
				Repo:   cfg.Publish.GitHub.Repo,
				Branch: cfg.Publish.GitHub.Branch,
				Path:   cfg.Publish.GitHub.Path,
				APIURL: cfg.Publish.GitHub.APIURL,
			})
			if err != nil {
				return nil, usagef("%v", err)
			}
			pubs = append(pubs, g)
		case "ftp":
			f, err := publish.NewFTP(publish.FTPConfig{
				Host:     cfg.Publish.FTP.Host,
				User:     cfg.Publish.FTP.User,
				Password: cfg.Publish.FTP.Password,
				Path:     cfg.Publish.FTP.Path,
			})
			if err != nil {
				return nil, usagef("%v", err)
			}
			pubs = append(pubs, f)
		case "nats":
			n, err := publish.NewNATS(publish.NATSConfig{
				URL:     cfg.Publish.NATS.URL,
				Subject: cfg.Publish.NATS.Subject,
			})
			if err != nil {
				return nil, usagef("%v", err)
			}
			pubs = append(pubs, n)
		case "":
		default:
			return nil, usagef("unknown publish method %q", m)
		}
	}
	logger.Debug("publishers configured", zap.Strings("methods", methods))
	return publish.NewMulti(logger, pubs...), nil
}

func init() {
	crCmd.Flags().StringVar(&flagCRMode, "mode", "", "Run mode (local, github_actions, gitlab_ci, jenkins, manual)")
	crCmd.Flags().StringVar(&flagBase, "base", "", "Base revision (default HEAD~1)")
	crCmd.Flags().StringVar(&flagTarget, "target", "", "Target revision (default HEAD)")
	crCmd.Flags().BoolVar(&flagWorking, "working", false, "Use uncommitted and untracked changes instead of a revision range (local mode only)")
	crCmd.Flags().StringVar(&flagWorkspace, "workspace", "", "Directory for repository clones")
	crCmd.Flags().BoolVar(&flagKeepWorkspace, "keep-workspace", false, "Keep cloned repositories after the run")
	crCmd.Flags().BoolVar(&flagRunAll, "all", false, "Verify every unit regardless of changes")
	crCmd.Flags().StringSliceVar(&flagSpecific, "unit", nil, "Verify only these units")
	crCmd.Flags().BoolVar(&flagMatchByCategory, "match-by-category", false, "Match changed files only against references of their own category")
	crCmd.Flags().StringVar(&flagPublish, "publish", "", "Publish methods (comma-separated: local, github, ftp, nats)")
	crCmd.Flags().BoolVar(&flagNoPublish, "no-publish", false, "Skip publishing")
	addExecFlags(crCmd)
}
