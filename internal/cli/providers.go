package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/veridoc/internal/config"
	"github.com/dshills/veridoc/internal/providers"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List model backends and their credential status",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		lookup := appCfg.Lookup()
		for _, id := range providers.IDs {
			vars := config.CredentialVars(id)
			status := "no key needed"
			if len(vars) > 0 {
				status = "missing " + strings.Join(vars, " or ")
				for _, v := range vars {
					if val, ok := lookup(v); ok && val != "" {
						status = "key from " + v
						break
					}
				}
			}
			marker := " "
			if string(id) == appCfg.Provider {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-10s default model %-26s %s\n", marker, id, providers.DefaultModel(id), status)
		}
	},
}

var providersCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Send a short prompt to the configured backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appCfg
		var bcfg providers.Config
		var err error
		if p, perr := loadProject(cfg); perr == nil {
			bcfg, err = cfg.Backend(p)
		} else {
			bcfg, err = cfg.Backend(nil)
		}
		if err != nil {
			fail(err)
			return nil
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Checking %s...\n", bcfg.Provider)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		b, err := newBackend(ctx, bcfg)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %v\n", err)
			exitCode = exitCodeFor(err)
			return nil
		}
		if _, err := b.Generate(ctx, "Respond with exactly: ok"); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %v\n", err)
			exitCode = exitCodeFor(err)
			return nil
		}

		fmt.Fprintf(out, "OK: %s is configured and responding\n", b.Name())
		return nil
	},
}

func init() {
	providersCmd.AddCommand(providersCheckCmd)
}
