package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached backend responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache(appCfg, true)
		if err != nil {
			fail(fmt.Errorf("opening cache: %w", err))
			return nil
		}
		n, err := c.Clear()
		if err != nil {
			fail(fmt.Errorf("clearing cache: %w", err))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared (%d entries removed).\n", n)
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache(appCfg, appCfg.Cache.Enabled)
		if err != nil {
			fail(fmt.Errorf("opening cache: %w", err))
			return nil
		}
		if !c.Enabled() {
			fmt.Fprintln(cmd.OutOrStdout(), "Cache is disabled.")
			return nil
		}
		stats, err := c.GetStats()
		if err != nil {
			fail(fmt.Errorf("reading cache stats: %w", err))
			return nil
		}
		return writeJSON(cmd.OutOrStdout(), stats)
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheShowCmd)
}
