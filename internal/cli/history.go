package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dshills/veridoc/internal/history"
)

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse recorded verification runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(appCfg)
		if err != nil {
			fail(err)
			return nil
		}
		defer store.Close()

		runs, err := store.Recent(cmd.Context(), flagHistoryLimit)
		if err != nil {
			fail(err)
			return nil
		}
		out := cmd.OutOrStdout()
		if appCfg.Format == "json" {
			return writeJSON(out, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("RUN", "STARTED", "PROJECT", "TRIGGER", "BACKEND", "OK", "FAILED", "ELAPSED")
		for _, r := range runs {
			t.Row(
				shortID(r.ID),
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Project,
				r.Trigger,
				r.Provider+"/"+r.Model,
				strconv.Itoa(r.Succeeded),
				strconv.Itoa(r.Failed),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
			)
		}
		if !flagNoColor {
			t.StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return lipgloss.NewStyle().Bold(true).Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
		}
		fmt.Fprintln(out, t.String())
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the unit outcomes of a run (an id prefix is enough)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory(appCfg)
		if err != nil {
			fail(err)
			return nil
		}
		defer store.Close()

		run, entries, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, history.ErrNotFound) {
			return usagef("no run matches %q", args[0])
		}
		if err != nil {
			fail(err)
			return nil
		}
		out := cmd.OutOrStdout()
		if appCfg.Format == "json" {
			return writeJSON(out, map[string]any{"run": run, "outcomes": entries})
		}
		fmt.Fprintf(out, "Run %s  %s  (%s, %s)\n", run.ID, run.Project, run.Discipline, run.Trigger)
		fmt.Fprintf(out, "Backend %s/%s  started %s\n", run.Provider, run.Model, run.StartedAt.Local().Format(time.RFC3339))
		fmt.Fprintf(out, "%d total, %d passed, %d failed\n\n", run.Total, run.Succeeded, run.Failed)
		for _, e := range entries {
			if e.Success {
				fmt.Fprintf(out, "[ok] %s  %s\n", e.Unit, e.ReportPath)
				continue
			}
			fmt.Fprintf(out, "[!!] %s  (%s) %s\n", e.Unit, e.FailedAt, e.Error)
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyListCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 20, "Number of runs to list")
}
