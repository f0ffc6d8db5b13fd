package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/veridoc/internal/gitctx"
)

const (
	hookMarkerStart = "# >>> veridoc post-commit hook >>>"
	hookMarkerEnd   = "# <<< veridoc post-commit hook <<<"
)

var (
	hookProject string
	hookFormat  string
)

var hookCmd = &cobra.Command{
	Use:         "hook",
	Short:       "Manage the git post-commit hook",
	Annotations: map[string]string{skipConfig: "true"},
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install veridoc as a git post-commit hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath(cmd.Context())
		if err != nil {
			fail(err)
			return nil
		}

		project := hookProject
		if project != "" {
			if abs, err := filepath.Abs(project); err == nil {
				project = abs
			}
		}
		section := generateHookScript(project, hookFormat)

		existing, err := os.ReadFile(hookPath)
		if err != nil && !os.IsNotExist(err) {
			fail(fmt.Errorf("reading hook file: %w", err))
			return nil
		}

		var content string
		if os.IsNotExist(err) || len(existing) == 0 {
			content = "#!/bin/sh\n" + section
		} else {
			content = replaceHookSection(string(existing), section)
		}

		if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
			fail(fmt.Errorf("creating hooks directory: %w", err))
			return nil
		}

		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			fail(fmt.Errorf("writing hook file: %w", err))
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Installed veridoc post-commit hook at %s\n", hookPath)
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the veridoc post-commit hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := getHookPath(cmd.Context())
		if err != nil {
			fail(err)
			return nil
		}

		existing, err := os.ReadFile(hookPath)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "No post-commit hook found.")
				return nil
			}
			fail(fmt.Errorf("reading hook file: %w", err))
			return nil
		}

		content := removeHookSection(string(existing))

		// If only shebang (and whitespace) remains, delete the file entirely
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || trimmed == "#!/bin/sh" || trimmed == "#!/bin/bash" {
			if err := os.Remove(hookPath); err != nil {
				fail(fmt.Errorf("removing hook file: %w", err))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed veridoc post-commit hook at %s\n", hookPath)
			return nil
		}

		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			fail(fmt.Errorf("writing hook file: %w", err))
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed veridoc section from %s\n", hookPath)
		return nil
	},
}

func getHookPath(ctx context.Context) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	gitDir, err := gitctx.Open(wd, gitRun).GitDir(ctx)
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	return filepath.Join(gitDir, "hooks", "post-commit"), nil
}

// generateHookScript returns the marked hook section. The hook never blocks:
// the commit has already happened, so failures are only reported.
func generateHookScript(projectFile, format string) string {
	var b strings.Builder
	b.WriteString(hookMarkerStart + "\n")
	cmd := "veridoc cr --mode local --base HEAD~1 --target HEAD"
	if projectFile != "" {
		cmd += " --project " + shellQuote(projectFile)
	}
	if format != "" {
		cmd += " --format " + format
	}
	b.WriteString(cmd + "\n")
	b.WriteString("VERIDOC_EXIT=$?\n")
	b.WriteString("if [ $VERIDOC_EXIT -eq 1 ]; then\n")
	b.WriteString("  echo \"veridoc: some verifications failed, see the reports\"\n")
	b.WriteString("elif [ $VERIDOC_EXIT -ge 2 ]; then\n")
	b.WriteString("  echo \"veridoc: verification could not run (exit $VERIDOC_EXIT)\"\n")
	b.WriteString("fi\n")
	b.WriteString(hookMarkerEnd + "\n")
	return b.String()
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>()*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func replaceHookSection(existing, section string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		// No existing veridoc section, append
		if !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}

	before := existing[:startIdx]
	after := existing[endIdx+len(hookMarkerEnd):]
	// Trim leading newline from after to avoid double newlines
	after = strings.TrimPrefix(after, "\n")
	return before + section + after
}

func removeHookSection(existing string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		return existing
	}

	before := existing[:startIdx]
	after := existing[endIdx+len(hookMarkerEnd):]
	after = strings.TrimPrefix(after, "\n")

	return before + after
}

func init() {
	hookCmd.AddCommand(hookInstallCmd)
	hookCmd.AddCommand(hookUninstallCmd)
	hookInstallCmd.Flags().StringVar(&hookProject, "project-file", "", "Project file the hook passes to veridoc cr")
	hookInstallCmd.Flags().StringVar(&hookFormat, "summary-format", "text", "Summary format for the hook run (text, json, markdown)")
}
