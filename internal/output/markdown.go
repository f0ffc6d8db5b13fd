package output

import (
	"io"
	"strings"
	"time"

	"github.com/dshills/veridoc/internal/verify"
)

// MarkdownWriter outputs a CI-summary-friendly markdown table.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, res *verify.BatchResult) error {
	ew := &errWriter{w: w}

	ew.printf("## Verification: %s\n\n", mdEscape(res.Project))

	ew.printf("| Total | Passed | Failed |\n")
	ew.printf("|-------|--------|--------|\n")
	ew.printf("| %d | %d | %d |\n\n", res.Total, res.Succeeded, res.Failed)

	if res.Total == 0 {
		ew.println("No units selected.")
		return ew.err
	}

	ew.printf("| Unit | Status | Report |\n")
	ew.printf("|------|--------|--------|\n")
	for _, o := range res.Outcomes {
		status := ":white_check_mark: passed"
		detail := "`" + o.ReportPath + "`"
		if o.Cached {
			status += " (cached)"
		}
		if !o.Success {
			status = ":x: failed"
			if o.FailedAt != "" {
				status += " at " + string(o.FailedAt)
			}
			detail = mdEscape(firstLine(o.Error))
		}
		ew.printf("| %s | %s | %s |\n", mdEscape(o.Unit), status, detail)
	}
	ew.println("")

	var failed []verify.Outcome
	for _, o := range res.Outcomes {
		if !o.Success {
			failed = append(failed, o)
		}
	}
	if len(failed) > 0 {
		ew.printf("<details>\n<summary>Errors (%d)</summary>\n\n", len(failed))
		for _, o := range failed {
			ew.printf("### %s\n\n", mdEscape(o.Unit))
			ew.printf("```\n%s\n```\n\n", o.Error)
		}
		ew.printf("</details>\n\n")
	}

	ew.printf("*Run `%s` completed in %s*\n", res.RunID, res.Duration().Round(time.Millisecond))
	return ew.err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func mdEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
