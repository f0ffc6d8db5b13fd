package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/veridoc/internal/verify"
)

var (
	colorOK    = lipgloss.Color("42")
	colorFail  = lipgloss.Color("196")
	colorMuted = lipgloss.Color("244")
	colorHead  = lipgloss.Color("39")
)

// TextWriter outputs a human-readable summary of a batch.
type TextWriter struct {
	NoColor bool
}

func (t *TextWriter) Write(w io.Writer, res *verify.BatchResult) error {
	ew := &errWriter{w: w}

	ew.println(t.style(colorHead, true).Render("Verification: " + res.Project))
	ew.printf("Run %s (%s)\n", res.RunID, res.Discipline)
	ew.println(strings.Repeat("─", 60))
	ew.printf("Units: %d total, %s, %s\n", res.Total,
		t.style(colorOK, false).Render(fmt.Sprintf("%d passed", res.Succeeded)),
		t.style(colorFail, res.Failed > 0).Render(fmt.Sprintf("%d failed", res.Failed)))
	ew.println(strings.Repeat("─", 60))

	if res.Total == 0 {
		ew.println("\nNo units selected.")
		return ew.err
	}

	for _, o := range res.Outcomes {
		if o.Success {
			ew.printf("\n%s %s%s\n", t.style(colorOK, true).Render("[ok]"), o.Unit, t.muted(unitNote(o)))
			if o.ReportPath != "" {
				ew.printf("    report: %s\n", o.ReportPath)
			}
			if o.PromptPath != "" {
				ew.printf("    prompt: %s\n", o.PromptPath)
			}
			continue
		}
		ew.printf("\n%s %s%s\n", t.style(colorFail, true).Render("[!!]"), o.Unit, t.muted(unitNote(o)))
		if o.FailedAt != "" {
			ew.printf("    failed during %s\n", o.FailedAt)
		}
		for _, line := range wrapText(o.Error, 70) {
			ew.printf("    %s\n", line)
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Completed in %s\n", res.Duration().Round(time.Millisecond))

	return ew.err
}

func (t *TextWriter) style(c lipgloss.Color, bold bool) lipgloss.Style {
	if t.NoColor {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(c).Bold(bold)
}

func (t *TextWriter) muted(s string) string {
	if s == "" {
		return ""
	}
	return t.style(colorMuted, false).Render(s)
}

func unitNote(o verify.Outcome) string {
	var parts []string
	if o.Model != "" {
		parts = append(parts, o.Provider+"/"+o.Model)
	}
	if o.Cached {
		parts = append(parts, "cached")
	}
	if o.Streamed {
		parts = append(parts, "streamed")
	}
	if o.Duration > 0 {
		parts = append(parts, o.Duration.Round(time.Millisecond).String())
	}
	if len(parts) == 0 {
		return ""
	}
	return "  (" + strings.Join(parts, ", ") + ")"
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	words := strings.Fields(text)
	var current strings.Builder
	for _, word := range words {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
