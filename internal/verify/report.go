package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/veridoc/internal/envsubst"
	"github.com/dshills/veridoc/internal/project"
)

const generatedLayout = "2006-01-02 15:04:05"

// SanitizeName replaces characters that are unsafe in file names with "_".
func SanitizeName(s string) string { return project.SanitizeName(s) }

// Target names the backend a report was produced by.
type Target struct {
	Provider string
	Model    string
	Tag      string
}

func (t Target) stem() string {
	parts := []string{t.Provider, SanitizeName(t.Model)}
	if t.Tag != "" {
		parts = append(parts, SanitizeName(t.Tag))
	}
	return strings.Join(parts, "_")
}

// ReportFileName is the report file name for t.
func ReportFileName(t Target) string { return t.stem() + "_report.md" }

// PromptFileName is the debug prompt file name for t.
func PromptFileName(t Target) string { return t.stem() + "_prompt.md" }

// ReportWriter persists reports under output_root/project/unit/.
type ReportWriter struct {
	lookup     envsubst.Lookup
	now        func() time.Time
	savePrompt bool
}

// NewReportWriter creates a writer. lookup expands variables in the
// project's output root.
func NewReportWriter(lookup envsubst.Lookup, savePrompt bool) *ReportWriter {
	return &ReportWriter{lookup: lookup, now: time.Now, savePrompt: savePrompt}
}

// UnitDir is the directory holding a unit's reports.
func (w *ReportWriter) UnitDir(p *project.Project, unit string) string {
	root := envsubst.String(p.OutputRoot, w.lookup)
	return filepath.Join(root, SanitizeName(p.Name), SanitizeName(unit))
}

// ReportPath is where the report for unit and t is written.
func (w *ReportWriter) ReportPath(p *project.Project, unit string, t Target) string {
	return filepath.Join(w.UnitDir(p, unit), ReportFileName(t))
}

// Write renders and stores the report for u. When prompt capture is
// enabled the composed prompt is written next to it. Existing files are
// replaced.
func (w *ReportWriter) Write(p *project.Project, u project.Unit, t Target, analysis, composed string) (reportPath, promptPath string, err error) {
	dir := w.UnitDir(p, u.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating report directory: %w", err)
	}
	generated := w.now()
	reportPath = filepath.Join(dir, ReportFileName(t))
	if err := os.WriteFile(reportPath, []byte(RenderReport(p, u, t, analysis, generated)), 0o644); err != nil {
		return "", "", fmt.Errorf("writing report: %w", err)
	}
	if w.savePrompt {
		promptPath = filepath.Join(dir, PromptFileName(t))
		if err := os.WriteFile(promptPath, []byte(RenderPrompt(p, u, t, composed, generated)), 0o644); err != nil {
			return reportPath, "", fmt.Errorf("writing prompt capture: %w", err)
		}
	}
	return reportPath, promptPath, nil
}

// RenderReport formats the markdown report for one unit.
func RenderReport(p *project.Project, u project.Unit, t Target, analysis string, generated time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Verification Report: %s\n\n", u.Name)
	writeHeader(&b, p, t, generated)
	b.WriteString("## Files Used in Verification\n\n")
	writeFileList(&b, u)
	b.WriteString("## AI Analysis\n\n")
	b.WriteString(analysis)
	if !strings.HasSuffix(analysis, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// RenderPrompt formats the captured prompt for one unit.
func RenderPrompt(p *project.Project, u project.Unit, t Target, composed string, generated time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Prompt Capture: %s\n\n", u.Name)
	writeHeader(&b, p, t, generated)
	b.WriteString("## Complete Prompt Sent to AI\n\n")
	fence := "```"
	for strings.Contains(composed, fence) {
		fence += "`"
	}
	fmt.Fprintf(&b, "%s\n%s\n%s\n", fence, composed, fence)
	return b.String()
}

func writeHeader(b *strings.Builder, p *project.Project, t Target, generated time.Time) {
	fmt.Fprintf(b, "**Project:** %s\n", p.Name)
	fmt.Fprintf(b, "**AI Provider:** %s\n", t.Provider)
	fmt.Fprintf(b, "**Model:** %s\n", t.Model)
	if t.Tag != "" {
		fmt.Fprintf(b, "**Tag:** %s\n", t.Tag)
	}
	fmt.Fprintf(b, "**Generated on:** %s\n\n", generated.Format(generatedLayout))
}

var fileListTitles = map[project.Category]string{
	project.Documentation: "Documentation Files",
	project.Frontend:      "Frontend Code Files",
	project.Backend:       "Backend Code Files",
}

func writeFileList(b *strings.Builder, u project.Unit) {
	for _, c := range project.Categories {
		refs := u.References(c)
		if len(refs) == 0 {
			continue
		}
		fmt.Fprintf(b, "### %s\n\n", fileListTitles[c])
		for _, r := range refs {
			fmt.Fprintf(b, "- `%s`\n", r)
		}
		b.WriteString("\n")
	}
}
