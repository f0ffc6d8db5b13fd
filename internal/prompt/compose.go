package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dshills/veridoc/internal/project"
	"github.com/dshills/veridoc/internal/redact"
)

// Section markers. They are part of the wire format parsed by
// SplitSystemPrompt and must not change.
const (
	SystemMarker        = "SYSTEM PROMPT:"
	DocumentationHeader = "DOCUMENTATION FILES:"
	FrontendHeader      = "FRONTEND CODE FILES:"
	BackendHeader       = "BACKEND CODE FILES:"
	InstructionsHeader  = "INSTRUCTIONS:"
)

var categoryHeaders = map[project.Category]string{
	project.Documentation: DocumentationHeader,
	project.Frontend:      FrontendHeader,
	project.Backend:       BackendHeader,
}

// Header returns the prompt section header for a category.
func Header(c project.Category) string { return categoryHeaders[c] }

// Composer renders units into prompts.
type Composer struct {
	locator  *Locator
	filter   *redact.Filter
	readFile func(string) ([]byte, error)
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithRedaction scrubs file contents through f before rendering.
func WithRedaction(f *redact.Filter) ComposerOption {
	return func(c *Composer) { c.filter = f }
}

// WithReadFile replaces os.ReadFile, mainly for tests.
func WithReadFile(fn func(string) ([]byte, error)) ComposerOption {
	return func(c *Composer) { c.readFile = fn }
}

// NewComposer returns a Composer using l for evidence resolution.
func NewComposer(l *Locator, opts ...ComposerOption) *Composer {
	c := &Composer{locator: l, readFile: os.ReadFile}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compose renders the prompt for u within p.
func (c *Composer) Compose(u project.Unit, p *project.Project) string {
	var parts []string

	if sys := SystemPrompt(u, p); sys != "" {
		parts = append(parts, SystemMarker+"\n"+sys+"\n")
	}

	for i, cat := range project.Categories {
		refs := u.References(cat)
		if len(refs) == 0 {
			continue
		}
		header := Header(cat)
		if i > 0 {
			header = "\n" + header
		}
		parts = append(parts, header)
		parts = append(parts, c.renderCategory(refs, cat, p)...)
	}

	if instr := Instructions(u, p); instr != "" {
		parts = append(parts, "\n"+InstructionsHeader+"\n"+instr)
	}

	return strings.Join(parts, "\n")
}

// renderCategory emits one entry per file. A file reached through more than
// one reference of the same category is rendered once.
func (c *Composer) renderCategory(refs []string, cat project.Category, p *project.Project) []string {
	var out []string
	seen := make(map[string]bool)
	for _, ref := range refs {
		ev := c.locator.Locate(ref, cat, p)
		switch {
		case ev.Blank:
			continue
		case ev.NotFound:
			where := ev.Path
			if where == "" {
				where = ref
			}
			out = append(out, fmt.Sprintf("\n--- %s ---\n[Path not found: %s]\n", ref, where))
			continue
		case len(ev.Files) == 0:
			out = append(out, fmt.Sprintf("\n--- %s ---\n[No files found in: %s]\n", ref, ev.Path))
			continue
		}
		for _, file := range ev.Files {
			if seen[file] {
				continue
			}
			seen[file] = true
			out = append(out, c.renderFile(file, ev.Root))
		}
	}
	return out
}

func (c *Composer) renderFile(file, root string) string {
	data, err := c.readFile(file)
	if err != nil {
		return fmt.Sprintf("\n--- %s ---\n[Error reading file: %v]\n", file, err)
	}
	if !utf8.Valid(data) {
		return fmt.Sprintf("\n--- %s ---\n[Error reading file: not valid UTF-8 text]\n", file)
	}
	rel := relativeTo(root, file)
	content := c.filter.Apply(rel, string(data))
	return fmt.Sprintf("\n--- %s ---\n%s\n", rel, content)
}

func relativeTo(root, file string) string {
	if root == "" {
		return file
	}
	rel, err := filepath.Rel(root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return file
	}
	return rel
}
