package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/veridoc/internal/envsubst"
	"github.com/dshills/veridoc/internal/project"
	"github.com/dshills/veridoc/internal/redact"
	"github.com/google/go-cmp/cmp"
)

func boolPtr(b bool) *bool { return &b }

func TestResolve(t *testing.T) {
	tests := []struct {
		mode   project.OverrideMode
		global string
		local  string
		want   string
	}{
		{project.UseGlobal, "G", "L", "G"},
		{project.UseGlobal, "", "L", ""},
		{"", "G", "L", "G"},
		{project.Override, "G", "L", "L"},
		{project.Override, "G", "", ""},
		{project.Append, "G", "L", "G\n\nL"},
		{project.Append, "G", "", "G"},
		{project.Append, "", "L", "L"},
		{project.Append, "", "", ""},
	}
	for _, tt := range tests {
		if got := Resolve(tt.mode, tt.global, tt.local); got != tt.want {
			t.Errorf("Resolve(%q, %q, %q) = %q, want %q", tt.mode, tt.global, tt.local, got, tt.want)
		}
	}
}

func TestResolve_LegacyPrecedence(t *testing.T) {
	p := &project.Project{GlobalSystemPrompt: "G", GlobalInstructions: "GI"}
	u := project.Unit{
		SystemPromptMode:           project.UseGlobal,
		SystemPrompt:               "L",
		LegacyOverrideSystemPrompt: boolPtr(true),
		InstructionsMode:           project.Override,
		Instructions:               "LI",
		LegacyOverrideInstructions: boolPtr(false),
	}
	if got := SystemPrompt(u, p); got != "L" {
		t.Errorf("SystemPrompt = %q, want legacy override to win", got)
	}
	if got := Instructions(u, p); got != "GI" {
		t.Errorf("Instructions = %q, want legacy use_global to win", got)
	}
}

// fixture lays out a small three-category project under a temp dir.
func fixture(t *testing.T) (*project.Project, string) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"docs/a.md":                     "Doc A",
		"docs/guide/intro.md":           "Intro",
		"web/app.ts":                    "App",
		"api/handlers/b.go":             "B",
		"api/handlers/c.go":             "C",
		"api/handlers/.hidden":          "hidden",
		"api/handlers/cache.pyc":        "bytecode",
		"api/handlers/mod.pyo":          "bytecode",
		"api/handlers/__pycache__/x.py": "cached",
		"api/handlers/.git/config":      "git",
		"api/handlers/sub/d.go":         "D",
	}
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "api", "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	p := &project.Project{
		Name:               "shop",
		DocumentationRoot:  "$BASE/docs",
		FrontendRoot:       filepath.Join(dir, "web"),
		BackendRoot:        filepath.Join(dir, "api"),
		GlobalSystemPrompt: "Sys",
		GlobalInstructions: "Instr",
	}
	return p, dir
}

func TestLocate(t *testing.T) {
	p, dir := fixture(t)
	l := NewLocator(envsubst.FromMap(map[string]string{"BASE": dir}), nil)

	ev := l.Locate("a.md", project.Documentation, p)
	if ev.NotFound || len(ev.Files) != 1 || ev.Files[0] != filepath.Join(dir, "docs", "a.md") {
		t.Errorf("file reference: %+v", ev)
	}

	ev = l.Locate("handlers", project.Backend, p)
	want := []string{
		filepath.Join(dir, "api", "handlers", "b.go"),
		filepath.Join(dir, "api", "handlers", "c.go"),
		filepath.Join(dir, "api", "handlers", "sub", "d.go"),
	}
	if diff := cmp.Diff(want, ev.Files); diff != "" {
		t.Errorf("directory walk mismatch (-want +got):\n%s", diff)
	}

	ev = l.Locate("missing.md", project.Documentation, p)
	if !ev.NotFound || len(ev.Files) != 0 {
		t.Errorf("missing reference: %+v", ev)
	}

	ev = l.Locate("empty", project.Backend, p)
	if ev.NotFound || len(ev.Files) != 0 {
		t.Errorf("empty directory: %+v", ev)
	}

	ev = l.Locate("   ", project.Backend, p)
	if !ev.NotFound || !ev.Blank {
		t.Errorf("blank reference should be not found: %+v", ev)
	}
}

func TestLocate_AbsoluteReferenceUnderRoot(t *testing.T) {
	p, dir := fixture(t)
	other := t.TempDir()
	abs := filepath.Join(other, "spec.md")
	if err := os.WriteFile(abs, []byte("Spec"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLocator(envsubst.FromMap(map[string]string{"BASE": dir}), nil)
	ev := l.Locate(abs, project.Documentation, p)
	if ev.NotFound || ev.Path != abs {
		t.Fatalf("absolute reference joined onto root: %+v", ev)
	}
	if diff := cmp.Diff([]string{abs}, ev.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestLocate_NoRootMeansAbsolute(t *testing.T) {
	p, dir := fixture(t)
	p.FrontendRoot = ""
	l := NewLocator(nil, nil)
	abs := filepath.Join(dir, "web", "app.ts")
	ev := l.Locate(abs, project.Frontend, p)
	if len(ev.Files) != 1 || ev.Files[0] != abs {
		t.Errorf("absolute reference: %+v", ev)
	}
	if ev.Root != "" {
		t.Errorf("Root = %q, want empty", ev.Root)
	}
}

func TestLocate_SubstitutesReference(t *testing.T) {
	p, dir := fixture(t)
	l := NewLocator(envsubst.FromMap(map[string]string{"BASE": dir, "PAGE": "a"}), nil)
	ev := l.Locate("${PAGE}.md", project.Documentation, p)
	if len(ev.Files) != 1 {
		t.Fatalf("substituted reference not found: %+v", ev)
	}
}

func TestLocate_Deterministic(t *testing.T) {
	p, dir := fixture(t)
	l := NewLocator(envsubst.FromMap(map[string]string{"BASE": dir}), nil)
	first := l.Locate("handlers", project.Backend, p)
	second := l.Locate("handlers", project.Backend, p)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated Locate differs:\n%s", diff)
	}
}

func TestLocate_ExcludeGlobs(t *testing.T) {
	p, dir := fixture(t)
	l := NewLocator(envsubst.FromMap(map[string]string{"BASE": dir}), []string{"sub/**", "c.go"})
	ev := l.Locate("handlers", project.Backend, p)
	want := []string{filepath.Join(dir, "api", "handlers", "b.go")}
	if diff := cmp.Diff(want, ev.Files); diff != "" {
		t.Errorf("exclude mismatch (-want +got):\n%s", diff)
	}
}

func TestCompose_Layout(t *testing.T) {
	p, dir := fixture(t)
	c := NewComposer(NewLocator(envsubst.FromMap(map[string]string{"BASE": dir}), nil))
	u := project.Unit{
		Name:          "Checkout",
		Documentation: []string{"a.md", "nope.md"},
		Frontend:      []string{"app.ts"},
		Backend:       []string{"handlers", "empty"},
	}

	got := c.Compose(u, p)
	want := strings.Join([]string{
		"SYSTEM PROMPT:\nSys\n",
		"DOCUMENTATION FILES:",
		"\n--- a.md ---\nDoc A\n",
		"\n--- nope.md ---\n[Path not found: " + filepath.Join(dir, "docs", "nope.md") + "]\n",
		"\nFRONTEND CODE FILES:",
		"\n--- app.ts ---\nApp\n",
		"\nBACKEND CODE FILES:",
		"\n--- " + filepath.Join("handlers", "b.go") + " ---\nB\n",
		"\n--- " + filepath.Join("handlers", "c.go") + " ---\nC\n",
		"\n--- " + filepath.Join("handlers", "sub", "d.go") + " ---\nD\n",
		"\n--- empty ---\n[No files found in: " + filepath.Join(dir, "api", "empty") + "]\n",
		"\nINSTRUCTIONS:\nInstr",
	}, "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Compose mismatch (-want +got):\n%s", diff)
	}
}

func TestCompose_OmitsEmptyBlocks(t *testing.T) {
	p, dir := fixture(t)
	p.GlobalSystemPrompt = ""
	p.GlobalInstructions = ""
	c := NewComposer(NewLocator(envsubst.FromMap(map[string]string{"BASE": dir}), nil))
	got := c.Compose(project.Unit{Name: "x", Frontend: []string{"app.ts"}}, p)

	for _, h := range []string{SystemMarker, DocumentationHeader, BackendHeader, InstructionsHeader} {
		if strings.Contains(got, h) {
			t.Errorf("prompt contains %q for an empty block:\n%s", h, got)
		}
	}
	if !strings.HasPrefix(got, "\n"+FrontendHeader) {
		t.Errorf("prompt should start with the frontend block:\n%q", got)
	}
}

func TestCompose_UnreadableFileIsolated(t *testing.T) {
	p, dir := fixture(t)
	bad := filepath.Join(dir, "api", "handlers", "b.go")
	read := func(path string) ([]byte, error) {
		if path == bad {
			return nil, errors.New("permission denied")
		}
		return os.ReadFile(path)
	}
	c := NewComposer(NewLocator(envsubst.FromMap(map[string]string{"BASE": dir}), nil), WithReadFile(read))
	got := c.Compose(project.Unit{
		Name:          "x",
		Documentation: []string{"a.md"},
		Backend:       []string{"handlers"},
	}, p)

	if !strings.Contains(got, "--- "+bad+" ---\n[Error reading file: permission denied]") {
		t.Errorf("missing error placeholder:\n%s", got)
	}
	for _, content := range []string{"Doc A", "\nC\n", "\nD\n"} {
		if !strings.Contains(got, content) {
			t.Errorf("evidence %q lost because of one unreadable file", content)
		}
	}
}

func TestCompose_BinaryFilePlaceholder(t *testing.T) {
	p, dir := fixture(t)
	bin := filepath.Join(dir, "web", "logo.png")
	if err := os.WriteFile(bin, []byte{0xff, 0xfe, 0x00, 0x81}, 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewComposer(NewLocator(nil, nil))
	got := c.Compose(project.Unit{Name: "x", Frontend: []string{"logo.png"}}, p)
	if !strings.Contains(got, "[Error reading file: not valid UTF-8 text]") {
		t.Errorf("binary file not replaced by placeholder:\n%s", got)
	}
}

func TestCompose_DeduplicatesWithinCategory(t *testing.T) {
	p, dir := fixture(t)
	c := NewComposer(NewLocator(envsubst.FromMap(map[string]string{"BASE": dir}), nil))
	got := c.Compose(project.Unit{Name: "x", Backend: []string{"handlers/b.go", "handlers"}}, p)
	if n := strings.Count(got, "--- "+filepath.Join("handlers", "b.go")+" ---"); n != 1 {
		t.Errorf("b.go rendered %d times, want 1", n)
	}
}

func TestCompose_SkipsBlankReferences(t *testing.T) {
	p, dir := fixture(t)
	c := NewComposer(NewLocator(envsubst.FromMap(map[string]string{"BASE": dir}), nil))
	got := c.Compose(project.Unit{Name: "x", Documentation: []string{"  ", "a.md", ""}}, p)
	if strings.Contains(got, "Path not found") {
		t.Errorf("blank reference rendered a placeholder:\n%s", got)
	}
	if !strings.Contains(got, "\n--- a.md ---\nDoc A\n") {
		t.Errorf("remaining reference lost:\n%s", got)
	}
}

func TestCompose_Redaction(t *testing.T) {
	p, dir := fixture(t)
	secret := filepath.Join(dir, "web", "config.ts")
	if err := os.WriteFile(secret, []byte(`const apiKey = "sk-abcdefghijklmnopqrstuvwxyz"`), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewComposer(NewLocator(nil, nil), WithRedaction(redact.New(true, nil)))
	got := c.Compose(project.Unit{Name: "x", Frontend: []string{"config.ts"}}, p)
	if strings.Contains(got, "sk-abcdefghijklmnopqrstuvwxyz") || !strings.Contains(got, redact.Placeholder) {
		t.Errorf("secret survived composition:\n%s", got)
	}
}

func TestCompose_Idempotent(t *testing.T) {
	p, dir := fixture(t)
	c := NewComposer(NewLocator(envsubst.FromMap(map[string]string{"BASE": dir}), nil))
	u := project.Unit{
		Name:          "x",
		Documentation: []string{"a.md", "guide"},
		Backend:       []string{"handlers"},
	}
	if a, b := c.Compose(u, p), c.Compose(u, p); a != b {
		t.Errorf("Compose not idempotent:\n%s", cmp.Diff(a, b))
	}
}

func TestSplitSystemPrompt(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantSystem string
		wantUser   string
	}{
		{"no marker", "DOCUMENTATION FILES:\nx", "", "DOCUMENTATION FILES:\nx"},
		{"blank line boundary", "SYSTEM PROMPT:\nBe precise.\n\nDOCUMENTATION FILES:\n\n--- a ---\nA\n", "Be precise.", "DOCUMENTATION FILES:\n\n--- a ---\nA"},
		{"header before blank line", "SYSTEM PROMPT:\nBe precise.\nBACKEND CODE FILES:\n\n--- b ---\n", "Be precise.", "BACKEND CODE FILES:\n\n--- b ---"},
		{"earliest header wins", "SYSTEM PROMPT:\nS\nINSTRUCTIONS:\nI\nDOCUMENTATION FILES:", "S", "INSTRUCTIONS:\nI\nDOCUMENTATION FILES:"},
		{"marker only", "SYSTEM PROMPT:\nS", "", "SYSTEM PROMPT:\nS"},
		{"marker without newline", "SYSTEM PROMPT: S\n\nU", "", "SYSTEM PROMPT: S\n\nU"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys, user := SplitSystemPrompt(tt.in)
			if sys != tt.wantSystem || user != tt.wantUser {
				t.Errorf("SplitSystemPrompt(%q) = (%q, %q), want (%q, %q)", tt.in, sys, user, tt.wantSystem, tt.wantUser)
			}
		})
	}
}

func TestSplitSystemPrompt_RoundTrip(t *testing.T) {
	pairs := [][2]string{
		{"S", "U"},
		{"You verify docs.", "DOCUMENTATION FILES:\n\n--- a.md ---\nA"},
		{"multi\nline", "user text"},
	}
	for _, pair := range pairs {
		sys, user := SplitSystemPrompt(WithSystemPrompt(pair[0], pair[1]))
		if sys != pair[0] || user != pair[1] {
			t.Errorf("round trip of %q = (%q, %q)", pair, sys, user)
		}
	}
	if got := WithSystemPrompt("", "body"); got != "body" {
		t.Errorf("WithSystemPrompt with empty system = %q", got)
	}
}

func TestSplitSystemPrompt_ComposedPrompt(t *testing.T) {
	p, dir := fixture(t)
	c := NewComposer(NewLocator(envsubst.FromMap(map[string]string{"BASE": dir}), nil))
	prompt := c.Compose(project.Unit{Name: "x", Documentation: []string{"a.md"}}, p)
	sys, user := SplitSystemPrompt(prompt)
	if sys != "Sys" {
		t.Errorf("system = %q, want %q", sys, "Sys")
	}
	if !strings.HasPrefix(user, DocumentationHeader) || !strings.HasSuffix(user, "INSTRUCTIONS:\nInstr") {
		t.Errorf("user = %q", user)
	}
}
