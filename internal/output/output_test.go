package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/veridoc/internal/verify"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleResult() *verify.BatchResult {
	return &verify.BatchResult{
		RunID:      "0b8f3c1e",
		Project:    "shop",
		Discipline: verify.Concurrent,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Total:      2,
		Succeeded:  1,
		Failed:     1,
		Outcomes: []verify.Outcome{
			{
				Unit: "Login flow", Success: true,
				ReportPath: "out/shop/Login flow/openai_gpt-4o_report.md",
				Provider:   "openai", Model: "gpt-4o", Cached: true,
				Duration: 800 * time.Millisecond,
			},
			{
				Unit: "Checkout | cart", Success: false,
				Error:    "backend: 429 rate limited\nretry later",
				FailedAt: verify.StateAIProcessing,
				Provider: "openai", Model: "gpt-4o",
			},
		},
	}
}

func TestGetWriter(t *testing.T) {
	for _, f := range []string{"", "text", "json", "markdown", "md"} {
		if _, err := GetWriter(f, true); err != nil {
			t.Errorf("GetWriter(%q): %v", f, err)
		}
	}
	if _, err := GetWriter("sarif", true); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestTextWriter_Summary(t *testing.T) {
	var buf bytes.Buffer
	w := &TextWriter{NoColor: true}
	if err := w.Write(&buf, sampleResult()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Verification: shop",
		"Units: 2 total, 1 passed, 1 failed",
		"[ok] Login flow  (openai/gpt-4o, cached, 800ms)",
		"report: out/shop/Login flow/openai_gpt-4o_report.md",
		"[!!] Checkout | cart",
		"failed during ai_processing",
		"429 rate limited",
		"Completed in 1.5s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTextWriter_Empty(t *testing.T) {
	var buf bytes.Buffer
	res := &verify.BatchResult{Project: "shop", StartedAt: start, FinishedAt: start}
	if err := (&TextWriter{NoColor: true}).Write(&buf, res); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No units selected") {
		t.Errorf("output = %q", buf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestTextWriter_PropagatesWriteError(t *testing.T) {
	err := (&TextWriter{NoColor: true}).Write(failingWriter{}, sampleResult())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v", err)
	}
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONWriter{}).Write(&buf, sampleResult()); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["total_verifications"] != float64(2) {
		t.Errorf("total_verifications = %v", decoded["total_verifications"])
	}
	results, ok := decoded["results"].([]any)
	if !ok || len(results) != 2 {
		t.Fatalf("results = %v", decoded["results"])
	}
	first := results[0].(map[string]any)
	if first["verification_name"] != "Login flow" {
		t.Errorf("verification_name = %v", first["verification_name"])
	}
}

func TestMarkdownWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MarkdownWriter{}).Write(&buf, sampleResult()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"## Verification: shop",
		"| 2 | 1 | 1 |",
		"| Login flow | :white_check_mark: passed (cached) | `out/shop/Login flow/openai_gpt-4o_report.md` |",
		`| Checkout \| cart | :x: failed at ai_processing | backend: 429 rate limited |`,
		"<summary>Errors (1)</summary>",
		"retry later",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q:\n%s", want, out)
		}
	}
}

func TestWriteResult_ToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	if err := WriteResult(nil, sampleResult(), "json", path, true); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"project": "shop"`) {
		t.Errorf("file content = %s", data)
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five six", 10)
	for _, l := range lines {
		if len(l) > 10 {
			t.Errorf("line %q exceeds width", l)
		}
	}
	if strings.Join(lines, " ") != "one two three four five six" {
		t.Errorf("words lost: %v", lines)
	}
}
