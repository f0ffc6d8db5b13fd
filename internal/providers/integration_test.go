//go:build integration

package providers

import (
	"context"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// Live checks against real providers. Run with: go test -tags integration ./internal/providers/
var liveSpecs = []struct {
	id     ID
	envVar string
}{
	{ProviderOpenAI, "OPENAI_API_KEY"},
	{ProviderGemini, "GEMINI_API_KEY"},
	{ProviderAnthropic, "ANTHROPIC_API_KEY"},
	{ProviderOllama, ""},
}

func ollamaReachable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, defaultOllamaURL+"/api/tags", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func TestLive_Generate(t *testing.T) {
	const composed = "SYSTEM PROMPT:\nAnswer with one word.\n\nINSTRUCTIONS:\nSay OK."
	for _, spec := range liveSpecs {
		t.Run(string(spec.id), func(t *testing.T) {
			key := ""
			if spec.envVar != "" {
				key = os.Getenv(spec.envVar)
				if key == "" {
					t.Skipf("skipping: %s not set", spec.envVar)
				}
			} else if !ollamaReachable() {
				t.Skip("skipping: ollama not reachable")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			b, err := New(ctx, Config{Provider: spec.id, APIKey: key, Temperature: 0})
			if err != nil {
				t.Fatal(err)
			}
			text, err := b.Generate(ctx, composed)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if strings.TrimSpace(text) == "" {
				t.Error("empty response")
			}
			if s, ok := b.(Streamer); ok {
				streamed, err := s.GenerateStream(ctx, composed, nil)
				if err != nil || strings.TrimSpace(streamed) == "" {
					t.Errorf("GenerateStream = %q, %v", streamed, err)
				}
			}
		})
	}
}
