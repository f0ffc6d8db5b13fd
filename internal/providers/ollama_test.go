package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllama_Generate(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(ollamaResponse{Response: "looks consistent", Done: true})
	}))
	defer server.Close()

	o, _ := NewOllama(Config{Provider: ProviderOllama, BaseURL: server.URL, Model: "llama3", Temperature: 0.7, MaxTokens: 256})
	text, err := o.Generate(context.Background(), "SYSTEM PROMPT:\nS\n\nBACKEND CODE FILES:\nb")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if text != "looks consistent" {
		t.Errorf("text = %q", text)
	}
	if got.System != "S" || got.Prompt != "BACKEND CODE FILES:\nb" || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if got.Options.NumPredict != 256 || got.Options.Temperature != 0.7 {
		t.Errorf("options = %+v", got.Options)
	}
}

func TestOllama_ErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()
	o, _ := NewOllama(Config{Provider: ProviderOllama, BaseURL: server.URL})
	if _, err := o.Generate(context.Background(), "p"); err == nil {
		t.Error("expected error from error field")
	}
}

func TestOllama_GenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, part := range []string{"a", "b", "c"} {
			fmt.Fprintf(w, "{\"response\":%q,\"done\":false}\n", part)
		}
		fmt.Fprint(w, "{\"response\":\"\",\"done\":true}\n")
	}))
	defer server.Close()

	o, _ := NewOllama(Config{Provider: ProviderOllama, BaseURL: server.URL})
	var seen []string
	text, err := o.GenerateStream(context.Background(), "p", func(d string) { seen = append(seen, d) })
	if err != nil {
		t.Fatalf("GenerateStream error: %v", err)
	}
	if text != "abc" || len(seen) != 3 {
		t.Errorf("text = %q, deltas = %v", text, seen)
	}
}

func TestOllama_GenerateStreamCutOff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{\"response\":\"half\",\"done\":false}\n")
	}))
	defer server.Close()

	o, _ := NewOllama(Config{Provider: ProviderOllama, BaseURL: server.URL})
	if _, err := o.GenerateStream(context.Background(), "p", nil); err == nil {
		t.Error("expected error when the stream never reports done")
	}
}
