package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGemini_Generate(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Error("Missing API key in x-goog-api-key header")
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Verified."}]}}]}`))
	}))
	defer server.Close()

	g, err := NewGemini(context.Background(), Config{
		Provider:   ProviderGemini,
		APIKey:     "test-key",
		Model:      "gemini-2.0-flash",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatal(err)
	}
	text, err := g.Generate(context.Background(), "SYSTEM PROMPT:\nCheck.\n\nDOCUMENTATION FILES:\nd")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if text != "Verified." {
		t.Errorf("text = %q", text)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Errorf("request has no systemInstruction: %v", body)
	}
}

func TestGemini_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	defer server.Close()

	g, err := NewGemini(context.Background(), Config{Provider: ProviderGemini, APIKey: "bad", BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Generate(context.Background(), "p"); !IsAuthError(err) {
		t.Errorf("err = %v, want auth error", err)
	}
}
