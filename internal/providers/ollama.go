package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dshills/veridoc/internal/prompt"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama uses Ollama's native generate endpoint, which streams
// newline-delimited JSON objects.
type Ollama struct {
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	maxRetries  int
	client      *http.Client
}

// NewOllama creates an Ollama backend. No credential is needed.
func NewOllama(cfg Config) (*Ollama, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &Ollama{
		model:       cfg.model(),
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.retries(),
		client:      cfg.httpClient(),
	}, nil
}

func (o *Ollama) Name() string { return string(ProviderOllama) }

func (o *Ollama) payload(p string, stream bool) ([]byte, error) {
	system, user := prompt.SplitSystemPrompt(p)
	if system == "" {
		system = DefaultSystemMessage
	}
	opts := ollamaOptions{Temperature: o.temperature}
	if o.maxTokens > 0 {
		opts.NumPredict = o.maxTokens
	}
	return json.Marshal(ollamaRequest{
		Model:   o.model,
		Prompt:  user,
		System:  system,
		Stream:  stream,
		Options: opts,
	})
}

func (o *Ollama) post(ctx context.Context, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: sending request (is ollama running at %s?): %w", o.baseURL, err)
	}
	return resp, nil
}

// Generate performs one non-streaming generate call.
func (o *Ollama) Generate(ctx context.Context, p string) (string, error) {
	payload, err := o.payload(p, false)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	var text string
	err = retryWithBackoff(ctx, o.maxRetries, func() error {
		httpResp, err := o.post(ctx, payload)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("ollama: reading response: %w", err)
		}
		if err := statusError("ollama", httpResp.StatusCode, body); err != nil {
			return err
		}
		var result ollamaResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("ollama: parsing response: %w", err)
		}
		if result.Error != "" {
			return fmt.Errorf("ollama: %s", result.Error)
		}
		if result.Response == "" {
			return fmt.Errorf("ollama: empty response")
		}
		text = result.Response
		return nil
	})
	return text, err
}

// GenerateStream reads the NDJSON stream until an object with done=true.
func (o *Ollama) GenerateStream(ctx context.Context, p string, onDelta func(string)) (string, error) {
	payload, err := o.payload(p, true)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	httpResp, err := o.post(ctx, payload)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return "", statusError("ollama", httpResp.StatusCode, body)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return full.String(), fmt.Errorf("ollama: malformed stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return full.String(), fmt.Errorf("ollama: %s", chunk.Error)
		}
		if chunk.Response != "" {
			full.WriteString(chunk.Response)
			if onDelta != nil {
				onDelta(chunk.Response)
			}
		}
		if chunk.Done {
			return full.String(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("ollama: reading stream: %w", err)
	}
	return full.String(), fmt.Errorf("ollama: stream ended before completion")
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}
