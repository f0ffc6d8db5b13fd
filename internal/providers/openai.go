package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dshills/veridoc/internal/prompt"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1"
	defaultLMStudioURL = "http://localhost:1234/v1"
	lmStudioAPIKey     = "lm-studio"
)

// OpenAI talks to the chat completions API. LM Studio uses the same type
// against its local OpenAI-compatible server.
type OpenAI struct {
	name        string
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	maxRetries  int
	client      *http.Client
}

// NewOpenAI creates an OpenAI backend. An API key is required.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingKey)
	}
	return newOpenAICompatible(string(ProviderOpenAI), cfg, defaultOpenAIURL), nil
}

// NewLMStudio creates a backend for a local LM Studio server.
func NewLMStudio(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = lmStudioAPIKey
	}
	return newOpenAICompatible(string(ProviderLMStudio), cfg, defaultLMStudioURL), nil
}

func newOpenAICompatible(name string, cfg Config, defaultURL string) *OpenAI {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultURL
	}
	return &OpenAI{
		name:        name,
		apiKey:      cfg.APIKey,
		model:       cfg.model(),
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.retries(),
		client:      cfg.httpClient(),
	}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) request(p string, stream bool) openaiRequest {
	system, user := prompt.SplitSystemPrompt(p)
	if system == "" {
		system = DefaultSystemMessage
	}
	temp := o.temperature
	req := openaiRequest{
		Model: o.model,
		Messages: []openaiMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: &temp,
		Stream:      stream,
	}
	if o.maxTokens > 0 {
		req.MaxTokens = o.maxTokens
	}
	return req
}

func (o *OpenAI) newHTTPRequest(ctx context.Context, payload []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	return httpReq, nil
}

// Generate sends a single non-streaming completion request.
func (o *OpenAI) Generate(ctx context.Context, p string) (string, error) {
	payload, err := json.Marshal(o.request(p, false))
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var text string
	err = retryWithBackoff(ctx, o.maxRetries, func() error {
		httpReq, err := o.newHTTPRequest(ctx, payload)
		if err != nil {
			return err
		}
		httpResp, err := o.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("%s: sending request: %w", o.name, err)
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("%s: reading response: %w", o.name, err)
		}
		if err := statusError(o.name, httpResp.StatusCode, respBody); err != nil {
			return err
		}

		var result openaiResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("%s: parsing response: %w", o.name, err)
		}
		if len(result.Choices) == 0 || result.Choices[0].Message == nil {
			return fmt.Errorf("%s: no choices in response", o.name)
		}
		if result.Choices[0].Message.Content == "" {
			return fmt.Errorf("%s: empty text content in API response", o.name)
		}
		text = result.Choices[0].Message.Content
		return nil
	})
	return text, err
}

// GenerateStream requests a server-sent-event stream and forwards every
// content delta to onDelta.
func (o *OpenAI) GenerateStream(ctx context.Context, p string, onDelta func(string)) (string, error) {
	payload, err := json.Marshal(o.request(p, true))
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	httpReq, err := o.newHTTPRequest(ctx, payload)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s: sending request: %w", o.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return "", statusError(o.name, httpResp.StatusCode, body)
	}

	var full strings.Builder
	done := false
	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			done = true
			break
		}
		var chunk openaiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return full.String(), fmt.Errorf("%s: malformed stream chunk: %w", o.name, err)
		}
		if chunk.Error != nil {
			return full.String(), fmt.Errorf("%s: stream error: %s", o.name, chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta == nil {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			full.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
		if chunk.Choices[0].FinishReason != "" {
			done = true
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("%s: reading stream: %w", o.name, err)
	}
	if !done {
		return full.String(), errors.New(o.name + ": stream ended before completion")
	}
	if full.Len() == 0 {
		return "", fmt.Errorf("%s: empty streamed response", o.name)
	}
	return full.String(), nil
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error,omitempty"`
}

type openaiChoice struct {
	Message      *openaiMessage `json:"message,omitempty"`
	Delta        *openaiMessage `json:"delta,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

type openaiError struct {
	Message string `json:"message"`
}
