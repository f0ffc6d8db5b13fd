package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dshills/veridoc/internal/prompt"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
	// The messages API requires max_tokens.
	anthropicMaxTokens = 4096
)

// Anthropic calls the Claude messages API. It does not stream.
type Anthropic struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	maxTokens   int
	maxRetries  int
	client      *http.Client
}

// NewAnthropic creates an Anthropic backend. An API key is required.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingKey)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	return &Anthropic{
		apiKey:      cfg.APIKey,
		model:       cfg.model(),
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		maxRetries:  cfg.retries(),
		client:      cfg.httpClient(),
	}, nil
}

func (a *Anthropic) Name() string { return string(ProviderAnthropic) }

// Generate sends one messages request and concatenates the text blocks.
func (a *Anthropic) Generate(ctx context.Context, p string) (string, error) {
	system, user := prompt.SplitSystemPrompt(p)
	if system == "" {
		system = DefaultSystemMessage
	}
	temp := a.temperature
	payload, err := json.Marshal(anthropicRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      system,
		Temperature: &temp,
		Messages:    []anthropicMessage{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var text string
	err = retryWithBackoff(ctx, a.maxRetries, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", a.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

		httpResp, err := a.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("anthropic: sending request: %w", err)
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("anthropic: reading response: %w", err)
		}
		if err := statusError("anthropic", httpResp.StatusCode, respBody); err != nil {
			return err
		}

		var result anthropicResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("anthropic: parsing response: %w", err)
		}
		var b strings.Builder
		for _, block := range result.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		if b.Len() == 0 {
			return fmt.Errorf("anthropic: empty text content in API response")
		}
		text = b.String()
		return nil
	})
	return text, err
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
