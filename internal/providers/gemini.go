package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/veridoc/internal/prompt"
	"google.golang.org/genai"
)

// Gemini calls Google's Gemini API through the genai SDK.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
	maxRetries  int
}

// NewGemini creates a Gemini backend. An API key is required; the SDK's own
// environment fallback is bypassed by passing the key explicitly.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingKey)
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient(),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.BaseURL, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &Gemini{
		client:      client,
		model:       cfg.model(),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.retries(),
	}, nil
}

func (g *Gemini) Name() string { return string(ProviderGemini) }

func (g *Gemini) request(p string) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, user := prompt.SplitSystemPrompt(p)
	if system == "" {
		system = DefaultSystemMessage
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(float32(g.temperature)),
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.maxTokens)
	}
	return []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}, cfg
}

// Generate performs a single GenerateContent call.
func (g *Gemini) Generate(ctx context.Context, p string) (string, error) {
	contents, cfg := g.request(p)
	var text string
	err := retryWithBackoff(ctx, g.maxRetries, func() error {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err != nil {
			return classifyGenaiError(err)
		}
		text = resp.Text()
		if text == "" {
			return fmt.Errorf("gemini: empty response")
		}
		return nil
	})
	return text, err
}

// GenerateStream consumes GenerateContentStream, forwarding each chunk.
func (g *Gemini) GenerateStream(ctx context.Context, p string, onDelta func(string)) (string, error) {
	contents, cfg := g.request(p)
	var full strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
		if err != nil {
			return full.String(), classifyGenaiError(err)
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if full.Len() == 0 {
		return "", fmt.Errorf("gemini: empty streamed response")
	}
	return full.String(), nil
}

// classifyGenaiError maps SDK API errors onto the retry taxonomy.
func classifyGenaiError(err error) error {
	code, msg := 0, ""
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, msg = apiErr.Code, apiErr.Message
	case errors.As(err, &apiErrPtr):
		code, msg = apiErrPtr.Code, apiErrPtr.Message
	default:
		return fmt.Errorf("gemini: %w", err)
	}
	if classified := statusError("gemini", code, []byte(msg)); classified != nil {
		return classified
	}
	return fmt.Errorf("gemini: %w", err)
}

