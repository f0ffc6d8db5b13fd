package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ID identifies a model provider.
type ID string

const (
	ProviderOpenAI    ID = "openai"
	ProviderLMStudio  ID = "lm_studio"
	ProviderOllama    ID = "ollama"
	ProviderGemini    ID = "gemini"
	ProviderAnthropic ID = "anthropic"
)

// IDs lists every supported provider.
var IDs = []ID{ProviderOpenAI, ProviderLMStudio, ProviderOllama, ProviderGemini, ProviderAnthropic}

// ParseID maps a provider name, including common aliases, to an ID.
func ParseID(s string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return ProviderOpenAI, nil
	case "lm_studio", "lmstudio", "lm-studio":
		return ProviderLMStudio, nil
	case "ollama":
		return ProviderOllama, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	}
	return "", fmt.Errorf("unknown provider: %q", s)
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(id ID) string {
	switch id {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderLMStudio:
		return "local-model"
	case ProviderOllama:
		return "llama3.1"
	case ProviderGemini:
		return "gemini-2.0-flash"
	case ProviderAnthropic:
		return "claude-sonnet-4-20250514"
	}
	return ""
}

const (
	// DefaultSystemMessage frames prompts that carry no system block.
	DefaultSystemMessage = "You are a helpful assistant that verifies code against documentation."
	DefaultTemperature   = 0.7
	defaultTimeout       = 300 * time.Second
	defaultMaxRetries    = 3
)

// Config selects and parameterizes a backend.
type Config struct {
	Provider    ID
	APIKey      string
	BaseURL     string
	Model       string
	Tag         string
	Temperature float64
	// MaxTokens bounds the output; zero leaves it to the provider.
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (c Config) retries() int {
	if c.MaxRetries < 0 {
		return 0
	}
	if c.MaxRetries == 0 {
		return defaultMaxRetries
	}
	return c.MaxRetries
}

func (c Config) model() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel(c.Provider)
}

// Backend generates a completion for a composed prompt.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Streamer is implemented by backends that deliver output incrementally.
// onDelta receives each content fragment in order; the return value is the
// full text. A failed stream cannot be resumed, only retried from scratch.
type Streamer interface {
	GenerateStream(ctx context.Context, prompt string, onDelta func(delta string)) (string, error)
}

// New builds the backend selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	case ProviderLMStudio:
		return NewLMStudio(cfg)
	case ProviderOllama:
		return NewOllama(cfg)
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderAnthropic:
		return NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %q", cfg.Provider)
	}
}
