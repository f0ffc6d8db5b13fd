package config

import (
	"time"

	"github.com/dshills/veridoc/internal/envsubst"
	"github.com/dshills/veridoc/internal/project"
	"github.com/dshills/veridoc/internal/providers"
)

// credentialEnv lists the vendor variables consulted for an API key, in order.
var credentialEnv = map[providers.ID][]string{
	providers.ProviderOpenAI:    {"OPENAI_API_KEY"},
	providers.ProviderGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	providers.ProviderAnthropic: {"ANTHROPIC_API_KEY"},
}

// CredentialVars returns the environment variables that may hold a key for id.
func CredentialVars(id providers.ID) []string { return credentialEnv[id] }

// Backend resolves the backend parameters for a run. A project's ai_config
// fills every field not set by the environment or a flag; the file and
// defaults fill the rest. The API key comes from VERIDOC_API_KEY or a flag,
// then the project's api_key (after variable substitution), then the
// vendor's own environment variable.
func (c Config) Backend(p *project.Project) (providers.Config, error) {
	lookup := c.Lookup()
	provider, model, baseURL, tag := c.Provider, c.Model, c.BaseURL, c.Tag
	temperature, maxTokens := c.Temperature, c.MaxTokens
	var projectKey string

	if p != nil && p.Backend != nil {
		b := p.Backend
		if b.Provider != "" && !c.Explicit("provider") {
			if provider != b.Provider && !c.Explicit("model") {
				model = ""
			}
			provider = b.Provider
		}
		if b.Model != "" && !c.Explicit("model") {
			model = b.Model
		}
		if b.BaseURL != "" && !c.Explicit("baseURL") {
			baseURL = envsubst.String(b.BaseURL, lookup)
		}
		if b.Tag != "" && !c.Explicit("tag") {
			tag = b.Tag
		}
		if b.Temperature != nil && !c.Explicit("temperature") {
			temperature = *b.Temperature
		}
		if b.MaxTokens > 0 && !c.Explicit("maxTokens") {
			maxTokens = b.MaxTokens
		}
		projectKey = envsubst.String(b.APIKey, lookup)
	}

	id, err := providers.ParseID(provider)
	if err != nil {
		return providers.Config{}, &project.ConfigError{Field: "ai_config.provider", Err: err}
	}

	key := c.APIKey
	if key == "" && len(envsubst.Missing(projectKey, lookup)) == 0 {
		key = projectKey
	}
	if key == "" {
		for _, name := range credentialEnv[id] {
			if v, ok := lookup(name); ok && v != "" {
				key = v
				break
			}
		}
	}

	return providers.Config{
		Provider:    id,
		APIKey:      key,
		BaseURL:     baseURL,
		Model:       model,
		Tag:         tag,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Timeout:     time.Duration(c.TimeoutSeconds) * time.Second,
		MaxRetries:  c.MaxRetries,
	}, nil
}
