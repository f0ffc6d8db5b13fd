package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/dshills/veridoc/internal/envsubst"
	"github.com/dshills/veridoc/internal/project"
	"github.com/dshills/veridoc/internal/providers"
)

// Config represents the veridoc configuration.
type Config struct {
	Provider       string        `json:"provider"`
	Model          string        `json:"model,omitempty"`
	BaseURL        string        `json:"baseURL,omitempty"`
	Tag            string        `json:"tag,omitempty"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"maxTokens,omitempty"`
	TimeoutSeconds int           `json:"timeoutSeconds"`
	MaxRetries     int           `json:"maxRetries"`
	Discipline     string        `json:"discipline"`
	Concurrency    int           `json:"concurrency"`
	Stream         bool          `json:"stream"`
	SavePrompt     bool          `json:"savePrompt"`
	Format         string        `json:"format"`
	Exclude        []string      `json:"exclude"`
	LogLevel       string        `json:"logLevel"`
	MetricsFile    string        `json:"metricsFile,omitempty"`
	Cache          CacheConfig   `json:"cache"`
	Privacy        PrivacyConfig `json:"privacy"`
	History        HistoryConfig `json:"history"`
	CR             CRConfig      `json:"cr"`
	Publish        PublishConfig `json:"publish"`

	// APIKey comes from VERIDOC_API_KEY or a flag and is never saved.
	APIKey string `json:"-"`

	lookup   envsubst.Lookup
	explicit map[string]bool
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled    bool   `json:"enabled"`
	Dir        string `json:"dir,omitempty"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// PrivacyConfig controls privacy/redaction behavior.
type PrivacyConfig struct {
	RedactSecrets bool     `json:"redactSecrets"`
	RedactPaths   []string `json:"redactPaths,omitempty"`
}

// HistoryConfig controls the run ledger.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// RepoConfig is one repository watched by continuous review.
type RepoConfig struct {
	Category project.Category `json:"category"`
	URL      string           `json:"url"`
	Branch   string           `json:"branch,omitempty"`
}

// CRConfig configures continuous-review runs.
type CRConfig struct {
	Mode            string       `json:"mode"`
	ProjectFile     string       `json:"projectFile,omitempty"`
	OutputFolder    string       `json:"outputFolder,omitempty"`
	Workspace       string       `json:"workspace"`
	KeepWorkspace   bool         `json:"keepWorkspace"`
	Repositories    []RepoConfig `json:"repositories,omitempty"`
	BaseCommit      string       `json:"baseCommit"`
	TargetCommit    string       `json:"targetCommit"`
	RunAll          bool         `json:"runAll"`
	Specific        []string     `json:"specific,omitempty"`
	MatchByCategory bool         `json:"matchByCategory"`
	WorkingTree     bool         `json:"workingTree"`
	PublishResults  bool         `json:"publishResults"`
}

// PublishConfig selects and configures publishers.
type PublishConfig struct {
	Methods []string      `json:"methods,omitempty"`
	GitHub  GitHubPublish `json:"github"`
	FTP     FTPPublish    `json:"ftp"`
	NATS    NATSPublish   `json:"nats"`
}

// GitHubPublish targets a repository through the contents API.
type GitHubPublish struct {
	Token  string `json:"-"`
	Repo   string `json:"repo,omitempty"`
	Branch string `json:"branch,omitempty"`
	Path   string `json:"path,omitempty"`
	APIURL string `json:"apiURL,omitempty"`
}

// FTPPublish targets an FTP server.
type FTPPublish struct {
	Host     string `json:"host,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"-"`
	Path     string `json:"path,omitempty"`
}

// NATSPublish targets a NATS subject.
type NATSPublish struct {
	URL     string `json:"url,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// CR modes.
const (
	ModeLocal         = "local"
	ModeGitHubActions = "github_actions"
	ModeGitLabCI      = "gitlab_ci"
	ModeJenkins       = "jenkins"
	ModeManual        = "manual"
)

// Modes lists the accepted CR modes.
var Modes = []string{ModeLocal, ModeGitHubActions, ModeGitLabCI, ModeJenkins, ModeManual}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:       string(providers.ProviderOpenAI),
		Temperature:    providers.DefaultTemperature,
		TimeoutSeconds: 300,
		MaxRetries:     3,
		Discipline:     "concurrent",
		Format:         "text",
		Exclude:        []string{"**/node_modules/**", "**/vendor/**", "**/*.min.js"},
		LogLevel:       "warn",
		Cache: CacheConfig{
			Enabled:    false,
			TTLSeconds: 86400,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
		History: HistoryConfig{Enabled: true},
		CR: CRConfig{
			Mode:         ModeLocal,
			Workspace:    ".cr_workspace",
			BaseCommit:   "HEAD~1",
			TargetCommit: "HEAD",
		},
	}
}

// ConfigDir returns the platform-appropriate config directory for veridoc.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "veridoc"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "veridoc"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "veridoc"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "veridoc"), nil
	default:
		return filepath.Join(home, ".config", "veridoc"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadFile returns the defaults overlaid with the config file. A missing
// file yields the defaults. Keys absent from the file keep their default,
// so a file may set booleans to false explicitly.
func LoadFile() (Config, error) {
	cfg := Default()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the config file. Secrets are never written.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(overrides map[string]string) (Config, error) {
	return LoadEnv(os.Environ(), overrides)
}

// LoadEnv is Load with an explicit environment.
func LoadEnv(environ []string, overrides map[string]string) (Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	cfg.lookup = envsubst.FromEnviron(environ)
	cfg.explicit = map[string]bool{}
	if err := mergeEnv(&cfg, cfg.lookup); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Lookup returns the environment captured by Load. It is never nil.
func (c Config) Lookup() envsubst.Lookup {
	if c.lookup == nil {
		return envsubst.FromMap(nil)
	}
	return c.lookup
}

// WithLookup returns a copy of c using lookup for the environment.
func (c Config) WithLookup(lookup envsubst.Lookup) Config {
	c.lookup = lookup
	return c
}

// Explicit reports whether key was set by the environment or a flag.
func (c Config) Explicit(key string) bool { return c.explicit[key] }

type envBinding struct {
	vars []string
	key  string
}

// envBindings maps environment variables to SetField keys. The first
// variable that is set wins.
var envBindings = []envBinding{
	{[]string{"VERIDOC_PROVIDER", "CR_AI_PROVIDER"}, "provider"},
	{[]string{"VERIDOC_MODEL", "CR_AI_MODEL"}, "model"},
	{[]string{"VERIDOC_BASE_URL", "CR_AI_BASE_URL"}, "baseURL"},
	{[]string{"VERIDOC_TAG"}, "tag"},
	{[]string{"VERIDOC_TEMPERATURE"}, "temperature"},
	{[]string{"VERIDOC_MAX_TOKENS"}, "maxTokens"},
	{[]string{"VERIDOC_TIMEOUT"}, "timeoutSeconds"},
	{[]string{"VERIDOC_DISCIPLINE"}, "discipline"},
	{[]string{"VERIDOC_CONCURRENCY"}, "concurrency"},
	{[]string{"VERIDOC_STREAM"}, "stream"},
	{[]string{"VERIDOC_SAVE_PROMPT"}, "savePrompt"},
	{[]string{"VERIDOC_FORMAT"}, "format"},
	{[]string{"VERIDOC_LOG_LEVEL"}, "logLevel"},
	{[]string{"VERIDOC_METRICS_FILE"}, "metricsFile"},
	{[]string{"VERIDOC_CACHE"}, "cache.enabled"},
	{[]string{"VERIDOC_CACHE_DIR"}, "cache.dir"},
	{[]string{"VERIDOC_HISTORY_PATH"}, "history.path"},
	{[]string{"CR_MODE"}, "cr.mode"},
	{[]string{"CR_PROJECT_FILE"}, "cr.projectFile"},
	{[]string{"CR_OUTPUT_FOLDER"}, "cr.outputFolder"},
	{[]string{"CR_WORKSPACE"}, "cr.workspace"},
	{[]string{"CR_BASE_COMMIT"}, "cr.baseCommit"},
	{[]string{"CR_TARGET_COMMIT"}, "cr.targetCommit"},
	{[]string{"CR_RUN_ALL_VERIFICATIONS"}, "cr.runAll"},
	{[]string{"CR_SPECIFIC_VERIFICATIONS"}, "cr.specific"},
	{[]string{"CR_MATCH_BY_CATEGORY"}, "cr.matchByCategory"},
	{[]string{"CR_WORKING_TREE"}, "cr.workingTree"},
	{[]string{"CR_PUBLISH_RESULTS"}, "cr.publishResults"},
	{[]string{"CR_PUBLISH_METHOD"}, "publish.methods"},
	{[]string{"CR_GITHUB_REPO"}, "publish.github.repo"},
	{[]string{"CR_GITHUB_BRANCH"}, "publish.github.branch"},
	{[]string{"CR_GITHUB_PATH"}, "publish.github.path"},
	{[]string{"CR_FTP_HOST"}, "publish.ftp.host"},
	{[]string{"CR_FTP_USER"}, "publish.ftp.user"},
	{[]string{"CR_FTP_PATH"}, "publish.ftp.path"},
	{[]string{"CR_NATS_URL"}, "publish.nats.url"},
	{[]string{"CR_NATS_SUBJECT"}, "publish.nats.subject"},
}

var repoEnv = []struct {
	prefix   string
	category project.Category
}{
	{"CR_DOCS", project.Documentation},
	{"CR_FRONTEND", project.Frontend},
	{"CR_BACKEND", project.Backend},
}

func mergeEnv(cfg *Config, lookup envsubst.Lookup) error {
	for _, b := range envBindings {
		for _, name := range b.vars {
			v, ok := lookup(name)
			if !ok || v == "" {
				continue
			}
			if err := SetField(cfg, b.key, v); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			cfg.explicit[b.key] = true
			break
		}
	}
	if v, ok := lookup("VERIDOC_API_KEY"); ok {
		cfg.APIKey = v
	}
	if v, ok := lookup("CR_GITHUB_TOKEN"); ok {
		cfg.Publish.GitHub.Token = v
	} else if v, ok := lookup("GITHUB_TOKEN"); ok {
		cfg.Publish.GitHub.Token = v
	}
	if v, ok := lookup("CR_FTP_PASSWORD"); ok {
		cfg.Publish.FTP.Password = v
	}

	for _, r := range repoEnv {
		url, ok := lookup(r.prefix + "_REPO_URL")
		if !ok || url == "" {
			continue
		}
		branch, _ := lookup(r.prefix + "_BRANCH")
		cfg.CR.Repositories = setRepo(cfg.CR.Repositories, RepoConfig{Category: r.category, URL: url, Branch: branch})
	}
	return nil
}

func setRepo(repos []RepoConfig, r RepoConfig) []RepoConfig {
	for i := range repos {
		if repos[i].Category == r.Category {
			repos[i] = r
			return repos
		}
	}
	return append(repos, r)
}

// overrideKeys maps flag names to SetField keys.
var overrideKeys = map[string]string{
	"provider":    "provider",
	"model":       "model",
	"baseURL":     "baseURL",
	"tag":         "tag",
	"temperature": "temperature",
	"maxTokens":   "maxTokens",
	"discipline":  "discipline",
	"concurrency": "concurrency",
	"stream":      "stream",
	"savePrompt":  "savePrompt",
	"format":      "format",
	"logLevel":    "logLevel",
	"metricsFile": "metricsFile",
	"cache":       "cache.enabled",
	"mode":        "cr.mode",
	"base":        "cr.baseCommit",
	"target":      "cr.targetCommit",
	"workspace":   "cr.workspace",
	"working":     "cr.workingTree",
	"publish":     "publish.methods",
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for flag, v := range overrides {
		if v == "" {
			continue
		}
		if flag == "apiKey" {
			cfg.APIKey = v
			continue
		}
		key, ok := overrideKeys[flag]
		if !ok {
			key = flag
		}
		if err := SetField(cfg, key, v); err != nil {
			return fmt.Errorf("--%s: %w", flag, err)
		}
		if cfg.explicit == nil {
			cfg.explicit = map[string]bool{}
		}
		cfg.explicit[key] = true
	}
	return nil
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "provider":
		var id providers.ID
		if id, err = providers.ParseID(value); err == nil {
			cfg.Provider = string(id)
		}
	case "model":
		cfg.Model = value
	case "baseURL":
		cfg.BaseURL = value
	case "tag":
		cfg.Tag = value
	case "temperature":
		cfg.Temperature, err = strconv.ParseFloat(value, 64)
	case "maxTokens":
		cfg.MaxTokens, err = atoi(key, value)
	case "timeoutSeconds":
		cfg.TimeoutSeconds, err = atoi(key, value)
	case "maxRetries":
		cfg.MaxRetries, err = atoi(key, value)
	case "discipline":
		switch value {
		case "concurrent", "sequential":
			cfg.Discipline = value
		default:
			err = fmt.Errorf("discipline must be concurrent or sequential, got %q", value)
		}
	case "concurrency":
		cfg.Concurrency, err = atoi(key, value)
	case "stream":
		cfg.Stream, err = parseBool(key, value)
	case "savePrompt":
		cfg.SavePrompt, err = parseBool(key, value)
	case "format":
		switch value {
		case "text", "json", "markdown":
			cfg.Format = value
		default:
			err = fmt.Errorf("format must be text, json or markdown, got %q", value)
		}
	case "exclude":
		cfg.Exclude = splitList(value)
	case "logLevel":
		cfg.LogLevel = value
	case "metricsFile":
		cfg.MetricsFile = value
	case "cache.enabled":
		cfg.Cache.Enabled, err = parseBool(key, value)
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttlSeconds":
		cfg.Cache.TTLSeconds, err = atoi(key, value)
	case "privacy.redactSecrets":
		cfg.Privacy.RedactSecrets, err = parseBool(key, value)
	case "privacy.redactPaths":
		cfg.Privacy.RedactPaths = splitList(value)
	case "history.enabled":
		cfg.History.Enabled, err = parseBool(key, value)
	case "history.path":
		cfg.History.Path = value
	case "cr.mode":
		if !validMode(value) {
			err = fmt.Errorf("mode must be one of %s, got %q", strings.Join(Modes, ", "), value)
		} else {
			cfg.CR.Mode = value
		}
	case "cr.projectFile":
		cfg.CR.ProjectFile = value
	case "cr.outputFolder":
		cfg.CR.OutputFolder = value
	case "cr.workspace":
		cfg.CR.Workspace = value
	case "cr.keepWorkspace":
		cfg.CR.KeepWorkspace, err = parseBool(key, value)
	case "cr.baseCommit":
		cfg.CR.BaseCommit = value
	case "cr.targetCommit":
		cfg.CR.TargetCommit = value
	case "cr.runAll":
		cfg.CR.RunAll, err = parseBool(key, value)
	case "cr.specific":
		cfg.CR.Specific = splitList(value)
	case "cr.matchByCategory":
		cfg.CR.MatchByCategory, err = parseBool(key, value)
	case "cr.workingTree":
		cfg.CR.WorkingTree, err = parseBool(key, value)
	case "cr.publishResults":
		cfg.CR.PublishResults, err = parseBool(key, value)
	case "publish.methods":
		cfg.Publish.Methods = splitList(value)
	case "publish.github.repo":
		cfg.Publish.GitHub.Repo = value
	case "publish.github.branch":
		cfg.Publish.GitHub.Branch = value
	case "publish.github.path":
		cfg.Publish.GitHub.Path = value
	case "publish.ftp.host":
		cfg.Publish.FTP.Host = value
	case "publish.ftp.user":
		cfg.Publish.FTP.User = value
	case "publish.ftp.path":
		cfg.Publish.FTP.Path = value
	case "publish.nats.url":
		cfg.Publish.NATS.URL = value
	case "publish.nats.subject":
		cfg.Publish.NATS.Subject = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return err
}

func atoi(key, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func parseBool(key, value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("%s must be a boolean, got %q", key, value)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validMode(m string) bool {
	for _, v := range Modes {
		if v == m {
			return true
		}
	}
	return false
}
