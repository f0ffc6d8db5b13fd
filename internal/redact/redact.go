package redact

import (
	"path/filepath"
	"regexp"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Placeholder replaces every redacted span.
const Placeholder = "[REDACTED]"

type rule struct {
	name string
	re   *regexp.Regexp
}

// rules run in order; provider-specific key shapes precede the generic ones
// so that the more precise rule gets the credit in Stats.
var rules = []rule{
	{"anthropic-key", regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`)},
	{"openai-key", regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
	{"google-api-key", regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`)},
	{"github-token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`)},
	{"slack-token", regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`)},
	{"aws-access-key-id", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"aws-secret-key", regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`)},
	{"api-key-assignment", regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`)},
	{"jwt", regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`)},
	{"bearer", regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`)},
	{"private-key", regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`)},
	{"connection-string", regexp.MustCompile(`(?i)\b(postgres|postgresql|mysql|mongodb(\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@`)},
	{"password-assignment", regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`)},
	{"hex-secret", regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`)},
}

// Filter redacts evidence content. The zero value is unusable; use New.
// A Filter is safe for concurrent use.
type Filter struct {
	enabled bool
	paths   []string

	mu    sync.Mutex
	stats map[string]int
}

// New returns a Filter. When enabled is false, Apply returns content
// unchanged. paths are doublestar globs matched against the evidence path.
func New(enabled bool, paths []string) *Filter {
	return &Filter{enabled: enabled, paths: paths, stats: make(map[string]int)}
}

// Enabled reports whether the filter rewrites anything.
func (f *Filter) Enabled() bool { return f != nil && f.enabled }

// Apply returns content with secrets removed. path is used for the
// whole-file policy only.
func (f *Filter) Apply(path, content string) string {
	if !f.Enabled() {
		return content
	}
	if f.matchesPath(path) {
		f.count("path-policy", 1)
		return Placeholder + " (file content redacted by path policy)\n"
	}
	return f.scrub(content)
}

func (f *Filter) scrub(content string) string {
	out := content
	for _, r := range rules {
		n := 0
		out = r.re.ReplaceAllStringFunc(out, func(string) string {
			n++
			return Placeholder
		})
		if n > 0 {
			f.count(r.name, n)
		}
	}
	return out
}

func (f *Filter) matchesPath(path string) bool {
	slashed := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, pattern := range f.paths {
		if ok, err := doublestar.Match(pattern, slashed); err == nil && ok {
			return true
		}
		// Globs rooted at "**/" also apply to the bare file name so that
		// patterns work for absolute evidence paths.
		if ok, err := doublestar.Match(pattern, "x/"+base); err == nil && ok {
			return true
		}
	}
	return false
}

func (f *Filter) count(rule string, n int) {
	f.mu.Lock()
	f.stats[rule] += n
	f.mu.Unlock()
}

// Stats returns the number of redactions per rule name since New.
func (f *Filter) Stats() map[string]int {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.stats))
	for k, v := range f.stats {
		out[k] = v
	}
	return out
}
