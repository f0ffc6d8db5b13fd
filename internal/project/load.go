package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a malformed project. It is fatal to a run and is
// always raised before any unit starts.
type ConfigError struct {
	Path  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("project config")
	if e.Path != "" {
		b.WriteString(" " + e.Path)
	}
	if e.Field != "" {
		b.WriteString(": " + e.Field)
	}
	b.WriteString(": " + e.Err.Error())
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

type unknownUnitsError []string

func (u unknownUnitsError) Error() string {
	return "unknown verification unit(s): " + strings.Join(u, ", ")
}

// Load reads a project file. The format is chosen by extension: .yaml and
// .yml decode as YAML, anything else as JSON.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	p, err := Decode(data, formatFor(path))
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
			return nil, ce
		}
		return nil, &ConfigError{Path: path, Err: err}
	}
	return p, nil
}

// Format is a project file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode parses and validates a project document.
func Decode(data []byte, format Format) (*Project, error) {
	var p Project
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode serializes a project in the given format.
func Encode(p *Project, format Format) ([]byte, error) {
	if format == FormatYAML {
		return yaml.Marshal(p)
	}
	return json.MarshalIndent(p, "", "  ")
}

// Validate checks the invariants a run depends on.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ConfigError{Field: "project_name", Err: errors.New("must not be empty")}
	}
	if err := checkPathName(p.Name); err != nil {
		return &ConfigError{Field: "project_name", Err: err}
	}
	if strings.TrimSpace(p.OutputRoot) == "" {
		return &ConfigError{Field: "output_folder", Err: errors.New("must not be empty")}
	}
	dirs := make(map[string]string, len(p.Units))
	for i, u := range p.Units {
		field := fmt.Sprintf("verification_sections[%d]", i)
		if strings.TrimSpace(u.Name) == "" {
			return &ConfigError{Field: field + ".name", Err: errors.New("must not be empty")}
		}
		if err := checkPathName(u.Name); err != nil {
			return &ConfigError{Field: field + ".name", Err: err}
		}
		dir := SanitizeName(u.Name)
		if other, ok := dirs[dir]; ok && other != u.Name {
			return &ConfigError{Field: field + ".name", Err: fmt.Errorf("%q and %q share the report directory %q", other, u.Name, dir)}
		}
		dirs[dir] = u.Name
		if !u.SystemPromptMode.Valid() {
			return &ConfigError{Field: field + ".system_prompt_mode", Err: fmt.Errorf("invalid mode %q", u.SystemPromptMode)}
		}
		if !u.InstructionsMode.Valid() {
			return &ConfigError{Field: field + ".instructions_mode", Err: fmt.Errorf("invalid mode %q", u.InstructionsMode)}
		}
	}
	return nil
}

var nameReplacer = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// SanitizeName replaces characters that are unsafe in file names with "_".
// Project and unit names pass through it to become output directories.
func SanitizeName(s string) string { return nameReplacer.Replace(s) }

func checkPathName(name string) error {
	switch SanitizeName(name) {
	case ".", "..":
		return fmt.Errorf("%q cannot be used as a directory name", name)
	}
	return nil
}
