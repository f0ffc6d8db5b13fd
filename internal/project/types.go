package project

// Category identifies one of the three evidence categories.
type Category string

const (
	Documentation Category = "documentation"
	Frontend      Category = "frontend"
	Backend       Category = "backend"
)

// Categories lists the evidence categories in prompt order.
var Categories = []Category{Documentation, Frontend, Backend}

// OverrideMode governs how a unit's local text combines with the global text.
type OverrideMode string

const (
	UseGlobal OverrideMode = "use_global"
	Override  OverrideMode = "override"
	Append    OverrideMode = "append"
)

// Valid reports whether m is a known mode. The empty mode is valid and
// means use_global.
func (m OverrideMode) Valid() bool {
	switch m {
	case "", UseGlobal, Override, Append:
		return true
	}
	return false
}

// EffectiveMode resolves the stored mode against the legacy boolean flag.
// A non-nil legacy flag wins: true selects override, false selects
// use_global. Every read of a unit's mode goes through here.
func EffectiveMode(mode OverrideMode, legacy *bool) OverrideMode {
	if legacy != nil {
		if *legacy {
			return Override
		}
		return UseGlobal
	}
	if mode == "" {
		return UseGlobal
	}
	return mode
}

// Unit is one named bundle of evidence references plus prompt overrides.
type Unit struct {
	Name          string   `json:"name" yaml:"name"`
	Documentation []string `json:"documentation_files,omitempty" yaml:"documentation_files,omitempty"`
	Frontend      []string `json:"frontend_code_files,omitempty" yaml:"frontend_code_files,omitempty"`
	Backend       []string `json:"backend_code_files,omitempty" yaml:"backend_code_files,omitempty"`

	SystemPromptMode OverrideMode `json:"system_prompt_mode,omitempty" yaml:"system_prompt_mode,omitempty"`
	InstructionsMode OverrideMode `json:"instructions_mode,omitempty" yaml:"instructions_mode,omitempty"`
	SystemPrompt     string       `json:"verification_system_prompt,omitempty" yaml:"verification_system_prompt,omitempty"`
	Instructions     string       `json:"verification_instructions,omitempty" yaml:"verification_instructions,omitempty"`

	// Deprecated boolean form of the modes above, kept for older project files.
	LegacyOverrideSystemPrompt *bool `json:"override_global_system_prompt,omitempty" yaml:"override_global_system_prompt,omitempty"`
	LegacyOverrideInstructions *bool `json:"override_global_instructions,omitempty" yaml:"override_global_instructions,omitempty"`
}

// References returns the unit's evidence references for a category.
func (u Unit) References(c Category) []string {
	switch c {
	case Documentation:
		return u.Documentation
	case Frontend:
		return u.Frontend
	case Backend:
		return u.Backend
	}
	return nil
}

// EffectiveSystemPromptMode returns the system-prompt mode after legacy precedence.
func (u Unit) EffectiveSystemPromptMode() OverrideMode {
	return EffectiveMode(u.SystemPromptMode, u.LegacyOverrideSystemPrompt)
}

// EffectiveInstructionsMode returns the instructions mode after legacy precedence.
func (u Unit) EffectiveInstructionsMode() OverrideMode {
	return EffectiveMode(u.InstructionsMode, u.LegacyOverrideInstructions)
}

// BackendConfig is the model backend selection stored in a project file.
// Zero fields defer to the application configuration.
type BackendConfig struct {
	Provider    string   `json:"provider,omitempty" yaml:"provider,omitempty"`
	APIKey      string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	Tag         string   `json:"tag,omitempty" yaml:"tag,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Project is the verification context for a batch run.
type Project struct {
	Name               string         `json:"project_name" yaml:"project_name"`
	OutputRoot         string         `json:"output_folder" yaml:"output_folder"`
	DocumentationRoot  string         `json:"documentation_root_path,omitempty" yaml:"documentation_root_path,omitempty"`
	FrontendRoot       string         `json:"frontend_project_path,omitempty" yaml:"frontend_project_path,omitempty"`
	BackendRoot        string         `json:"backend_project_path,omitempty" yaml:"backend_project_path,omitempty"`
	GlobalSystemPrompt string         `json:"global_system_prompt,omitempty" yaml:"global_system_prompt,omitempty"`
	GlobalInstructions string         `json:"global_instructions,omitempty" yaml:"global_instructions,omitempty"`
	Units              []Unit         `json:"verification_sections" yaml:"verification_sections"`
	Backend            *BackendConfig `json:"ai_config,omitempty" yaml:"ai_config,omitempty"`
}

// Root returns the configured root path for a category ("" when unset).
func (p *Project) Root(c Category) string {
	switch c {
	case Documentation:
		return p.DocumentationRoot
	case Frontend:
		return p.FrontendRoot
	case Backend:
		return p.BackendRoot
	}
	return ""
}

// WithRoots returns a shallow copy of p whose category roots are replaced by
// the non-empty entries of roots.
func (p *Project) WithRoots(roots map[Category]string) *Project {
	cp := *p
	for c, r := range roots {
		if r == "" {
			continue
		}
		switch c {
		case Documentation:
			cp.DocumentationRoot = r
		case Frontend:
			cp.FrontendRoot = r
		case Backend:
			cp.BackendRoot = r
		}
	}
	return &cp
}

// Unit looks a unit up by name. With duplicate names the last definition wins.
func (p *Project) Unit(name string) (Unit, bool) {
	var (
		found Unit
		ok    bool
	)
	for _, u := range p.Units {
		if u.Name == name {
			found, ok = u, true
		}
	}
	return found, ok
}

// Names returns the distinct unit names in definition order.
func (p *Project) Names() []string {
	seen := make(map[string]bool, len(p.Units))
	var names []string
	for _, u := range p.Units {
		if !seen[u.Name] {
			seen[u.Name] = true
			names = append(names, u.Name)
		}
	}
	return names
}

// Select returns the units for the requested names, in request order.
// An empty request selects every distinct unit. Unknown names are a
// configuration error.
func (p *Project) Select(names []string) ([]Unit, error) {
	if len(names) == 0 {
		names = p.Names()
	}
	units := make([]Unit, 0, len(names))
	var unknown []string
	for _, n := range names {
		u, ok := p.Unit(n)
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		units = append(units, u)
	}
	if len(unknown) > 0 {
		return nil, &ConfigError{Field: "verification_sections", Err: unknownUnitsError(unknown)}
	}
	return units, nil
}

// DuplicateNames lists unit names defined more than once.
func (p *Project) DuplicateNames() []string {
	count := make(map[string]int, len(p.Units))
	var dups []string
	for _, u := range p.Units {
		count[u.Name]++
		if count[u.Name] == 2 {
			dups = append(dups, u.Name)
		}
	}
	return dups
}
