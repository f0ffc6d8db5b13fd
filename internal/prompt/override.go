package prompt

import "github.com/dshills/veridoc/internal/project"

// Resolve returns the effective text for one channel (system prompt or
// instructions) given the unit's mode, the global text and the unit's text.
func Resolve(mode project.OverrideMode, global, local string) string {
	switch mode {
	case project.Override:
		return local
	case project.Append:
		switch {
		case global != "" && local != "":
			return global + "\n\n" + local
		case global != "":
			return global
		default:
			return local
		}
	default:
		return global
	}
}

// SystemPrompt returns the effective system prompt of u within p.
func SystemPrompt(u project.Unit, p *project.Project) string {
	return Resolve(u.EffectiveSystemPromptMode(), p.GlobalSystemPrompt, u.SystemPrompt)
}

// Instructions returns the effective instructions of u within p.
func Instructions(u project.Unit, p *project.Project) string {
	return Resolve(u.EffectiveInstructionsMode(), p.GlobalInstructions, u.Instructions)
}
