package prompt

import "strings"

// WithSystemPrompt prefixes body with a system-prompt block in the same
// format Compose uses. An empty system returns body unchanged.
func WithSystemPrompt(system, body string) string {
	if system == "" {
		return body
	}
	return SystemMarker + "\n" + system + "\n\n" + body
}

// SplitSystemPrompt separates a composed prompt into its system framing and
// the remaining user content. A prompt without the marker yields an empty
// system and the whole prompt as content.
//
// The system block ends at the first blank line after the marker. If a
// section header appears before any blank line, the block ends at that
// header instead.
func SplitSystemPrompt(p string) (system, user string) {
	start := SystemMarker + "\n"
	if !strings.HasPrefix(p, start) {
		return "", p
	}
	rest := p[len(start):]

	blank := strings.Index(rest, "\n\n")
	header := firstHeader(rest)

	switch {
	case blank >= 0 && (header < 0 || blank < header):
		return strings.TrimSpace(rest[:blank]), strings.TrimSpace(rest[blank+2:])
	case header >= 0:
		return strings.TrimSpace(rest[:header]), strings.TrimSpace(rest[header+1:])
	default:
		return "", p
	}
}

// firstHeader returns the offset of the newline preceding the earliest
// section header in s, or -1.
func firstHeader(s string) int {
	best := -1
	for _, h := range []string{DocumentationHeader, FrontendHeader, BackendHeader, InstructionsHeader} {
		if i := strings.Index(s, "\n"+h); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}
