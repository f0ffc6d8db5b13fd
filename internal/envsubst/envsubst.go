package envsubst

import (
	"regexp"
	"sort"
	"strings"
)

// Lookup returns the value of a variable and whether it is set.
type Lookup func(name string) (string, bool)

var tokenRe = regexp.MustCompile(`\$(\w+|\{[^}]+\})`)

// FromMap builds a Lookup over a fixed set of variables.
func FromMap(vars map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

// FromEnviron builds a Lookup from "KEY=value" pairs as returned by os.Environ.
func FromEnviron(environ []string) Lookup {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = v
	}
	return FromMap(vars)
}

// String expands every resolvable token in s.
func String(s string, lookup Lookup) string {
	if lookup == nil || !strings.Contains(s, "$") {
		return s
	}
	return tokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		if v, ok := lookup(tokenName(tok)); ok {
			return v
		}
		return tok
	})
}

// Value expands strings inside arbitrarily nested maps and slices as
// produced by JSON or YAML decoding. Other values are returned unchanged.
func Value(v any, lookup Lookup) any {
	switch t := v.(type) {
	case string:
		return String(t, lookup)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Value(val, lookup)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Value(val, lookup)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, val := range t {
			out[i] = String(val, lookup)
		}
		return out
	default:
		return v
	}
}

// Missing lists the distinct variable names referenced in s that lookup
// cannot resolve, sorted.
func Missing(s string, lookup Lookup) []string {
	seen := make(map[string]bool)
	for _, tok := range tokenRe.FindAllString(s, -1) {
		name := tokenName(tok)
		if lookup != nil {
			if _, ok := lookup(name); ok {
				continue
			}
		}
		seen[name] = true
	}
	if len(seen) == 0 {
		return nil
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func tokenName(tok string) string {
	name := strings.TrimPrefix(tok, "$")
	if strings.HasPrefix(name, "{") {
		name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
	}
	return name
}
