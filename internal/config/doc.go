// Package config loads and merges veridoc configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (VERIDOC_PROVIDER, VERIDOC_MODEL, CR_MODE, etc.)
//  3. Config file ($XDG_CONFIG_HOME/veridoc/config.json)
//  4. Built-in defaults
//
// The process environment is read once, inside [Load], and kept on the
// [Config] as an [envsubst.Lookup] so later variable substitution and
// credential resolution never consult os.Getenv directly.
package config
