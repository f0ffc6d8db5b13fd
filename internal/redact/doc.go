// Package redact scrubs secrets from evidence files before their contents
// are placed in a prompt bound for a model backend.
//
// A [Filter] applies two policies: files whose path matches one of the
// configured doublestar globs are replaced wholesale, and everything else is
// scanned line-agnostically with regex heuristics for common credential
// shapes (cloud keys, provider API keys, JWTs, private key headers, bearer
// tokens and quoted password assignments).
package redact
