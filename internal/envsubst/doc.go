// Package envsubst expands $NAME and ${NAME} tokens in configuration values.
//
// Expansion is driven by an explicit [Lookup] so that callers decide where
// variable values come from; the process environment is captured once by the
// config layer and handed in. Tokens that do not resolve are left verbatim,
// which makes expansion total: it never fails and never drops text.
package envsubst
