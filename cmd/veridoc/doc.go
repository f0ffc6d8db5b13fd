// Veridoc is a CLI for verifying code against its documentation with LLM
// backends.
//
// A project file lists verification units, each naming the documentation,
// frontend and backend files that serve as its evidence. Veridoc composes a
// prompt per unit, sends it to the configured backend and writes one
// markdown report per unit, with deterministic exit codes suitable for CI
// gating and git hooks.
//
// Usage:
//
//	veridoc run -p veridoc.yaml                  # verify every unit
//	veridoc run -p veridoc.yaml -u "Login flow"  # verify one unit
//	veridoc affected -p veridoc.yaml -f docs/auth.md
//	veridoc cr --mode github_actions             # verify units touched by recent commits
//	veridoc watch -p veridoc.yaml                # re-verify on file changes
//	veridoc report show "Login flow" --render
package main
