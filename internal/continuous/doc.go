// Package continuous implements change-triggered verification for CI
// pipelines and git hooks.
//
// A run resolves the documentation, frontend and backend roots (cloning
// remote repositories into a scratch workspace outside local mode), works
// out which units the changed files touch, verifies them with the
// sequential discipline and optionally publishes the results.
package continuous
