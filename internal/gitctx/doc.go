// Package gitctx runs the git operations that feed change-triggered
// verification: shallow clones of the documentation, frontend and backend
// repositories, the list of files changed between two revisions, and the
// repository metadata recorded with each run.
//
// All commands go through a [RunFunc] so tests can substitute a fake.
package gitctx
