// Package prompt turns a verification unit into the single prompt document
// sent to a model backend, and parses such a document back into its system
// framing and user content.
//
// Composition has three layers. [Resolve] applies a unit's override mode to
// the project-wide system prompt and instructions. A [Locator] resolves each
// evidence reference against its category root into an ordered file list.
// A [Composer] renders everything in fixed order:
//
//	SYSTEM PROMPT:        (optional)
//	DOCUMENTATION FILES:
//	FRONTEND CODE FILES:
//	BACKEND CODE FILES:
//	INSTRUCTIONS:         (optional)
//
// Output is deterministic for an unchanged filesystem. Missing evidence and
// unreadable files become inline placeholders and never abort composition.
package prompt
