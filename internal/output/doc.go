// Package output formats batch results and run progress for terminals and
// machines.
//
// Three result formats are supported:
//   - text: a styled per-unit summary (default)
//   - json: the full batch result
//   - markdown: a summary table suitable for CI job summaries
//
// Use [GetWriter] to obtain a [Writer] for a format string. [Progress] is a
// [verify.Sink] that prints lifecycle events as they happen, and
// [RenderMarkdown] renders a saved report for the terminal.
package output
