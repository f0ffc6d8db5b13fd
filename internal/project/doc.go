// Package project holds the verification data model: projects, their
// verification units, and the override-mode rules that decide how a unit's
// local prompt text combines with the project-wide defaults.
//
// Projects are persisted as JSON or YAML using the historical key names
// (project_name, verification_sections, ...). [Load] decodes and validates a
// project file; any problem is reported as a [*ConfigError] so callers can
// abort before a batch starts.
package project
