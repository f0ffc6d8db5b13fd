// Package cli wires together the Cobra command tree for the veridoc binary.
//
// It defines the root command and all subcommands (run, affected, cr, watch,
// publish, report, history, cache, config, providers, hook, version), binds
// flags, loads configuration, builds the verification coordinator and maps
// outcomes to deterministic exit codes for CI gating.
package cli
