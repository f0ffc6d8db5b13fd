// Package cache stores model responses on disk so that re-running a
// verification against unchanged evidence does not call the backend again.
//
// Entries are keyed by a SHA-256 hash of the provider, model, sampling
// parameters and the full composed prompt, which already embeds every
// evidence file's (redacted) content. Each entry records its creation time;
// entries older than the TTL are treated as misses and removed on read.
//
// The default directory is $XDG_CACHE_HOME/veridoc or the platform
// equivalent.
package cache
