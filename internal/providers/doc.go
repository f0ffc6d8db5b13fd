// Package providers implements the model backends a verification run can
// send prompts to.
//
// The set of providers is closed: OpenAI, LM Studio (OpenAI-compatible),
// Ollama, Google Gemini (through the genai SDK) and Anthropic. Every backend
// satisfies [Backend]; those that can deliver output incrementally also
// satisfy [Streamer]. [New] is the only place that switches on the provider
// identifier.
//
// Backends receive the composed prompt as a single document and use
// prompt.SplitSystemPrompt to move the system framing into the vendor's
// system channel. All configuration, credentials included, arrives through
// [Config]; nothing here reads the environment.
//
// HTTP backends share a retry helper with exponential back-off for rate
// limits and server errors. Authentication failures are never retried and
// can be detected with [IsAuthError].
package providers
