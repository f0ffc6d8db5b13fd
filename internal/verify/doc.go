// Package verify runs batches of verification units against a model
// backend and writes one report per unit.
//
// A [Coordinator] drives every unit through the lifecycle
//
//	pending -> prompt_building -> ai_processing -> saving -> done
//
// or to failed from any step. Two disciplines are available: concurrent,
// where all units run at once (optionally bounded), and sequential, which
// visits units in request order and reports a running (current, total)
// counter. Both return the same [BatchResult]. A failure or panic in one
// unit is captured as that unit's failed [Outcome] and never affects the
// others; only configuration problems abort a batch, and they do so before
// any unit starts.
//
// Progress is published as [Event] values to a [Sink]. [ChannelSink]
// buffers events for a consumer goroutine and never blocks the coordinator
// for longer than its hand-off timeout.
package verify
