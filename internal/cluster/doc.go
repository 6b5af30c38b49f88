// Package cluster starts the process group an execution is distributed
// over. Rank 0 is the coordinator and is driven by the orchestrator; every
// other rank runs a Worker that accepts TaskAssign envelopes, runs them on
// its own executor pool and answers with ObjectHandlePublish and TaskResult
// envelopes.
//
// All ranks live in this process and share one object arena. Frames travel
// over the configured transport, so the message protocol is exercised end to
// end even though object bytes never leave memory.
package cluster
