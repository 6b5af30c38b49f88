// Package orchestrator executes a built workflow.
//
// One event loop per execution owns all bookkeeping. It keeps a frontier of
// Ready instances ordered by the workflow's canonical order, places each on
// a rank, and reacts to local pool callbacks, TaskResult envelopes from
// worker ranks, unreachable-peer events and cancellation. A task whose
// required input was never produced is Skipped, which cascades to its own
// dependents; independent branches keep running.
//
// The execution owns one reference to every object a task publishes. Each
// consuming connection takes its own reference when the producer completes
// and gives it back when the consumer reaches a terminal state. Objects
// nobody consumes are handed to Options.OnOutput and released when the
// report is built, so the arena holds nothing of an execution once Execute
// returns.
package orchestrator
