package orchestrator

import "errors"

var (
	// ErrDeadlineExceeded is the cause recorded when Options.Deadline,
	// Options.TaskTimeout or a deadline on the caller's context fires.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
	// ErrCancelled is the cause recorded for an external cancel request.
	ErrCancelled = errors.New("execution cancelled")
	// ErrNoHealthyRank is raised when placement finds no rank to run on.
	ErrNoHealthyRank = errors.New("no healthy rank")
)
