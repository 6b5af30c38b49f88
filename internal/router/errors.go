package router

import "errors"

var (
	// ErrQueueFull is returned by Send when the destination's outbound queue is at capacity.
	ErrQueueFull = errors.New("outbound queue full")
	// ErrUnreachablePeer is returned by Send for a destination that was marked down.
	ErrUnreachablePeer = errors.New("unreachable peer")
	// ErrNodeUnreachable is the cause carried by Events when a peer is declared down.
	ErrNodeUnreachable = errors.New("node unreachable")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("router closed")
)
