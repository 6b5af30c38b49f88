package router

import "context"

// Transport moves encoded frames between ranks. Implementations must deliver
// frames from one sender to one destination in the order Send was called and
// must return an error wrapping ErrUnreachablePeer when the destination
// cannot be reached.
type Transport interface {
	// Rank is the rank this transport endpoint belongs to.
	Rank() int
	// Send delivers frame to dst.
	Send(ctx context.Context, dst int, frame []byte) error
	// Serve installs the handler for inbound frames. It does not block.
	Serve(handler func(frame []byte)) error
	Close() error
}
