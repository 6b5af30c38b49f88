package objstore

import "errors"

var (
	// ErrUnknownObject is returned when a handle id was never published.
	ErrUnknownObject = errors.New("unknown object")
	// ErrReleased is returned when a handle is used after its last reference was dropped.
	ErrReleased = errors.New("object already released")
	// ErrArenaFull is returned when publishing would exceed the arena capacity.
	ErrArenaFull = errors.New("arena capacity exceeded")
)
