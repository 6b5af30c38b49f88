package registry

import "errors"

var (
	// ErrUnknownKind is returned when resolving a kind that was never registered.
	ErrUnknownKind = errors.New("unknown module kind")
	// ErrDuplicateKind is returned when registering a kind name twice.
	ErrDuplicateKind = errors.New("duplicate module kind")
	// ErrInvalidParam is returned when a parameter value does not satisfy its schema.
	ErrInvalidParam = errors.New("invalid parameter")
)
