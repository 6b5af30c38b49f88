package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownInstance      = errors.New("unknown instance")
	ErrUnknownPort          = errors.New("unknown port")
	ErrTypeMismatch         = errors.New("type mismatch")
	ErrPortAlreadyConnected = errors.New("port already connected")
	ErrCycleDetected        = errors.New("cycle detected")
	ErrUnboundRequiredInput = errors.New("unbound required input")
)

// Error carries the kind of a builder failure together with a readable
// message. errors.Is matches it against its Kind sentinel.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Kind.Error() + ": " + e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
