package task

import (
	"errors"
	"fmt"
)

// ErrModule is matched by every failure reported by a module's run function.
var ErrModule = errors.New("module error")

// ErrInvalidTransition is returned when a state change is not allowed.
var ErrInvalidTransition = errors.New("invalid task state transition")

// ModuleError is a failure raised while running a module instance.
type ModuleError struct {
	Instance string
	Kind     string
	Cause    error
}

// NewModuleError wraps cause for the given instance label and module kind.
func NewModuleError(instance, kind string, cause error) *ModuleError {
	return &ModuleError{Instance: instance, Kind: kind, Cause: cause}
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s (%s) failed: %v", e.Instance, e.Kind, e.Cause)
}

func (e *ModuleError) Unwrap() []error {
	return []error{ErrModule, e.Cause}
}

// Cause returns the message that originated a failure: the module's own
// error for a ModuleError, otherwise err itself.
func Cause(err error) string {
	if err == nil {
		return ""
	}
	var me *ModuleError
	if errors.As(err, &me) && me.Cause != nil {
		return me.Cause.Error()
	}
	return err.Error()
}
