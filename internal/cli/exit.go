package cli

import (
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/report"
)

// Process exit codes.
const (
	ExitOK              = 0
	ExitFailed          = 1
	ExitUsage           = 2
	ExitPartiallyFailed = 3
	ExitCancelled       = 4
)

// ExitError is an error that carries the process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode maps the overall status of an execution to an exit code.
func ExitCode(rep *report.Report) int {
	switch rep.Status {
	case report.StatusCompleted:
		return ExitOK
	case report.StatusPartiallyFailed:
		return ExitPartiallyFailed
	case report.StatusCancelled:
		return ExitCancelled
	}
	return ExitFailed
}
