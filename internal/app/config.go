package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/config"
	"github.com/Anuj0x/Distributed-Scientific-Visualization/internal/report"
)

// ErrInvalidConfig marks failures caused by the user's input rather than by
// the execution: bad options, unreadable workflow files, workflows that do
// not build.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds everything an App needs to run.
type Config struct {
	// WorkflowPaths are HCL files or directories searched recursively.
	WorkflowPaths []string

	LogFormat       string
	LogLevel        string
	ReportFormat    string
	HealthcheckPort int
	// GUIAddr, when set, is where the socket.io front-end feed listens.
	GUIAddr string

	Options config.Options
}

// Validate checks the fields that do not depend on the workflow files.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.ReportFormat) {
	case "", report.FormatText, report.FormatJSON, report.FormatYAML:
	default:
		errs = append(errs, fmt.Errorf("unknown report format %q", c.ReportFormat))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.HealthcheckPort < 0 || c.HealthcheckPort > 65535 {
		errs = append(errs, fmt.Errorf("healthcheck port %d out of range", c.HealthcheckPort))
	}
	if err := c.Options.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
