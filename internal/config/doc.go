// Package config defines the format-agnostic configuration of the
// application: the execution Options, the workflow declaration Model and
// the Loader and Converter interfaces implemented by format packages such
// as internal/hcl.
//
// Options are layered, lowest to highest precedence: defaults, a YAML
// options file, .env files and VIZFLOW_* environment variables, and
// command-line flags.
package config
