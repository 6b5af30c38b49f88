// Package cli is the vizflow command line. It parses flags into the
// application's configuration, drives the app and maps the outcome of an
// execution to a process exit code.
package cli
