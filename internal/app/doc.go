// Package app wires the engine together: it builds the logger and the module
// registry, loads and builds workflow files, starts the process group when
// execution is distributed, runs the workflow and writes its report. It is
// independent of the command line that drives it.
package app
