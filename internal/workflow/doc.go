// Package workflow builds and validates the graph of module instances that
// an execution runs.
//
// A Builder is mutated by a single caller: AddModule creates instances with
// ascending ids, Connect wires an output port to an input port, and Build
// validates the whole graph and returns an immutable Workflow. Every Builder
// method is all-or-nothing: a rejected call leaves the builder exactly as it
// was.
package workflow
