// Package registry catalogs the module kinds a workflow can instantiate.
//
// Each kind is described by a Descriptor: its ordered input and output ports,
// the cty-typed parameter schema, and the Run entry point. Descriptors are
// immutable once registered. Registration is append-only; a hot reload is a
// Replace that appends the next version of a kind. Resolve always returns the
// newest version, while ResolveVersion lets running tasks stay pinned to the
// version they were started with.
//
// Built-in modules register themselves through the Module interface during
// application startup.
package registry
