// Package dag is the dependency graph underneath a workflow. It knows nothing
// about modules or ports: vertices are ordered ids and an edge from a to b
// means b depends on a.
//
// Two traversals are provided. TopoSort runs Kahn's algorithm and breaks ties
// between simultaneously ready vertices by ascending id, so the order is
// deterministic. DetectCycles runs a depth-first search and reports the cycle
// it found as a path.
package dag
