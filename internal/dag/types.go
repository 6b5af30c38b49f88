package dag

import (
	"cmp"
	"fmt"
	"strings"
	"sync"
)

// Graph is a set of vertices and their dependencies. All operations are
// safe for concurrent use.
type Graph[K cmp.Ordered] struct {
	// mutex protects nodes.
	mutex sync.RWMutex
	// nodes stores every vertex, keyed by id.
	nodes map[K]*node[K]
}

// node is un-exported so callers go through the id-based API.
type node[K cmp.Ordered] struct {
	id K
	// deps holds predecessors.
	deps map[K]*node[K]
	// dependents holds successors.
	dependents map[K]*node[K]
}

// CycleError reports a cycle as the vertices along it, starting and ending
// with the same id.
type CycleError[K cmp.Ordered] struct {
	Path []K
}

func (e *CycleError[K]) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = fmt.Sprint(id)
	}
	return "cycle detected: " + strings.Join(parts, " -> ")
}
