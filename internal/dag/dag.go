package dag

import (
	"cmp"
	"container/heap"
	"fmt"
	"slices"
)

// New creates an empty graph.
func New[K cmp.Ordered]() *Graph[K] {
	return &Graph[K]{
		nodes: make(map[K]*node[K]),
	}
}

// AddNode adds a vertex. Adding an existing id does nothing.
func (g *Graph[K]) AddNode(id K) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &node[K]{
		id:         id,
		deps:       make(map[K]*node[K]),
		dependents: make(map[K]*node[K]),
	}
}

// AddEdge records that toID depends on fromID. Self edges are accepted and
// surface as cycles.
func (g *Graph[K]) AddEdge(fromID, toID K) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %v", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %v", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode
	return nil
}

// Len returns the number of vertices.
func (g *Graph[K]) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Nodes returns every id in ascending order.
func (g *Graph[K]) Nodes() []K {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	ids := make([]K, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Dependencies returns the ids id depends on, ascending.
func (g *Graph[K]) Dependencies(id K) ([]K, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %v", id)
	}
	return sortedKeys(n.deps), nil
}

// Dependents returns the ids that depend on id, ascending.
func (g *Graph[K]) Dependents(id K) ([]K, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %v", id)
	}
	return sortedKeys(n.dependents), nil
}

func sortedKeys[K cmp.Ordered](m map[K]*node[K]) []K {
	ids := make([]K, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// idHeap is a min-heap of ids.
type idHeap[K cmp.Ordered] []K

func (h idHeap[K]) Len() int           { return len(h) }
func (h idHeap[K]) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap[K]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap[K]) Push(x any)        { *h = append(*h, x.(K)) }
func (h *idHeap[K]) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// TopoSort returns every id in dependency order using Kahn's algorithm.
// Among vertices that are ready at the same time the smallest id goes first.
// A graph with a cycle yields a *CycleError.
func (g *Graph[K]) TopoSort() ([]K, error) {
	g.mutex.RLock()
	inDegree := make(map[K]int, len(g.nodes))
	ready := &idHeap[K]{}
	for id, n := range g.nodes {
		inDegree[id] = len(n.deps)
		if len(n.deps) == 0 {
			*ready = append(*ready, id)
		}
	}
	heap.Init(ready)

	order := make([]K, 0, len(g.nodes))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(K)
		order = append(order, id)
		for depID := range g.nodes[id].dependents {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				heap.Push(ready, depID)
			}
		}
	}
	complete := len(order) == len(g.nodes)
	g.mutex.RUnlock()

	if !complete {
		if err := g.DetectCycles(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("topological sort visited %d of %d nodes", len(order), len(g.nodes))
	}
	return order, nil
}

// DetectCycles returns a *CycleError for the first cycle found, visiting
// vertices in ascending id order, or nil for an acyclic graph.
func (g *Graph[K]) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// permanent: fully explored and not on a cycle.
	// temporary: on the current recursion stack.
	permanent := make(map[K]bool)
	temporary := make(map[K]bool)
	var stack []K

	var visit func(n *node[K]) error
	visit = func(n *node[K]) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			start := slices.Index(stack, n.id)
			path := append(slices.Clone(stack[start:]), n.id)
			return &CycleError[K]{Path: path}
		}

		temporary[n.id] = true
		stack = append(stack, n.id)
		for _, depID := range sortedKeys(n.dependents) {
			if err := visit(n.dependents[depID]); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		delete(temporary, n.id)
		permanent[n.id] = true
		return nil
	}

	for _, id := range sortedKeys(g.nodes) {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}
