package orchestrator

import "container/heap"

// frontier holds Ready nodes, smallest canonical position first.
type frontier []*node

func (f frontier) Len() int           { return len(f) }
func (f frontier) Less(i, j int) bool { return f[i].position < f[j].position }
func (f frontier) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)        { *f = append(*f, x.(*node)) }
func (f *frontier) Pop() any {
	old := *f
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*f = old[:len(old)-1]
	return n
}

func (f *frontier) add(n *node) { heap.Push(f, n) }
func (f *frontier) next() *node { return heap.Pop(f).(*node) }
