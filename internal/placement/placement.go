// Package placement decides which rank runs a task.
//
// The balancer picks the healthy rank with the fewest tasks in flight. Ties
// are broken by a cursor that advances past every chosen rank, so equally
// loaded ranks are used round-robin. Affinity placement honours a task's
// rank hint while that rank is healthy and falls back to the balancer.
package placement

import (
	"fmt"
	"strings"
	"sync"
)

// Policy selects how hints are treated.
type Policy string

const (
	RoundRobin Policy = "round_robin"
	Affinity   Policy = "affinity"
)

// ParsePolicy accepts "round_robin", "roundrobin", "RoundRobin" and
// "affinity" in any case.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "") {
	case "roundrobin", "":
		return RoundRobin, nil
	case "affinity":
		return Affinity, nil
	}
	return "", fmt.Errorf("unknown placement policy %q", s)
}

// NoRank is returned by Place when every rank is down.
const NoRank = -1

// Balancer tracks per-rank load. It is safe for concurrent use.
type Balancer struct {
	policy Policy

	mu       sync.Mutex
	ranks    int
	cursor   int
	inflight []int
	reported []int
	down     []bool
}

// New creates a balancer over ranks 0..ranks-1.
func New(policy Policy, ranks int) *Balancer {
	if ranks < 1 {
		ranks = 1
	}
	return &Balancer{
		policy:   policy,
		ranks:    ranks,
		inflight: make([]int, ranks),
		reported: make([]int, ranks),
		down:     make([]bool, ranks),
	}
}

// Policy returns the configured policy.
func (b *Balancer) Policy() Policy { return b.policy }

// Place chooses a rank for a task with the given hint (negative for none)
// and counts the task as in flight there.
func (b *Balancer) Place(hint int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	rank := NoRank
	if b.policy == Affinity && hint >= 0 && hint < b.ranks && !b.down[hint] {
		rank = hint
	} else {
		rank = b.leastLoaded()
	}
	if rank != NoRank {
		b.inflight[rank]++
	}
	return rank
}

func (b *Balancer) leastLoaded() int {
	best, bestDepth := NoRank, 0
	for i := 0; i < b.ranks; i++ {
		r := (b.cursor + i) % b.ranks
		if b.down[r] {
			continue
		}
		d := b.depth(r)
		if best == NoRank || d < bestDepth {
			best, bestDepth = r, d
		}
	}
	if best != NoRank {
		b.cursor = (best + 1) % b.ranks
	}
	return best
}

func (b *Balancer) depth(r int) int {
	return max(b.inflight[r], b.reported[r])
}

// Assign counts a task placed on rank by the caller.
func (b *Balancer) Assign(rank int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rank >= 0 && rank < b.ranks {
		b.inflight[rank]++
	}
}

// Done records that a task placed on rank finished.
func (b *Balancer) Done(rank int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rank >= 0 && rank < b.ranks && b.inflight[rank] > 0 {
		b.inflight[rank]--
	}
}

// Observe records a queue depth reported by the rank itself.
func (b *Balancer) Observe(rank, depth int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rank >= 0 && rank < b.ranks {
		b.reported[rank] = depth
	}
}

// MarkDown excludes rank from further placement.
func (b *Balancer) MarkDown(rank int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rank >= 0 && rank < b.ranks {
		b.down[rank] = true
		b.inflight[rank] = 0
	}
}

// Healthy reports whether rank can receive tasks.
func (b *Balancer) Healthy(rank int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return rank >= 0 && rank < b.ranks && !b.down[rank]
}

// Depth returns the load used for rank.
func (b *Balancer) Depth(rank int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rank < 0 || rank >= b.ranks {
		return 0
	}
	return b.depth(rank)
}
