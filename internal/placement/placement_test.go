package placement

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{
		"RoundRobin": RoundRobin, "round_robin": RoundRobin, "": RoundRobin, " Affinity ": Affinity,
	} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePolicy("random")
	assert.Error(t, err)
}

func TestBalancer(t *testing.T) {
	t.Run("equal load rotates", func(t *testing.T) {
		b := New(RoundRobin, 3)
		var got []int
		for i := 0; i < 6; i++ {
			got = append(got, b.Place(NoRank))
		}
		assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, got)
	})

	t.Run("least loaded wins", func(t *testing.T) {
		b := New(RoundRobin, 3)
		b.Place(NoRank) // 0
		b.Place(NoRank) // 1
		b.Place(NoRank) // 2
		b.Done(1)
		assert.Equal(t, 1, b.Place(NoRank))
	})

	t.Run("reported depth counts", func(t *testing.T) {
		b := New(RoundRobin, 2)
		b.Observe(0, 5)
		assert.Equal(t, 1, b.Place(NoRank))
		assert.Equal(t, 1, b.Place(NoRank))
		assert.Equal(t, 5, b.Depth(0))
	})

	t.Run("down ranks are skipped", func(t *testing.T) {
		b := New(RoundRobin, 3)
		b.MarkDown(1)
		assert.False(t, b.Healthy(1))
		assert.Equal(t, []int{0, 2, 0}, []int{b.Place(NoRank), b.Place(NoRank), b.Place(NoRank)})
	})

	t.Run("all down", func(t *testing.T) {
		b := New(RoundRobin, 1)
		b.MarkDown(0)
		assert.Equal(t, NoRank, b.Place(0))
	})

	t.Run("affinity honours healthy hint", func(t *testing.T) {
		b := New(Affinity, 3)
		assert.Equal(t, 2, b.Place(2))
		assert.Equal(t, 2, b.Place(2))
		b.MarkDown(2)
		assert.Equal(t, 0, b.Place(2))
		assert.Equal(t, 1, b.Place(7), "out of range hint falls back")
	})

	t.Run("round robin ignores hints", func(t *testing.T) {
		b := New(RoundRobin, 3)
		assert.Equal(t, 0, b.Place(2))
	})
}

// Without completions, n*k placements over n healthy ranks give every rank
// exactly k tasks.
func TestBalancerSpreadsEvenly(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("even spread", prop.ForAll(
		func(ranks, rounds int) bool {
			b := New(RoundRobin, ranks)
			counts := make([]int, ranks)
			for i := 0; i < ranks*rounds; i++ {
				counts[b.Place(NoRank)]++
			}
			for _, c := range counts {
				if c != rounds {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 16),
		gen.IntRange(1, 10),
	))

	properties.Property("chosen rank is never busier than another healthy rank", prop.ForAll(
		func(ranks int, ops []int) bool {
			b := New(RoundRobin, ranks)
			for _, op := range ops {
				if op%3 == 0 {
					b.Done(op % ranks)
					continue
				}
				before := make([]int, ranks)
				for r := range before {
					before[r] = b.Depth(r)
				}
				chosen := b.Place(NoRank)
				for r := range before {
					if before[r] < before[chosen] {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}

func TestAssignCountsAgainstRank(t *testing.T) {
	b := New(RoundRobin, 2)
	b.Assign(0)
	assert.Equal(t, 1, b.Depth(0))
	assert.Equal(t, 1, b.Place(NoRank))
	b.Done(0)
	b.Done(0)
	assert.Equal(t, 0, b.Depth(0))
}

func TestPartition1D(t *testing.T) {
	tests := []struct {
		name               string
		total, parts, part int
		want               Span
	}{
		{name: "even split", total: 12, parts: 3, part: 1, want: Span{Start: 4, Len: 4}},
		{name: "remainder goes to leading parts", total: 10, parts: 3, part: 0, want: Span{Start: 0, Len: 4}},
		{name: "after the remainder", total: 10, parts: 3, part: 2, want: Span{Start: 7, Len: 3}},
		{name: "more parts than items", total: 2, parts: 4, part: 3, want: Span{Start: 2, Len: 0}},
		{name: "part out of range", total: 8, parts: 2, part: 2, want: Span{Start: 8}},
		{name: "no parts", total: 8, parts: 0, part: 0, want: Span{Start: 8}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Partition1D(tc.total, tc.parts, tc.part))
		})
	}
}

// The spans of every part tile [0, total) in order and differ in length by
// at most one.
func TestPartition1DTiles(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("contiguous cover", prop.ForAll(
		func(total, parts int) bool {
			next, shortest, longest := 0, total, 0
			for part := 0; part < parts; part++ {
				s := Partition1D(total, parts, part)
				if s.Start != next {
					return false
				}
				next = s.End()
				shortest, longest = min(shortest, s.Len), max(longest, s.Len)
			}
			return next == total && longest-shortest <= 1
		},
		gen.IntRange(0, 1000),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
