package search

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scored struct {
	id    string
	score float64
	seq   int
}

func lessScored(a, b scored) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.seq > b.seq
}

func TestTopKMatchesSortThenTruncate(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, k := range []int{1, 5, 20, 100} {
		var all []scored
		tk := NewTopK(k, lessScored)
		for i := 0; i < 500; i++ {
			s := scored{score: float64(rng.Intn(50)), seq: i}
			all = append(all, s)
			tk.Push(s)
		}

		sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
		want := all[:k]
		got := tk.Sorted()

		require.Len(t, got, k)
		for i := range want {
			assert.Equal(t, want[i].score, got[i].score, "k=%d position %d", k, i)
			assert.Equal(t, want[i].seq, got[i].seq, "ties must keep insertion order")
		}
	}
}

func TestTopKTiesFavorIncumbents(t *testing.T) {
	tk := NewTopK(2, lessScored)
	assert.True(t, tk.Push(scored{id: "a", score: 1, seq: 0}))
	assert.True(t, tk.Push(scored{id: "b", score: 1, seq: 1}))
	assert.False(t, tk.Push(scored{id: "c", score: 1, seq: 2}))

	ids := []string{}
	for _, s := range tk.Sorted() {
		ids = append(ids, s.id)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestTopKPeekAndFull(t *testing.T) {
	tk := NewTopK(3, func(a, b int) bool { return a < b })
	_, ok := tk.Peek()
	assert.False(t, ok)

	for _, v := range []int{5, 1, 9} {
		tk.Push(v)
	}
	assert.True(t, tk.Full())
	low, ok := tk.Peek()
	require.True(t, ok)
	assert.Equal(t, 1, low)

	assert.False(t, tk.Push(1))
	assert.True(t, tk.Push(7))
	low, _ = tk.Peek()
	assert.Equal(t, 5, low)
}

func TestTopKSortedRestoresState(t *testing.T) {
	tk := NewTopK(4, func(a, b int) bool { return a < b })
	for _, v := range []int{3, 8, 1, 6, 4} {
		tk.Push(v)
	}
	first := tk.Sorted()
	second := tk.Sorted()
	assert.Equal(t, []int{8, 6, 4, 3}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 4, tk.Len())

	tk.Push(10)
	assert.Equal(t, []int{10, 8, 6, 4}, tk.Sorted())
}

func TestTopKZeroCapacity(t *testing.T) {
	tk := NewTopK(0, func(a, b int) bool { return a < b })
	assert.False(t, tk.Push(1))
	assert.Empty(t, tk.Sorted())
}
