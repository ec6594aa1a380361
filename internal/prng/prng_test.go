package prng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsDeterministic(t *testing.T) {
	a := New("session-1", "page-1", "", "q-1", "")
	b := New("session-1", "page-1", "", "q-1", "")

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestNewDiffersBySession(t *testing.T) {
	a := New("session-1", "page-1", "", "q-1", "")
	b := New("session-2", "page-1", "", "q-1", "")

	assert.NotEqual(t, a.Next(), b.Next())
}

func TestShuffleOrderIsAPermutation(t *testing.T) {
	s := New("s", "p", "", "", "")
	order := s.ShuffleOrder(5)

	assert.Len(t, order, 5)
	seen := map[int]bool{}
	for _, v := range order {
		assert.False(t, seen[v], "duplicate index in permutation")
		seen[v] = true
	}
}

func TestShuffleOrderStableAcrossCalls(t *testing.T) {
	a := New("sess", "page", "group", "question", "bucket").ShuffleOrder(8)
	b := New("sess", "page", "group", "question", "bucket").ShuffleOrder(8)
	assert.Equal(t, a, b)
}

func TestWeightedOrderDescendingStable(t *testing.T) {
	weights := []float64{1, 3, 3, 0, 2}
	order := WeightedOrder(len(weights), func(i int) float64 { return weights[i] })

	// Descending by weight; ties (index 1 vs 2, both weight 3) keep original order.
	assert.Equal(t, []int{1, 2, 4, 0, 3}, order)
}

func TestSampleWithoutReplacementDistinct(t *testing.T) {
	s := New("s", "p", "", "", "")
	sample := s.SampleWithoutReplacement(10, 4)
	assert.Len(t, sample, 4)
	seen := map[int]bool{}
	for _, v := range sample {
		assert.False(t, seen[v])
		seen[v] = true
		assert.True(t, v >= 0 && v < 10)
	}
}

func TestSampleWithoutReplacementCapsAtN(t *testing.T) {
	s := New("s", "p", "", "", "")
	sample := s.SampleWithoutReplacement(3, 10)
	assert.Len(t, sample, 3)
}
