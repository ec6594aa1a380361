package resolve

import (
	"sort"

	"github.com/surveyrt/runtime/internal/models"
	"github.com/surveyrt/runtime/internal/prng"
)

// order returns a permutation of [0,n) per spec.md §4.4's four ordering
// modes. seedParts seeds the PRNG per spec.md §4.2's
// (sessionId, pageId, groupId, questionId, bucket) tuple; callers pass the
// applicable prefix and this package appends a bucket suffix to keep
// group-order, question-order, and option-order shuffles independent even
// when they share the same page/group/question seed components.
func order(mode models.OrderMode, n int, seedParts []string, weightOf func(i int) float64, groupKeyOf func(i int) string, indexOf func(i int) int) []int {
	if n == 0 {
		return nil
	}
	switch mode {
	case models.OrderRandom:
		return prng.New(seedParts...).ShuffleOrder(n)
	case models.OrderWeighted:
		return prng.WeightedOrder(n, weightOf)
	case models.OrderGroupRandom:
		return groupRandomOrder(n, seedParts, groupKeyOf)
	default: // SEQUENTIAL and anything unrecognized
		return sequentialOrder(n, indexOf)
	}
}

// sequentialOrder sorts by the model's own index field rather than
// trusting the caller's slice to already be index-ordered, the same
// defense WeightedOrder applies for the WEIGHTED mode.
func sequentialOrder(n int, indexOf func(i int) int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return indexOf(idx[a]) < indexOf(idx[b])
	})
	return idx
}

func groupRandomOrder(n int, seedParts []string, groupKeyOf func(i int) string) []int {
	partitions := map[string][]int{}
	var keyOrder []string
	for i := 0; i < n; i++ {
		key := groupKeyOf(i)
		if _, ok := partitions[key]; !ok {
			keyOrder = append(keyOrder, key)
		}
		partitions[key] = append(partitions[key], i)
	}

	partitionSeed := append(append([]string{}, seedParts...), "partitions")
	shuffledKeyIdx := prng.New(partitionSeed...).ShuffleOrder(len(keyOrder))

	out := make([]int, 0, n)
	for _, ki := range shuffledKeyIdx {
		key := keyOrder[ki]
		members := partitions[key]
		seed := append(append([]string{}, seedParts...), "group", key)
		shuffled := prng.New(seed...).ShuffleOrder(len(members))
		for _, mi := range shuffled {
			out = append(out, members[mi])
		}
	}
	return out
}
