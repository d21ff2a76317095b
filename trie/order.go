package trie

import (
	"bytes"
	"slices"
)

// OptimizedPrefixOrder sorts the indices of continuations by their bytes.
// skips[i] is the number of entries directly following position i in that
// order which extend continuations[permutation[i]]. If a continuation is
// rejected by a prefix-closed test, those entries can be skipped.
func OptimizedPrefixOrder(continuations [][]byte) (permutation, skips []int) {
	permutation = make([]int, len(continuations))
	for i := range permutation {
		permutation[i] = i
	}

	slices.SortStableFunc(permutation, func(a, b int) int {
		return bytes.Compare(continuations[a], continuations[b])
	})

	skips = make([]int, len(continuations))
	for i, j := range permutation {
		for next := i + 1; next < len(permutation); next++ {
			if !bytes.HasPrefix(continuations[permutation[next]], continuations[j]) {
				break
			}
			skips[i]++
		}
	}

	return permutation, skips
}
