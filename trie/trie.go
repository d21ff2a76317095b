// Package trie implements byte-keyed associative containers with prefix
// and continuation queries: an adaptive radix trie, a patricia trie and a
// sorted vector.
package trie

import (
	"context"
	"iter"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
)

// PathEntry is a stored value whose key is a prefix of a queried key,
// together with the length of that key.
type PathEntry[V any] struct {
	Depth int
	Value V
}

type PrefixSearch[V any] interface {
	// Insert stores value under key and returns the value it replaced.
	Insert(key []byte, value V) (V, bool)
	Delete(key []byte) (V, bool)
	Get(key []byte) (V, bool)

	// ContainsPrefix reports whether some stored key starts with prefix.
	ContainsPrefix(prefix []byte) bool

	// Path returns the values of all stored keys that are prefixes of key,
	// ordered by length.
	Path(key []byte) []PathEntry[V]

	Len() int
}

type ContinuationSearch[V any] interface {
	PrefixSearch[V]

	// Continuations yields the suffixes after prefix of all stored keys
	// starting with prefix, in key order.
	Continuations(prefix []byte) iter.Seq2[[]byte, V]

	ContainsContinuation(prefix, continuation []byte) bool

	// ContainsContinuations returns the sorted indices of the continuations
	// c for which prefix+c is a prefix of some stored key.
	ContainsContinuations(prefix []byte, continuations [][]byte) []int

	// ContainsContinuationsOptimized is like ContainsContinuations but walks
	// the continuations in the order given by OptimizedPrefixOrder and
	// skips extensions of rejected continuations.
	ContainsContinuationsOptimized(prefix []byte, continuations [][]byte, permutation, skips []int) []int

	Stats() Stats
}

var (
	_ ContinuationSearch[int] = (*ART[int])(nil)
	_ ContinuationSearch[int] = (*Patricia[int])(nil)
	_ ContinuationSearch[int] = (*Vec[int])(nil)
)

// Fill inserts all entries of seq into t.
func Fill[V any](t PrefixSearch[V], seq iter.Seq2[[]byte, V]) {
	for k, v := range seq {
		t.Insert(k, v)
	}
}

// walkOptimized visits continuations in permutation order, skipping the
// extensions of every continuation rejected by ok.
func walkOptimized(continuations [][]byte, permutation, skips []int, ok func([]byte) bool) []int {
	if len(permutation) != len(continuations) || len(skips) != len(continuations) {
		panic("trie: permutation and skips must match the continuations")
	}

	var indices []int
	for i := 0; i < len(permutation); i++ {
		j := permutation[i]
		if ok(continuations[j]) {
			indices = append(indices, j)
		} else {
			i += skips[i]
		}
	}

	slices.Sort(indices)
	return indices
}

func walkAll(continuations [][]byte, ok func([]byte) bool) []int {
	var indices []int
	for i, c := range continuations {
		if ok(c) {
			indices = append(indices, i)
		}
	}
	return indices
}

func BatchContainsContinuations[V any](t ContinuationSearch[V], prefixes, continuations [][]byte) [][]int {
	results := make([][]int, len(prefixes))
	for i, prefix := range prefixes {
		results[i] = t.ContainsContinuations(prefix, continuations)
	}
	return results
}

func BatchContainsContinuationsOptimized[V any](t ContinuationSearch[V], prefixes, continuations [][]byte, permutation, skips []int) [][]int {
	results := make([][]int, len(prefixes))
	for i, prefix := range prefixes {
		results[i] = t.ContainsContinuationsOptimized(prefix, continuations, permutation, skips)
	}
	return results
}

// BatchContainsContinuationsParallel answers one optimized continuation
// query per prefix, running at most limit queries at a time. A limit <= 0
// uses GOMAXPROCS.
func BatchContainsContinuationsParallel[V any](ctx context.Context, t ContinuationSearch[V], prefixes, continuations [][]byte, permutation, skips []int, limit int) ([][]int, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([][]int, len(prefixes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, prefix := range prefixes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			results[i] = t.ContainsContinuationsOptimized(prefix, continuations, permutation, skips)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// ContinuationTrie binds a trie to a fixed list of continuations.
type ContinuationTrie[V any] struct {
	trie          ContinuationSearch[V]
	continuations [][]byte
	permutation   []int
	skips         []int
}

func NewContinuationTrie[V any](t ContinuationSearch[V], continuations [][]byte) *ContinuationTrie[V] {
	permutation, skips := OptimizedPrefixOrder(continuations)
	return &ContinuationTrie[V]{
		trie:          t,
		continuations: continuations,
		permutation:   permutation,
		skips:         skips,
	}
}

func (c *ContinuationTrie[V]) Trie() ContinuationSearch[V] {
	return c.trie
}

func (c *ContinuationTrie[V]) Continuations() [][]byte {
	return c.continuations
}

// ContinuationIndices returns the sorted indices of the continuations that
// can follow prefix.
func (c *ContinuationTrie[V]) ContinuationIndices(prefix []byte) []int {
	return c.trie.ContainsContinuationsOptimized(prefix, c.continuations, c.permutation, c.skips)
}

func (c *ContinuationTrie[V]) BatchContinuationIndices(ctx context.Context, prefixes [][]byte, limit int) ([][]int, error) {
	return BatchContainsContinuationsParallel(ctx, c.trie, prefixes, c.continuations, c.permutation, c.skips, limit)
}
