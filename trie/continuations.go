package trie

import (
	"slices"
)

type cnode struct {
	indices  []int
	children map[byte]*cnode
}

// ContinuationsVec answers continuation queries for a fixed list of
// continuations by walking the stored keys below a prefix through a trie of
// the continuations, instead of testing every continuation against the
// keys.
type ContinuationsVec[V any] struct {
	*Vec[V]

	root *cnode
	n    int
}

func NewContinuationsVec[V any](v *Vec[V], continuations [][]byte) *ContinuationsVec[V] {
	root := &cnode{}
	for i, c := range continuations {
		n := root
		for _, b := range c {
			if n.children == nil {
				n.children = make(map[byte]*cnode)
			}

			child, ok := n.children[b]
			if !ok {
				child = &cnode{}
				n.children[b] = child
			}
			n = child
		}
		n.indices = append(n.indices, i)
	}

	return &ContinuationsVec[V]{Vec: v, root: root, n: len(continuations)}
}

// ContinuationIndices returns the sorted indices of the continuations c for
// which prefix+c is a prefix of some stored key.
func (v *ContinuationsVec[V]) ContinuationIndices(prefix []byte) []int {
	left, right, ok := v.findRange(prefix, 0, len(v.data), 0)
	if !ok {
		return nil
	}

	seen := make([]bool, v.n)
	var indices []int
	add := func(n *cnode) {
		for _, i := range n.indices {
			if !seen[i] {
				seen[i] = true
				indices = append(indices, i)
			}
		}
	}

	for _, e := range v.data[left:right] {
		n := v.root
		add(n)
		for _, b := range e.key[len(prefix):] {
			if n = n.children[b]; n == nil {
				break
			}
			add(n)
		}
	}

	slices.Sort(indices)
	return indices
}
