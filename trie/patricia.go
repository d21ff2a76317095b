package trie

import (
	"bytes"
	"iter"
	"slices"
)

type pnode[V any] struct {
	prefix   []byte
	children *[256]*pnode[V]
	num      int

	value    V
	terminal bool
}

func (n *pnode[V]) child(b byte) *pnode[V] {
	if n.children == nil {
		return nil
	}
	return n.children[b]
}

func (n *pnode[V]) setChild(b byte, c *pnode[V]) {
	if n.children == nil {
		n.children = new([256]*pnode[V])
	}
	if n.children[b] == nil {
		n.num++
	}
	n.children[b] = c
}

func (n *pnode[V]) removeChild(b byte) {
	if n.child(b) == nil {
		return
	}
	n.children[b] = nil
	n.num--
	if n.num == 0 {
		n.children = nil
	}
}

// merge folds the only child of a non-terminal node into it.
func (n *pnode[V]) merge() {
	if n.terminal || n.num != 1 {
		return
	}

	for b, c := range n.children {
		if c == nil {
			continue
		}

		prefix := make([]byte, 0, len(n.prefix)+1+len(c.prefix))
		prefix = append(prefix, n.prefix...)
		prefix = append(prefix, byte(b))
		prefix = append(prefix, c.prefix...)

		*n = *c
		n.prefix = prefix
		return
	}
}

// Patricia is a path-compressed trie with 256 child slots per inner node.
// Values live on the nodes themselves, so keys may contain any byte.
type Patricia[V any] struct {
	root *pnode[V]
	size int
}

func NewPatricia[V any]() *Patricia[V] {
	return &Patricia[V]{root: &pnode[V]{}}
}

func (t *Patricia[V]) Len() int {
	return t.size
}

func (t *Patricia[V]) rootNode() *pnode[V] {
	if t.root == nil {
		t.root = &pnode[V]{}
	}
	return t.root
}

func (t *Patricia[V]) Insert(key []byte, value V) (V, bool) {
	n := t.rootNode()
	for len(key) > 0 {
		b := key[0]
		c := n.child(b)
		if c == nil {
			n.setChild(b, &pnode[V]{prefix: slices.Clone(key[1:]), value: value, terminal: true})
			t.size++
			var zero V
			return zero, false
		}

		p := commonPrefix(c.prefix, key[1:])
		if p < len(c.prefix) {
			mid := &pnode[V]{prefix: slices.Clone(c.prefix[:p])}
			split := c.prefix[p]
			c.prefix = c.prefix[p+1:]
			mid.setChild(split, c)
			n.children[b] = mid
			c = mid
		}

		n, key = c, key[1+p:]
	}

	old, replaced := n.value, n.terminal
	n.value, n.terminal = value, true
	if !replaced {
		t.size++
	}
	return old, replaced
}

func (t *Patricia[V]) Delete(key []byte) (V, bool) {
	var zero V
	if t.root == nil {
		return zero, false
	}

	var parents []*pnode[V]
	var edges []byte

	n := t.root
	for len(key) > 0 {
		c := n.child(key[0])
		if c == nil || !bytes.HasPrefix(key[1:], c.prefix) {
			return zero, false
		}

		parents = append(parents, n)
		edges = append(edges, key[0])
		n, key = c, key[1+len(c.prefix):]
	}

	if !n.terminal {
		return zero, false
	}

	value := n.value
	n.value, n.terminal = zero, false
	t.size--

	if len(parents) == 0 {
		return value, true
	}

	parent := parents[len(parents)-1]
	switch n.num {
	case 0:
		parent.removeChild(edges[len(edges)-1])
		if len(parents) > 1 {
			parent.merge()
		}
	case 1:
		n.merge()
	}

	return value, true
}

func (t *Patricia[V]) find(key []byte) *pnode[V] {
	n := t.root
	for n != nil && len(key) > 0 {
		c := n.child(key[0])
		if c == nil || !bytes.HasPrefix(key[1:], c.prefix) {
			return nil
		}
		n, key = c, key[1+len(c.prefix):]
	}
	return n
}

func (t *Patricia[V]) Get(key []byte) (V, bool) {
	if n := t.find(key); n != nil && n.terminal {
		return n.value, true
	}

	var zero V
	return zero, false
}

func (n *pnode[V]) descend(off int, key []byte) (*pnode[V], int, bool) {
	for {
		rest := n.prefix[off:]
		if len(key) <= len(rest) {
			return n, off + len(key), bytes.HasPrefix(rest, key)
		}

		if !bytes.HasPrefix(key, rest) {
			return nil, 0, false
		}

		key = key[len(rest):]
		c := n.child(key[0])
		if c == nil {
			return nil, 0, false
		}

		n, off, key = c, 0, key[1:]
	}
}

func (t *Patricia[V]) ContainsPrefix(prefix []byte) bool {
	if t.size == 0 {
		return false
	}

	_, _, ok := t.root.descend(0, prefix)
	return ok
}

func (t *Patricia[V]) Path(key []byte) []PathEntry[V] {
	var path []PathEntry[V]
	if t.root == nil {
		return path
	}

	n, depth := t.root, 0
	for {
		if n.terminal {
			path = append(path, PathEntry[V]{Depth: depth, Value: n.value})
		}

		if depth == len(key) {
			return path
		}

		c := n.child(key[depth])
		if c == nil || !bytes.HasPrefix(key[depth+1:], c.prefix) {
			return path
		}

		n, depth = c, depth+1+len(c.prefix)
	}
}

func (t *Patricia[V]) Continuations(prefix []byte) iter.Seq2[[]byte, V] {
	return func(yield func([]byte, V) bool) {
		if t.size == 0 {
			return
		}

		n, off, ok := t.root.descend(0, prefix)
		if !ok {
			return
		}

		n.walk(slices.Clone(n.prefix[off:]), yield)
	}
}

func (n *pnode[V]) walk(path []byte, yield func([]byte, V) bool) bool {
	if n.terminal && !yield(slices.Clone(path), n.value) {
		return false
	}

	if n.children == nil {
		return true
	}

	for b, c := range n.children {
		if c == nil {
			continue
		}

		next := make([]byte, 0, len(path)+1+len(c.prefix))
		next = append(next, path...)
		next = append(next, byte(b))
		next = append(next, c.prefix...)
		if !c.walk(next, yield) {
			return false
		}
	}
	return true
}

func (t *Patricia[V]) ContainsContinuation(prefix, continuation []byte) bool {
	key := make([]byte, 0, len(prefix)+len(continuation))
	key = append(key, prefix...)
	key = append(key, continuation...)
	return t.ContainsPrefix(key)
}

func (t *Patricia[V]) ContainsContinuations(prefix []byte, continuations [][]byte) []int {
	if t.size == 0 {
		return nil
	}

	n, off, ok := t.root.descend(0, prefix)
	if !ok {
		return nil
	}

	return walkAll(continuations, func(c []byte) bool {
		_, _, ok := n.descend(off, c)
		return ok
	})
}

func (t *Patricia[V]) ContainsContinuationsOptimized(prefix []byte, continuations [][]byte, permutation, skips []int) []int {
	if t.size == 0 {
		return nil
	}

	n, off, ok := t.root.descend(0, prefix)
	if !ok {
		return nil
	}

	return walkOptimized(continuations, permutation, skips, func(c []byte) bool {
		_, _, ok := n.descend(off, c)
		return ok
	})
}

func (t *Patricia[V]) Stats() Stats {
	stats := Stats{Keys: t.size, Kinds: make(map[string]KindStats)}
	if t.root == nil {
		return stats
	}

	type item struct {
		n     *pnode[V]
		depth int
	}

	var depths int
	stack := []item{{t.root, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		stats.Nodes++
		stats.MaxDepth = max(stats.MaxDepth, it.depth)
		depths += it.depth

		name := "inner"
		if it.n.num == 0 {
			name = "leaf"
		}
		ks := stats.Kinds[name]
		ks.Count++
		ks.PrefixBytes += len(it.n.prefix)
		stats.Kinds[name] = ks

		if it.n.children == nil {
			continue
		}
		for _, c := range it.n.children {
			if c != nil {
				stack = append(stack, item{c, it.depth + 1})
			}
		}
	}

	stats.AvgDepth = float64(depths) / float64(stats.Nodes)
	return stats
}
