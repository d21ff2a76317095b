package trie

import (
	"bytes"
	"iter"
	"slices"
)

// ART is an adaptive radix trie. Keys are stored with a terminating zero
// byte, so zero bytes inside keys are dropped: "a\x00b" and "ab" are the
// same key.
type ART[V any] struct {
	root *node[V]
	size int
}

func NewART[V any]() *ART[V] {
	return &ART[V]{}
}

func stripZeros(key []byte) []byte {
	if bytes.IndexByte(key, 0) < 0 {
		return key
	}

	out := make([]byte, 0, len(key))
	for _, b := range key {
		if b != 0 {
			out = append(out, b)
		}
	}
	return out
}

func terminate(key []byte) []byte {
	key = stripZeros(key)
	out := make([]byte, len(key)+1)
	copy(out, key)
	return out
}

func commonPrefix(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func (t *ART[V]) Len() int {
	return t.size
}

func (t *ART[V]) Insert(key []byte, value V) (V, bool) {
	k := terminate(key)
	if t.root == nil {
		t.root = newLeaf(k, value)
		t.size++
		var zero V
		return zero, false
	}

	old, replaced := t.insert(&t.root, k, value)
	if !replaced {
		t.size++
	}
	return old, replaced
}

func (t *ART[V]) insert(ref **node[V], key []byte, value V) (V, bool) {
	var zero V
	for {
		n := *ref
		p := commonPrefix(n.prefix, key)

		if p < len(n.prefix) {
			// key diverges inside the prefix, split it
			inner := newInner[V](n.prefix[:p])
			split := n.prefix[p]
			n.prefix = n.prefix[p+1:]
			inner.addChild(split, n)
			inner.addChild(key[p], newLeaf(key[p+1:], value))
			*ref = inner
			return zero, false
		}

		if n.isLeaf() {
			// both end in the terminator, so they are equal
			old := n.value
			n.value = value
			return old, true
		}

		b := key[p]
		i := n.slot(b)
		if i < 0 {
			n.addChild(b, newLeaf(key[p+1:], value))
			return zero, false
		}

		ref, key = &n.children[i], key[p+1:]
	}
}

func (t *ART[V]) Delete(key []byte) (V, bool) {
	var zero V
	if t.root == nil {
		return zero, false
	}

	k := terminate(key)
	if t.root.isLeaf() {
		if !bytes.Equal(t.root.prefix, k) {
			return zero, false
		}

		value := t.root.value
		t.root = nil
		t.size--
		return value, true
	}

	n := t.root
	for {
		if !bytes.HasPrefix(k, n.prefix) || len(k) == len(n.prefix) {
			return zero, false
		}

		b := k[len(n.prefix)]
		k = k[len(n.prefix)+1:]

		child := n.child(b)
		if child == nil {
			return zero, false
		}

		if child.isLeaf() {
			if !bytes.Equal(child.prefix, k) {
				return zero, false
			}

			n.removeChild(b)
			n.merge()
			t.size--
			return child.value, true
		}

		n = child
	}
}

func (t *ART[V]) Get(key []byte) (V, bool) {
	var zero V
	k := terminate(key)
	n := t.root
	for n != nil {
		if !bytes.HasPrefix(k, n.prefix) {
			return zero, false
		}

		if n.isLeaf() {
			if len(k) == len(n.prefix) {
				return n.value, true
			}
			return zero, false
		}

		k = k[len(n.prefix):]
		if len(k) == 0 {
			return zero, false
		}

		n, k = n.child(k[0]), k[1:]
	}
	return zero, false
}

// descend follows key from offset off into the prefix of n. It returns the
// node and offset at which key is used up.
func (n *node[V]) descend(off int, key []byte) (*node[V], int, bool) {
	for {
		rest := n.prefix[off:]
		if len(key) <= len(rest) {
			return n, off + len(key), bytes.HasPrefix(rest, key)
		}

		if n.isLeaf() || !bytes.HasPrefix(key, rest) {
			return nil, 0, false
		}

		key = key[len(rest):]
		child := n.child(key[0])
		if child == nil {
			return nil, 0, false
		}

		n, off, key = child, 0, key[1:]
	}
}

func (t *ART[V]) ContainsPrefix(prefix []byte) bool {
	if t.root == nil {
		return false
	}

	_, _, ok := t.root.descend(0, stripZeros(prefix))
	return ok
}

func (t *ART[V]) Path(key []byte) []PathEntry[V] {
	var path []PathEntry[V]
	k := stripZeros(key)

	var depth int
	n := t.root
	for n != nil {
		rest := k[depth:]
		if n.isLeaf() {
			stored := n.prefix[:len(n.prefix)-1]
			if bytes.HasPrefix(rest, stored) {
				path = append(path, PathEntry[V]{Depth: depth + len(stored), Value: n.value})
			}
			break
		}

		if !bytes.HasPrefix(rest, n.prefix) {
			break
		}
		depth += len(n.prefix)

		if end := n.child(0); end != nil {
			path = append(path, PathEntry[V]{Depth: depth, Value: end.value})
		}

		if depth == len(k) {
			break
		}

		n = n.child(k[depth])
		depth++
	}

	return path
}

func (t *ART[V]) Continuations(prefix []byte) iter.Seq2[[]byte, V] {
	return func(yield func([]byte, V) bool) {
		if t.root == nil {
			return
		}

		n, off, ok := t.root.descend(0, stripZeros(prefix))
		if !ok {
			return
		}

		n.leaves(slices.Clone(n.prefix[off:]), yield)
	}
}

// leaves yields all keys below n, path being the key bytes up to and
// including the prefix of n.
func (n *node[V]) leaves(path []byte, yield func([]byte, V) bool) bool {
	if n.isLeaf() {
		// drop the terminator
		return yield(path[:len(path)-1], n.value)
	}

	return n.each(func(k byte, child *node[V]) bool {
		next := make([]byte, 0, len(path)+1+len(child.prefix))
		next = append(next, path...)
		next = append(next, k)
		next = append(next, child.prefix...)
		return child.leaves(next, yield)
	})
}

func (t *ART[V]) ContainsContinuation(prefix, continuation []byte) bool {
	key := make([]byte, 0, len(prefix)+len(continuation))
	key = append(key, prefix...)
	key = append(key, continuation...)
	return t.ContainsPrefix(key)
}

func (t *ART[V]) ContainsContinuations(prefix []byte, continuations [][]byte) []int {
	if t.root == nil {
		return nil
	}

	n, off, ok := t.root.descend(0, stripZeros(prefix))
	if !ok {
		return nil
	}

	return walkAll(continuations, func(c []byte) bool {
		_, _, ok := n.descend(off, stripZeros(c))
		return ok
	})
}

func (t *ART[V]) ContainsContinuationsOptimized(prefix []byte, continuations [][]byte, permutation, skips []int) []int {
	if t.root == nil {
		return nil
	}

	n, off, ok := t.root.descend(0, stripZeros(prefix))
	if !ok {
		return nil
	}

	return walkOptimized(continuations, permutation, skips, func(c []byte) bool {
		_, _, ok := n.descend(off, stripZeros(c))
		return ok
	})
}

func (t *ART[V]) Stats() Stats {
	stats := Stats{Keys: t.size, Kinds: make(map[string]KindStats)}
	if t.root == nil {
		return stats
	}

	type item struct {
		n     *node[V]
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

		ks := stats.Kinds[it.n.kind.String()]
		ks.Count++
		ks.PrefixBytes += len(it.n.prefix)
		stats.Kinds[it.n.kind.String()] = ks

		it.n.each(func(_ byte, c *node[V]) bool {
			stack = append(stack, item{c, it.depth + 1})
			return true
		})
	}

	stats.AvgDepth = float64(depths) / float64(stats.Nodes)
	return stats
}
