package trie

import (
	"slices"
)

type kind uint8

const (
	kindLeaf kind = iota
	kind4
	kind16
	kind48
	kind256
)

func (k kind) String() string {
	switch k {
	case kind4:
		return "n4"
	case kind16:
		return "n16"
	case kind48:
		return "n48"
	case kind256:
		return "n256"
	default:
		return "leaf"
	}
}

func (k kind) capacity() int {
	switch k {
	case kind4:
		return 4
	case kind16:
		return 16
	case kind48:
		return 48
	case kind256:
		return 256
	default:
		return 0
	}
}

const emptySlot = 0xFF

// node is a leaf or an inner node with 4, 16, 48 or 256 child slots. n4
// and n16 keep their keys sorted with the children at the same position,
// n48 maps key bytes to child slots through index, n256 is indexed by the
// key byte directly.
type node[V any] struct {
	prefix []byte
	kind   kind

	value V

	num      int
	keys     [16]byte
	index    *[256]byte
	children []*node[V]
}

func newLeaf[V any](prefix []byte, value V) *node[V] {
	return &node[V]{prefix: slices.Clone(prefix), kind: kindLeaf, value: value}
}

func newInner[V any](prefix []byte) *node[V] {
	return &node[V]{prefix: slices.Clone(prefix), kind: kind4, children: make([]*node[V], 4)}
}

func (n *node[V]) isLeaf() bool {
	return n.kind == kindLeaf
}

// slot returns the position of the child for key in children, or -1.
func (n *node[V]) slot(key byte) int {
	switch n.kind {
	case kind4, kind16:
		if i, ok := slices.BinarySearch(n.keys[:n.num], key); ok {
			return i
		}
	case kind48:
		if i := n.index[key]; i != emptySlot {
			return int(i)
		}
	case kind256:
		if n.children[key] != nil {
			return int(key)
		}
	}
	return -1
}

func (n *node[V]) child(key byte) *node[V] {
	if i := n.slot(key); i >= 0 {
		return n.children[i]
	}
	return nil
}

// addChild inserts child under key, growing the node first if it is full.
func (n *node[V]) addChild(key byte, child *node[V]) {
	if n.num == n.kind.capacity() {
		n.upgrade()
	}

	switch n.kind {
	case kind4, kind16:
		i, _ := slices.BinarySearch(n.keys[:n.num], key)
		copy(n.keys[i+1:n.num+1], n.keys[i:n.num])
		copy(n.children[i+1:n.num+1], n.children[i:n.num])
		n.keys[i] = key
		n.children[i] = child
	case kind48:
		i := slices.Index(n.children, nil)
		n.index[key] = byte(i)
		n.children[i] = child
	case kind256:
		n.children[key] = child
	}
	n.num++
}

// removeChild removes the child under key and shrinks the node if it
// dropped to the capacity of the next smaller kind.
func (n *node[V]) removeChild(key byte) {
	i := n.slot(key)
	if i < 0 {
		return
	}

	switch n.kind {
	case kind4, kind16:
		copy(n.keys[i:], n.keys[i+1:n.num])
		copy(n.children[i:], n.children[i+1:n.num])
		n.children[n.num-1] = nil
	case kind48:
		n.index[key] = emptySlot
		n.children[i] = nil
	case kind256:
		n.children[key] = nil
	}
	n.num--

	n.downgrade()
}

func (n *node[V]) upgrade() {
	switch n.kind {
	case kind4:
		children := make([]*node[V], 16)
		copy(children, n.children)
		n.kind, n.children = kind16, children
	case kind16:
		index := new([256]byte)
		for i := range index {
			index[i] = emptySlot
		}
		for i, k := range n.keys[:n.num] {
			index[k] = byte(i)
		}
		children := make([]*node[V], 48)
		copy(children, n.children)
		n.kind, n.index, n.children = kind48, index, children
	case kind48:
		children := make([]*node[V], 256)
		for k, i := range n.index {
			if i != emptySlot {
				children[k] = n.children[i]
			}
		}
		n.kind, n.index, n.children = kind256, nil, children
	}
}

func (n *node[V]) downgrade() {
	switch {
	case n.kind == kind16 && n.num == 4:
		n.kind, n.children = kind4, slices.Clone(n.children[:4])
	case n.kind == kind48 && n.num == 16:
		children := make([]*node[V], 16)
		var i int
		for k, s := range n.index {
			if s != emptySlot {
				n.keys[i] = byte(k)
				children[i] = n.children[s]
				i++
			}
		}
		n.kind, n.index, n.children = kind16, nil, children
	case n.kind == kind256 && n.num == 48:
		index := new([256]byte)
		children := make([]*node[V], 48)
		var i int
		for k, c := range n.children {
			index[k] = emptySlot
			if c != nil {
				index[k] = byte(i)
				children[i] = c
				i++
			}
		}
		n.kind, n.index, n.children = kind48, index, children
	}
}

// merge folds a single remaining child into an n4.
func (n *node[V]) merge() {
	if n.kind != kind4 || n.num != 1 {
		return
	}

	child := n.children[0]
	prefix := make([]byte, 0, len(n.prefix)+1+len(child.prefix))
	prefix = append(prefix, n.prefix...)
	prefix = append(prefix, n.keys[0])
	prefix = append(prefix, child.prefix...)

	*n = *child
	n.prefix = prefix
}

// each calls fn for every child in key order until fn returns false.
func (n *node[V]) each(fn func(byte, *node[V]) bool) bool {
	switch n.kind {
	case kind4, kind16:
		for i, k := range n.keys[:n.num] {
			if !fn(k, n.children[i]) {
				return false
			}
		}
	case kind48:
		for k, i := range n.index {
			if i != emptySlot && !fn(byte(k), n.children[i]) {
				return false
			}
		}
	case kind256:
		for k, c := range n.children {
			if c != nil && !fn(byte(k), c) {
				return false
			}
		}
	}
	return true
}
