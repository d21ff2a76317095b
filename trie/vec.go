package trie

import (
	"bytes"
	"iter"
	"slices"
)

type entry[V any] struct {
	key   []byte
	value V
}

// Vec is a sorted vector of keys. Lookups narrow the range of candidate
// keys one byte at a time.
type Vec[V any] struct {
	data []entry[V]
}

func NewVec[V any]() *Vec[V] {
	return &Vec[V]{}
}

// VecFromEntries builds a Vec from unsorted entries in one pass. Later
// duplicates win.
func VecFromEntries[V any](seq iter.Seq2[[]byte, V]) *Vec[V] {
	var data []entry[V]
	for k, v := range seq {
		data = append(data, entry[V]{key: slices.Clone(k), value: v})
	}

	slices.SortStableFunc(data, func(a, b entry[V]) int {
		return bytes.Compare(a.key, b.key)
	})

	out := data[:0]
	for _, e := range data {
		if len(out) > 0 && bytes.Equal(out[len(out)-1].key, e.key) {
			out[len(out)-1].value = e.value
			continue
		}
		out = append(out, e)
	}

	return &Vec[V]{data: out}
}

func (v *Vec[V]) Len() int {
	return len(v.data)
}

func (v *Vec[V]) search(key []byte) (int, bool) {
	return slices.BinarySearchFunc(v.data, key, func(e entry[V], k []byte) int {
		return bytes.Compare(e.key, k)
	})
}

func (v *Vec[V]) Insert(key []byte, value V) (V, bool) {
	i, ok := v.search(key)
	if ok {
		old := v.data[i].value
		v.data[i].value = value
		return old, true
	}

	v.data = slices.Insert(v.data, i, entry[V]{key: slices.Clone(key), value: value})
	var zero V
	return zero, false
}

func (v *Vec[V]) Delete(key []byte) (V, bool) {
	i, ok := v.search(key)
	if !ok {
		var zero V
		return zero, false
	}

	value := v.data[i].value
	v.data = slices.Delete(v.data, i, i+1)
	return value, true
}

// cmpAt compares the byte at depth of the key at i with b. Keys too short
// to have a byte at depth sort first.
func (v *Vec[V]) cmpAt(i, depth int, b byte) int {
	key := v.data[i].key
	if depth >= len(key) {
		return -1
	}
	return int(key[depth]) - int(b)
}

// rangeSearch narrows [left, right), in which all keys share their first
// depth bytes, to the keys having b at depth.
func (v *Vec[V]) rangeSearch(b byte, depth, left, right int) (int, int, bool) {
	lo, hi := left, right
	idx := -1
	for lo < hi {
		mid := lo + (hi-lo)/2
		switch c := v.cmpAt(mid, depth, b); {
		case c < 0:
			lo = mid + 1
		case c > 0:
			hi = mid
		default:
			idx = mid
			lo = hi
		}
	}

	if idx < 0 {
		return 0, 0, false
	}

	// gallop away from idx to bracket both bounds, then binary search
	// inside the bracket
	lastEq, probe := idx, 1
	for idx+probe < right && v.cmpAt(idx+probe, depth, b) == 0 {
		lastEq = idx + probe
		probe *= 2
	}
	bound := min(idx+probe, right)
	end := lastEq + 1 + searchFirst(bound-lastEq-1, func(i int) bool {
		return v.cmpAt(lastEq+1+i, depth, b) != 0
	})

	firstEq, probe := idx, 1
	for idx-probe >= left && v.cmpAt(idx-probe, depth, b) == 0 {
		firstEq = idx - probe
		probe *= 2
	}
	bound = max(idx-probe, left-1)
	start := bound + 1 + searchFirst(firstEq-bound-1, func(i int) bool {
		return v.cmpAt(bound+1+i, depth, b) == 0
	})

	return start, end, true
}

// searchFirst returns the smallest i in [0, n) for which f is true, or n.
// f must be monotone.
func searchFirst(n int, f func(int) bool) int {
	lo, hi := 0, n
	for lo < hi {
		mid := lo + (hi-lo)/2
		if f(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (v *Vec[V]) findRange(key []byte, left, right, depth int) (int, int, bool) {
	for i, b := range key {
		var ok bool
		left, right, ok = v.rangeSearch(b, depth+i, left, right)
		if !ok {
			return 0, 0, false
		}
	}
	return left, right, left < right
}

func (v *Vec[V]) Get(key []byte) (V, bool) {
	left, _, ok := v.findRange(key, 0, len(v.data), 0)
	if ok && len(v.data[left].key) == len(key) {
		return v.data[left].value, true
	}

	var zero V
	return zero, false
}

func (v *Vec[V]) ContainsPrefix(prefix []byte) bool {
	_, _, ok := v.findRange(prefix, 0, len(v.data), 0)
	return ok
}

func (v *Vec[V]) Path(key []byte) []PathEntry[V] {
	var path []PathEntry[V]
	if len(v.data) > 0 && len(v.data[0].key) == 0 {
		path = append(path, PathEntry[V]{Depth: 0, Value: v.data[0].value})
	}

	left, right := 0, len(v.data)
	for i, b := range key {
		var ok bool
		left, right, ok = v.rangeSearch(b, i, left, right)
		if !ok {
			break
		}

		if len(v.data[left].key) == i+1 {
			path = append(path, PathEntry[V]{Depth: i + 1, Value: v.data[left].value})
		}
	}

	return path
}

func (v *Vec[V]) Continuations(prefix []byte) iter.Seq2[[]byte, V] {
	return func(yield func([]byte, V) bool) {
		left, right, ok := v.findRange(prefix, 0, len(v.data), 0)
		if !ok {
			return
		}

		for _, e := range v.data[left:right] {
			if !yield(slices.Clone(e.key[len(prefix):]), e.value) {
				return
			}
		}
	}
}

func (v *Vec[V]) ContainsContinuation(prefix, continuation []byte) bool {
	left, right, ok := v.findRange(prefix, 0, len(v.data), 0)
	if !ok {
		return false
	}

	_, _, ok = v.findRange(continuation, left, right, len(prefix))
	return ok
}

func (v *Vec[V]) ContainsContinuations(prefix []byte, continuations [][]byte) []int {
	left, right, ok := v.findRange(prefix, 0, len(v.data), 0)
	if !ok {
		return nil
	}

	return walkAll(continuations, func(c []byte) bool {
		_, _, ok := v.findRange(c, left, right, len(prefix))
		return ok
	})
}

func (v *Vec[V]) ContainsContinuationsOptimized(prefix []byte, continuations [][]byte, permutation, skips []int) []int {
	left, right, ok := v.findRange(prefix, 0, len(v.data), 0)
	if !ok {
		return nil
	}

	return walkOptimized(continuations, permutation, skips, func(c []byte) bool {
		_, _, ok := v.findRange(c, left, right, len(prefix))
		return ok
	})
}

func (v *Vec[V]) Stats() Stats {
	var n int
	for _, e := range v.data {
		n += len(e.key)
	}

	return Stats{
		Keys:  len(v.data),
		Nodes: len(v.data),
		Kinds: map[string]KindStats{"entry": {Count: len(v.data), PrefixBytes: n}},
	}
}
