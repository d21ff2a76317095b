package constraint

import (
	"slices"

	"github.com/ad-freiburg/text-correction-utils/trie"
)

// Continuation constrains the input to prefixes of a fixed set of keys.
// The state is the input itself; a match is an input equal to a key, and
// carries the value stored for it.
type Continuation struct {
	index *trie.ContinuationTrie[string]
}

var _ Constraint[[]byte, []byte] = (*Continuation)(nil)

// NewContinuation builds the constraint over the keys of t.
func NewContinuation(t trie.ContinuationSearch[string], continuations [][]byte) *Continuation {
	return &Continuation{index: trie.NewContinuationTrie(t, continuations)}
}

// NewContinuationFromKeys stores keys with their values in an ART. Without
// values every key is its own value.
func NewContinuationFromKeys(keys, values []string, continuations [][]byte) *Continuation {
	t := trie.NewART[string]()
	for i, k := range keys {
		v := k
		if len(values) > 0 {
			v = values[i]
		}
		t.Insert([]byte(k), v)
	}
	return NewContinuation(t, continuations)
}

func (c *Continuation) Continuations() [][]byte {
	return c.index.Continuations()
}

func (c *Continuation) StartState() []byte {
	return nil
}

// State returns prefix if some key starts with it.
func (c *Continuation) State(prefix []byte) ([]byte, bool) {
	if len(prefix) > 0 && !c.index.Trie().ContainsPrefix(prefix) {
		return nil, false
	}
	return slices.Clone(prefix), true
}

func (c *Continuation) IsMatch(s []byte) bool {
	_, ok := c.index.Trie().Get(s)
	return ok
}

// Value returns the value of the key equal to s.
func (c *Continuation) Value(s []byte) (string, bool) {
	return c.index.Trie().Get(s)
}

func (c *Continuation) ValidContinuations(s []byte) ([]int, [][]byte) {
	indices := c.index.ContinuationIndices(s)
	conts := c.index.Continuations()

	next := make([][]byte, len(indices))
	for k, i := range indices {
		next[k] = append(slices.Clip(s), conts[i]...)
	}
	return indices, next
}
