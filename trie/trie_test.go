package trie

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tries() map[string]func() ContinuationSearch[int] {
	return map[string]func() ContinuationSearch[int]{
		"art":      func() ContinuationSearch[int] { return NewART[int]() },
		"patricia": func() ContinuationSearch[int] { return NewPatricia[int]() },
		"vec":      func() ContinuationSearch[int] { return NewVec[int]() },
	}
}

func b(s string) []byte {
	return []byte(s)
}

func bs(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

// words returns n distinct pseudo random words without zero bytes.
func words(n int, seed int64) [][]byte {
	r := rand.New(rand.NewSource(seed))
	seen := make(map[string]bool)
	var out [][]byte
	for len(out) < n {
		w := make([]byte, 1+r.Intn(8))
		for i := range w {
			w[i] = "abcdefgh"[r.Intn(8)]
		}
		if r.Intn(16) == 0 {
			w = append(w, 0xC3, 0xA4)
		}
		if !seen[string(w)] {
			seen[string(w)] = true
			out = append(out, w)
		}
	}
	return out
}

func TestSimple(t *testing.T) {
	for name, fn := range tries() {
		t.Run(name, func(t *testing.T) {
			trie := fn()

			_, ok := trie.Get(b("hello"))
			assert.False(t, ok)
			_, ok = trie.Get(b(""))
			assert.False(t, ok)
			assert.False(t, trie.ContainsPrefix(b("")))

			trie.Insert(b(""), 4)
			trie.Insert(b("h"), 5)
			trie.Insert(b("hello"), 1)

			v, ok := trie.Delete(b("hello"))
			assert.True(t, ok)
			assert.Equal(t, 1, v)
			_, ok = trie.Delete(b("hello "))
			assert.False(t, ok)

			trie.Insert(b("hello"), 1)
			trie.Insert(b("hell"), 2)
			trie.Insert(b("hello world"), 3)

			if diff := cmp.Diff([]PathEntry[int]{{0, 4}}, trie.Path(b(""))); diff != "" {
				t.Errorf("path mismatch (-want +got):\n%s", diff)
			}

			want := []PathEntry[int]{{0, 4}, {1, 5}, {4, 2}, {5, 1}}
			if diff := cmp.Diff(want, trie.Path(b("hello"))); diff != "" {
				t.Errorf("path mismatch (-want +got):\n%s", diff)
			}

			for k, want := range map[string]int{"hello": 1, "hell": 2, "hello world": 3, "h": 5, "": 4} {
				v, ok := trie.Get(b(k))
				assert.True(t, ok, k)
				assert.Equal(t, want, v, k)
			}

			_, ok = trie.Get(b("hel"))
			assert.False(t, ok)

			assert.True(t, trie.ContainsPrefix(b("hell")))
			assert.True(t, trie.ContainsPrefix(b("hello")))
			assert.True(t, trie.ContainsPrefix(b("")))
			assert.False(t, trie.ContainsPrefix(b("hello world!")))
			assert.False(t, trie.ContainsPrefix(b("test")))

			v, ok = trie.Delete(b("hello"))
			assert.True(t, ok)
			assert.Equal(t, 1, v)
			_, ok = trie.Get(b("hello"))
			assert.False(t, ok)
			assert.Equal(t, 4, trie.Len())
		})
	}
}

func TestRoundTrip(t *testing.T) {
	ws := words(2000, 1)
	for name, fn := range tries() {
		t.Run(name, func(t *testing.T) {
			trie := fn()
			for i, w := range ws {
				_, replaced := trie.Insert(w, i)
				require.False(t, replaced)
			}
			require.Equal(t, len(ws), trie.Len())

			for i, w := range ws {
				v, ok := trie.Get(w)
				require.True(t, ok, "%q", w)
				require.Equal(t, i, v)
				for j := range w {
					require.True(t, trie.ContainsPrefix(w[:j+1]))
				}
			}

			// inserting again replaces and keeps the size
			old, replaced := trie.Insert(ws[0], -1)
			assert.True(t, replaced)
			assert.Equal(t, 0, old)
			assert.Equal(t, len(ws), trie.Len())

			for i, w := range ws {
				if i%2 == 0 {
					v, ok := trie.Delete(w)
					require.True(t, ok, "%q", w)
					if i == 0 {
						require.Equal(t, -1, v)
					} else {
						require.Equal(t, i, v)
					}
					_, ok = trie.Get(w)
					require.False(t, ok)
				}
			}

			for i, w := range ws {
				_, ok := trie.Get(w)
				require.Equal(t, i%2 == 1, ok, "%q", w)
			}
			assert.Equal(t, len(ws)/2, trie.Len())

			for _, w := range ws {
				trie.Delete(w)
			}
			assert.Equal(t, 0, trie.Len())
			assert.False(t, trie.ContainsPrefix(nil))
		})
	}
}

func TestPrefixMonotonicity(t *testing.T) {
	ws := words(500, 2)
	queries := words(300, 3)
	for name, fn := range tries() {
		t.Run(name, func(t *testing.T) {
			trie := fn()
			for i, w := range ws[:250] {
				trie.Insert(w, i)
			}

			for _, p := range queries {
				if trie.ContainsPrefix(p) {
					continue
				}
				for _, s := range queries[:20] {
					ext := append(slices.Clone(p), s...)
					assert.False(t, trie.ContainsPrefix(ext), "%q", ext)
				}
			}
		})
	}
}

func TestImplementationsAgree(t *testing.T) {
	ws := words(1000, 4)
	conts := append(bs("", "a", "ab", "abc", "h", "\xc3", "\xc3\xa4"), words(200, 5)...)
	perm, skips := OptimizedPrefixOrder(conts)
	prefixes := append(bs("", "a", "b", "ab", "hh", "zzz"), ws[:50]...)

	var results [][][]int
	var continuations [][]string
	for _, name := range []string{"art", "patricia", "vec"} {
		trie := tries()[name]()
		for i, w := range ws {
			trie.Insert(w, i)
		}

		var rs [][]int
		var cs []string
		for _, p := range prefixes {
			plain := trie.ContainsContinuations(p, conts)
			optimized := trie.ContainsContinuationsOptimized(p, conts, perm, skips)
			require.Equal(t, plain, optimized, "%s %q", name, p)

			for _, i := range plain {
				require.True(t, trie.ContainsContinuation(p, conts[i]))
			}
			rs = append(rs, plain)

			for k, v := range trie.Continuations(p) {
				cs = append(cs, fmt.Sprintf("%q%q=%d", p, k, v))
			}
		}
		results = append(results, rs)
		continuations = append(continuations, cs)
	}

	for i := 1; i < len(results); i++ {
		if diff := cmp.Diff(results[0], results[i]); diff != "" {
			t.Errorf("continuation indices differ (-art +other):\n%s", diff)
		}
		if diff := cmp.Diff(continuations[0], continuations[i]); diff != "" {
			t.Errorf("continuations differ (-art +other):\n%s", diff)
		}
	}
}

func TestContinuations(t *testing.T) {
	for name, fn := range tries() {
		t.Run(name, func(t *testing.T) {
			trie := fn()
			for i, k := range []string{"hello", "help", "hell", "world", "he"} {
				trie.Insert(b(k), i)
			}

			var got []string
			for k, v := range trie.Continuations(b("hel")) {
				got = append(got, fmt.Sprintf("%s=%d", k, v))
			}
			assert.Equal(t, []string{"l=2", "lo=0", "p=1"}, got)

			got = got[:0]
			for k := range trie.Continuations(b("x")) {
				got = append(got, string(k))
			}
			assert.Empty(t, got)

			// stopping early
			var n int
			for range trie.Continuations(nil) {
				n++
				if n == 2 {
					break
				}
			}
			assert.Equal(t, 2, n)
		})
	}
}

func TestOptimizedPrefixOrder(t *testing.T) {
	perm, skips := OptimizedPrefixOrder(bs("de", "a", "d", "ab", "abc", "b"))
	assert.Equal(t, []int{1, 3, 4, 5, 2, 0}, perm)
	assert.Equal(t, []int{2, 1, 0, 0, 1, 0}, skips)

	perm, skips = OptimizedPrefixOrder(nil)
	assert.Empty(t, perm)
	assert.Empty(t, skips)
}

func TestContinuationTrie(t *testing.T) {
	art := NewART[int]()
	for i, w := range bs("select", "selection", "set", "from", "frame") {
		art.Insert(w, i)
	}

	ct := NewContinuationTrie[int](art, bs("s", "se", "sel", "f", "fr", "x", "ect", "t"))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ct.ContinuationIndices(nil))
	assert.Equal(t, []int{7}, ct.ContinuationIndices(b("se")))
	assert.Equal(t, []int{6}, ct.ContinuationIndices(b("sel")))
	assert.Empty(t, ct.ContinuationIndices(b("q")))

	got, err := ct.BatchContinuationIndices(context.Background(), bs("", "se", "sel", "q"), 2)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1, 2, 3, 4}, {7}, {6}, nil}, got)

	sequential := BatchContainsContinuationsOptimized[int](art, bs("", "se", "sel", "q"), ct.continuations, ct.permutation, ct.skips)
	assert.Equal(t, got, sequential)
	assert.Equal(t, BatchContainsContinuations[int](art, bs("", "se"), ct.continuations), got[:2])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ct.BatchContinuationIndices(ctx, bs("", "se"), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContinuationsVec(t *testing.T) {
	ws := words(800, 6)
	conts := append(bs("", "a", "ab", "b", "abc"), words(100, 7)...)

	v := VecFromEntries(func(yield func([]byte, int) bool) {
		for i, w := range ws {
			if !yield(w, i) {
				return
			}
		}
	})
	cv := NewContinuationsVec(v, conts)

	for _, p := range append(bs("", "a", "ab", "hh"), ws[:30]...) {
		assert.Equal(t, v.ContainsContinuations(p, conts), cv.ContinuationIndices(p), "%q", p)
	}
}

func TestZeroBytes(t *testing.T) {
	art := NewART[int]()
	art.Insert(b("a\x00b"), 1)
	v, ok := art.Get(b("ab"))
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	// the patricia trie keeps zero bytes
	p := NewPatricia[int]()
	p.Insert(b("a\x00b"), 1)
	_, ok = p.Get(b("ab"))
	assert.False(t, ok)
	v, ok = p.Get(b("a\x00b"))
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestARTNodeKinds(t *testing.T) {
	art := NewART[int]()
	keys := make([][]byte, 0, 256)
	for i := 1; i < 256; i++ {
		keys = append(keys, []byte{'x', byte(i)})
	}

	kindOf := func() string {
		return art.root.kind.String()
	}

	for i, k := range keys {
		art.Insert(k, i)
		n := i + 1
		switch {
		case n == 1:
			require.Equal(t, "leaf", kindOf())
		case n <= 4:
			require.Equal(t, "n4", kindOf(), n)
		case n <= 16:
			require.Equal(t, "n16", kindOf(), n)
		case n <= 48:
			require.Equal(t, "n48", kindOf(), n)
		default:
			require.Equal(t, "n256", kindOf(), n)
		}
	}

	stats := art.Stats()
	assert.Equal(t, 255, stats.Keys)
	assert.Equal(t, 1, stats.Kinds["n256"].Count)
	assert.Equal(t, 255, stats.Kinds["leaf"].Count)

	for i := len(keys) - 1; i >= 1; i-- {
		_, ok := art.Delete(keys[i])
		require.True(t, ok)
		n := i
		switch {
		case n == 1:
			// the last remaining child is merged into its parent
			require.Equal(t, "leaf", kindOf())
			require.Equal(t, []byte{'x', keys[0][1], 0}, art.root.prefix)
		case n <= 4:
			require.Equal(t, "n4", kindOf(), n)
		case n <= 16:
			require.Equal(t, "n16", kindOf(), n)
		case n <= 48:
			require.Equal(t, "n48", kindOf(), n)
		default:
			require.Equal(t, "n256", kindOf(), n)
		}
	}

	v, ok := art.Get(keys[0])
	assert.True(t, ok)
	assert.Equal(t, 0, v)
}

func TestSaveLoad(t *testing.T) {
	ws := words(300, 8)
	for name, fn := range tries() {
		t.Run(name, func(t *testing.T) {
			src := fn()
			for i, w := range ws {
				src.Insert(w, i)
			}

			var buf bytes.Buffer
			require.NoError(t, Save(&buf, src))

			dst := NewVec[int]()
			require.NoError(t, Load[int](&buf, dst))
			require.Equal(t, src.Len(), dst.Len())

			for i, w := range ws {
				v, ok := dst.Get(w)
				require.True(t, ok)
				require.Equal(t, i, v)
			}
		})
	}

	err := Load[int](bytes.NewReader([]byte{0xFF, 0x00}), NewART[int]())
	assert.ErrorIs(t, err, ErrFormat)
}
