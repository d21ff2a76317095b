package server

import (
	"errors"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-freiburg/text-correction-utils/constraint"
)

func TestEngineKey(t *testing.T) {
	conts := [][]byte{[]byte("a"), []byte("b")}
	base := constraint.Source{Kind: constraint.KindContinuation, Keys: []string{"ab", "c"}}

	key := engineKey(base, conts)
	assert.Equal(t, key, engineKey(base, conts))

	cases := []struct {
		name  string
		src   constraint.Source
		conts [][]byte
	}{
		{"keys moved to values", constraint.Source{Kind: constraint.KindContinuation, Keys: []string{"ab"}, Values: []string{"c"}}, conts},
		{"keys joined", constraint.Source{Kind: constraint.KindContinuation, Keys: []string{"abc"}}, conts},
		{"continuations joined", base, [][]byte{[]byte("ab")}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, key, engineKey(tt.src, tt.conts))
		})
	}

	assert.NotEqual(t, engineKey(constraint.Source{Grammar: "S"}, nil), engineKey(constraint.Source{Lexer: "S"}, nil))
}

func TestEngineCacheCollision(t *testing.T) {
	cache, err := newEngineCache(4)
	require.NoError(t, err)

	conts := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	regex := constraint.Source{Kind: constraint.KindRegex, Pattern: "a+"}
	keys := constraint.Source{Kind: constraint.KindContinuation, Keys: []string{"ab", "c"}}

	e, err := cache.get(regex, conts)
	require.NoError(t, err)

	cached, err := cache.get(regex, conts)
	require.NoError(t, err)
	assert.True(t, e == cached, "second lookup reuses the engine")

	// Store the regex engine under the hash of the continuation source.
	hash := xxhash.Sum64(engineKey(keys, conts))
	cache.cache.Add(hash, keyed[constraint.Engine]{key: engineKey(regex, conts), value: e})

	got, err := cache.get(keys, conts)
	require.NoError(t, err)
	assert.Equal(t, constraint.KindContinuation, got.Kind())

	state, ok := got.State([]byte("a"))
	require.True(t, ok)
	indices, _ := got.ValidContinuations(state)
	assert.Equal(t, []int{1}, indices)

	again, err := cache.get(keys, conts)
	require.NoError(t, err)
	assert.True(t, got == again, "rebuilt engine replaces the colliding entry")
}

func TestVerifiedCache(t *testing.T) {
	cache, err := newVerifiedCache[string](2)
	require.NoError(t, err)

	builds := 0
	build := func(v string) func() (string, error) {
		return func() (string, error) {
			builds++
			return v, nil
		}
	}

	v, err := cache.get([]byte("k"), build("first"))
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	v, err = cache.get([]byte("k"), build("second"))
	require.NoError(t, err)
	assert.Equal(t, "first", v)
	assert.Equal(t, 1, builds)

	errBuild := errors.New("build failed")
	_, err = cache.get([]byte("other"), func() (string, error) { return "", errBuild })
	assert.ErrorIs(t, err, errBuild)
	assert.Equal(t, 1, cache.cache.Len(), "failed builds are not cached")
}
