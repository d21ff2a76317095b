package dictionary

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	d, err := LoadFile(filepath.Join("testdata", "words.tsv"))
	require.NoError(t, err)
	assert.Equal(t, 5, d.Len())

	f, ok := d.Get("house")
	assert.True(t, ok)
	assert.Equal(t, 12, f)

	_, ok = d.Get("cat")
	assert.False(t, ok)
	assert.InDelta(t, 120.0/227.0, d.RelFrequency(120), 1e-9)
}

func TestLoadBOM(t *testing.T) {
	d, err := Load(strings.NewReader("\xef\xbb\xbfa\t1\nb\t2\n"))
	require.NoError(t, err)
	assert.True(t, d.Contains("a"))
	assert.True(t, d.Contains("b"))
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		input string
		line  int
	}{
		{"a\t1\nb\n", 2},
		{"a\t1\tx\n", 1},
		{"a\t1\nb\t2\nc\tmany\n", 3},
		{"\n", 1},
	}

	for _, tt := range cases {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input))

			var lerr *LineError
			require.True(t, errors.As(err, &lerr), "%v", err)
			assert.Equal(t, tt.line, lerr.Line)
		})
	}

	_, err := Load(strings.NewReader("c\tmany\n"))
	assert.ErrorIs(t, err, strconv.ErrSyntax)
}

func TestSaveRoundTrip(t *testing.T) {
	d, err := LoadFile(filepath.Join("testdata", "words.tsv"))
	require.NoError(t, err)

	var b bytes.Buffer
	require.NoError(t, d.Save(&b))
	assert.Equal(t, "horse\t12\nhouse\t12\nmouse\t3\nof\t80\nthe\t120\n", b.String())

	path := filepath.Join(t.TempDir(), "out.tsv")
	require.NoError(t, d.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, d.TopK(0), loaded.TopK(0))
}

func TestTopK(t *testing.T) {
	d, err := LoadFile(filepath.Join("testdata", "words.tsv"))
	require.NoError(t, err)

	want := []Entry{{"the", 120}, {"of", 80}, {"horse", 12}}
	if diff := cmp.Diff(want, d.TopK(3)); diff != "" {
		t.Errorf("top k mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, d.TopK(10), 5)
}

func TestClosest(t *testing.T) {
	d, err := LoadFile(filepath.Join("testdata", "words.tsv"))
	require.NoError(t, err)

	e, ok := d.Closest("hose", false)
	require.True(t, ok)
	assert.Equal(t, Entry{"horse", 12}, e)

	e, ok = d.Closest("th", true)
	require.True(t, ok)
	assert.Equal(t, "the", e.Token)

	_, ok = New().Closest("x", false)
	assert.False(t, ok)

	assert.Equal(t, 3, editDistance("kitten", "sitting"))
	assert.Equal(t, 1, editDistance("ä", "a"))
}

func TestTrie(t *testing.T) {
	d, err := LoadFile(filepath.Join("testdata", "words.tsv"))
	require.NoError(t, err)

	tr := d.Trie()
	assert.Equal(t, 5, tr.Len())
	v, ok := tr.Get([]byte("mouse"))
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.True(t, tr.ContainsPrefix([]byte("ho")))
}

func TestCreate(t *testing.T) {
	var lines strings.Builder
	for range 5000 {
		lines.WriteString("the house  of\n")
	}

	d, err := Create(context.Background(), []io.Reader{
		strings.NewReader(lines.String()),
		strings.NewReader("ｔｈｅ mouse\n"),
	}, 4)
	require.NoError(t, err)

	want := map[string]int{"the": 5001, "house": 5000, "of": 5000, "mouse": 1}
	for k, v := range want {
		f, ok := d.Get(k)
		assert.True(t, ok, k)
		assert.Equal(t, v, f, k)
	}
	assert.Equal(t, 4, d.Len())
}
