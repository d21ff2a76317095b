package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-freiburg/text-correction-utils/api"
	"github.com/ad-freiburg/text-correction-utils/constraint"
	"github.com/ad-freiburg/text-correction-utils/envconfig"
	"github.com/ad-freiburg/text-correction-utils/grammars"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCatalog(t *testing.T) {
	def, err := grammars.Load("calc")
	require.NoError(t, err)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "arith", "arith.y"), def.Grammar)
	writeFile(t, filepath.Join(dir, "arith", "arith.l"), def.Lexer)
	writeFile(t, filepath.Join(dir, "arith", "continuations.jsonl"), "\"1\"\n\"+\"\n\n\" \"\n")
	writeFile(t, filepath.Join(dir, "empty", "README"), "no grammar here")

	cfg := &envconfig.Config{}
	cfg.Grammars = []envconfig.Grammar{
		{Name: "number", Pattern: "[0-9]+"},
		{Name: "calc", Kind: "exact-lr1", Builtin: "calc"},
		{Name: "files", Grammar: filepath.Join(dir, "arith", "arith.y"), Lexer: filepath.Join(dir, "arith", "arith.l")},
	}

	c, err := NewCatalog(cfg, dir)
	require.NoError(t, err)

	assert.Equal(t, []api.GrammarInfo{
		{Name: "arith", Kind: "lr1", Source: "file"},
		{Name: "calc", Kind: "exact-lr1", Source: "builtin"},
		{Name: "files", Kind: "lr1", Source: "file"},
		{Name: "json", Kind: "lr1", Source: "builtin"},
		{Name: "number", Kind: "regex", Source: "pattern"},
		{Name: "test", Kind: "lr1", Source: "builtin"},
	}, c.List())

	e, err := c.get("arith")
	require.NoError(t, err)
	conts, err := e.continuations()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("1"), []byte("+"), []byte(" ")}, conts)

	p, err := e.parser()
	require.NoError(t, err)
	_, err = p.Parse("1 + 2")
	assert.NoError(t, err)

	e, err = c.get("number")
	require.NoError(t, err)
	assert.Equal(t, constraint.KindRegex, e.src.Kind)
	_, err = e.parser()
	assert.ErrorIs(t, err, errNotParsable)

	_, err = c.get("sparql")
	assert.ErrorIs(t, err, errUnknownGrammar)
}

func TestCatalogErrors(t *testing.T) {
	cases := map[string]envconfig.Grammar{
		"missing name":    {Pattern: "a"},
		"unknown builtin": {Name: "x", Builtin: "sparql"},
		"unknown kind":    {Name: "x", Kind: "glr", Builtin: "calc"},
		"no source":       {Name: "x", Kind: "lr1"},
		"no pattern":      {Name: "x", Kind: "regex"},
		"continuation":    {Name: "x", Kind: "continuation", Builtin: "calc"},
		"missing file":    {Name: "x", Grammar: "/does/not/exist.y", Lexer: "/does/not/exist.l"},
	}

	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &envconfig.Config{Grammars: []envconfig.Grammar{g}}
			_, err := NewCatalog(cfg, "")
			assert.Error(t, err)
		})
	}

	_, err := NewCatalog(nil, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
