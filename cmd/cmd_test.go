package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-freiburg/text-correction-utils/constraint"
	"github.com/ad-freiburg/text-correction-utils/envconfig"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewCLI()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.Execute()
	return stdout.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLex(t *testing.T) {
	out, err := run(t, "", "lex", "-g", "calc", "1 + 2")
	require.NoError(t, err)
	assert.Equal(t, "INT\t0\t1\t\"1\"\nPLUS\t2\t3\t\"+\"\nINT\t4\t5\t\"2\"\n", out)

	out, err = run(t, "1 +", "lex", "-g", "calc", "--ignored")
	require.NoError(t, err)
	assert.Equal(t, "INT\t0\t1\t\"1\"\n(ignored)\t1\t2\t\" \"\nPLUS\t2\t3\t\"+\"\n", out)

	_, err = run(t, "", "lex", "1 + 2")
	assert.ErrorIs(t, err, errMissingGrammar)
}

func TestParse(t *testing.T) {
	out, err := run(t, "1*2", "parse", "-g", "calc", "--collapse")
	require.NoError(t, err)
	assert.Equal(t, "Term\n  INT '1'\n  TIMES '*'\n  INT '2'\n", out)

	out, err = run(t, "1*2", "parse", "-g", "calc", "--json", "--collapse")
	require.NoError(t, err)

	var tree struct {
		Kind     string `json:"kind"`
		Name     string `json:"name"`
		Children []json.RawMessage
	}
	require.NoError(t, json.Unmarshal([]byte(out), &tree), out)
	assert.Equal(t, "nonterminal", tree.Kind)
	assert.Equal(t, "Term", tree.Name)
	assert.Len(t, tree.Children, 3)

	out, err = run(t, "", "parse", "-g", "test", "--skip-empty", "--collapse", "SELECT ?x")
	require.NoError(t, err)
	assert.Equal(t, "Query\n  SELECT 'SELECT'\n  VAR '?x'\n", out)

	_, err = run(t, "", "parse", "-g", "calc", "1 +")
	assert.ErrorContains(t, err, "line 1, column 4")

	_, err = run(t, "", "parse", "-g", "sparql", "1")
	assert.Error(t, err)
}

func TestParseFiles(t *testing.T) {
	dir := t.TempDir()
	g := writeFile(t, dir, "ab.y", "%%\nS: 'A' 'B' ;\n")
	l := writeFile(t, dir, "ab.l", "%%\nA a\nB b\n")

	out, err := run(t, "", "parse", "--grammar-file", g, "--lexer-file", l, "ab")
	require.NoError(t, err)
	assert.Equal(t, "S\n  A 'a'\n  B 'b'\n", out)

	_, err = run(t, "", "parse", "--grammar-file", g, "ab")
	assert.ErrorIs(t, err, errMissingGrammar)

	e := writeFile(t, dir, "ab.ebnf", "S = a b .\na = \"a\" .\nb = \"b\" .\n")
	out, err = run(t, "", "lex", "--grammar-file", e, "--lexer-file", writeFile(t, dir, "ebnf.l", "%%\na a\nb b\n"), "ab")
	require.NoError(t, err)
	assert.Equal(t, "a\t0\t1\t\"a\"\nb\t1\t2\t\"b\"\n", out)
}

func TestConstrain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "continuations.jsonl")

	var buf bytes.Buffer
	conts := [][]byte{[]byte("1"), []byte("+"), []byte("("), []byte(")"), []byte("*"), []byte(" "), []byte("12"), []byte("+1"), []byte("x")}
	require.NoError(t, constraint.WriteContinuations(&buf, conts))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	out, err := run(t, "", "constrain", "-g", "calc", path)
	require.NoError(t, err)
	assert.Equal(t, "match: false, stop: false, valid: 4/9\n0\t\"1\"\n2\t\"(\"\n5\t\" \"\n6\t\"12\"\n", out)

	out, err = run(t, "", "constrain", "-g", "calc", "--next", "0", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "match: true, stop: false, valid: 6/9\n"), out)

	out, err = run(t, "", "constrain", "-g", "calc", "-k", "exact-lr1", "-p", "(1", path)
	require.NoError(t, err)
	assert.Contains(t, out, "3\t\")\"\n")

	_, err = run(t, "", "constrain", "-g", "calc", "--next", "0,3", path)
	assert.ErrorIs(t, err, constraint.ErrInvalidContinuation)

	_, err = run(t, "", "constrain", "-g", "calc", "-p", "1 1", path)
	assert.ErrorIs(t, err, constraint.ErrInvalidPrefix)

	out, err = run(t, "", "constrain", "--pattern", "[0-9]+", "-p", "1", path)
	require.NoError(t, err)
	assert.Equal(t, "match: true, stop: false, valid: 2/9\n0\t\"1\"\n6\t\"12\"\n", out)

	_, err = run(t, "", "constrain", "-k", "regex", path)
	assert.ErrorContains(t, err, "--pattern")

	_, err = run(t, "", "constrain", "-k", "glr", "-g", "calc", path)
	assert.ErrorIs(t, err, constraint.ErrUnknownKind)
}

func TestConstrainKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "continuations.jsonl")

	var buf bytes.Buffer
	require.NoError(t, constraint.WriteContinuations(&buf, [][]byte{[]byte("ber"), []byte("lin"), []byte("n"), []byte("b")}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	keys := writeFile(t, dir, "keys.tsv", "berlin\tDE\nbern\tCH\n")

	out, err := run(t, "", "constrain", "--keys", keys, "-p", "ber", path)
	require.NoError(t, err)
	assert.Equal(t, "match: false, stop: false, valid: 2/4\n1\t\"lin\"\n2\t\"n\"\n", out)

	out, err = run(t, "", "constrain", "--keys", keys, "-p", "ber", "--next", "2", path)
	require.NoError(t, err)
	assert.Equal(t, "match: true, stop: false, valid: 0/4\nvalue: CH\n", out)

	plain := writeFile(t, dir, "keys.txt", "bern\n\nbe\n")
	out, err = run(t, "", "constrain", "--keys", plain, "-p", "be", path)
	require.NoError(t, err)
	assert.Equal(t, "match: true, stop: false, valid: 0/4\nvalue: be\n", out)

	_, err = run(t, "", "constrain", "-k", "continuation", path)
	assert.ErrorContains(t, err, "--keys")

	_, err = run(t, "", "constrain", "--keys", keys, "-p", "bx", path)
	assert.ErrorIs(t, err, constraint.ErrInvalidPrefix)
}

func TestReadKeys(t *testing.T) {
	dir := t.TempDir()

	keys, values, err := readKeys(writeFile(t, dir, "mixed.tsv", "a\tx\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.Equal(t, []string{"x", "b"}, values)

	keys, values, err = readKeys(writeFile(t, dir, "plain.txt", "a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.Nil(t, values)

	_, _, err = readKeys(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTrie(t *testing.T) {
	dir := t.TempDir()
	keys := writeFile(t, dir, "keys.txt", "house\nhorse\nmouse\n")

	for _, typ := range []string{"art", "patricia", "vec"} {
		t.Run(typ, func(t *testing.T) {
			path := filepath.Join(dir, typ+".cbor")

			out, err := run(t, "", "trie", "build", "--type", typ, keys, path)
			require.NoError(t, err)
			assert.Equal(t, "wrote 3 keys to "+path+"\n", out)

			out, err = run(t, "", "trie", "query", "--type", typ, path, "ho")
			require.NoError(t, err)
			assert.Equal(t, "horse\t1\nhouse\t0\n", out)

			out, err = run(t, "", "trie", "query", "--type", typ, "--limit", "1", path, "")
			require.NoError(t, err)
			assert.Equal(t, "horse\t1\n", out)

			out, err = run(t, "", "trie", "stats", "--type", typ, path)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(out, "keys\t3\n"), out)
		})
	}

	conts := writeFile(t, dir, "conts.jsonl", "\"u\"\n\"x\"\n\"rse\"\n")
	path := filepath.Join(dir, "query.cbor")
	_, err := run(t, "", "trie", "build", keys, path)
	require.NoError(t, err)

	out, err := run(t, "", "trie", "query", "--continuations", conts, path, "ho")
	require.NoError(t, err)
	assert.Equal(t, "0\t\"u\"\n2\t\"rse\"\n", out)

	_, err = run(t, "", "trie", "build", "--type", "btree", keys, path)
	assert.ErrorIs(t, err, errUnknownTrieType)

	_, err = run(t, "", "trie", "stats", keys)
	assert.Error(t, err)
}

func TestDictionary(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "the cat the\n")
	b := writeFile(t, dir, "b.txt", "the dog\n")
	dict := filepath.Join(dir, "dict.tsv")

	out, err := run(t, "", "dictionary", "create", dict, a, b)
	require.NoError(t, err)
	assert.Equal(t, "wrote 3 tokens to "+dict+"\n", out)

	out, err = run(t, "", "dictionary", "top", "-k", "2", dict)
	require.NoError(t, err)
	assert.Equal(t, "the\t3\t0.6\ncat\t1\t0.2\n", out)

	out, err = run(t, "", "dictionary", "top", "--closest", "dgo", dict)
	require.NoError(t, err)
	assert.Equal(t, "dog\t1\t0.2\n", out)

	out, err = run(t, "", "trie", "build", "--dictionary", dict, filepath.Join(dir, "dict.cbor"))
	require.NoError(t, err)
	assert.Equal(t, "wrote 3 keys to "+filepath.Join(dir, "dict.cbor")+"\n", out)
}

func TestGrammars(t *testing.T) {
	t.Setenv("TCU_CONFIG", "")
	t.Setenv("TCU_GRAMMARS", "")
	envconfig.LoadConfig()
	t.Cleanup(envconfig.LoadConfig)

	out, err := run(t, "", "grammars")
	require.NoError(t, err)
	assert.Equal(t, "calc\tlr1\tbuiltin\njson\tlr1\tbuiltin\ntest\tlr1\tbuiltin\n", out)
}

func TestLogFlags(t *testing.T) {
	_, err := run(t, "", "--log-format", "xml", "grammars")
	assert.Error(t, err)

	_, err = run(t, "", "--log-level", "loud", "grammars")
	assert.Error(t, err)
}
