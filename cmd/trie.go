package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"iter"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ad-freiburg/text-correction-utils/constraint"
	"github.com/ad-freiburg/text-correction-utils/dictionary"
	"github.com/ad-freiburg/text-correction-utils/trie"
)

var errUnknownTrieType = errors.New("unknown trie type")

func newTrie(typ string) (trie.ContinuationSearch[int], error) {
	switch typ {
	case "art":
		return trie.NewART[int](), nil
	case "patricia":
		return trie.NewPatricia[int](), nil
	case "vec":
		return trie.NewVec[int](), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownTrieType, typ)
	}
}

func loadTrie(cmd *cobra.Command, path string) (trie.ContinuationSearch[int], error) {
	typ, _ := cmd.Flags().GetString("type")
	t, err := newTrie(typ)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := trie.Load[int](bufio.NewReader(f), t); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// keys yields the lines of path with their line index, or the entries of a
// dictionary with their frequencies.
func keys(path string, fromDictionary bool) (iter.Seq2[[]byte, int], error) {
	if fromDictionary {
		d, err := dictionary.LoadFile(path)
		if err != nil {
			return nil, err
		}

		entries := d.TopK(0)
		return func(yield func([]byte, int) bool) {
			for _, e := range entries {
				if !yield([]byte(e.Token), e.Freq) {
					return
				}
			}
		}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, []byte(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return func(yield func([]byte, int) bool) {
		for i, l := range lines {
			if !yield(l, i) {
				return
			}
		}
	}, nil
}

func TrieBuildHandler(cmd *cobra.Command, args []string) error {
	typ, _ := cmd.Flags().GetString("type")
	fromDictionary, _ := cmd.Flags().GetBool("dictionary")

	seq, err := keys(args[0], fromDictionary)
	if err != nil {
		return err
	}

	var t trie.ContinuationSearch[int]
	if typ == "vec" {
		t = trie.VecFromEntries(seq)
	} else {
		t, err = newTrie(typ)
		if err != nil {
			return err
		}
		trie.Fill[int](t, seq)
	}

	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := trie.Save(w, t); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d keys to %s\n", t.Len(), args[1])
	return f.Close()
}

func TrieQueryHandler(cmd *cobra.Command, args []string) error {
	t, err := loadTrie(cmd, args[0])
	if err != nil {
		return err
	}

	prefix := []byte(args[1])

	if path, _ := cmd.Flags().GetString("continuations"); path != "" {
		conts, err := constraint.LoadContinuations(path)
		if err != nil {
			return err
		}

		var rows [][]string
		for _, i := range trie.NewContinuationTrie(t, conts).ContinuationIndices(prefix) {
			rows = append(rows, []string{strconv.Itoa(i), strconv.Quote(string(conts[i]))})
		}
		render(cmd.OutOrStdout(), []string{"INDEX", "CONTINUATION"}, rows)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")

	var rows [][]string
	for k, v := range t.Continuations(prefix) {
		if limit > 0 && len(rows) >= limit {
			break
		}
		rows = append(rows, []string{string(prefix) + string(k), strconv.Itoa(v)})
	}
	render(cmd.OutOrStdout(), []string{"KEY", "VALUE"}, rows)
	return nil
}

func TrieStatsHandler(cmd *cobra.Command, args []string) error {
	t, err := loadTrie(cmd, args[0])
	if err != nil {
		return err
	}

	stats := t.Stats()
	w := cmd.OutOrStdout()

	render(w, []string{"STAT", "VALUE"}, [][]string{
		{"keys", strconv.Itoa(stats.Keys)},
		{"nodes", strconv.Itoa(stats.Nodes)},
		{"max depth", strconv.Itoa(stats.MaxDepth)},
		{"avg depth", strconv.FormatFloat(stats.AvgDepth, 'f', 2, 64)},
	})

	if len(stats.Kinds) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	var rows [][]string
	for _, name := range stats.KindNames() {
		k := stats.Kinds[name]
		rows = append(rows, []string{name, strconv.Itoa(k.Count), strconv.FormatFloat(k.AvgPrefix(), 'f', 2, 64)})
	}
	render(w, []string{"KIND", "COUNT", "AVG PREFIX"}, rows)
	return nil
}
