package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ad-freiburg/text-correction-utils/api"
	"github.com/ad-freiburg/text-correction-utils/constraint"
)

// sourceFromFlags builds the constraint source except for the grammar,
// which depends on local or remote execution.
func sourceFromFlags(cmd *cobra.Command) (constraint.Source, error) {
	s, _ := cmd.Flags().GetString("kind")
	pattern, _ := cmd.Flags().GetString("pattern")
	keysFile, _ := cmd.Flags().GetString("keys")
	switch {
	case s != "":
	case keysFile != "":
		s = string(constraint.KindContinuation)
	case pattern != "":
		s = string(constraint.KindRegex)
	}

	kind, err := constraint.ParseKind(s)
	if err != nil {
		return constraint.Source{}, err
	}

	src := constraint.Source{Kind: kind, Pattern: pattern}
	switch kind {
	case constraint.KindRegex:
		if pattern == "" {
			return constraint.Source{}, fmt.Errorf("--pattern is required for the %s constraint", kind)
		}
	case constraint.KindContinuation:
		if keysFile == "" {
			return constraint.Source{}, fmt.Errorf("--keys is required for the %s constraint", kind)
		}
		if src.Keys, src.Values, err = readKeys(keysFile); err != nil {
			return constraint.Source{}, err
		}
	}
	return src, nil
}

// readKeys reads one key per line, optionally followed by a tab and its
// value. Values are only returned if some line has one; keys without a
// value stand for themselves.
func readKeys(path string) ([]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var keys, values []string
	var hasValues bool
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, "\t")
		if !ok {
			value = key
		}
		hasValues = hasValues || ok
		keys = append(keys, key)
		values = append(values, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	if !hasValues {
		values = nil
	}
	return keys, values, nil
}

func usesGrammar(kind constraint.Kind) bool {
	return kind == constraint.KindLR1 || kind == constraint.KindExactLR1
}

func printSession(w io.Writer, conts [][]byte, indices []int, isMatch, shouldStop bool, value string) {
	fmt.Fprintf(w, "match: %t, stop: %t, valid: %d/%d\n", isMatch, shouldStop, len(indices), len(conts))
	if value != "" {
		fmt.Fprintf(w, "value: %s\n", value)
	}

	rows := make([][]string, 0, len(indices))
	for _, i := range indices {
		rows = append(rows, []string{strconv.Itoa(i), strconv.Quote(string(conts[i]))})
	}
	render(w, []string{"INDEX", "CONTINUATION"}, rows)
}

func ConstrainHandler(cmd *cobra.Command, args []string) error {
	conts, err := constraint.LoadContinuations(args[0])
	if err != nil {
		return err
	}

	src, err := sourceFromFlags(cmd)
	if err != nil {
		return err
	}

	prefix, _ := cmd.Flags().GetString("prefix")
	next, _ := cmd.Flags().GetIntSlice("next")

	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		return constrainRemote(cmd, src, prefix, next, conts)
	}

	if usesGrammar(src.Kind) {
		src.Grammar, src.Lexer, err = grammarFromFlags(cmd)
		if err != nil {
			return err
		}
	}

	e, err := constraint.NewEngine(src, conts)
	if err != nil {
		return err
	}

	s, err := constraint.NewSession(e, []byte(prefix))
	if err != nil {
		return err
	}

	for _, i := range next {
		if err := s.Next(i); err != nil {
			return err
		}
	}

	value, _ := s.Value()
	printSession(cmd.OutOrStdout(), conts, s.Get(), s.IsMatch(), s.ShouldStop(), value)
	return nil
}

func constrainRemote(cmd *cobra.Command, src constraint.Source, prefix string, next []int, conts [][]byte) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	req := &api.SessionRequest{
		Kind:          string(src.Kind),
		Pattern:       src.Pattern,
		Keys:          src.Keys,
		Values:        src.Values,
		Prefix:        prefix,
		Continuations: make([]string, len(conts)),
	}
	for i, c := range conts {
		req.Continuations[i] = string(c)
	}

	if usesGrammar(src.Kind) {
		if name, _ := cmd.Flags().GetString("grammar"); name != "" {
			req.Grammar = name
		} else {
			req.GrammarText, req.LexerText, err = grammarFromFlags(cmd)
			if err != nil {
				return err
			}
		}
	}

	ctx := cmd.Context()
	resp, err := client.CreateSession(ctx, req)
	if err != nil {
		return err
	}

	id := resp.ID
	defer func() {
		if err := client.DeleteSession(ctx, id); err != nil {
			slog.Warn("failed to delete session", "id", id, "error", err)
		}
	}()

	for _, i := range next {
		resp, err = client.Next(ctx, id, i)
		if err != nil {
			return err
		}
	}

	printSession(cmd.OutOrStdout(), conts, resp.Indices, resp.IsMatch, resp.ShouldStop, resp.Value)
	return nil
}
