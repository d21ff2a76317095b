// Package lexer splits text into grammar tokens with prefix automata. The
// lexer can stop at any byte and resume later from the entries that still
// match the unfinished token.
package lexer

import (
	"fmt"

	"github.com/ad-freiburg/text-correction-utils/grammar"
	"github.com/ad-freiburg/text-correction-utils/pdfa"
)

// Entry is a token pattern. Ignore entries produce tokens that are never
// passed to the parser, such as whitespace.
type Entry struct {
	DFA    *pdfa.PrefixDFA
	Token  grammar.TokenID
	Ignore bool
}

// State is an entry together with the state its automaton reached on the
// unfinished token.
type State struct {
	Index int
	State pdfa.StateID
}

// Matching is the set of entries still matching the unfinished token, in
// entry order.
type Matching []State

type Span struct {
	Start int
	Len   int
}

func (s Span) End() int {
	return s.Start + s.Len
}

type TokenRef struct {
	ID     grammar.TokenID
	Ignore bool
}

// Output is the result of lexing a prefix. Spans has one span per token.
// Last is the span of the unfinished token matched by Matching.
type Output struct {
	Tokens   []TokenRef
	Spans    []Span
	Matching Matching
	Last     Span
}

// Error is returned when no entry matches the text at Offset.
type Error struct {
	Offset    int
	Remaining []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("no matching token found from position %d: %q", e.Offset, e.Remaining)
}

// Initial returns every entry in its start state.
func Initial(entries []Entry) Matching {
	m := make(Matching, len(entries))
	for i, e := range entries {
		m[i] = State{Index: i, State: e.DFA.Start()}
	}
	return m
}

func (e Entry) ref() TokenRef {
	return TokenRef{ID: e.Token, Ignore: e.Ignore}
}

// next scans text from matching. If some entries are still alive at the
// end of text, they are returned as open, unless all of them are in a final
// match state, in which case the first of them closes a token spanning all
// of text. Otherwise the longest match wins, ties going to the earliest
// entry.
func next(entries []Entry, text []byte, matching Matching) (length, index int, open Matching, ok bool) {
	index = -1
	for _, m := range matching {
		match := entries[m.Index].DFA.FindPrefixMatch(m.State, text)
		switch match.Kind {
		case pdfa.Maybe:
			open = append(open, State{Index: m.Index, State: match.State})
		case pdfa.UpTo:
			if index < 0 || match.End > length {
				length, index = match.End, m.Index
			}
		}
	}

	if len(open) > 0 {
		for _, m := range open {
			if !entries[m.Index].DFA.IsFinalMatch(m.State) {
				return 0, -1, open, true
			}
		}
		return len(text), open[0].Index, nil, true
	}

	return length, index, nil, index >= 0
}

// Prefix lexes prefix from the initial matching.
func Prefix(entries []Entry, prefix []byte) (Output, error) {
	return PrefixWith(entries, prefix, Initial(entries))
}

// PrefixWith continues lexing with continuation from a matching returned by
// an earlier call. Spans are relative to continuation.
func PrefixWith(entries []Entry, continuation []byte, matching Matching) (Output, error) {
	var out Output
	var i int
	for i < len(continuation) {
		length, index, open, ok := next(entries, continuation[i:], matching)
		if !ok {
			return Output{}, &Error{Offset: i, Remaining: continuation[i:]}
		}

		if open != nil {
			matching = open
			break
		}

		out.Tokens = append(out.Tokens, entries[index].ref())
		out.Spans = append(out.Spans, Span{Start: i, Len: length})
		i += length
		matching = Initial(entries)
	}

	out.Matching = matching
	out.Last = Span{Start: i, Len: len(continuation) - i}
	return out, nil
}

// Lex splits text into tokens. The unfinished token at the end of text is
// closed by the first entry matching it, and is an error if none does.
func Lex(entries []Entry, text []byte) ([]TokenRef, []Span, error) {
	out, err := Prefix(entries, text)
	if err != nil {
		return nil, nil, err
	}

	if out.Last.Len == 0 {
		return out.Tokens, out.Spans, nil
	}

	for _, m := range out.Matching {
		if entries[m.Index].DFA.IsMatch(m.State) {
			out.Tokens = append(out.Tokens, entries[m.Index].ref())
			out.Spans = append(out.Spans, out.Last)
			return out.Tokens, out.Spans, nil
		}
	}

	return nil, nil, &Error{Offset: out.Last.Start, Remaining: text[out.Last.Start:]}
}

// Combine joins the output of lexing a prefix with the output of continuing
// it, as if both had been lexed at once.
func Combine(first, second Output) Output {
	out := Output{
		Tokens:   append(append([]TokenRef(nil), first.Tokens...), second.Tokens...),
		Spans:    append([]Span(nil), first.Spans...),
		Matching: second.Matching,
	}

	offset := first.Last.End()
	if len(second.Spans) == 0 {
		out.Last = Span{Start: first.Last.Start, Len: first.Last.Len + second.Last.Len}
		return out
	}

	out.Spans = append(out.Spans, Span{Start: first.Last.Start, Len: first.Last.Len + second.Spans[0].Len})
	for _, s := range second.Spans[1:] {
		out.Spans = append(out.Spans, Span{Start: offset + s.Start, Len: s.Len})
	}
	out.Last = Span{Start: offset + second.Last.Start, Len: second.Last.Len}
	return out
}
