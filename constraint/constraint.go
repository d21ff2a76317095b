// Package constraint decides which candidate continuations keep a prefix
// valid under a regular expression or an LR(1) grammar.
package constraint

import (
	"log/slog"
	"slices"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/ad-freiburg/text-correction-utils/grammar"
	"github.com/ad-freiburg/text-correction-utils/lexer"
	"github.com/ad-freiburg/text-correction-utils/pdfa"
	"github.com/ad-freiburg/text-correction-utils/trie"
)

// Constraint is implemented by the regex and grammar constraints. S is the
// state after a prefix, N the state reached by one of the valid
// continuations.
type Constraint[S, N any] interface {
	StartState() S
	State(prefix []byte) (S, bool)
	IsMatch(S) bool
	ValidContinuations(S) ([]int, []N)
}

var (
	_ Constraint[LR1State, LR1State]         = (*LR1)(nil)
	_ Constraint[LR1State, ExactNext]        = (*ExactLR1)(nil)
	_ Constraint[pdfa.StateID, pdfa.StateID] = (*Regex)(nil)
)

// candidates holds the continuations of a constraint in optimized prefix
// order.
type candidates struct {
	continuations [][]byte
	permutation   []int
	skips         []int
}

func newCandidates(continuations [][]byte) candidates {
	permutation, skips := trie.OptimizedPrefixOrder(continuations)
	return candidates{continuations: continuations, permutation: permutation, skips: skips}
}

func (c candidates) Continuations() [][]byte {
	return c.continuations
}

// walk calls fn for every continuation in prefix order and returns the
// accepted indices with their states, sorted by index. When fn rejects a
// continuation all its extensions are skipped.
func walk[N any](c candidates, fn func([]byte) (N, bool)) ([]int, []N) {
	results := treemap.NewWithIntComparator()
	for i := 0; i < len(c.permutation); {
		skip, j := c.skips[i], c.permutation[i]
		i++

		next, ok := fn(c.continuations[j])
		if !ok {
			i += skip
			continue
		}
		results.Put(j, next)
	}

	indices := make([]int, 0, results.Size())
	states := make([]N, 0, results.Size())
	it := results.Iterator()
	for it.Next() {
		indices = append(indices, it.Key().(int))
		states = append(states, it.Value().(N))
	}
	return indices, states
}

// LR1State is the parser stack together with the lexer frontier of the
// unfinished token. Partial is the number of bytes the unfinished token has
// consumed. It is state on top of the stack and the frontier: with Partial
// zero the input ends at a token boundary and a bare accepting stack is a
// match, otherwise the unfinished token has to be closed first, so a bare
// accepting stack only counts when an ignore entry can close it.
type LR1State struct {
	Stack    []grammar.StateID
	Matching lexer.Matching
	Partial  int
}

// Clone returns a deep copy of s.
func (s LR1State) Clone() LR1State {
	return LR1State{Stack: slices.Clone(s.Stack), Matching: slices.Clone(s.Matching), Partial: s.Partial}
}

// Next advances s to a state returned by ExactLR1.ValidContinuations.
func (s *LR1State) Next(n ExactNext) {
	if n.Action != nil {
		s.Stack = n.Action.Apply(s.Stack)
	}
	s.Matching = n.Matching
	s.Partial = n.Partial
}

type grammarBase struct {
	candidates
	table   *grammar.Table
	entries []lexer.Entry
}

func newGrammarBase(tbl *grammar.Table, entries []lexer.Entry, continuations [][]byte) grammarBase {
	slog.Debug("grammar constraint", "states", tbl.NumStates(), "entries", len(entries), "continuations", len(continuations))
	return grammarBase{candidates: newCandidates(continuations), table: tbl, entries: entries}
}

func (b *grammarBase) State(prefix []byte) (LR1State, bool) {
	out, err := lexer.Prefix(b.entries, prefix)
	if err != nil {
		return LR1State{}, false
	}

	stack, ok := drive(b.table, []grammar.StateID{b.table.Start()}, out.Tokens)
	if !ok {
		return LR1State{}, false
	}

	matching := filterMatching(b.table, b.entries, stack, out.Matching)
	if len(matching) == 0 {
		return LR1State{}, false
	}

	return LR1State{Stack: stack, Matching: matching, Partial: out.Last.Len}, true
}

func (b *grammarBase) StartState() LR1State {
	s, ok := b.State(nil)
	if !ok {
		panic("constraint: grammar accepts no input")
	}
	return s
}

func (b *grammarBase) IsMatch(s LR1State) bool {
	return isMatch(b.table, b.entries, s)
}

// OnlySkippableMatching reports whether only ignore tokens are left to
// close in s.
func (b *grammarBase) OnlySkippableMatching(s LR1State) bool {
	return onlySkippable(b.entries, s.Matching)
}

func (b *grammarBase) Table() *grammar.Table {
	return b.table
}

// LR1 lexes every continuation from the frontier of the current state and
// drives the resulting tokens through the parser.
type LR1 struct {
	grammarBase
}

func NewLR1(tbl *grammar.Table, entries []lexer.Entry, continuations [][]byte) *LR1 {
	return &LR1{grammarBase: newGrammarBase(tbl, entries, continuations)}
}

func (c *LR1) ValidContinuations(s LR1State) ([]int, []LR1State) {
	return walk(c.candidates, func(cont []byte) (LR1State, bool) {
		out, err := lexer.PrefixWith(c.entries, cont, s.Matching)
		if err != nil {
			return LR1State{}, false
		}

		stack, ok := drive(c.table, s.Stack, out.Tokens)
		if !ok {
			return LR1State{}, false
		}

		matching := filterMatching(c.table, c.entries, stack, out.Matching)
		if len(matching) == 0 {
			return LR1State{}, false
		}

		partial := out.Last.Len
		if len(out.Spans) == 0 {
			partial += s.Partial
		}
		return LR1State{Stack: stack, Matching: matching, Partial: partial}, true
	})
}

// ExactNext is the state reached by a continuation of an ExactLR1 state.
// Action is set if the continuation closes the current token.
type ExactNext struct {
	Action   *Action
	Matching lexer.Matching
	Partial  int
}

// ExactLR1 only considers continuations that extend the current token or
// start exactly one new token after it. Continuations are driven over the
// token automata alone, which avoids lexing each of them.
type ExactLR1 struct {
	grammarBase
}

func NewExactLR1(tbl *grammar.Table, entries []lexer.Entry, continuations [][]byte) *ExactLR1 {
	return &ExactLR1{grammarBase: newGrammarBase(tbl, entries, continuations)}
}

func (c *ExactLR1) startStates(indices []int, cont []byte) lexer.Matching {
	var m lexer.Matching
	for _, i := range indices {
		dfa := c.entries[i].DFA
		if s, ok := dfa.Drive(dfa.Start(), cont); ok {
			m = append(m, lexer.State{Index: i, State: s})
		}
	}
	return m
}

// closing returns the action of the first non-ignore entry that can close
// its token in s. All entries in s have matched the same number of bytes,
// so this is the entry the lexer would pick.
func (c *ExactLR1) closing(s LR1State) (*Action, bool) {
	for _, m := range s.Matching {
		e := c.entries[m.Index]
		if e.Ignore || !e.DFA.IsMatch(m.State) {
			continue
		}

		a, o := shiftReduce(c.table, s.Stack, e.Token)
		if o != shifted {
			return nil, false
		}
		return &a, true
	}
	return nil, false
}

func (c *ExactLR1) ValidContinuations(s LR1State) ([]int, []ExactNext) {
	if len(s.Matching) == 0 {
		panic("constraint: continuations of a state without matching tokens")
	}

	var afterClose []int
	action, closable := c.closing(s)
	if closable {
		afterClose = matchable(c.table, c.entries, action.Apply(s.Stack))
	}

	skippable := onlySkippable(c.entries, s.Matching)
	current := matchable(c.table, c.entries, s.Stack)

	return walk(c.candidates, func(cont []byte) (ExactNext, bool) {
		var still lexer.Matching
		for _, m := range s.Matching {
			if next, ok := c.entries[m.Index].DFA.Drive(m.State, cont); ok {
				still = append(still, lexer.State{Index: m.Index, State: next})
			}
		}

		switch {
		case len(still) > 0:
			return ExactNext{Matching: still, Partial: s.Partial + len(cont)}, true
		case skippable:
			m := c.startStates(current, cont)
			return ExactNext{Matching: m, Partial: len(cont)}, len(m) > 0
		case closable:
			m := c.startStates(afterClose, cont)
			return ExactNext{Action: action, Matching: m, Partial: len(cont)}, len(m) > 0
		default:
			return ExactNext{}, false
		}
	})
}

// Regex constrains continuations to prefixes of a regular expression match.
type Regex struct {
	candidates
	dfa *pdfa.PrefixDFA
}

func NewRegex(pattern string, continuations [][]byte) (*Regex, error) {
	dfa, err := pdfa.New(pattern)
	if err != nil {
		return nil, err
	}
	return &Regex{candidates: newCandidates(continuations), dfa: dfa}, nil
}

func (c *Regex) StartState() pdfa.StateID {
	return c.dfa.Start()
}

func (c *Regex) State(prefix []byte) (pdfa.StateID, bool) {
	return c.dfa.Drive(c.dfa.Start(), prefix)
}

func (c *Regex) IsMatch(s pdfa.StateID) bool {
	return c.dfa.IsMatch(s)
}

func (c *Regex) ValidContinuations(s pdfa.StateID) ([]int, []pdfa.StateID) {
	return walk(c.candidates, func(cont []byte) (pdfa.StateID, bool) {
		return c.dfa.Drive(s, cont)
	})
}
