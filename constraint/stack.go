package constraint

import (
	"slices"

	"github.com/ad-freiburg/text-correction-utils/grammar"
	"github.com/ad-freiburg/text-correction-utils/lexer"
)

// Action is the effect of shifting one token onto a parser stack: keep the
// first Keep states and push Push on top of them.
type Action struct {
	Keep  int
	Push  []grammar.StateID
	Token grammar.TokenID
}

// Apply returns the stack after the action. stack is not modified.
func (a Action) Apply(stack []grammar.StateID) []grammar.StateID {
	next := make([]grammar.StateID, 0, a.Keep+len(a.Push))
	next = append(next, stack[:a.Keep]...)
	return append(next, a.Push...)
}

type outcome int

const (
	rejected outcome = iota
	shifted
	accepted
)

// shiftReduce replays the reductions triggered by token on stack until the
// token is shifted, accepted or rejected. The stack is only read; states
// pushed by goto transitions are kept in a separate tail so that reductions
// of empty productions work without copying the stack.
func shiftReduce(tbl *grammar.Table, stack []grammar.StateID, token grammar.TokenID) (Action, outcome) {
	if len(stack) == 0 {
		return Action{}, rejected
	}

	g := tbl.Grammar()
	keep := len(stack)
	var push []grammar.StateID
	top := func() grammar.StateID {
		if len(push) > 0 {
			return push[len(push)-1]
		}
		return stack[keep-1]
	}

	for {
		a := tbl.Action(top(), token)
		switch a.Kind {
		case grammar.Shift:
			return Action{Keep: keep, Push: append(push, a.State), Token: token}, shifted
		case grammar.Reduce:
			p := g.Prod(a.Prod)
			n := len(p.Symbols)
			if n <= len(push) {
				push = push[:len(push)-n]
			} else {
				keep -= n - len(push)
				push = push[:0]
			}
			if keep < 1 {
				return Action{}, rejected
			}

			next, ok := tbl.Goto(top(), p.Rule)
			if !ok {
				return Action{}, rejected
			}
			push = append(push, next)
		case grammar.Accept:
			return Action{}, accepted
		default:
			return Action{}, rejected
		}
	}
}

// drive runs the non-ignore tokens through the parser starting at stack and
// returns the resulting stack. stack is not modified.
func drive(tbl *grammar.Table, stack []grammar.StateID, tokens []lexer.TokenRef) ([]grammar.StateID, bool) {
	g := tbl.Grammar()
	stack = slices.Clone(stack)

	for i := 0; i < len(tokens); {
		if tokens[i].Ignore {
			i++
			continue
		}

		if len(stack) == 0 {
			return nil, false
		}

		a := tbl.Action(stack[len(stack)-1], tokens[i].ID)
		switch a.Kind {
		case grammar.Shift:
			stack = append(stack, a.State)
			i++
		case grammar.Reduce:
			p := g.Prod(a.Prod)
			stack = stack[:len(stack)-len(p.Symbols)]
			if len(stack) == 0 {
				return nil, false
			}

			next, ok := tbl.Goto(stack[len(stack)-1], p.Rule)
			if !ok {
				return nil, false
			}
			stack = append(stack, next)
		default:
			// accept only happens on end of input, which is never driven
			return nil, false
		}
	}

	return stack, true
}

// canShift reports whether token can be shifted after the reductions it
// triggers on stack.
func canShift(tbl *grammar.Table, stack []grammar.StateID, token grammar.TokenID) bool {
	if tbl.Action(stack[len(stack)-1], token).Kind == grammar.Error {
		return false
	}
	_, o := shiftReduce(tbl, stack, token)
	return o == shifted
}

// matchable returns the indices of the entries whose token the parser can
// shift next. Ignore entries are always matchable.
func matchable(tbl *grammar.Table, entries []lexer.Entry, stack []grammar.StateID) []int {
	var out []int
	for i, e := range entries {
		if e.Ignore || canShift(tbl, stack, e.Token) {
			out = append(out, i)
		}
	}
	return out
}

// filterMatching drops the entries of m whose token the parser cannot shift
// next. The lexer frontier knows nothing about the grammar, so this is
// needed after every lexing step.
func filterMatching(tbl *grammar.Table, entries []lexer.Entry, stack []grammar.StateID, m lexer.Matching) lexer.Matching {
	out := make(lexer.Matching, 0, len(m))
	for _, s := range m {
		if e := entries[s.Index]; e.Ignore || canShift(tbl, stack, e.Token) {
			out = append(out, s)
		}
	}
	return out
}

// onlySkippable reports whether every entry in m is an ignore entry in a
// match state.
func onlySkippable(entries []lexer.Entry, m lexer.Matching) bool {
	for _, s := range m {
		e := entries[s.Index]
		if !e.Ignore || !e.DFA.IsMatch(s.State) {
			return false
		}
	}
	return true
}

func isAccept(tbl *grammar.Table, stack []grammar.StateID) bool {
	_, o := shiftReduce(tbl, stack, tbl.Grammar().EOF())
	return o == accepted
}

// isMatch reports whether the input so far is a complete parse. At a token
// boundary this is the case if the stack accepts. Otherwise the unfinished
// token has to be closable: an ignore entry in a match state leaves the
// stack as it is, a non-ignore entry has to lead to an accepting stack.
func isMatch(tbl *grammar.Table, entries []lexer.Entry, s LR1State) bool {
	if s.Partial == 0 {
		return isAccept(tbl, s.Stack)
	}

	for _, m := range s.Matching {
		e := entries[m.Index]
		if !e.DFA.IsMatch(m.State) {
			continue
		}

		if e.Ignore {
			if isAccept(tbl, s.Stack) {
				return true
			}
			continue
		}

		a, o := shiftReduce(tbl, s.Stack, e.Token)
		if o == shifted && isAccept(tbl, a.Apply(s.Stack)) {
			return true
		}
	}

	return false
}
