package constraint

import (
	"errors"
	"fmt"

	"github.com/ad-freiburg/text-correction-utils/lexer"
	"github.com/ad-freiburg/text-correction-utils/pdfa"
)

// Kind selects a constraint implementation.
type Kind string

const (
	KindRegex        Kind = "regex"
	KindLR1          Kind = "lr1"
	KindExactLR1     Kind = "exact-lr1"
	KindContinuation Kind = "continuation"
)

var (
	ErrUnknownKind   = errors.New("unknown constraint kind")
	ErrInvalidSource = errors.New("invalid constraint source")
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindRegex, KindLR1, KindExactLR1, KindContinuation:
		return k, nil
	case "":
		return KindLR1, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// State is an engine state. Its concrete type depends on the engine. States
// are never modified once returned.
type State any

// Engine adapts a constraint to the untyped form used by sessions.
type Engine interface {
	Kind() Kind
	Continuations() [][]byte
	State(prefix []byte) (State, bool)
	IsMatch(State) bool
	ShouldStop(State) bool
	ValidContinuations(State) ([]int, []State)
	// Advance returns the state reached from s by a next state returned by
	// ValidContinuations.
	Advance(s, next State) State
}

// Valuer is implemented by engines whose matches carry a value.
type Valuer interface {
	Value(State) (string, bool)
}

// Source describes how to build an engine. Grammar and Lexer are used by
// the grammar kinds, Pattern by the regex kind, Keys and Values by the
// continuation kind. Values is either empty or parallel to Keys.
type Source struct {
	Kind    Kind
	Grammar string
	Lexer   string
	Pattern string
	Keys    []string
	Values  []string
}

// NewEngine compiles src into an engine over continuations.
func NewEngine(src Source, continuations [][]byte) (Engine, error) {
	kind, err := ParseKind(string(src.Kind))
	if err != nil {
		return nil, err
	}

	if kind == KindRegex {
		c, err := NewRegex(src.Pattern, continuations)
		if err != nil {
			return nil, fmt.Errorf("regex constraint from pattern %q: %w", src.Pattern, err)
		}
		return c.Engine(), nil
	}

	if kind == KindContinuation {
		if len(src.Keys) == 0 {
			return nil, fmt.Errorf("%w: continuation constraint without keys", ErrInvalidSource)
		}
		if len(src.Values) > 0 && len(src.Values) != len(src.Keys) {
			return nil, fmt.Errorf("%w: %d values for %d keys", ErrInvalidSource, len(src.Values), len(src.Keys))
		}
		return NewContinuationFromKeys(src.Keys, src.Values, continuations).Engine(), nil
	}

	tbl, entries, err := lexer.LoadGrammarAndPDFAs(src.Grammar, src.Lexer)
	if err != nil {
		return nil, fmt.Errorf("LR(1) grammar constraint: %w", err)
	}

	if kind == KindExactLR1 {
		return NewExactLR1(tbl, entries, continuations).Engine(), nil
	}
	return NewLR1(tbl, entries, continuations).Engine(), nil
}

type lr1Engine struct{ *LR1 }

func (c *LR1) Engine() Engine {
	return lr1Engine{c}
}

func (lr1Engine) Kind() Kind { return KindLR1 }

func (e lr1Engine) State(prefix []byte) (State, bool) {
	return e.LR1.State(prefix)
}

func (e lr1Engine) IsMatch(s State) bool {
	return e.LR1.IsMatch(s.(LR1State))
}

func (e lr1Engine) ShouldStop(s State) bool {
	return e.LR1.IsMatch(s.(LR1State)) && e.OnlySkippableMatching(s.(LR1State))
}

func (e lr1Engine) ValidContinuations(s State) ([]int, []State) {
	indices, next := e.LR1.ValidContinuations(s.(LR1State))
	return indices, states(next)
}

func (lr1Engine) Advance(_, next State) State {
	return next
}

type exactEngine struct{ *ExactLR1 }

func (c *ExactLR1) Engine() Engine {
	return exactEngine{c}
}

func (exactEngine) Kind() Kind { return KindExactLR1 }

func (e exactEngine) State(prefix []byte) (State, bool) {
	return e.ExactLR1.State(prefix)
}

func (e exactEngine) IsMatch(s State) bool {
	return e.ExactLR1.IsMatch(s.(LR1State))
}

func (e exactEngine) ShouldStop(s State) bool {
	return e.ExactLR1.IsMatch(s.(LR1State)) && e.OnlySkippableMatching(s.(LR1State))
}

func (e exactEngine) ValidContinuations(s State) ([]int, []State) {
	indices, next := e.ExactLR1.ValidContinuations(s.(LR1State))
	return indices, states(next)
}

func (exactEngine) Advance(s, next State) State {
	state := s.(LR1State)
	state.Next(next.(ExactNext))
	return state
}

type regexEngine struct{ *Regex }

func (c *Regex) Engine() Engine {
	return regexEngine{c}
}

func (regexEngine) Kind() Kind { return KindRegex }

func (e regexEngine) State(prefix []byte) (State, bool) {
	return e.Regex.State(prefix)
}

func (e regexEngine) IsMatch(s State) bool {
	return e.Regex.IsMatch(s.(pdfa.StateID))
}

// ShouldStop is always false for regular expressions: a match can be
// extended as long as the automaton is alive.
func (regexEngine) ShouldStop(State) bool {
	return false
}

func (e regexEngine) ValidContinuations(s State) ([]int, []State) {
	indices, next := e.Regex.ValidContinuations(s.(pdfa.StateID))
	return indices, states(next)
}

func (regexEngine) Advance(_, next State) State {
	return next
}

type continuationEngine struct{ *Continuation }

func (c *Continuation) Engine() Engine {
	return continuationEngine{c}
}

func (continuationEngine) Kind() Kind { return KindContinuation }

func (e continuationEngine) State(prefix []byte) (State, bool) {
	return e.Continuation.State(prefix)
}

func (e continuationEngine) IsMatch(s State) bool {
	return e.Continuation.IsMatch(s.([]byte))
}

// ShouldStop is always false: a key may be a prefix of a longer key.
func (continuationEngine) ShouldStop(State) bool {
	return false
}

func (e continuationEngine) ValidContinuations(s State) ([]int, []State) {
	indices, next := e.Continuation.ValidContinuations(s.([]byte))
	return indices, states(next)
}

func (continuationEngine) Advance(_, next State) State {
	return next
}

func (e continuationEngine) Value(s State) (string, bool) {
	return e.Continuation.Value(s.([]byte))
}

func states[N any](ns []N) []State {
	out := make([]State, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}
