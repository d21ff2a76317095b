// Package pdfa compiles regular expressions into lazily determinized byte
// automata that can be advanced incrementally over prefixes of the input.
package pdfa

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp/syntax"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// StateID identifies a state of a PrefixDFA.
type StateID uint32

const (
	// DeadState is the state from which no input can lead to a match.
	DeadState StateID = 0

	unknownState StateID = 0xFFFFFFFF
)

var ErrEmptyWidth = errors.New("empty-width assertions are not supported")

// SyntaxError is returned by New for patterns that cannot be compiled.
type SyntaxError struct {
	Pattern string
	Err     error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

var unknownTransitions [256]StateID

func init() {
	for i := range unknownTransitions {
		unknownTransitions[i] = unknownState
	}
}

type state struct {
	key []byte

	// pcs are the consuming and matching instructions reachable after the
	// input seen so far, sorted.
	pcs []uint32

	// pending holds the leading bytes of an incomplete UTF-8 sequence.
	pending []byte

	match bool
	final bool

	trans [256]StateID
}

// PrefixDFA is a deterministic automaton for an anchored regular
// expression. States are created on demand; all methods are safe for
// concurrent use.
type PrefixDFA struct {
	pattern string
	prog    *syntax.Prog

	mu     sync.RWMutex
	states []*state
	index  map[uint64][]StateID
	start  StateID
}

// New compiles pattern with Perl syntax. Patterns are anchored at the start
// of the input.
func New(pattern string) (*PrefixDFA, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, &SyntaxError{Pattern: pattern, Err: err}
	}

	prog, err := syntax.Compile(re.Simplify())
	if err != nil {
		return nil, &SyntaxError{Pattern: pattern, Err: err}
	}

	for _, inst := range prog.Inst {
		if inst.Op == syntax.InstEmptyWidth {
			return nil, &SyntaxError{Pattern: pattern, Err: ErrEmptyWidth}
		}
	}

	d := &PrefixDFA{
		pattern: pattern,
		prog:    prog,
		index:   make(map[uint64][]StateID),
	}

	// the dead state loops onto itself
	d.states = append(d.states, &state{})

	d.start = d.intern(d.closure([]uint32{uint32(prog.Start)}), nil)
	return d, nil
}

// MustNew is like New but panics on error.
func MustNew(pattern string) *PrefixDFA {
	d, err := New(pattern)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *PrefixDFA) Pattern() string {
	return d.pattern
}

// NumStates returns the number of states materialized so far, including
// the dead state.
func (d *PrefixDFA) NumStates() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.states)
}

func (d *PrefixDFA) Start() StateID {
	return d.start
}

func (d *PrefixDFA) IsDead(s StateID) bool {
	return s == DeadState
}

// IsMatch reports whether the input consumed to reach s is matched by the
// pattern.
func (d *PrefixDFA) IsMatch(s StateID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.states[s].match
}

// IsFinalMatch reports whether s is a match state that no further byte can
// extend.
func (d *PrefixDFA) IsFinalMatch(s StateID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.states[s].final
}

// Drive advances s over p. It returns false as soon as the automaton can no
// longer reach a match.
func (d *PrefixDFA) Drive(s StateID, p []byte) (StateID, bool) {
	if s == DeadState {
		return DeadState, false
	}

	for _, b := range p {
		s = d.next(s, b)
		if s == DeadState {
			return DeadState, false
		}
	}

	return s, true
}

// FindPrefixMatch scans p starting from s. See MatchKind for the possible
// outcomes.
func (d *PrefixDFA) FindPrefixMatch(s StateID, p []byte) Match {
	if s == DeadState {
		return Match{Kind: None}
	}

	end, at := -1, s
	if d.IsMatch(s) {
		end = 0
	}

	for i, b := range p {
		s = d.next(s, b)
		if s == DeadState {
			if end < 0 {
				return Match{Kind: None}
			}
			return Match{Kind: UpTo, End: end, State: at}
		}

		if d.IsMatch(s) {
			end, at = i+1, s
		}
	}

	return Match{Kind: Maybe, End: len(p), State: s}
}

func (d *PrefixDFA) next(s StateID, b byte) StateID {
	d.mu.RLock()
	t := d.states[s].trans[b]
	d.mu.RUnlock()
	if t != unknownState {
		return t
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.states[s]
	if t = st.trans[b]; t != unknownState {
		return t
	}

	t = d.step(st, b)
	st.trans[b] = t
	return t
}

// step computes the successor of st on b. The write lock must be held.
func (d *PrefixDFA) step(st *state, b byte) StateID {
	var seq []byte
	if len(st.pending) == 0 {
		switch {
		case b < utf8.RuneSelf:
			return d.intern(d.stepRune(st.pcs, rune(b)), nil)
		case b >= 0xC2 && b <= 0xF4:
			seq = []byte{b}
		default:
			return DeadState
		}
	} else {
		lo, hi := continuationRange(st.pending)
		if b < lo || b > hi {
			return DeadState
		}
		seq = append(slices.Clone(st.pending), b)
	}

	if utf8.FullRune(seq) {
		r, _ := utf8.DecodeRune(seq)
		return d.intern(d.stepRune(st.pcs, r), nil)
	}

	lo, hi := runeBounds(seq)
	if !d.canConsume(st.pcs, lo, hi) {
		return DeadState
	}

	return d.intern(st.pcs, seq)
}

func (d *PrefixDFA) stepRune(pcs []uint32, r rune) []uint32 {
	var next []uint32
	for _, pc := range pcs {
		inst := &d.prog.Inst[pc]
		switch inst.Op {
		case syntax.InstRuneAny:
			next = append(next, inst.Out)
		case syntax.InstRuneAnyNotNL:
			if r != '\n' {
				next = append(next, inst.Out)
			}
		case syntax.InstRune, syntax.InstRune1:
			if inst.MatchRune(r) {
				next = append(next, inst.Out)
			}
		}
	}
	return d.closure(next)
}

// canConsume reports whether some instruction in pcs accepts a rune in
// [lo, hi]. Case folded classes are assumed to.
func (d *PrefixDFA) canConsume(pcs []uint32, lo, hi rune) bool {
	for _, pc := range pcs {
		inst := &d.prog.Inst[pc]
		switch inst.Op {
		case syntax.InstRuneAny, syntax.InstRuneAnyNotNL:
			return true
		case syntax.InstRune1:
			if r := inst.Rune[0]; lo <= r && r <= hi {
				return true
			}
		case syntax.InstRune:
			if syntax.Flags(inst.Arg)&syntax.FoldCase != 0 {
				return true
			}

			if len(inst.Rune) == 1 {
				if r := inst.Rune[0]; lo <= r && r <= hi {
					return true
				}
				continue
			}

			for i := 0; i+1 < len(inst.Rune); i += 2 {
				if inst.Rune[i] <= hi && inst.Rune[i+1] >= lo {
					return true
				}
			}
		}
	}
	return false
}

// closure follows empty transitions from roots and returns the sorted set
// of consuming and matching instructions reached.
func (d *PrefixDFA) closure(roots []uint32) []uint32 {
	seen := make([]bool, len(d.prog.Inst))
	stack := slices.Clone(roots)

	var pcs []uint32
	for len(stack) > 0 {
		pc := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[pc] {
			continue
		}
		seen[pc] = true

		inst := &d.prog.Inst[pc]
		switch inst.Op {
		case syntax.InstAlt, syntax.InstAltMatch:
			stack = append(stack, inst.Arg, inst.Out)
		case syntax.InstCapture, syntax.InstNop:
			stack = append(stack, inst.Out)
		case syntax.InstMatch, syntax.InstRune, syntax.InstRune1, syntax.InstRuneAny, syntax.InstRuneAnyNotNL:
			pcs = append(pcs, pc)
		}
	}

	slices.Sort(pcs)
	return pcs
}

// intern returns the id of the state for (pcs, pending), creating it if
// needed. The write lock must be held, except during construction.
func (d *PrefixDFA) intern(pcs []uint32, pending []byte) StateID {
	if len(pcs) == 0 {
		return DeadState
	}

	key := make([]byte, 0, 4*len(pcs)+len(pending)+1)
	for _, pc := range pcs {
		key = binary.LittleEndian.AppendUint32(key, pc)
	}
	key = append(key, byte(len(pending)))
	key = append(key, pending...)

	h := xxhash.Sum64(key)
	for _, id := range d.index[h] {
		if bytes.Equal(d.states[id].key, key) {
			return id
		}
	}

	st := &state{
		key:     key,
		pcs:     pcs,
		pending: pending,
		trans:   unknownTransitions,
	}

	if len(pending) == 0 {
		final := true
		for _, pc := range pcs {
			if d.prog.Inst[pc].Op == syntax.InstMatch {
				st.match = true
			} else {
				final = false
			}
		}
		st.final = st.match && final
	}

	id := StateID(len(d.states))
	d.states = append(d.states, st)
	d.index[h] = append(d.index[h], id)
	return id
}

// continuationRange returns the valid range of the byte following the
// incomplete sequence p.
func continuationRange(p []byte) (byte, byte) {
	if len(p) == 1 {
		switch p[0] {
		case 0xE0:
			return 0xA0, 0xBF
		case 0xED:
			return 0x80, 0x9F
		case 0xF0:
			return 0x90, 0xBF
		case 0xF4:
			return 0x80, 0x8F
		}
	}
	return 0x80, 0xBF
}

// runeBounds returns the smallest and largest rune whose encoding starts
// with the incomplete sequence p.
func runeBounds(p []byte) (rune, rune) {
	n := 2
	switch {
	case p[0] >= 0xF0:
		n = 4
	case p[0] >= 0xE0:
		n = 3
	}

	lo, hi := slices.Clone(p), slices.Clone(p)
	for len(lo) < n {
		l, h := byte(0x80), byte(0xBF)
		if len(lo) == 1 {
			l, h = continuationRange(p[:1])
		}
		lo, hi = append(lo, l), append(hi, h)
	}

	rlo, _ := utf8.DecodeRune(lo)
	rhi, _ := utf8.DecodeRune(hi)
	return rlo, rhi
}
