package constraint

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

var (
	ErrInvalidPrefix       = errors.New("prefix is not valid under the constraint")
	ErrInvalidContinuation = errors.New("continuation is not valid in the current state")
)

// Session tracks the state of one decoding run. The valid continuations of
// the current state are computed eagerly so that Next can commit one of them
// without recomputation. A session is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	engine  Engine
	state   State
	indices []int
	next    []State
	match   bool
}

func NewSession(e Engine, prefix []byte) (*Session, error) {
	s := &Session{engine: e}
	if err := s.Reset(prefix); err != nil {
		return nil, err
	}
	return s, nil
}

// update computes the continuations of the current state. The caller must
// hold mu.
func (s *Session) update() {
	s.indices, s.next = s.engine.ValidContinuations(s.state)
	s.match = s.engine.IsMatch(s.state)
}

// Reset moves the session to the state after prefix.
func (s *Session) Reset(prefix []byte) error {
	state, ok := s.engine.State(prefix)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.update()
	return nil
}

func (s *Session) Engine() Engine {
	return s.engine
}

// Get returns the indices of the valid continuations, sorted.
func (s *Session) Get() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.indices)
}

func (s *Session) IsMatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match
}

// ShouldStop reports whether the input is complete and only ignored tokens
// could follow.
func (s *Session) ShouldStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.ShouldStop(s.state)
}

// Value returns the value of the current match for engines that carry
// one.
func (s *Session) Value() (string, bool) {
	v, ok := s.engine.(Valuer)
	if !ok {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.match {
		return "", false
	}
	return v.Value(s.state)
}

// Next commits the continuation at index.
func (s *Session) Next(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := slices.BinarySearch(s.indices, index)
	if !ok {
		return fmt.Errorf("%w: index %d not in %v", ErrInvalidContinuation, index, s.indices)
	}

	s.state = s.engine.Advance(s.state, s.next[i])
	s.update()
	slog.Debug("constraint next", "kind", s.engine.Kind(), "index", index, "valid", len(s.indices), "match", s.match)
	return nil
}

// Clone returns an independent copy of the session sharing the engine.
func (s *Session) Clone() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &Session{
		engine:  s.engine,
		state:   s.state,
		indices: slices.Clone(s.indices),
		next:    slices.Clone(s.next),
		match:   s.match,
	}
}
