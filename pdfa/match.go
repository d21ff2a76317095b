package pdfa

// MatchKind classifies the result of FindPrefixMatch.
type MatchKind int

const (
	// None means the automaton died without passing a match state.
	None MatchKind = iota

	// Maybe means the automaton is still alive at the end of the input.
	Maybe

	// UpTo means the automaton died, and End is the longest offset at
	// which it was in a match state.
	UpTo
)

func (k MatchKind) String() string {
	switch k {
	case Maybe:
		return "maybe"
	case UpTo:
		return "up to"
	default:
		return "none"
	}
}

type Match struct {
	Kind  MatchKind
	End   int
	State StateID
}
