package api

import (
	"fmt"
)

// StatusError is an error with an HTTP status code and message,
// it is parsed on the client-side and not returned from the API
type StatusError struct {
	StatusCode   int    // e.g. 200
	Status       string // e.g. "200 OK"
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the server logs for details"
	}
}

// SessionRequest creates a constraint session. Grammar names a catalog
// entry. Without it, GrammarText and LexerText define a grammar inline, or
// Pattern a regular expression, or Keys (with optional parallel Values) a
// set of allowed strings. Continuations default to the catalog entry's
// continuations.
type SessionRequest struct {
	Grammar       string   `json:"grammar,omitempty"`
	Kind          string   `json:"kind,omitempty"`
	GrammarText   string   `json:"grammar_text,omitempty"`
	LexerText     string   `json:"lexer_text,omitempty"`
	Pattern       string   `json:"pattern,omitempty"`
	Keys          []string `json:"keys,omitempty"`
	Values        []string `json:"values,omitempty"`
	Prefix        string   `json:"prefix,omitempty"`
	Continuations []string `json:"continuations,omitempty"`
}

// SessionResponse is the state of a session: the indices of the
// continuations that are valid next. Value is set when a continuation
// session matches a key.
type SessionResponse struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Indices    []int  `json:"indices"`
	IsMatch    bool   `json:"is_match"`
	ShouldStop bool   `json:"should_stop"`
	Value      string `json:"value,omitempty"`
}

type NextRequest struct {
	Index int `json:"index"`
}

type ResetRequest struct {
	Prefix string `json:"prefix"`
}

type LexRequest struct {
	Grammar     string `json:"grammar,omitempty"`
	GrammarText string `json:"grammar_text,omitempty"`
	LexerText   string `json:"lexer_text,omitempty"`
	Text        string `json:"text"`
}

type Token struct {
	Name   string `json:"name"`
	Start  int    `json:"start"`
	Len    int    `json:"len"`
	Text   string `json:"text"`
	Ignore bool   `json:"ignore,omitempty"`
}

type LexResponse struct {
	Tokens []Token `json:"tokens"`
}

type ParseRequest struct {
	Grammar     string `json:"grammar,omitempty"`
	GrammarText string `json:"grammar_text,omitempty"`
	LexerText   string `json:"lexer_text,omitempty"`
	Text        string `json:"text"`
	Collapse    bool   `json:"collapse,omitempty"`
	SkipEmpty   bool   `json:"skip_empty,omitempty"`
}

// Node is a parse tree node. Kind is "empty", "terminal" or
// "nonterminal".
type Node struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Start    int    `json:"start"`
	Len      int    `json:"len"`
	Children []Node `json:"children,omitempty"`
}

type ParseResponse struct {
	Tree   Node   `json:"tree"`
	Pretty string `json:"pretty"`
}

// ContinuationsRequest asks which continuations extend each prefix towards
// one of the keys.
type ContinuationsRequest struct {
	Keys          []string `json:"keys"`
	Prefixes      []string `json:"prefixes"`
	Continuations []string `json:"continuations"`
}

// ContinuationsResponse holds the valid continuation indices per prefix.
type ContinuationsResponse struct {
	Indices [][]int `json:"indices"`
}

type GrammarInfo struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

type ListGrammarsResponse struct {
	Grammars []GrammarInfo `json:"grammars"`
}

type VersionResponse struct {
	Version string `json:"version"`
}
