// Package parser parses complete inputs with an LR(1) grammar and builds
// their parse trees.
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ad-freiburg/text-correction-utils/grammar"
	"github.com/ad-freiburg/text-correction-utils/lexer"
)

type Parser struct {
	table   *grammar.Table
	entries []lexer.Entry
}

// New builds a parser from a Yacc grammar and a lexer definition.
func New(grammarText, lexerText string) (*Parser, error) {
	tbl, entries, err := lexer.LoadGrammarAndPDFAs(grammarText, lexerText)
	if err != nil {
		return nil, err
	}
	return &Parser{table: tbl, entries: entries}, nil
}

// NewEBNF builds a parser from a grammar in Go's EBNF notation and a lexer
// definition.
func NewEBNF(grammarText, lexerText string) (*Parser, error) {
	tbl, entries, err := lexer.LoadEBNFAndPDFAs(grammarText, lexerText)
	if err != nil {
		return nil, err
	}
	return &Parser{table: tbl, entries: entries}, nil
}

// FromFiles reads the grammar and lexer definitions from files. A leading
// byte order mark is removed. Grammar files ending in .ebnf are read as
// EBNF, all others as Yacc.
func FromFiles(grammarPath, lexerPath string) (*Parser, error) {
	g, err := ReadFile(grammarPath)
	if err != nil {
		return nil, err
	}

	l, err := ReadFile(lexerPath)
	if err != nil {
		return nil, err
	}

	if filepath.Ext(grammarPath) == ".ebnf" {
		return NewEBNF(g, l)
	}
	return New(g, l)
}

// ReadFile reads a UTF-8 file, dropping a byte order mark if present.
func ReadFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	tr := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	b, err := io.ReadAll(transform.NewReader(f, tr))
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return string(b), nil
}

func (p *Parser) Table() *grammar.Table {
	return p.table
}

func (p *Parser) Entries() []lexer.Entry {
	return p.entries
}

// Lex returns the names of the grammar tokens in text. Ignored tokens are
// left out.
func (p *Parser) Lex(text string) ([]string, error) {
	tokens, _, err := lexer.Lex(p.entries, []byte(text))
	if err != nil {
		return nil, err
	}

	g := p.table.Grammar()
	names := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !t.Ignore {
			names = append(names, g.TokenName(t.ID))
		}
	}
	return names, nil
}

type options struct {
	collapse  bool
	skipEmpty bool
}

type Option func(*options)

// WithCollapse replaces nonterminals with a single child by that child.
func WithCollapse() Option {
	return func(o *options) {
		o.collapse = true
	}
}

// WithSkipEmpty drops rules that derived no input from the tree.
func WithSkipEmpty() Option {
	return func(o *options) {
		o.skipEmpty = true
	}
}

// SyntaxError is a single error action of the parse table. Expected holds
// the printable names of the tokens the parser could have continued with.
type SyntaxError struct {
	Offset   int
	Line     int
	Column   int
	Found    string
	Expected []string
}

func (e SyntaxError) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "line %d, column %d: unexpected %s", e.Line, e.Column, e.Found)
	if len(e.Expected) > 0 {
		fmt.Fprintf(&sb, ", expected %s", strings.Join(e.Expected, " or "))
	}
	return sb.String()
}

// Error holds every syntax error found in the input, in input order.
type Error struct {
	Errors []SyntaxError
}

func (e *Error) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].String()
	}

	lines := make([]string, len(e.Errors))
	for i, se := range e.Errors {
		lines[i] = se.String()
	}
	return fmt.Sprintf("%d errors parsing input:\n%s", len(e.Errors), strings.Join(lines, "\n"))
}

// position returns the 1-based line and column of offset in text.
// Columns count runes.
func position(text string, offset int) (line, column int) {
	before := text[:offset]
	line = strings.Count(before, "\n") + 1
	if i := strings.LastIndexByte(before, '\n'); i >= 0 {
		before = before[i+1:]
	}
	return line, utf8.RuneCountInString(before) + 1
}

func (p *Parser) syntaxError(text string, state grammar.StateID, tok grammar.TokenID, offset int) SyntaxError {
	g := p.table.Grammar()

	found := "end of input"
	if tok != g.EOF() {
		found = g.TokenEPP(tok)
	}

	var expected []string
	for _, t := range p.table.StateActions(state) {
		if t == g.EOF() {
			expected = append(expected, "end of input")
			continue
		}
		expected = append(expected, g.TokenEPP(t))
	}

	line, column := position(text, offset)
	return SyntaxError{Offset: offset, Line: line, Column: column, Found: found, Expected: expected}
}

// Parse lexes and parses text, which has to be a complete sentence of the
// grammar. On an error action the offending token is dropped and parsing
// goes on, so that all errors are reported together.
func (p *Parser) Parse(text string, opts ...Option) (*Node, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tokens, spans, err := lexer.Lex(p.entries, []byte(text))
	if err != nil {
		return nil, err
	}

	g := p.table.Grammar()
	eof := lexer.Span{Start: len(text)}

	stack := []grammar.StateID{p.table.Start()}
	var nodes []*Node
	var errs []SyntaxError

	i := 0
	for {
		for i < len(tokens) && tokens[i].Ignore {
			i++
		}

		tok, span := g.EOF(), eof
		if i < len(tokens) {
			tok, span = tokens[i].ID, spans[i]
		}

		top := stack[len(stack)-1]
		a := p.table.Action(top, tok)
		switch a.Kind {
		case grammar.Shift:
			stack = append(stack, a.State)
			nodes = append(nodes, &Node{Kind: Terminal, Name: g.TokenName(tok), Span: span})
			i++
		case grammar.Reduce:
			prod := g.Prod(a.Prod)
			n := len(prod.Symbols)
			stack = stack[:len(stack)-n]
			children := nodes[len(nodes)-n:]
			nodes = nodes[:len(nodes)-n]

			next, ok := p.table.Goto(stack[len(stack)-1], prod.Rule)
			if !ok {
				return nil, fmt.Errorf("no goto for %s in state %d", g.RuleName(prod.Rule), stack[len(stack)-1])
			}
			stack = append(stack, next)
			nodes = append(nodes, newNonTerminal(g.RuleName(prod.Rule), children, o))
		case grammar.Accept:
			if len(errs) > 0 {
				return nil, &Error{Errors: errs}
			}
			if len(nodes) != 1 {
				return nil, fmt.Errorf("accepted with %d nodes on the stack", len(nodes))
			}
			return nodes[0], nil
		default:
			errs = append(errs, p.syntaxError(text, top, tok, span.Start))
			if tok == g.EOF() {
				return nil, &Error{Errors: errs}
			}
			i++
		}
	}
}

// Pretty is a shorthand for New followed by Parse and Node.Pretty.
func Pretty(grammarText, lexerText, text string, collapse bool) (string, error) {
	p, err := New(grammarText, lexerText)
	if err != nil {
		return "", err
	}

	opts := []Option{WithSkipEmpty()}
	if collapse {
		opts = append(opts, WithCollapse())
	}

	n, err := p.Parse(text, opts...)
	if err != nil {
		return "", err
	}

	return n.Pretty(text, collapse), nil
}
