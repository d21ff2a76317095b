package lexer

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ad-freiburg/text-correction-utils/grammar"
	"github.com/ad-freiburg/text-correction-utils/pdfa"
)

var (
	definitionLine = regexp.MustCompile(`^([A-Z][A-Z0-9_]*|;)\s+(.+)$`)
	tokenLine      = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*|;)\s+(.+)$`)
	separatorLine  = regexp.MustCompile(`(?m)^%%$`)
	reference      = regexp.MustCompile(`\{([A-Z][A-Z0-9_]*)\}`)
)

// SpecError is an error in a lexer definition. Line is 0 for errors not
// tied to a single line.
type SpecError struct {
	Line int
	Name string
	Msg  string
	Err  error
}

func (e *SpecError) Error() string {
	var sb strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&sb, "line %d: ", e.Line)
	}
	if e.Name != "" {
		fmt.Fprintf(&sb, "%s: ", e.Name)
	}
	sb.WriteString(e.Msg)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *SpecError) Unwrap() error {
	return e.Err
}

type part struct {
	text    string
	literal bool
}

// parts splits a pattern at whitespace. Parts enclosed in single or double
// quotes match literally.
func parts(pattern string) []part {
	var ps []part
	for _, f := range strings.Fields(pattern) {
		if len(f) >= 2 && (f[0] == '\'' || f[0] == '"') && f[len(f)-1] == f[0] {
			ps = append(ps, part{text: regexp.QuoteMeta(f[1 : len(f)-1]), literal: true})
		} else {
			ps = append(ps, part{text: f})
		}
	}
	return ps
}

type definition struct {
	name  string
	line  int
	parts []part
}

type spec struct {
	fragments map[string]definition
	tokens    map[string]definition
	order     []definition
	ignore    []definition
}

func parseSpec(text string) (*spec, error) {
	loc := separatorLine.FindStringIndex(text)
	if loc == nil {
		return nil, &SpecError{Msg: "line with %% not found"}
	}

	s := &spec{
		fragments: make(map[string]definition),
		tokens:    make(map[string]definition),
	}

	offset := strings.Count(text[:loc[0]], "\n")
	for i, line := range strings.Split(text[:loc[0]], "\n") {
		d, ok, err := parseLine(line, i+1, "fragment")
		if err != nil {
			return nil, err
		} else if !ok {
			continue
		}

		if d.name == ";" {
			return nil, &SpecError{Line: d.line, Name: d.name, Msg: "fragments cannot be named ;, which is reserved for ignore tokens"}
		}
		if _, ok := s.fragments[d.name]; ok {
			return nil, &SpecError{Line: d.line, Name: d.name, Msg: "duplicate fragment"}
		}
		s.fragments[d.name] = d
	}

	for i, line := range strings.Split(text[loc[1]:], "\n") {
		d, ok, err := parseLine(line, offset+i+1, "token")
		if err != nil {
			return nil, err
		} else if !ok {
			continue
		}

		if d.name == ";" {
			s.ignore = append(s.ignore, d)
			continue
		}
		if len(s.ignore) > 0 {
			return nil, &SpecError{Line: d.line, Name: d.name, Msg: "ignore tokens must be at the end of the lexer file"}
		}
		if _, ok := s.tokens[d.name]; ok {
			return nil, &SpecError{Line: d.line, Name: d.name, Msg: "duplicate token"}
		}
		s.tokens[d.name] = d
		s.order = append(s.order, d)
	}

	return s, nil
}

func parseLine(line string, n int, kind string) (definition, bool, error) {
	line = strings.TrimRight(line, "\r")
	if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "//") {
		return definition{}, false, nil
	}

	re := definitionLine
	if kind == "token" {
		re = tokenLine
	}

	m := re.FindStringSubmatch(line)
	if m == nil {
		return definition{}, false, &SpecError{Line: n, Msg: fmt.Sprintf("invalid %s line %q", kind, line)}
	}

	d := definition{name: m[1], line: n, parts: parts(m[2])}
	if len(d.parts) == 0 {
		return definition{}, false, &SpecError{Line: n, Name: d.name, Msg: fmt.Sprintf("invalid %s pattern %q", kind, m[2])}
	}
	return d, true, nil
}

// pattern joins the parts of d, replacing {NAME} references in regex
// parts by the pattern of the named token or, if there is none, fragment.
func (s *spec) pattern(d definition, visiting map[string]bool) (string, error) {
	key := d.name
	if _, ok := s.tokens[d.name]; !ok {
		key = "fragment " + d.name
	}
	if visiting[key] {
		return "", &SpecError{Line: d.line, Name: d.name, Msg: "cyclic reference"}
	}
	visiting[key] = true
	defer delete(visiting, key)

	var sb strings.Builder
	for _, p := range d.parts {
		if p.literal {
			sb.WriteString(p.text)
			continue
		}

		last := 0
		for _, m := range reference.FindAllStringSubmatchIndex(p.text, -1) {
			sb.WriteString(p.text[last:m[0]])

			name := p.text[m[2]:m[3]]
			ref, ok := s.tokens[name]
			if !ok {
				ref, ok = s.fragments[name]
			}
			if !ok {
				return "", &SpecError{Line: d.line, Name: d.name, Msg: fmt.Sprintf("token or fragment %s not found", name)}
			}

			sub, err := s.pattern(ref, visiting)
			if err != nil {
				return "", err
			}

			sb.WriteString("(?:")
			sb.WriteString(sub)
			sb.WriteString(")")
			last = m[1]
		}
		sb.WriteString(p.text[last:])
	}

	return sb.String(), nil
}

func compile(d definition, pattern string) (*pdfa.PrefixDFA, error) {
	dfa, err := pdfa.New(pattern)
	if err != nil {
		return nil, &SpecError{Line: d.line, Name: d.name, Msg: "invalid pattern", Err: err}
	}

	if dfa.IsMatch(dfa.Start()) {
		return nil, &SpecError{Line: d.line, Name: d.name, Msg: fmt.Sprintf("pattern %s matches the empty string", pattern)}
	}

	return dfa, nil
}

// Load builds the lexer entries for g from a lexer definition: fragment
// lines, a line containing only %%, then token lines. Lines have the form
// "NAME pattern"; tokens named ";" are ignored by the parser and must come
// last. Token names may start with a lower case letter, as the lexical
// productions of EBNF grammars do.
//
// Entries are ordered as the tokens in the definition, followed by literal
// entries for the grammar tokens that are neither a token nor a fragment of
// the definition, followed by the ignore tokens.
func Load(g *grammar.Grammar, text string) ([]Entry, error) {
	s, err := parseSpec(text)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, d := range s.order {
		pattern, err := s.pattern(d, make(map[string]bool))
		if err != nil {
			return nil, err
		}

		dfa, err := compile(d, pattern)
		if err != nil {
			return nil, err
		}

		t, ok := g.TokenIndex(d.name)
		if !ok {
			slog.Warn("token not used in grammar, skipping", "token", d.name, "line", d.line)
			continue
		}

		entries = append(entries, Entry{DFA: dfa, Token: t})
	}

	for i, name := range g.Tokens() {
		if _, ok := s.tokens[name]; ok {
			continue
		}
		if _, ok := s.fragments[name]; ok {
			slog.Warn("grammar token is a lexer fragment, skipping", "token", name)
			continue
		}

		d := definition{name: name}
		dfa, err := compile(d, regexp.QuoteMeta(name))
		if err != nil {
			return nil, err
		}

		entries = append(entries, Entry{DFA: dfa, Token: grammar.TokenID(i)})
	}

	for _, d := range s.ignore {
		pattern, err := s.pattern(d, make(map[string]bool))
		if err != nil {
			return nil, err
		}

		dfa, err := compile(d, pattern)
		if err != nil {
			return nil, err
		}

		entries = append(entries, Entry{DFA: dfa, Ignore: true})
	}

	return entries, nil
}

// LoadGrammarAndPDFAs parses a Yacc grammar, builds its parse table and
// the lexer entries for it.
func LoadGrammarAndPDFAs(grammarText, lexerText string) (*grammar.Table, []Entry, error) {
	g, err := grammar.Parse(grammarText)
	if err != nil {
		return nil, nil, fmt.Errorf("grammar: %w", err)
	}

	return buildTable(g, lexerText)
}

// LoadEBNFAndPDFAs is LoadGrammarAndPDFAs for a grammar in Go's EBNF
// notation, starting at its first non-lexical production.
func LoadEBNFAndPDFAs(grammarText, lexerText string) (*grammar.Table, []Entry, error) {
	g, err := grammar.ParseEBNF("grammar.ebnf", strings.NewReader(grammarText), "")
	if err != nil {
		return nil, nil, fmt.Errorf("grammar: %w", err)
	}

	return buildTable(g, lexerText)
}

func buildTable(g *grammar.Grammar, lexerText string) (*grammar.Table, []Entry, error) {
	table, err := grammar.NewTable(g)
	if err != nil {
		return nil, nil, fmt.Errorf("grammar: %w", err)
	}

	entries, err := Load(g, lexerText)
	if err != nil {
		return nil, nil, fmt.Errorf("lexer: %w", err)
	}

	return table, entries, nil
}

// IsSpecError reports whether err comes from a lexer definition.
func IsSpecError(err error) bool {
	var serr *SpecError
	return errors.As(err, &serr)
}
