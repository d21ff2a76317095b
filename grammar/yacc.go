package grammar

import (
	"fmt"
	"strconv"
	"strings"
)

// SyntaxError is an error in a grammar definition.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}

type yaccKind int

const (
	yEOF yaccKind = iota
	yIdent
	yString
	yNumber
	yDirective
	ySeparator
	yColon
	yPipe
	ySemi
	yArrow
	yAction
)

func (k yaccKind) String() string {
	switch k {
	case yEOF:
		return "end of input"
	case yIdent:
		return "identifier"
	case yString:
		return "string"
	case yNumber:
		return "number"
	case yDirective:
		return "directive"
	case ySeparator:
		return "%%"
	case yColon:
		return "':'"
	case yPipe:
		return "'|'"
	case ySemi:
		return "';'"
	case yArrow:
		return "'->'"
	case yAction:
		return "action"
	default:
		return "unknown"
	}
}

type yaccToken struct {
	kind   yaccKind
	text   string
	line   int
	column int
}

type yaccScanner struct {
	src    string
	pos    int
	line   int
	column int
}

func (s *yaccScanner) errorf(format string, args ...any) error {
	return &SyntaxError{Line: s.line, Column: s.column, Msg: fmt.Sprintf(format, args...)}
}

func (s *yaccScanner) peekByte(off int) byte {
	if s.pos+off < len(s.src) {
		return s.src[s.pos+off]
	}
	return 0
}

func (s *yaccScanner) advance(n int) {
	for ; n > 0 && s.pos < len(s.src); n-- {
		if s.src[s.pos] == '\n' {
			s.line++
			s.column = 1
		} else {
			s.column++
		}
		s.pos++
	}
}

func (s *yaccScanner) skipSpace() error {
	for s.pos < len(s.src) {
		switch c := s.src[s.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			s.advance(1)
		case c == '/' && s.peekByte(1) == '/':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' {
				s.advance(1)
			}
		case c == '/' && s.peekByte(1) == '*':
			end := strings.Index(s.src[s.pos+2:], "*/")
			if end < 0 {
				return s.errorf("unterminated comment")
			}
			s.advance(end + 4)
		default:
			return nil
		}
	}
	return nil
}

func isIdentStart(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || '0' <= c && c <= '9'
}

func (s *yaccScanner) next() (yaccToken, error) {
	if err := s.skipSpace(); err != nil {
		return yaccToken{}, err
	}

	tok := yaccToken{line: s.line, column: s.column}
	if s.pos >= len(s.src) {
		tok.kind = yEOF
		return tok, nil
	}

	start := s.pos
	switch c := s.src[s.pos]; {
	case isIdentStart(c):
		for s.pos < len(s.src) && isIdentPart(s.src[s.pos]) {
			s.advance(1)
		}
		tok.kind, tok.text = yIdent, s.src[start:s.pos]
	case '0' <= c && c <= '9':
		for s.pos < len(s.src) && '0' <= s.src[s.pos] && s.src[s.pos] <= '9' {
			s.advance(1)
		}
		tok.kind, tok.text = yNumber, s.src[start:s.pos]
	case c == '\'' || c == '"':
		text, err := s.quoted(c)
		if err != nil {
			return tok, err
		}
		tok.kind, tok.text = yString, text
	case c == '%':
		if s.peekByte(1) == '%' {
			s.advance(2)
			tok.kind = ySeparator
			break
		}

		s.advance(1)
		for s.pos < len(s.src) && (isIdentPart(s.src[s.pos]) || s.src[s.pos] == '-') {
			s.advance(1)
		}
		if s.pos == start+1 {
			return tok, s.errorf("missing directive name after %%")
		}
		tok.kind, tok.text = yDirective, s.src[start+1:s.pos]
	case c == ':':
		s.advance(1)
		tok.kind = yColon
	case c == '|':
		s.advance(1)
		tok.kind = yPipe
	case c == ';':
		s.advance(1)
		tok.kind = ySemi
	case c == '-' && s.peekByte(1) == '>':
		s.advance(2)
		tok.kind, tok.text = yArrow, s.typeName()
	case c == '{':
		if err := s.action(); err != nil {
			return tok, err
		}
		tok.kind, tok.text = yAction, s.src[start:s.pos]
	default:
		return tok, s.errorf("unexpected character %q", c)
	}

	return tok, nil
}

func (s *yaccScanner) quoted(q byte) (string, error) {
	var sb strings.Builder
	s.advance(1)
	for {
		if s.pos >= len(s.src) || s.src[s.pos] == '\n' {
			return "", s.errorf("unterminated string")
		}

		switch c := s.src[s.pos]; c {
		case q:
			s.advance(1)
			return sb.String(), nil
		case '\\':
			if s.pos+1 >= len(s.src) {
				return "", s.errorf("unterminated string")
			}
			sb.WriteByte(s.src[s.pos+1])
			s.advance(2)
		default:
			sb.WriteByte(c)
			s.advance(1)
		}
	}
}

// typeName skips a rule type up to the colon starting the alternatives.
func (s *yaccScanner) typeName() string {
	start := s.pos
	for s.pos < len(s.src) {
		if s.src[s.pos] == ':' {
			if s.peekByte(1) != ':' {
				break
			}
			s.advance(2)
			continue
		}
		s.advance(1)
	}
	return strings.TrimSpace(s.src[start:s.pos])
}

func (s *yaccScanner) action() error {
	line, column := s.line, s.column
	var depth int
	for s.pos < len(s.src) {
		switch c := s.src[s.pos]; c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				s.advance(1)
				return nil
			}
		case '"':
			if _, err := s.quoted('"'); err != nil {
				return err
			}
			continue
		}
		s.advance(1)
	}
	return &SyntaxError{Line: line, Column: column, Msg: "unterminated action"}
}

type yaccSymbol struct {
	name   string
	quoted bool
	line   int
	column int
}

type yaccAlt struct {
	symbols []yaccSymbol
	prec    *yaccSymbol
}

type yaccRule struct {
	name   string
	line   int
	column int
	alts   []yaccAlt
}

type yaccParser struct {
	s    *yaccScanner
	tok  yaccToken
	peek *yaccToken

	g     *Grammar
	start *yaccSymbol
	level int
	rules []yaccRule
}

func (p *yaccParser) next() error {
	if p.peek != nil {
		p.tok, p.peek = *p.peek, nil
		return nil
	}

	tok, err := p.s.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *yaccParser) lookahead() (yaccToken, error) {
	if p.peek == nil {
		tok, err := p.s.next()
		if err != nil {
			return tok, err
		}
		p.peek = &tok
	}
	return *p.peek, nil
}

func (p *yaccParser) errorf(tok yaccToken, format string, args ...any) error {
	return &SyntaxError{Line: tok.line, Column: tok.column, Msg: fmt.Sprintf(format, args...)}
}

func (p *yaccParser) expect(kind yaccKind) error {
	if err := p.next(); err != nil {
		return err
	}
	if p.tok.kind != kind {
		return p.errorf(p.tok, "expected %s, found %s", kind, p.tok.kind)
	}
	return nil
}

func (p *yaccParser) symbol() yaccSymbol {
	return yaccSymbol{name: p.tok.text, quoted: p.tok.kind == yString, line: p.tok.line, column: p.tok.column}
}

// symbols reads identifiers and strings up to the next directive, separator
// or end of input.
func (p *yaccParser) symbols() ([]yaccSymbol, error) {
	var syms []yaccSymbol
	for {
		tok, err := p.lookahead()
		if err != nil {
			return nil, err
		}
		if tok.kind != yIdent && tok.kind != yString {
			return syms, nil
		}

		if err := p.next(); err != nil {
			return nil, err
		}
		syms = append(syms, p.symbol())
	}
}

// Parse reads a grammar in the Yacc subset: %start, %token, %left, %right,
// %nonassoc, %prec, %expect, %expect-rr and %epp declarations followed by
// rules of the form "Name: A 'b' | ;". Rule types ("Name -> Type: ...")
// and actions are skipped, as is everything after a second %%.
func Parse(text string) (*Grammar, error) {
	p := &yaccParser{
		s: &yaccScanner{src: text, line: 1, column: 1},
		g: newGrammar(),
	}

	if err := p.declarations(); err != nil {
		return nil, err
	}

	if err := p.ruleSection(); err != nil {
		return nil, err
	}

	if err := p.resolve(); err != nil {
		return nil, err
	}

	return p.g, nil
}

func (p *yaccParser) declarations() error {
	for {
		if err := p.next(); err != nil {
			return err
		}

		switch p.tok.kind {
		case ySeparator:
			return nil
		case yEOF:
			return p.errorf(p.tok, "missing %%%% separator")
		case yDirective:
			if err := p.declaration(); err != nil {
				return err
			}
		default:
			return p.errorf(p.tok, "unexpected %s in declarations", p.tok.kind)
		}
	}
}

func (p *yaccParser) declaration() error {
	directive := p.tok
	switch directive.text {
	case "start":
		if err := p.expect(yIdent); err != nil {
			return err
		}
		sym := p.symbol()
		p.start = &sym
	case "token":
		syms, err := p.symbols()
		if err != nil {
			return err
		}
		for _, sym := range syms {
			p.g.addToken(sym.name)
		}
	case "left", "right", "nonassoc":
		syms, err := p.symbols()
		if err != nil {
			return err
		}
		if len(syms) == 0 {
			return p.errorf(directive, "%%%s without tokens", directive.text)
		}

		p.level++
		prec := Precedence{Level: p.level, Assoc: map[string]Assoc{
			"left":     AssocLeft,
			"right":    AssocRight,
			"nonassoc": AssocNonassoc,
		}[directive.text]}
		for _, sym := range syms {
			t := p.g.addToken(sym.name)
			if p.g.tokenPrec[t].Level > 0 {
				return p.errorf(directive, "precedence of %q declared twice", sym.name)
			}
			p.g.tokenPrec[t] = prec
		}
	case "expect", "expect-rr":
		if err := p.expect(yNumber); err != nil {
			return err
		}
		n, err := strconv.Atoi(p.tok.text)
		if err != nil {
			return p.errorf(p.tok, "invalid number %q", p.tok.text)
		}
		if directive.text == "expect" {
			p.g.expect = n
		} else {
			p.g.expectRR = n
		}
	case "epp":
		if err := p.next(); err != nil {
			return err
		}
		if p.tok.kind != yIdent && p.tok.kind != yString {
			return p.errorf(p.tok, "expected token after %%epp, found %s", p.tok.kind)
		}
		t := p.g.addToken(p.tok.text)
		if err := p.expect(yString); err != nil {
			return err
		}
		p.g.tokenEPP[t] = p.tok.text
	case "prec":
		return p.errorf(directive, "%%prec outside of a rule")
	default:
		return p.errorf(directive, "unknown declaration %%%s", directive.text)
	}
	return nil
}

func (p *yaccParser) ruleSection() error {
	for {
		if err := p.next(); err != nil {
			return err
		}

		switch p.tok.kind {
		case yEOF, ySeparator:
			return nil
		case yIdent:
			if err := p.rule(); err != nil {
				return err
			}
		default:
			return p.errorf(p.tok, "expected rule name, found %s", p.tok.kind)
		}
	}
}

func (p *yaccParser) rule() error {
	r := yaccRule{name: p.tok.text, line: p.tok.line, column: p.tok.column}

	if err := p.next(); err != nil {
		return err
	}
	if p.tok.kind == yArrow {
		if err := p.next(); err != nil {
			return err
		}
	}
	if p.tok.kind != yColon {
		return p.errorf(p.tok, "expected ':' after rule %s, found %s", r.name, p.tok.kind)
	}

	var alt yaccAlt
	for {
		if err := p.next(); err != nil {
			return err
		}

		switch p.tok.kind {
		case yIdent, yString:
			alt.symbols = append(alt.symbols, p.symbol())
		case yAction:
		case yDirective:
			if p.tok.text != "prec" {
				return p.errorf(p.tok, "unexpected %%%s in rule %s", p.tok.text, r.name)
			}
			if err := p.next(); err != nil {
				return err
			}
			if p.tok.kind != yIdent && p.tok.kind != yString {
				return p.errorf(p.tok, "expected token after %%prec, found %s", p.tok.kind)
			}
			sym := p.symbol()
			alt.prec = &sym
		case yPipe:
			r.alts = append(r.alts, alt)
			alt = yaccAlt{}
		case ySemi:
			r.alts = append(r.alts, alt)
			p.rules = append(p.rules, r)
			return nil
		default:
			return p.errorf(p.tok, "unexpected %s in rule %s", p.tok.kind, r.name)
		}
	}
}

func (p *yaccParser) resolve() error {
	g := p.g
	if len(p.rules) == 0 {
		return &SyntaxError{Line: p.tok.line, Column: p.tok.column, Msg: "grammar has no rules"}
	}

	for _, r := range p.rules {
		if _, ok := g.ruleIndex[r.name]; ok {
			return &SyntaxError{Line: r.line, Column: r.column, Msg: fmt.Sprintf("rule %s defined twice", r.name)}
		}
		if _, ok := g.tokenIndex[r.name]; ok {
			return &SyntaxError{Line: r.line, Column: r.column, Msg: fmt.Sprintf("%s is declared as a token and as a rule", r.name)}
		}
		g.addRule(r.name)
	}

	for _, r := range p.rules {
		rule := g.ruleIndex[r.name]
		for _, alt := range r.alts {
			symbols := make([]Symbol, 0, len(alt.symbols))
			for _, sym := range alt.symbols {
				s, err := p.resolveSymbol(sym)
				if err != nil {
					return err
				}
				symbols = append(symbols, s)
			}

			var prec *Precedence
			if alt.prec != nil {
				t, ok := g.tokenIndex[alt.prec.name]
				if !ok {
					return &SyntaxError{Line: alt.prec.line, Column: alt.prec.column, Msg: fmt.Sprintf("unknown %%prec token %s", alt.prec.name)}
				}
				prec = &g.tokenPrec[t]
			}

			g.addProd(rule, symbols, prec)
		}
	}

	if p.start != nil {
		r, ok := g.ruleIndex[p.start.name]
		if !ok {
			return &SyntaxError{Line: p.start.line, Column: p.start.column, Msg: fmt.Sprintf("unknown start rule %s", p.start.name)}
		}
		g.start = r
	}

	return nil
}

func (p *yaccParser) resolveSymbol(sym yaccSymbol) (Symbol, error) {
	if sym.quoted {
		return TokenSymbol(p.g.addToken(sym.name)), nil
	}

	if r, ok := p.g.ruleIndex[sym.name]; ok {
		return RuleSymbol(r), nil
	}

	if t, ok := p.g.tokenIndex[sym.name]; ok {
		return TokenSymbol(t), nil
	}

	return Symbol{}, &SyntaxError{Line: sym.line, Column: sym.column, Msg: fmt.Sprintf("unknown symbol %s", sym.name)}
}
