// Package grammar reads context-free grammars in a Yacc subset or in EBNF
// and builds LR(1) parse tables for them.
package grammar

import (
	"fmt"
	"strings"
)

type (
	TokenID uint32
	RuleID  uint32
	ProdID  uint32
)

type Assoc uint8

const (
	AssocNone Assoc = iota
	AssocLeft
	AssocRight
	AssocNonassoc
)

func (a Assoc) String() string {
	switch a {
	case AssocLeft:
		return "left"
	case AssocRight:
		return "right"
	case AssocNonassoc:
		return "nonassoc"
	default:
		return "none"
	}
}

// Precedence of a token or production. Level 0 means no precedence, higher
// levels bind tighter.
type Precedence struct {
	Level int
	Assoc Assoc
}

// Symbol is a token or a rule on the right hand side of a production.
type Symbol struct {
	IsRule bool
	ID     uint32
}

func TokenSymbol(t TokenID) Symbol {
	return Symbol{ID: uint32(t)}
}

func RuleSymbol(r RuleID) Symbol {
	return Symbol{IsRule: true, ID: uint32(r)}
}

func (s Symbol) Token() TokenID {
	return TokenID(s.ID)
}

func (s Symbol) Rule() RuleID {
	return RuleID(s.ID)
}

type Production struct {
	Rule    RuleID
	Symbols []Symbol
	Prec    Precedence
}

// Grammar is an immutable context-free grammar. Token ids are dense and
// start at 0, the end of input token comes after all named tokens.
type Grammar struct {
	tokens     []string
	tokenIndex map[string]TokenID
	tokenPrec  []Precedence
	tokenEPP   map[TokenID]string

	rules     []string
	ruleIndex map[string]RuleID
	ruleProds [][]ProdID

	prods []Production
	start RuleID

	expect   int
	expectRR int
}

func newGrammar() *Grammar {
	return &Grammar{
		tokenIndex: make(map[string]TokenID),
		tokenEPP:   make(map[TokenID]string),
		ruleIndex:  make(map[string]RuleID),
		expect:     -1,
		expectRR:   -1,
	}
}

func (g *Grammar) addToken(name string) TokenID {
	if t, ok := g.tokenIndex[name]; ok {
		return t
	}

	t := TokenID(len(g.tokens))
	g.tokens = append(g.tokens, name)
	g.tokenPrec = append(g.tokenPrec, Precedence{})
	g.tokenIndex[name] = t
	return t
}

func (g *Grammar) addRule(name string) RuleID {
	if r, ok := g.ruleIndex[name]; ok {
		return r
	}

	r := RuleID(len(g.rules))
	g.rules = append(g.rules, name)
	g.ruleProds = append(g.ruleProds, nil)
	g.ruleIndex[name] = r
	return r
}

// addProd adds a production. Without an explicit precedence it takes the
// precedence of its last token that has one.
func (g *Grammar) addProd(r RuleID, symbols []Symbol, prec *Precedence) ProdID {
	p := Production{Rule: r, Symbols: symbols}
	if prec != nil {
		p.Prec = *prec
	} else {
		for i := len(symbols) - 1; i >= 0; i-- {
			if s := symbols[i]; !s.IsRule && g.tokenPrec[s.ID].Level > 0 {
				p.Prec = g.tokenPrec[s.ID]
				break
			}
		}
	}

	id := ProdID(len(g.prods))
	g.prods = append(g.prods, p)
	g.ruleProds[r] = append(g.ruleProds[r], id)
	return id
}

// NumTokens is the number of named tokens, not counting EOF.
func (g *Grammar) NumTokens() int {
	return len(g.tokens)
}

// EOF is the end of input token.
func (g *Grammar) EOF() TokenID {
	return TokenID(len(g.tokens))
}

func (g *Grammar) TokenName(t TokenID) string {
	if t == g.EOF() {
		return "$end"
	}
	return g.tokens[t]
}

func (g *Grammar) TokenIndex(name string) (TokenID, bool) {
	t, ok := g.tokenIndex[name]
	return t, ok
}

// Tokens returns the names of all tokens in id order.
func (g *Grammar) Tokens() []string {
	return append([]string(nil), g.tokens...)
}

func (g *Grammar) TokenPrec(t TokenID) Precedence {
	if t == g.EOF() {
		return Precedence{}
	}
	return g.tokenPrec[t]
}

// TokenEPP returns the name of a token as shown in error messages, set with
// %epp. It defaults to the quoted token name.
func (g *Grammar) TokenEPP(t TokenID) string {
	if s, ok := g.tokenEPP[t]; ok {
		return s
	}
	return fmt.Sprintf("%q", g.TokenName(t))
}

func (g *Grammar) NumRules() int {
	return len(g.rules)
}

func (g *Grammar) RuleName(r RuleID) string {
	return g.rules[r]
}

func (g *Grammar) RuleIndex(name string) (RuleID, bool) {
	r, ok := g.ruleIndex[name]
	return r, ok
}

func (g *Grammar) RuleProds(r RuleID) []ProdID {
	return g.ruleProds[r]
}

func (g *Grammar) Start() RuleID {
	return g.start
}

func (g *Grammar) NumProds() int {
	return len(g.prods)
}

func (g *Grammar) Prod(p ProdID) Production {
	return g.prods[p]
}

func (g *Grammar) ProdRule(p ProdID) RuleID {
	return g.prods[p].Rule
}

// Expect returns the number of shift/reduce conflicts declared with
// %expect, or false if there was no such declaration.
func (g *Grammar) Expect() (int, bool) {
	return g.expect, g.expect >= 0
}

func (g *Grammar) ExpectRR() (int, bool) {
	return g.expectRR, g.expectRR >= 0
}

func (g *Grammar) SymbolName(s Symbol) string {
	if s.IsRule {
		return g.rules[s.ID]
	}
	return fmt.Sprintf("'%s'", g.TokenName(TokenID(s.ID)))
}

// ProdString formats a production as "Rule: A 'b' C".
func (g *Grammar) ProdString(p ProdID) string {
	var sb strings.Builder
	prod := g.prods[p]
	sb.WriteString(g.rules[prod.Rule])
	sb.WriteString(":")
	for _, s := range prod.Symbols {
		sb.WriteString(" ")
		sb.WriteString(g.SymbolName(s))
	}
	return sb.String()
}
