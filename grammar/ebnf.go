package grammar

import (
	"fmt"
	"io"
	"slices"
	"unicode"
	"unicode/utf8"

	"golang.org/x/exp/ebnf"
)

func isLexical(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return !unicode.IsUpper(r)
}

type ebnfConverter struct {
	g   *Grammar
	aux map[string]int
}

// ParseEBNF reads a grammar in Go's EBNF notation. Productions with an
// upper case name become rules, lexical productions (lower case names) and
// literals become tokens that the lexer has to provide. Options, repetitions
// and groups with alternatives are rewritten into auxiliary rules. An empty
// start selects the first non-lexical production.
func ParseEBNF(name string, src io.Reader, start string) (*Grammar, error) {
	prods, err := ebnf.Parse(name, src)
	if err != nil {
		return nil, fmt.Errorf("parse grammar: %w", err)
	}

	ordered := make([]*ebnf.Production, 0, len(prods))
	for _, p := range prods {
		ordered = append(ordered, p)
	}
	slices.SortFunc(ordered, func(a, b *ebnf.Production) int {
		return a.Name.StringPos.Offset - b.Name.StringPos.Offset
	})

	if start == "" {
		for _, p := range ordered {
			if !isLexical(p.Name.String) {
				start = p.Name.String
				break
			}
		}
	}

	if err := ebnf.Verify(prods, start); err != nil {
		return nil, fmt.Errorf("verify grammar: %w", err)
	}

	if isLexical(start) {
		return nil, fmt.Errorf("start production %q is lexical", start)
	}

	c := &ebnfConverter{g: newGrammar(), aux: make(map[string]int)}
	for _, p := range ordered {
		if isLexical(p.Name.String) {
			c.g.addToken(p.Name.String)
		} else {
			c.g.addRule(p.Name.String)
		}
	}

	for _, p := range ordered {
		if isLexical(p.Name.String) {
			continue
		}

		r := c.g.ruleIndex[p.Name.String]
		alts, err := c.alternatives(p.Name.String, p.Expr)
		if err != nil {
			return nil, err
		}

		for _, alt := range alts {
			c.g.addProd(r, alt, nil)
		}
	}

	c.g.start = c.g.ruleIndex[start]
	return c.g, nil
}

func (c *ebnfConverter) alternatives(owner string, expr ebnf.Expression) ([][]Symbol, error) {
	switch e := expr.(type) {
	case nil:
		return [][]Symbol{nil}, nil
	case ebnf.Alternative:
		var alts [][]Symbol
		for _, x := range e {
			sub, err := c.alternatives(owner, x)
			if err != nil {
				return nil, err
			}
			alts = append(alts, sub...)
		}
		return alts, nil
	case ebnf.Sequence:
		var seq []Symbol
		for _, x := range e {
			syms, err := c.symbols(owner, x)
			if err != nil {
				return nil, err
			}
			seq = append(seq, syms...)
		}
		return [][]Symbol{seq}, nil
	case *ebnf.Group:
		return c.alternatives(owner, e.Body)
	default:
		syms, err := c.symbols(owner, expr)
		if err != nil {
			return nil, err
		}
		return [][]Symbol{syms}, nil
	}
}

func (c *ebnfConverter) symbols(owner string, expr ebnf.Expression) ([]Symbol, error) {
	switch e := expr.(type) {
	case *ebnf.Name:
		if isLexical(e.String) {
			return []Symbol{TokenSymbol(c.g.tokenIndex[e.String])}, nil
		}
		return []Symbol{RuleSymbol(c.g.ruleIndex[e.String])}, nil
	case *ebnf.Token:
		return []Symbol{TokenSymbol(c.g.addToken(e.String))}, nil
	case *ebnf.Group:
		alts, err := c.alternatives(owner, e.Body)
		if err != nil {
			return nil, err
		}
		if len(alts) == 1 {
			return alts[0], nil
		}
		return c.auxRule(owner, "group", alts)
	case *ebnf.Option:
		alts, err := c.alternatives(owner, e.Body)
		if err != nil {
			return nil, err
		}
		return c.auxRule(owner, "opt", append([][]Symbol{nil}, alts...))
	case *ebnf.Repetition:
		alts, err := c.alternatives(owner, e.Body)
		if err != nil {
			return nil, err
		}

		// R: | R body
		r := c.newAuxRule(owner, "rep")
		c.g.addProd(r, nil, nil)
		for _, alt := range alts {
			c.g.addProd(r, append([]Symbol{RuleSymbol(r)}, alt...), nil)
		}
		return []Symbol{RuleSymbol(r)}, nil
	case *ebnf.Range:
		pos := e.Begin.StringPos
		return nil, &SyntaxError{Line: pos.Line, Column: pos.Column, Msg: fmt.Sprintf("character range in rule %s, use a lexical production", owner)}
	case ebnf.Alternative, ebnf.Sequence:
		alts, err := c.alternatives(owner, e)
		if err != nil {
			return nil, err
		}
		if len(alts) == 1 {
			return alts[0], nil
		}
		return c.auxRule(owner, "group", alts)
	default:
		pos := expr.Pos()
		return nil, &SyntaxError{Line: pos.Line, Column: pos.Column, Msg: fmt.Sprintf("unsupported expression %T in rule %s", expr, owner)}
	}
}

func (c *ebnfConverter) newAuxRule(owner, kind string) RuleID {
	c.aux[owner]++
	name := fmt.Sprintf("%s_%s%d", owner, kind, c.aux[owner])
	return c.g.addRule(name)
}

func (c *ebnfConverter) auxRule(owner, kind string, alts [][]Symbol) ([]Symbol, error) {
	r := c.newAuxRule(owner, kind)
	for _, alt := range alts {
		c.g.addProd(r, alt, nil)
	}
	return []Symbol{RuleSymbol(r)}, nil
}
