package grammar

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-freiburg/text-correction-utils/grammars"
)

func mustParse(t *testing.T, text string) *Grammar {
	t.Helper()
	g, err := Parse(text)
	require.NoError(t, err)
	return g
}

func TestParseCalc(t *testing.T) {
	def, err := grammars.Load("calc")
	require.NoError(t, err)

	g := mustParse(t, def.Grammar)
	assert.Equal(t, []string{"PLUS", "TIMES", "LP", "RP", "INT"}, g.Tokens())
	assert.Equal(t, 3, g.NumRules())
	assert.Equal(t, 6, g.NumProds())
	assert.Equal(t, "Expr", g.RuleName(g.Start()))
	assert.Equal(t, TokenID(5), g.EOF())
	assert.Equal(t, "$end", g.TokenName(g.EOF()))

	plus, ok := g.TokenIndex("PLUS")
	require.True(t, ok)
	assert.Equal(t, TokenID(0), plus)

	assert.Equal(t, "Expr: Expr 'PLUS' Term", g.ProdString(0))
	assert.Equal(t, "Factor: 'INT'", g.ProdString(5))
	assert.Equal(t, []ProdID{4, 5}, g.RuleProds(2))
	assert.Equal(t, RuleID(2), g.ProdRule(5))

	_, ok = g.Expect()
	assert.False(t, ok)
}

func TestParseDeclarations(t *testing.T) {
	g := mustParse(t, `
// comment
%start S
%token NUM ID
%left '+' '-'
%left '*'
%right '^'
%nonassoc '<'
%expect 2
%expect-rr 1
%epp NUM "number"
%%
/* rule with a type and an action */
S -> Result<u64, Box<dyn std::error::Error>>:
    S '+' S { $1 + $2 }
  | S '<' S
  | '-' S %prec '*'
  | NUM
  | ID
  ;
%%
fn main() {}
`)

	assert.Equal(t, []string{"NUM", "ID", "+", "-", "*", "^", "<"}, g.Tokens())
	assert.Equal(t, Precedence{Level: 1, Assoc: AssocLeft}, g.TokenPrec(2))
	assert.Equal(t, Precedence{Level: 1, Assoc: AssocLeft}, g.TokenPrec(3))
	assert.Equal(t, Precedence{Level: 3, Assoc: AssocRight}, g.TokenPrec(5))
	assert.Equal(t, Precedence{Level: 4, Assoc: AssocNonassoc}, g.TokenPrec(6))
	assert.Equal(t, Precedence{}, g.TokenPrec(0))

	assert.Equal(t, Precedence{Level: 1, Assoc: AssocLeft}, g.Prod(0).Prec)
	assert.Equal(t, Precedence{Level: 4, Assoc: AssocNonassoc}, g.Prod(1).Prec)
	assert.Equal(t, Precedence{Level: 2, Assoc: AssocLeft}, g.Prod(2).Prec, "%prec overrides the last token")
	assert.Equal(t, Precedence{}, g.Prod(3).Prec)

	n, ok := g.Expect()
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	n, ok = g.ExpectRR()
	assert.True(t, ok)
	assert.Equal(t, 1, n)

	assert.Equal(t, "number", g.TokenEPP(0))
	assert.Equal(t, `"ID"`, g.TokenEPP(1))
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		text string
		line int
		msg  string
	}{
		{"no separator", "%start S\n", 2, "missing %% separator"},
		{"no rules", "%%\n", 2, "grammar has no rules"},
		{"unknown symbol", "%%\nS: A ;\n", 2, "unknown symbol A"},
		{"unknown start", "%start T\n%%\nS: 'a' ;\n", 1, "unknown start rule T"},
		{"duplicate rule", "%%\nS: 'a' ;\nS: 'b' ;\n", 3, "rule S defined twice"},
		{"token and rule", "%token S\n%%\nS: 'a' ;\n", 3, "S is declared as a token and as a rule"},
		{"unterminated string", "%%\nS: 'a ;\n", 2, "unterminated string"},
		{"unterminated comment", "/* %%\n", 1, "unterminated comment"},
		{"unterminated action", "%%\nS: 'a' { x ;\n", 2, "unterminated action"},
		{"unknown declaration", "%union\n%%\nS: 'a' ;\n", 1, "unknown declaration %union"},
		{"prec outside rule", "%prec 'a'\n%%\n", 1, "%prec outside of a rule"},
		{"unknown prec", "%%\nS: 'a' %prec B ;\n", 2, "unknown %prec token B"},
		{"missing colon", "%%\nS 'a' ;\n", 2, "expected ':' after rule S"},
		{"stray character", "%%\nS: 'a' # ;\n", 2, "unexpected character '#'"},
		{"precedence twice", "%left 'a'\n%right 'a'\n%%\nS: 'a' ;\n", 2, "precedence of \"a\" declared twice"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)

			var serr *SyntaxError
			require.True(t, errors.As(err, &serr), "%T", err)
			assert.Equal(t, tt.line, serr.Line)
			assert.True(t, strings.Contains(serr.Msg, tt.msg), "%q does not contain %q", serr.Msg, tt.msg)
		})
	}
}

func TestParseEmptyAlternative(t *testing.T) {
	g := mustParse(t, "%%\nS: 'a' S | ;\n")
	require.Equal(t, 2, g.NumProds())
	assert.Empty(t, g.Prod(1).Symbols)
}

func TestParseEBNF(t *testing.T) {
	const src = `
Expr   = Term { ( "+" | "-" ) Term } .
Term   = Factor { "*" Factor } .
Factor = number | "(" Expr ")" | [ "-" ] "x" .
number = digit { digit } .
digit  = "0" … "9" .
`

	g, err := ParseEBNF("calc.ebnf", strings.NewReader(src), "Expr")
	require.NoError(t, err)

	assert.Equal(t, "Expr", g.RuleName(g.Start()))
	assert.Equal(t, []string{"number", "digit", "+", "-", "*", "(", ")", "x"}, g.Tokens())

	for _, name := range []string{"Expr", "Term", "Factor", "Expr_group1", "Expr_rep2", "Term_rep1", "Factor_opt1"} {
		_, ok := g.RuleIndex(name)
		assert.True(t, ok, name)
	}

	tbl, err := NewTable(g)
	require.NoError(t, err)
	assert.Empty(t, tbl.Conflicts())

	ok, _ := run(t, tbl, "number", "+", "(", "number", "*", "x", ")", "-", "-", "x")
	assert.True(t, ok)
	ok, _ = run(t, tbl, "number", "+")
	assert.False(t, ok)

	g, err = ParseEBNF("calc.ebnf", strings.NewReader(src), "")
	require.NoError(t, err)
	assert.Equal(t, "Expr", g.RuleName(g.Start()))

	_, err = ParseEBNF("bad.ebnf", strings.NewReader(`Expr = Missing .`), "Expr")
	assert.Error(t, err)

	_, err = ParseEBNF("lexical.ebnf", strings.NewReader(`expr = "a" .`), "expr")
	assert.Error(t, err)

	_, err = ParseEBNF("range.ebnf", strings.NewReader(`Expr = "a" … "z" .`), "Expr")
	var serr *SyntaxError
	assert.True(t, errors.As(err, &serr))
}
