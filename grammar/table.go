package grammar

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// ErrConflicts is returned when the conflicts of a table do not match the
// %expect declarations of its grammar.
var ErrConflicts = errors.New("unexpected conflicts")

type StateID uint32

const noState = ^StateID(0)

type ActionKind uint8

const (
	Error ActionKind = iota
	Shift
	Reduce
	Accept
)

func (k ActionKind) String() string {
	switch k {
	case Shift:
		return "shift"
	case Reduce:
		return "reduce"
	case Accept:
		return "accept"
	default:
		return "error"
	}
}

// Action is a parse table entry. State is set for shifts, Prod for reduces.
type Action struct {
	Kind  ActionKind
	State StateID
	Prod  ProdID
}

type ConflictKind uint8

const (
	ShiftReduce ConflictKind = iota
	ReduceReduce
)

func (k ConflictKind) String() string {
	if k == ShiftReduce {
		return "shift/reduce"
	}
	return "reduce/reduce"
}

// Conflict is a table entry that was resolved by the Yacc defaults: shift
// wins over reduce, the earliest production wins among reduces.
type Conflict struct {
	Kind  ConflictKind
	State StateID
	Token TokenID
	Prods []ProdID
}

// Table holds the actions and gotos of an LR(1) automaton.
type Table struct {
	g *Grammar

	actions     [][]Action
	gotos       [][]StateID
	stateTokens [][]TokenID
	conflicts   []Conflict
}

func (t *Table) Grammar() *Grammar {
	return t.g
}

func (t *Table) Start() StateID {
	return 0
}

func (t *Table) NumStates() int {
	return len(t.actions)
}

func (t *Table) Action(s StateID, tok TokenID) Action {
	return t.actions[s][tok]
}

func (t *Table) Goto(s StateID, r RuleID) (StateID, bool) {
	next := t.gotos[s][r]
	return next, next != noState
}

// StateActions returns the tokens with a non error action in s, in id
// order.
func (t *Table) StateActions(s StateID) []TokenID {
	return t.stateTokens[s]
}

func (t *Table) Conflicts() []Conflict {
	return t.conflicts
}

type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) set(i int) {
	b[i/64] |= 1 << (i % 64)
}

func (b bitset) has(i int) bool {
	return b[i/64]&(1<<(i%64)) != 0
}

func (b bitset) union(o bitset) bool {
	var changed bool
	for i, w := range o {
		if b[i]|w != b[i] {
			b[i] |= w
			changed = true
		}
	}
	return changed
}

func (b bitset) clone() bitset {
	return append(bitset(nil), b...)
}

type core struct {
	prod ProdID
	dot  int
}

type item struct {
	core
	la bitset
}

type canonicalState struct {
	kernel []item
	items  []item
	next   map[Symbol]int
}

type tableBuilder struct {
	g *Grammar

	// prods holds the grammar productions plus the augmented start
	// production at the end
	prods    []Production
	accept   ProdID
	ntokens  int
	nullable []bool
	first    []bitset

	states []*canonicalState
	index  map[string]int
}

// NewTable builds the canonical LR(1) automaton of g and merges states with
// equal cores as long as merging adds no reduce/reduce conflict, splitting
// merged states again where their transitions disagree.
func NewTable(g *Grammar) (*Table, error) {
	b := &tableBuilder{
		g:       g,
		prods:   append(slices.Clone(g.prods), Production{Rule: RuleID(len(g.rules)), Symbols: []Symbol{RuleSymbol(g.start)}}),
		accept:  ProdID(len(g.prods)),
		ntokens: len(g.tokens) + 1,
		index:   make(map[string]int),
	}

	b.computeFirst()
	b.canonical()
	clusters := b.merge()

	t, err := b.table(clusters)
	if err != nil {
		return nil, err
	}

	slog.Debug("built lr table", "rules", len(g.rules), "tokens", len(g.tokens), "canonical", len(b.states), "states", len(clusters))
	return t, nil
}

func (b *tableBuilder) computeFirst() {
	n := len(b.g.rules)
	b.nullable = make([]bool, n)
	b.first = make([]bitset, n)
	for i := range b.first {
		b.first[i] = newBitset(b.ntokens)
	}

	for changed := true; changed; {
		changed = false
		for _, p := range b.g.prods {
			nullable := true
			for _, s := range p.Symbols {
				if !s.IsRule {
					if !b.first[p.Rule].has(int(s.ID)) {
						b.first[p.Rule].set(int(s.ID))
						changed = true
					}
					nullable = false
					break
				}

				if b.first[p.Rule].union(b.first[s.ID]) {
					changed = true
				}
				if !b.nullable[s.ID] {
					nullable = false
					break
				}
			}

			if nullable && !b.nullable[p.Rule] {
				b.nullable[p.Rule] = true
				changed = true
			}
		}
	}
}

// firstOf returns the tokens that can start symbols followed by la.
func (b *tableBuilder) firstOf(symbols []Symbol, la bitset) bitset {
	out := newBitset(b.ntokens)
	for _, s := range symbols {
		if !s.IsRule {
			out.set(int(s.ID))
			return out
		}

		out.union(b.first[s.ID])
		if !b.nullable[s.ID] {
			return out
		}
	}

	out.union(la)
	return out
}

func (b *tableBuilder) closure(kernel []item) []item {
	items := make([]item, len(kernel))
	pos := make(map[core]int, len(kernel))
	work := make([]int, 0, len(kernel))
	for i, it := range kernel {
		items[i] = item{it.core, it.la.clone()}
		pos[it.core] = i
		work = append(work, i)
	}

	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]

		it := items[i]
		p := b.prods[it.prod]
		if it.dot >= len(p.Symbols) || !p.Symbols[it.dot].IsRule {
			continue
		}

		la := b.firstOf(p.Symbols[it.dot+1:], it.la)
		for _, q := range b.g.ruleProds[p.Symbols[it.dot].ID] {
			c := core{q, 0}
			if j, ok := pos[c]; ok {
				if items[j].la.union(la) {
					work = append(work, j)
				}
				continue
			}

			pos[c] = len(items)
			items = append(items, item{c, la.clone()})
			work = append(work, len(items)-1)
		}
	}

	return items
}

func kernelKey(kernel []item, withLookahead bool) string {
	var sb strings.Builder
	var buf [8]byte
	for _, it := range kernel {
		binary.LittleEndian.PutUint32(buf[:4], uint32(it.prod))
		binary.LittleEndian.PutUint32(buf[4:], uint32(it.dot))
		sb.Write(buf[:])
		if withLookahead {
			for _, w := range it.la {
				binary.LittleEndian.PutUint64(buf[:], w)
				sb.Write(buf[:])
			}
		}
	}
	return sb.String()
}

func (b *tableBuilder) addState(kernel []item) (int, bool) {
	key := kernelKey(kernel, true)
	if i, ok := b.index[key]; ok {
		return i, false
	}

	i := len(b.states)
	b.states = append(b.states, &canonicalState{
		kernel: kernel,
		items:  b.closure(kernel),
		next:   make(map[Symbol]int),
	})
	b.index[key] = i
	return i, true
}

func symbolOrder(a, b Symbol) int {
	if a.IsRule != b.IsRule {
		if a.IsRule {
			return 1
		}
		return -1
	}
	return cmp.Compare(a.ID, b.ID)
}

func (b *tableBuilder) canonical() {
	la := newBitset(b.ntokens)
	la.set(len(b.g.tokens))
	b.addState([]item{{core{b.accept, 0}, la}})

	for i := 0; i < len(b.states); i++ {
		st := b.states[i]

		kernels := make(map[Symbol][]item)
		for _, it := range st.items {
			p := b.prods[it.prod]
			if it.dot >= len(p.Symbols) {
				continue
			}
			s := p.Symbols[it.dot]
			kernels[s] = append(kernels[s], item{core{it.prod, it.dot + 1}, it.la.clone()})
		}

		symbols := make([]Symbol, 0, len(kernels))
		for s := range kernels {
			symbols = append(symbols, s)
		}
		slices.SortFunc(symbols, symbolOrder)

		for _, s := range symbols {
			kernel := kernels[s]
			slices.SortFunc(kernel, func(x, y item) int {
				return cmp.Or(cmp.Compare(x.prod, y.prod), cmp.Compare(x.dot, y.dot))
			})

			j, _ := b.addState(kernel)
			st.next[s] = j
		}
	}
}

// reduces maps each lookahead token of s to the productions completed in s.
func (b *tableBuilder) reduces(s *canonicalState) map[int][]ProdID {
	out := make(map[int][]ProdID)
	for _, it := range s.items {
		if it.dot < len(b.prods[it.prod].Symbols) {
			continue
		}
		for t := range b.ntokens {
			if it.la.has(t) {
				out[t] = append(out[t], it.prod)
			}
		}
	}

	for t := range out {
		slices.Sort(out[t])
	}
	return out
}

// compatible reports whether merging the states adds no reduce/reduce
// conflict: for every token either at most one production is reduced, or
// all states already reduce the same productions.
func compatible(reds []map[int][]ProdID) bool {
	union := make(map[int][]ProdID)
	for _, r := range reds {
		for t, prods := range r {
			for _, p := range prods {
				if !slices.Contains(union[t], p) {
					union[t] = append(union[t], p)
				}
			}
		}
	}

	for t, u := range union {
		if len(u) <= 1 {
			continue
		}

		slices.Sort(u)
		for _, r := range reds {
			if !slices.Equal(r[t], u) {
				return false
			}
		}
	}
	return true
}

func (b *tableBuilder) merge() [][]int {
	reds := make([]map[int][]ProdID, len(b.states))
	for i, s := range b.states {
		reds[i] = b.reduces(s)
	}

	var clusters [][]int
	groups := make(map[string][]int)
	for i, s := range b.states {
		key := kernelKey(s.kernel, false)

		placed := false
		for _, c := range groups[key] {
			members := make([]map[int][]ProdID, 0, len(clusters[c])+1)
			for _, m := range clusters[c] {
				members = append(members, reds[m])
			}

			if compatible(append(members, reds[i])) {
				clusters[c] = append(clusters[c], i)
				placed = true
				break
			}
		}

		if !placed {
			groups[key] = append(groups[key], len(clusters))
			clusters = append(clusters, []int{i})
		}
	}

	return b.refine(clusters)
}

// refine splits clusters until all members of a cluster move to the same
// cluster on every symbol.
func (b *tableBuilder) refine(clusters [][]int) [][]int {
	assign := make([]int, len(b.states))
	for changed := true; changed; {
		for c, members := range clusters {
			for _, m := range members {
				assign[m] = c
			}
		}

		changed = false
		var next [][]int
		for _, members := range clusters {
			symbols := make([]Symbol, 0, len(b.states[members[0]].next))
			for s := range b.states[members[0]].next {
				symbols = append(symbols, s)
			}
			slices.SortFunc(symbols, symbolOrder)

			var order []string
			split := make(map[string][]int)
			for _, m := range members {
				var sb strings.Builder
				for _, s := range symbols {
					fmt.Fprintf(&sb, "%d,", assign[b.states[m].next[s]])
				}

				sig := sb.String()
				if _, ok := split[sig]; !ok {
					order = append(order, sig)
				}
				split[sig] = append(split[sig], m)
			}

			if len(order) > 1 {
				changed = true
			}
			for _, sig := range order {
				next = append(next, split[sig])
			}
		}
		clusters = next
	}

	slices.SortFunc(clusters, func(x, y []int) int {
		return cmp.Compare(x[0], y[0])
	})
	return clusters
}

func (b *tableBuilder) table(clusters [][]int) (*Table, error) {
	g := b.g
	assign := make([]int, len(b.states))
	for c, members := range clusters {
		for _, m := range members {
			assign[m] = c
		}
	}

	t := &Table{
		g:           g,
		actions:     make([][]Action, len(clusters)),
		gotos:       make([][]StateID, len(clusters)),
		stateTokens: make([][]TokenID, len(clusters)),
	}

	var sr, rr int
	for c, members := range clusters {
		state := StateID(c)
		actions := make([]Action, b.ntokens)
		gotos := make([]StateID, len(g.rules))
		for i := range gotos {
			gotos[i] = noState
		}

		for s, next := range b.states[members[0]].next {
			if s.IsRule {
				gotos[s.ID] = StateID(assign[next])
			} else {
				actions[s.ID] = Action{Kind: Shift, State: StateID(assign[next])}
			}
		}

		candidates := make(map[int][]ProdID)
		for _, m := range members {
			for tok, prods := range b.reduces(b.states[m]) {
				for _, p := range prods {
					if !slices.Contains(candidates[tok], p) {
						candidates[tok] = append(candidates[tok], p)
					}
				}
			}
		}

		for tok := range b.ntokens {
			prods := candidates[tok]
			if len(prods) == 0 {
				continue
			}
			slices.Sort(prods)

			if i := slices.Index(prods, b.accept); i >= 0 {
				if len(prods) > 1 {
					rr++
					t.addConflict(Conflict{Kind: ReduceReduce, State: state, Token: TokenID(tok), Prods: slices.Delete(prods, i, i+1)})
				}
				actions[tok] = Action{Kind: Accept}
				continue
			}

			if len(prods) > 1 {
				rr++
				t.addConflict(Conflict{Kind: ReduceReduce, State: state, Token: TokenID(tok), Prods: prods})
			}

			reduce := Action{Kind: Reduce, Prod: prods[0]}
			if actions[tok].Kind != Shift {
				actions[tok] = reduce
				continue
			}

			tp, pp := g.TokenPrec(TokenID(tok)), b.prods[prods[0]].Prec
			if tp.Level == 0 || pp.Level == 0 {
				sr++
				t.addConflict(Conflict{Kind: ShiftReduce, State: state, Token: TokenID(tok), Prods: prods[:1]})
				continue
			}

			switch {
			case pp.Level > tp.Level:
				actions[tok] = reduce
			case pp.Level < tp.Level:
			case tp.Assoc == AssocLeft:
				actions[tok] = reduce
			case tp.Assoc == AssocNonassoc:
				actions[tok] = Action{Kind: Error}
			}
		}

		var tokens []TokenID
		for tok, a := range actions {
			if a.Kind != Error {
				tokens = append(tokens, TokenID(tok))
			}
		}

		t.actions[c] = actions
		t.gotos[c] = gotos
		t.stateTokens[c] = tokens
	}

	if n, ok := g.Expect(); ok && n != sr {
		return nil, fmt.Errorf("%w: expected %d shift/reduce conflicts, found %d", ErrConflicts, n, sr)
	}

	if n, ok := g.ExpectRR(); ok && n != rr {
		return nil, fmt.Errorf("%w: expected %d reduce/reduce conflicts, found %d", ErrConflicts, n, rr)
	}

	return t, nil
}

func (t *Table) addConflict(c Conflict) {
	t.conflicts = append(t.conflicts, c)

	prods := make([]string, len(c.Prods))
	for i, p := range c.Prods {
		prods[i] = t.g.ProdString(p)
	}

	if _, ok := t.g.Expect(); ok && c.Kind == ShiftReduce {
		slog.Debug("grammar conflict", "kind", c.Kind, "state", c.State, "token", t.g.TokenName(c.Token), "productions", prods)
		return
	}

	slog.Warn("grammar conflict", "kind", c.Kind, "state", c.State, "token", t.g.TokenName(c.Token), "productions", prods)
}
