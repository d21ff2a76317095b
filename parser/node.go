package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ad-freiburg/text-correction-utils/lexer"
)

type NodeKind uint8

const (
	Empty NodeKind = iota
	Terminal
	NonTerminal
)

func (k NodeKind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Terminal:
		return "terminal"
	case NonTerminal:
		return "nonterminal"
	default:
		return "unknown"
	}
}

func (k NodeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Node is a node of a parse tree. Empty nodes stand for rules that derived
// no input and have no span.
type Node struct {
	Kind     NodeKind   `json:"kind"`
	Name     string     `json:"name"`
	Span     lexer.Span `json:"span"`
	Children []*Node    `json:"children,omitempty"`
}

func newNonTerminal(name string, children []*Node, o options) *Node {
	var kept []*Node
	first, last := -1, -1
	for _, c := range children {
		if c.Kind == Empty && o.skipEmpty {
			continue
		}
		if c.Kind != Empty {
			if first < 0 {
				first = len(kept)
			}
			last = len(kept)
		}
		kept = append(kept, c)
	}

	switch {
	case first < 0:
		return &Node{Kind: Empty, Name: name}
	case len(kept) == 1 && o.collapse:
		return kept[0]
	}

	start, end := kept[first].Span.Start, kept[last].Span.End()
	return &Node{
		Kind:     NonTerminal,
		Name:     name,
		Span:     lexer.Span{Start: start, Len: end - start},
		Children: kept,
	}
}

// Text returns the input covered by n.
func (n *Node) Text(text string) string {
	if n.Kind == Empty {
		return ""
	}
	return text[n.Span.Start:n.Span.End()]
}

// Pretty renders the tree below n with one node per line, indenting
// children by two spaces. With collapse, nonterminals with a single child
// are shown as that child.
func (n *Node) Pretty(text string, collapse bool) string {
	var sb strings.Builder
	n.pretty(&sb, text, 0, collapse)
	return sb.String()
}

func (n *Node) pretty(sb *strings.Builder, text string, indent int, collapse bool) {
	switch n.Kind {
	case Empty, Terminal:
		fmt.Fprintf(sb, "%*s%s '%s'", indent, "", n.Name, n.Text(text))
	case NonTerminal:
		if len(n.Children) == 1 && collapse {
			n.Children[0].pretty(sb, text, indent, collapse)
			return
		}

		fmt.Fprintf(sb, "%*s%s", indent, "", n.Name)
		for _, c := range n.Children {
			sb.WriteByte('\n')
			c.pretty(sb, text, indent+2, collapse)
		}
	}
}
