package server

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ad-freiburg/text-correction-utils/api"
	"github.com/ad-freiburg/text-correction-utils/constraint"
	"github.com/ad-freiburg/text-correction-utils/envconfig"
	"github.com/ad-freiburg/text-correction-utils/grammars"
	"github.com/ad-freiburg/text-correction-utils/parser"
)

var (
	errUnknownGrammar = errors.New("grammar not found")
	errNotParsable    = errors.New("regular expressions cannot be parsed")
)

type catalogEntry struct {
	info api.GrammarInfo
	src  constraint.Source

	continuations func() ([][]byte, error)
	parser        func() (*parser.Parser, error)
}

// Catalog holds the grammars the server knows by name: the built-in ones,
// those found in the grammars directory and those listed in the
// configuration file, later ones replacing earlier ones of the same name.
type Catalog struct {
	entries map[string]*catalogEntry
}

func NewCatalog(cfg *envconfig.Config, dir string) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]*catalogEntry)}

	for _, name := range grammars.Names() {
		def, err := grammars.Load(name)
		if err != nil {
			return nil, err
		}
		c.add(name, "builtin", constraint.Source{Kind: constraint.KindLR1, Grammar: def.Grammar, Lexer: def.Lexer}, "")
	}

	if dir != "" {
		if err := c.addDir(dir); err != nil {
			return nil, err
		}
	}

	if cfg != nil {
		for _, g := range cfg.Grammars {
			if err := c.addConfig(g); err != nil {
				return nil, fmt.Errorf("grammar %q: %w", g.Name, err)
			}
		}
	}

	return c, nil
}

func (c *Catalog) add(name, source string, src constraint.Source, continuations string) {
	e := &catalogEntry{
		info: api.GrammarInfo{Name: name, Kind: string(src.Kind), Source: source},
		src:  src,
	}

	e.continuations = sync.OnceValues(func() ([][]byte, error) {
		if continuations == "" {
			return nil, nil
		}
		return constraint.LoadContinuations(continuations)
	})

	e.parser = sync.OnceValues(func() (*parser.Parser, error) {
		if src.Kind == constraint.KindRegex {
			return nil, fmt.Errorf("%w: %s", errNotParsable, name)
		}
		return parser.New(src.Grammar, src.Lexer)
	})

	if _, ok := c.entries[name]; ok {
		slog.Debug("replacing grammar", "name", name, "source", source)
	}
	c.entries[name] = e
}

// addDir adds every subdirectory d of dir that holds d.y and d.l.
func (c *Catalog) addDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		name := e.Name()
		g, err := parser.ReadFile(filepath.Join(dir, name, name+".y"))
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("skipping grammar directory without grammar file", "dir", filepath.Join(dir, name))
			continue
		} else if err != nil {
			return err
		}

		l, err := parser.ReadFile(filepath.Join(dir, name, name+".l"))
		if err != nil {
			return err
		}

		continuations := filepath.Join(dir, name, "continuations.jsonl")
		if _, err := os.Stat(continuations); err != nil {
			continuations = ""
		}

		c.add(name, "file", constraint.Source{Kind: constraint.KindLR1, Grammar: g, Lexer: l}, continuations)
	}

	return nil
}

func (c *Catalog) addConfig(g envconfig.Grammar) error {
	if g.Name == "" {
		return errors.New("missing name")
	}

	kind := g.Kind
	if kind == "" && g.Pattern != "" {
		kind = string(constraint.KindRegex)
	}

	k, err := constraint.ParseKind(kind)
	if err != nil {
		return err
	}

	src := constraint.Source{Kind: k, Pattern: g.Pattern}
	source := "config"
	switch {
	case k == constraint.KindContinuation:
		return errors.New("continuation constraints take their keys from the session request")
	case k == constraint.KindRegex:
		if g.Pattern == "" {
			return errors.New("missing pattern")
		}
		source = "pattern"
	case g.Builtin != "":
		def, err := grammars.Load(g.Builtin)
		if err != nil {
			return err
		}
		src.Grammar, src.Lexer = def.Grammar, def.Lexer
		source = "builtin"
	case g.Grammar != "" && g.Lexer != "":
		if src.Grammar, err = parser.ReadFile(g.Grammar); err != nil {
			return err
		}
		if src.Lexer, err = parser.ReadFile(g.Lexer); err != nil {
			return err
		}
		source = "file"
	default:
		return errors.New("needs a builtin, a pattern, or grammar and lexer files")
	}

	c.add(g.Name, source, src, g.Continuations)
	return nil
}

func (c *Catalog) get(name string) (*catalogEntry, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownGrammar, name)
	}
	return e, nil
}

// List returns the catalog sorted by name.
func (c *Catalog) List() []api.GrammarInfo {
	infos := make([]api.GrammarInfo, 0, len(c.entries))
	for _, e := range c.entries {
		infos = append(infos, e.info)
	}
	slices.SortFunc(infos, func(a, b api.GrammarInfo) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return infos
}
