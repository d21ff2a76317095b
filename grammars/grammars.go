// Package grammars embeds the built-in grammar and lexer definitions.
package grammars

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
)

//go:embed calc json test
var files embed.FS

var ErrUnknownGrammar = errors.New("unknown grammar")

// Definition is a Yacc grammar together with its lexer definition.
type Definition struct {
	Name    string
	Grammar string
	Lexer   string
}

// Names returns the names of the built-in grammars, sorted.
func Names() []string {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		panic(err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}

	slices.Sort(names)
	return names
}

func Load(name string) (Definition, error) {
	if !slices.Contains(Names(), name) {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownGrammar, name)
	}

	g, err := fs.ReadFile(files, path.Join(name, name+".y"))
	if err != nil {
		return Definition{}, err
	}

	l, err := fs.ReadFile(files, path.Join(name, name+".l"))
	if err != nil {
		return Definition{}, err
	}

	return Definition{Name: name, Grammar: string(g), Lexer: string(l)}, nil
}

// Examples returns the example inputs of a grammar keyed by file name.
func Examples(name string) (map[string]string, error) {
	if !slices.Contains(Names(), name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGrammar, name)
	}

	dir := path.Join(name, "examples")
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, err
	}

	examples := make(map[string]string, len(entries))
	for _, e := range entries {
		b, err := fs.ReadFile(files, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		examples[e.Name()] = string(b)
	}
	return examples, nil
}
