package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ad-freiburg/text-correction-utils/api"
	"github.com/ad-freiburg/text-correction-utils/envconfig"
	"github.com/ad-freiburg/text-correction-utils/lexer"
	"github.com/ad-freiburg/text-correction-utils/parser"
	"github.com/ad-freiburg/text-correction-utils/server"
)

func LexHandler(cmd *cobra.Command, args []string) error {
	p, err := parserFromFlags(cmd)
	if err != nil {
		return err
	}

	text, err := input(cmd, args)
	if err != nil {
		return err
	}

	tokens, spans, err := lexer.Lex(p.Entries(), []byte(text))
	if err != nil {
		return err
	}

	ignored, _ := cmd.Flags().GetBool("ignored")
	g := p.Table().Grammar()

	var rows [][]string
	for i, tok := range tokens {
		if tok.Ignore && !ignored {
			continue
		}

		name := "(ignored)"
		if !tok.Ignore {
			name = g.TokenName(tok.ID)
		}

		span := spans[i]
		rows = append(rows, []string{
			name,
			strconv.Itoa(span.Start),
			strconv.Itoa(span.End()),
			strconv.Quote(text[span.Start:span.End()]),
		})
	}

	render(cmd.OutOrStdout(), []string{"TOKEN", "START", "END", "TEXT"}, rows)
	return nil
}

func ParseHandler(cmd *cobra.Command, args []string) error {
	p, err := parserFromFlags(cmd)
	if err != nil {
		return err
	}

	text, err := input(cmd, args)
	if err != nil {
		return err
	}

	collapse, _ := cmd.Flags().GetBool("collapse")
	skipEmpty, _ := cmd.Flags().GetBool("skip-empty")
	asJSON, _ := cmd.Flags().GetBool("json")

	var opts []parser.Option
	if collapse {
		opts = append(opts, parser.WithCollapse())
	}
	if skipEmpty {
		opts = append(opts, parser.WithSkipEmpty())
	}

	n, err := p.Parse(text, opts...)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(n)
	}

	fmt.Fprintln(cmd.OutOrStdout(), n.Pretty(text, collapse))
	return nil
}

func GrammarsHandler(cmd *cobra.Command, args []string) error {
	var infos []api.GrammarInfo
	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}

		resp, err := client.Grammars(cmd.Context())
		if err != nil {
			return err
		}
		infos = resp.Grammars
	} else {
		catalog, err := server.NewCatalog(envconfig.FileConfig(), envconfig.GrammarsDir)
		if err != nil {
			return err
		}
		infos = catalog.List()
	}

	var rows [][]string
	for _, info := range infos {
		rows = append(rows, []string{info.Name, info.Kind, info.Source})
	}

	render(cmd.OutOrStdout(), []string{"NAME", "KIND", "SOURCE"}, rows)
	return nil
}
