package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ad-freiburg/text-correction-utils/envconfig"
	"github.com/ad-freiburg/text-correction-utils/grammars"
	"github.com/ad-freiburg/text-correction-utils/logutil"
	"github.com/ad-freiburg/text-correction-utils/parser"
	"github.com/ad-freiburg/text-correction-utils/version"
)

var errMissingGrammar = errors.New("either --grammar or both --grammar-file and --lexer-file are required")

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoFormatHeaders(false)
	return table
}

// render prints rows as a table on a terminal and tab separated otherwise.
func render(w io.Writer, header []string, rows [][]string) {
	if !isTerminal(w) {
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		return
	}

	table := newTable(w, header...)
	table.AppendBulk(rows)
	table.Render()
}

// input returns the first argument, or standard input if there is none or
// it is "-".
func input(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}

	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func addGrammarFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("grammar", "g", "", fmt.Sprintf("Built-in grammar (%s)", strings.Join(grammars.Names(), ", ")))
	cmd.Flags().String("grammar-file", "", "Path to a Yacc grammar file, or an EBNF grammar ending in .ebnf for lex and parse")
	cmd.Flags().String("lexer-file", "", "Path to a lexer definition file")
}

// grammarFromFlags returns the grammar and lexer definitions selected by
// the grammar flags.
func grammarFromFlags(cmd *cobra.Command) (string, string, error) {
	name, _ := cmd.Flags().GetString("grammar")
	grammarFile, _ := cmd.Flags().GetString("grammar-file")
	lexerFile, _ := cmd.Flags().GetString("lexer-file")

	switch {
	case name != "":
		def, err := grammars.Load(name)
		if err != nil {
			return "", "", err
		}
		return def.Grammar, def.Lexer, nil
	case grammarFile != "" && lexerFile != "":
		g, err := parser.ReadFile(grammarFile)
		if err != nil {
			return "", "", err
		}
		l, err := parser.ReadFile(lexerFile)
		if err != nil {
			return "", "", err
		}
		return g, l, nil
	default:
		return "", "", errMissingGrammar
	}
}

func parserFromFlags(cmd *cobra.Command) (*parser.Parser, error) {
	grammarFile, _ := cmd.Flags().GetString("grammar-file")
	lexerFile, _ := cmd.Flags().GetString("lexer-file")
	if name, _ := cmd.Flags().GetString("grammar"); name == "" && grammarFile != "" && lexerFile != "" {
		return parser.FromFiles(grammarFile, lexerFile)
	}

	g, l, err := grammarFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	return parser.New(g, l)
}

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tcu",
		Short:         "Text correction utilities",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := envconfig.LogLevel()
			if s, _ := cmd.Flags().GetString("log-level"); s != "" {
				l, err := logutil.ParseLevel(s)
				if err != nil {
					return err
				}
				level = l
			}

			s, _ := cmd.Flags().GetString("log-format")
			format, err := logutil.ParseFormat(s)
			if err != nil {
				return err
			}

			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), level, format))
			return nil
		},
	}

	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	cobra.EnableCommandSorting = false

	lexCmd := &cobra.Command{
		Use:   "lex [TEXT]",
		Short: "Split text into grammar tokens",
		Args:  cobra.MaximumNArgs(1),
		RunE:  LexHandler,
	}
	addGrammarFlags(lexCmd)
	lexCmd.Flags().Bool("ignored", false, "Also show ignored tokens")

	parseCmd := &cobra.Command{
		Use:   "parse [TEXT]",
		Short: "Parse text and print its parse tree",
		Args:  cobra.MaximumNArgs(1),
		RunE:  ParseHandler,
	}
	addGrammarFlags(parseCmd)
	parseCmd.Flags().Bool("collapse", false, "Collapse nonterminals with a single child")
	parseCmd.Flags().Bool("skip-empty", false, "Drop rules that derived no input")
	parseCmd.Flags().Bool("json", false, "Print the tree as JSON")

	constrainCmd := &cobra.Command{
		Use:   "constrain CONTINUATIONS",
		Short: "Show the continuations that keep a prefix valid",
		Long:  "Show the continuations that keep a prefix valid. CONTINUATIONS is a file with one JSON string per line.",
		Args:  cobra.ExactArgs(1),
		RunE:  ConstrainHandler,
	}
	addGrammarFlags(constrainCmd)
	constrainCmd.Flags().StringP("kind", "k", "", "Constraint kind (regex, lr1, exact-lr1, continuation)")
	constrainCmd.Flags().String("pattern", "", "Regular expression for the regex constraint")
	constrainCmd.Flags().String("keys", "", "File of allowed keys, one per line with an optional tab separated value")
	constrainCmd.Flags().StringP("prefix", "p", "", "Prefix to start from")
	constrainCmd.Flags().IntSlice("next", nil, "Continuation indices to advance by, in order")
	constrainCmd.Flags().Bool("remote", false, "Run the session on the server at TCU_HOST")

	trieCmd := &cobra.Command{
		Use:   "trie",
		Short: "Build and query tries",
	}

	trieBuildCmd := &cobra.Command{
		Use:   "build KEYS OUTPUT",
		Short: "Build a trie from a key file and save it",
		Long:  "Build a trie from a file with one key per line, or from a dictionary with --dictionary, and save it to OUTPUT.",
		Args:  cobra.ExactArgs(2),
		RunE:  TrieBuildHandler,
	}
	trieBuildCmd.Flags().String("type", "art", "Trie implementation (art, patricia, vec)")
	trieBuildCmd.Flags().Bool("dictionary", false, "Read a tab separated dictionary and store frequencies")

	trieQueryCmd := &cobra.Command{
		Use:   "query TRIE PREFIX",
		Short: "Show the keys starting with a prefix",
		Args:  cobra.ExactArgs(2),
		RunE:  TrieQueryHandler,
	}
	trieQueryCmd.Flags().String("type", "art", "Trie implementation (art, patricia, vec)")
	trieQueryCmd.Flags().String("continuations", "", "Show the continuations from this file that extend the prefix instead")
	trieQueryCmd.Flags().Int("limit", 20, "Maximum number of keys to show, 0 for all")

	trieStatsCmd := &cobra.Command{
		Use:   "stats TRIE",
		Short: "Show statistics of a trie",
		Args:  cobra.ExactArgs(1),
		RunE:  TrieStatsHandler,
	}
	trieStatsCmd.Flags().String("type", "art", "Trie implementation (art, patricia, vec)")

	trieCmd.AddCommand(trieBuildCmd, trieQueryCmd, trieStatsCmd)

	dictCmd := &cobra.Command{
		Use:   "dictionary",
		Short: "Create and inspect word frequency dictionaries",
	}

	dictCreateCmd := &cobra.Command{
		Use:   "create OUTPUT FILE...",
		Short: "Count the words of text files",
		Args:  cobra.MinimumNArgs(2),
		RunE:  DictionaryCreateHandler,
	}

	dictTopCmd := &cobra.Command{
		Use:   "top DICTIONARY",
		Short: "Show the most frequent words",
		Args:  cobra.ExactArgs(1),
		RunE:  DictionaryTopHandler,
	}
	dictTopCmd.Flags().IntP("k", "k", 10, "Number of words to show")
	dictTopCmd.Flags().String("closest", "", "Show the word closest to this one instead")

	dictCmd.AddCommand(dictCreateCmd, dictTopCmd)

	grammarsCmd := &cobra.Command{
		Use:   "grammars",
		Short: "List grammars",
		Args:  cobra.NoArgs,
		RunE:  GrammarsHandler,
	}
	grammarsCmd.Flags().Bool("remote", false, "List the catalog of the server at TCU_HOST")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the constraint server",
		Args:    cobra.NoArgs,
		RunE:    RunServer,
	}

	envVars := envconfig.AsMap()
	appendEnvDocs(serveCmd, []envconfig.EnvVar{
		envVars["TCU_HOST"],
		envVars["TCU_DEBUG"],
		envVars["TCU_ORIGINS"],
		envVars["TCU_MAX_SESSIONS"],
		envVars["TCU_NUM_THREADS"],
		envVars["TCU_CONFIG"],
		envVars["TCU_GRAMMARS"],
	})
	appendEnvDocs(constrainCmd, []envconfig.EnvVar{envVars["TCU_HOST"]})
	appendEnvDocs(grammarsCmd, []envconfig.EnvVar{envVars["TCU_HOST"], envVars["TCU_CONFIG"], envVars["TCU_GRAMMARS"]})

	rootCmd.AddCommand(
		lexCmd,
		parseCmd,
		constrainCmd,
		trieCmd,
		dictCmd,
		grammarsCmd,
		serveCmd,
	)

	return rootCmd
}
