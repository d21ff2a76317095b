package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ad-freiburg/text-correction-utils/dictionary"
	"github.com/ad-freiburg/text-correction-utils/envconfig"
)

func DictionaryCreateHandler(cmd *cobra.Command, args []string) error {
	output, files := args[0], args[1:]

	readers := make([]io.Reader, 0, len(files))
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		readers = append(readers, bufio.NewReader(f))
	}

	start := time.Now()
	d, err := dictionary.Create(cmd.Context(), readers, envconfig.NumThreads)
	if err != nil {
		return err
	}
	slog.Debug("created dictionary", "files", len(files), "tokens", d.Len(), "threads", envconfig.NumThreads, "elapsed", time.Since(start))

	if err := d.SaveFile(output); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d tokens to %s\n", d.Len(), output)
	return nil
}

func DictionaryTopHandler(cmd *cobra.Command, args []string) error {
	d, err := dictionary.LoadFile(args[0])
	if err != nil {
		return err
	}

	var entries []dictionary.Entry
	if s, _ := cmd.Flags().GetString("closest"); s != "" {
		e, ok := d.Closest(s, true)
		if !ok {
			return fmt.Errorf("%s is empty", args[0])
		}
		entries = append(entries, e)
	} else {
		k, _ := cmd.Flags().GetInt("k")
		entries = d.TopK(k)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Token,
			strconv.Itoa(e.Freq),
			strconv.FormatFloat(d.RelFrequency(e.Freq), 'g', 4, 64),
		})
	}

	render(cmd.OutOrStdout(), []string{"TOKEN", "FREQ", "REL"}, rows)
	return nil
}
