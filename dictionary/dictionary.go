// Package dictionary holds word frequencies read from tab-separated files.
package dictionary

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ad-freiburg/text-correction-utils/trie"
)

// LineError is returned for a malformed line. Line is 1-based.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

var errFields = errors.New("expected two tab separated fields")

type Dictionary struct {
	freqs map[string]int
	total int
}

func New() *Dictionary {
	return &Dictionary{freqs: make(map[string]int)}
}

// Load reads lines of the form "token\tfrequency". Later lines overwrite
// earlier ones for the same token.
func Load(r io.Reader) (*Dictionary, error) {
	tr := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	scanner := bufio.NewScanner(transform.NewReader(r, tr))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	d := New()
	var n int
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			return nil, &LineError{Line: n, Text: line, Err: errFields}
		}

		freq, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, &LineError{Line: n, Text: line, Err: err}
		}

		d.Set(fields[0], freq)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return d, nil
}

func LoadFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	slog.Debug("loaded dictionary", "path", path, "entries", d.Len())
	return d, nil
}

// Save writes the dictionary sorted by token.
func (d *Dictionary) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, k := range slices.Sorted(maps.Keys(d.freqs)) {
		if _, err := fmt.Fprintf(bw, "%s\t%d\n", k, d.freqs[k]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (d *Dictionary) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := d.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (d *Dictionary) Set(token string, freq int) {
	d.total += freq - d.freqs[token]
	d.freqs[token] = freq
}

func (d *Dictionary) Get(token string) (int, bool) {
	f, ok := d.freqs[token]
	return f, ok
}

func (d *Dictionary) Contains(token string) bool {
	_, ok := d.freqs[token]
	return ok
}

func (d *Dictionary) Len() int {
	return len(d.freqs)
}

// RelFrequency returns freq relative to the sum of all frequencies.
func (d *Dictionary) RelFrequency(freq int) float64 {
	if d.total == 0 {
		return 0
	}
	return float64(freq) / float64(d.total)
}

type Entry struct {
	Token string `json:"token"`
	Freq  int    `json:"freq"`
}

func byFreq(a, b Entry) int {
	if c := cmp.Compare(b.Freq, a.Freq); c != 0 {
		return c
	}
	return strings.Compare(a.Token, b.Token)
}

// TopK returns the k most frequent tokens, ties broken by token. k <= 0
// returns all of them.
func (d *Dictionary) TopK(k int) []Entry {
	entries := make([]Entry, 0, len(d.freqs))
	for t, f := range d.freqs {
		entries = append(entries, Entry{Token: t, Freq: f})
	}
	slices.SortFunc(entries, byFreq)

	if k > 0 && k < len(entries) {
		entries = entries[:k]
	}
	return entries
}

// Closest returns the token with the smallest edit distance to s. Among
// equally close tokens the most frequent one wins. With normalized the
// distance is divided by the length of the longer string.
func (d *Dictionary) Closest(s string, normalized bool) (Entry, bool) {
	var best Entry
	bestDist := -1.0
	for t, f := range d.freqs {
		dist := float64(editDistance(s, t))
		if normalized {
			dist /= float64(max(len([]rune(s)), len([]rune(t)), 1))
		}

		e := Entry{Token: t, Freq: f}
		if bestDist < 0 || dist < bestDist || (dist == bestDist && byFreq(e, best) < 0) {
			best, bestDist = e, dist
		}
	}
	return best, bestDist >= 0
}

// editDistance is the Levenshtein distance over runes.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			sub := prev[j-1]
			if ra[i-1] != rb[j-1] {
				sub++
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Trie returns an adaptive radix trie from token to frequency.
func (d *Dictionary) Trie() *trie.ART[int] {
	t := trie.NewART[int]()
	for k, v := range d.freqs {
		t.Insert([]byte(k), v)
	}
	return t
}

// Create counts the whitespace separated words of every line read from
// readers after NFKC normalization. Lines are counted by up to numThreads
// workers.
func Create(ctx context.Context, readers []io.Reader, numThreads int) (*Dictionary, error) {
	const chunkSize = 4096

	chunks := make(chan []string, max(numThreads, 1))
	var mu sync.Mutex
	d := New()

	g, ctx := errgroup.WithContext(ctx)
	for range max(numThreads, 1) {
		g.Go(func() error {
			for lines := range chunks {
				counts := make(map[string]int)
				for _, line := range lines {
					for _, w := range strings.Fields(norm.NFKC.String(line)) {
						counts[w]++
					}
				}

				mu.Lock()
				for w, c := range counts {
					d.Set(w, d.freqs[w]+c)
				}
				mu.Unlock()
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(chunks)
		for _, r := range readers {
			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

			lines := make([]string, 0, chunkSize)
			for scanner.Scan() {
				lines = append(lines, scanner.Text())
				if len(lines) == chunkSize {
					select {
					case chunks <- lines:
					case <-ctx.Done():
						return ctx.Err()
					}
					lines = make([]string, 0, chunkSize)
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}

			if len(lines) > 0 {
				select {
				case chunks <- lines:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}
