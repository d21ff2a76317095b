package constraint

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ReadContinuations reads one JSON string per line. Blank lines are
// skipped.
func ReadContinuations(r io.Reader) ([][]byte, error) {
	var conts [][]byte
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var n int
	for scanner.Scan() {
		n++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var s string
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		conts = append(conts, []byte(s))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return conts, nil
}

func LoadContinuations(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conts, err := ReadContinuations(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return conts, nil
}

// WriteContinuations writes continuations in the format read by
// ReadContinuations.
func WriteContinuations(w io.Writer, continuations [][]byte) error {
	bw := bufio.NewWriter(w)
	for _, c := range continuations {
		b, err := json.Marshal(string(c))
		if err != nil {
			return err
		}
		bw.Write(b)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
