package trie

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

const formatVersion = 1

type header struct {
	Version int `cbor:"1,keyasint"`
	Len     int `cbor:"2,keyasint"`
}

type record[V any] struct {
	_     struct{} `cbor:",toarray"`
	Key   []byte
	Value V
}

var ErrFormat = errors.New("unsupported trie file")

// Save writes the entries of t in key order as a CBOR sequence: a header
// followed by one [key, value] array per entry.
func Save[V any](w io.Writer, t ContinuationSearch[V]) error {
	enc := cbor.NewEncoder(w)
	if err := enc.Encode(header{Version: formatVersion, Len: t.Len()}); err != nil {
		return err
	}

	for k, v := range t.Continuations(nil) {
		if err := enc.Encode(record[V]{Key: k, Value: v}); err != nil {
			return fmt.Errorf("encode %q: %w", k, err)
		}
	}

	return nil
}

// Load inserts the entries written by Save into t.
func Load[V any](r io.Reader, t PrefixSearch[V]) error {
	dec := cbor.NewDecoder(r)

	var h header
	if err := dec.Decode(&h); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}

	if h.Version != formatVersion {
		return fmt.Errorf("%w: version %d", ErrFormat, h.Version)
	}

	for i := 0; i < h.Len; i++ {
		var rec record[V]
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		t.Insert(rec.Key, rec.Value)
	}

	return nil
}
