package server

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ad-freiburg/text-correction-utils/constraint"
)

var errSessionNotFound = errors.New("session not found")

// sessionStore keeps the most recently used sessions. The least recently
// used session is dropped once the store is full.
type sessionStore struct {
	cache *lru.Cache[string, *constraint.Session]
}

func newSessionStore(size int) (*sessionStore, error) {
	cache, err := lru.NewWithEvict(size, func(id string, _ *constraint.Session) {
		slog.Debug("evicted session", "id", id)
	})
	if err != nil {
		return nil, err
	}
	return &sessionStore{cache: cache}, nil
}

func (s *sessionStore) add(session *constraint.Session) string {
	id := uuid.NewString()
	s.cache.Add(id, session)
	return id
}

func (s *sessionStore) get(id string) (*constraint.Session, error) {
	session, ok := s.cache.Get(id)
	if !ok {
		return nil, errSessionNotFound
	}
	return session, nil
}

func (s *sessionStore) remove(id string) error {
	if !s.cache.Remove(id) {
		return errSessionNotFound
	}
	return nil
}

func (s *sessionStore) len() int {
	return s.cache.Len()
}

func appendField(key, b []byte) []byte {
	key = binary.LittleEndian.AppendUint64(key, uint64(len(b)))
	return append(key, b...)
}

// engineKey identifies an engine by its source and continuations. Every
// field is length prefixed and every list count prefixed.
func engineKey(src constraint.Source, continuations [][]byte) []byte {
	var key []byte
	write := func(b []byte) { key = appendField(key, b) }

	write([]byte(src.Kind))
	write([]byte(src.Grammar))
	write([]byte(src.Lexer))
	write([]byte(src.Pattern))
	for _, list := range [][]string{src.Keys, src.Values} {
		key = binary.LittleEndian.AppendUint64(key, uint64(len(list)))
		for _, s := range list {
			write([]byte(s))
		}
	}

	key = binary.LittleEndian.AppendUint64(key, uint64(len(continuations)))
	for _, c := range continuations {
		write(c)
	}
	return key
}

type keyed[T any] struct {
	key   []byte
	value T
}

// verifiedCache is an LRU cache looked up by the hash of a key and checked
// against the full key. On a mismatch the value is rebuilt and replaces
// the entry.
type verifiedCache[T any] struct {
	cache *lru.Cache[uint64, keyed[T]]
}

func newVerifiedCache[T any](size int) (*verifiedCache[T], error) {
	cache, err := lru.New[uint64, keyed[T]](size)
	if err != nil {
		return nil, err
	}
	return &verifiedCache[T]{cache: cache}, nil
}

func (c *verifiedCache[T]) get(key []byte, build func() (T, error)) (T, error) {
	hash := xxhash.Sum64(key)
	if e, ok := c.cache.Get(hash); ok {
		if bytes.Equal(e.key, key) {
			return e.value, nil
		}
		slog.Warn("cache hash collision", "hash", hash)
	}

	v, err := build()
	if err != nil {
		return v, err
	}
	c.cache.Add(hash, keyed[T]{key: key, value: v})
	return v, nil
}

// engineCache shares compiled engines between sessions. Engines are never
// modified after construction.
type engineCache struct {
	*verifiedCache[constraint.Engine]
}

func newEngineCache(size int) (*engineCache, error) {
	c, err := newVerifiedCache[constraint.Engine](size)
	if err != nil {
		return nil, err
	}
	return &engineCache{c}, nil
}

func (c *engineCache) get(src constraint.Source, continuations [][]byte) (constraint.Engine, error) {
	return c.verifiedCache.get(engineKey(src, continuations), func() (constraint.Engine, error) {
		e, err := constraint.NewEngine(src, continuations)
		if err != nil {
			return nil, err
		}
		slog.Debug("compiled engine", "kind", e.Kind(), "continuations", len(continuations))
		return e, nil
	})
}
