package memory

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store is a bounded in-process key-value store. When full, the least
// recently used key is dropped and onEvict is called.
type Store struct {
	cache   *lru.Cache[string, string]
	onEvict func()
}

func NewStore(size int, onEvict func()) (*Store, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Store{cache: cache, onEvict: onEvict}, nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.cache.Get(key)
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	if evicted := s.cache.Add(key, value); evicted && s.onEvict != nil {
		s.onEvict()
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

func (s *Store) DeleteMany(_ context.Context, keys []string) error {
	for _, key := range keys {
		s.cache.Remove(key)
	}
	return nil
}

func (s *Store) Keys(_ context.Context) ([]string, error) {
	return s.cache.Keys(), nil
}

func (s *Store) Len() int {
	return s.cache.Len()
}
