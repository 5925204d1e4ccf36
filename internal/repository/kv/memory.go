package kv

import (
	"context"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/hospital-admin/internal/repository"
)

// MemoryStore keeps staging collections in process memory. It backs local
// development and tests; data is lost on restart.
type MemoryStore struct {
	cache *cache.Cache
}

func NewMemoryStore() repository.KeyValueStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, 0)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, found := s.cache.Get(key)
	if !found {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.cache.Set(key, value, cache.NoExpiration)
	return nil
}
