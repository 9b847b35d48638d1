package httpcache

import (
	"context"
	"time"

	"github.com/c360studio/semtrip/cache"
)

// MemoryStore keeps responses in a process-local TTL cache.
type MemoryStore struct {
	entries *cache.TTL[*Entry]
}

// NewMemoryStore creates a store holding up to maxEntries responses for
// expire.
func NewMemoryStore(expire time.Duration, maxEntries int, opts ...cache.Option) *MemoryStore {
	opts = append([]cache.Option{cache.WithName("http_memory")}, opts...)
	return &MemoryStore{entries: cache.New[*Entry](expire, maxEntries, opts...)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	e, ok := s.entries.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, e *Entry) error {
	s.entries.Set(key, e)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

func (s *MemoryStore) Close() error {
	s.entries.Clear()
	return nil
}
