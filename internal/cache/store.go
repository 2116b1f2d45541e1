package cache

import (
	"context"
	"sync"
	"time"
)

// Entry is a stored value with its absolute expiry. ExpiresAt is checked at
// read time by the Cache regardless of how eagerly the backing store evicts.
type Entry struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is the backing key/value storage for the cache. Implementations may
// evict expired entries lazily or not at all; correctness never depends on it.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is the in-process Store. Expired entries are removed by a
// periodic sweep, not on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry

	sweepEvery time.Duration
	now        func() time.Time
}

type MemoryStoreOption func(*MemoryStore)

func WithSweepInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.sweepEvery = d }
}

func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:    make(map[string]Entry),
		sweepEvery: 5 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len reports the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes entries whose expiry has passed.
func (s *MemoryStore) Sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, entry := range s.entries {
		if !entry.ExpiresAt.IsZero() && now.After(entry.ExpiresAt) {
			delete(s.entries, k)
		}
	}
}

// Run sweeps expired entries until the context is cancelled.
func (s *MemoryStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
