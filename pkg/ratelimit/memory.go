package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/voicequote/meterd/pkg/observability"
)

// DefaultMaxKeys bounds the number of windows kept per bucket
const DefaultMaxKeys = 100000

type window struct {
	count   int
	resetAt time.Time
}

type memoryBucket struct {
	mu      sync.Mutex
	windows *simplelru.LRU[string, *window]
}

// MemoryStore keeps windows in process memory. Each bucket holds at most
// maxKeys windows; when full, the least recently used key is evicted and
// that client starts a fresh window on its next request, even if the
// evicted window was still live and at its limit. Such evictions are
// counted in meterd_rate_live_windows_evicted_total.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]*memoryBucket
	maxKeys int
	now     func() time.Time
	metrics *observability.Metrics
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithMaxKeys overrides DefaultMaxKeys
func WithMaxKeys(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxKeys = n
		}
	}
}

// WithMetrics counts evictions of live windows
func WithMetrics(m *observability.Metrics) MemoryOption {
	return func(s *MemoryStore) {
		s.metrics = m
	}
}

// NewMemoryStore creates an empty in-process store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*memoryBucket),
		maxKeys: DefaultMaxKeys,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) bucket(name string) (*memoryBucket, error) {
	s.mu.RLock()
	b, ok := s.buckets[name]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[name]; ok {
		return b, nil
	}
	windows, err := simplelru.NewLRU[string, *window](s.maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create window cache: %w", err)
	}
	b = &memoryBucket{windows: windows}
	s.buckets[name] = b
	return b, nil
}

// Hit implements Store
func (s *MemoryStore) Hit(_ context.Context, bucket, key string, limit int, length time.Duration) (Decision, error) {
	b, err := s.bucket(bucket)
	if err != nil {
		return Decision{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := s.now()
	w, ok := b.windows.Get(key)
	if !ok || !now.Before(w.resetAt) {
		if !ok && b.windows.Len() >= s.maxKeys {
			if _, oldest, found := b.windows.GetOldest(); found && now.Before(oldest.resetAt) {
				s.metrics.RecordLiveEviction(bucket)
			}
		}
		w = &window{count: 1, resetAt: now.Add(length)}
		b.windows.Add(key, w)
		return Decision{Allowed: true, Count: 1, Limit: limit, ResetAt: w.resetAt}, nil
	}

	if w.count >= limit {
		return Decision{
			Allowed:    false,
			Count:      w.count,
			Limit:      limit,
			ResetAt:    w.resetAt,
			RetryAfter: retryAfterSeconds(w.resetAt.Sub(now)),
		}, nil
	}

	w.count++
	return Decision{Allowed: true, Count: w.count, Limit: limit, ResetAt: w.resetAt}, nil
}

// Sweep drops every window whose reset time has passed and returns how
// many were removed. Expired windows would be reopened on access anyway;
// sweeping only returns their memory.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.RLock()
	buckets := make([]*memoryBucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		buckets = append(buckets, b)
	}
	s.mu.RUnlock()

	removed := 0
	for _, b := range buckets {
		b.mu.Lock()
		for _, key := range b.windows.Keys() {
			if w, ok := b.windows.Peek(key); ok && !now.Before(w.resetAt) {
				b.windows.Remove(key)
				removed++
			}
		}
		b.mu.Unlock()
	}
	return removed
}

// Len returns the number of live windows in a bucket
func (s *MemoryStore) Len(bucket string) int {
	s.mu.RLock()
	b, ok := s.buckets[bucket]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.windows.Len()
}
