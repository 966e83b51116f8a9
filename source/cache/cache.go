// Package cache wraps a source.Source with a read-through offer cache.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"esco-optimizer/pkg/offer"
	"esco-optimizer/source"
)

// DefaultTTL is how long a ZIP code's offers are reused.
const DefaultTTL = 15 * time.Minute

// Cache stores encoded offer lists.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Source is a caching decorator. Cache errors are logged and never fail a
// fetch; errors from the inner source are not cached.
type Source struct {
	inner  source.Source
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

// Wrap decorates inner with cache. A non-positive ttl uses DefaultTTL.
func Wrap(inner source.Source, c Cache, ttl time.Duration) *Source {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Source{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		logger: log.With().Str("source", inner.Name()).Str("component", "cache").Logger(),
	}
}

func (s *Source) Name() string { return s.inner.Name() }

// Key returns the cache key for a ZIP code.
func (s *Source) Key(zip string) string {
	return "escopt:offers:" + s.inner.Name() + ":" + zip
}

func (s *Source) Fetch(ctx context.Context, q source.Query) ([]offer.Offer, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	key := s.Key(q.ZipCode)

	data, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	case ok:
		var offers []offer.Offer
		if err := json.Unmarshal(data, &offers); err == nil {
			s.logger.Debug().Str("key", key).Msg("Cache hit")
			return offers, nil
		}
		s.logger.Warn().Str("key", key).Msg("Discarding undecodable cache entry")
	}

	offers, err := s.inner.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(offers); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}
	return offers, nil
}

// Ping forwards to the inner source when it supports it.
func (s *Source) Ping(ctx context.Context) error {
	if p, ok := s.inner.(source.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// =============================================================================
// IN-MEMORY CACHE
// =============================================================================

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && !m.now().Before(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value and drops every entry that has already expired.
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
