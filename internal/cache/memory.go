package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process TTL cache with least-recently-used eviction.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int64
	now        func() time.Time
	stats      Stats
}

type entry struct {
	value    []byte
	expires  time.Time
	accessed time.Time
}

// Stats are cumulative lookup counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// NewMemory creates a cache holding at most maxEntries live keys.
func NewMemory(maxEntries int64) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Memory{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.stats.Misses++
		return nil, false, nil
	}

	now := m.now()
	if now.After(e.expires) {
		delete(m.entries, key)
		m.stats.Misses++
		return nil, false, nil
	}

	e.accessed = now
	m.stats.Hits++
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && int64(len(m.entries)) >= m.maxEntries {
		m.evict()
	}

	now := m.now()
	m.entries[key] = &entry{
		value:    append([]byte(nil), value...),
		expires:  now.Add(ttl),
		accessed: now,
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// evict drops expired entries, or the least recently used one if none expired.
// Caller holds the lock.
func (m *Memory) evict() {
	now := m.now()
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
			m.stats.Evictions++
			continue
		}
		if oldestKey == "" || e.accessed.Before(oldest) {
			oldestKey = k
			oldest = e.accessed
		}
	}
	if int64(len(m.entries)) >= m.maxEntries && oldestKey != "" {
		delete(m.entries, oldestKey)
		m.stats.Evictions++
	}
}
