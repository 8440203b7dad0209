package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sawpanic/rotator/internal/market"
)

// Memory is an in-process cache with per-entry expiry and least recently
// used eviction once maxEntries is reached.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

type memoryEntry struct {
	series   market.PriceSeries
	expires  time.Time
	accessed time.Time
}

// NewMemory holds at most maxEntries series for ttl each. A zero ttl never
// expires; maxEntries ≤ 0 is unbounded.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	return &Memory{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Load(_ context.Context, ticker string) (market.PriceSeries, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToUpper(ticker)
	e, ok := m.entries[key]
	if !ok {
		return market.PriceSeries{}, false, nil
	}
	now := m.now()
	if !e.expires.IsZero() && now.After(e.expires) {
		delete(m.entries, key)
		return market.PriceSeries{}, false, nil
	}
	e.accessed = now
	return e.series, true, nil
}

func (m *Memory) Store(_ context.Context, series market.PriceSeries) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToUpper(series.Ticker)
	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictLRU()
	}
	now := m.now()
	e := &memoryEntry{series: series, accessed: now}
	if m.ttl > 0 {
		e.expires = now.Add(m.ttl)
	}
	m.entries[key] = e
	return nil
}

// Len returns the number of held entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evictLRU removes the least recently used entry (caller must hold the lock)
func (m *Memory) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, e := range m.entries {
		if oldestKey == "" || e.accessed.Before(oldest) {
			oldestKey, oldest = key, e.accessed
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}
