package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/leaseth/leaseth/pkg/engine"
)

// Memory is a process-local DecisionCache used when redis is not
// configured, and in tests. Entries are stored serialized so callers
// never share a Result with the cache.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	ttl   time.Duration
}

type memoryEntry struct {
	payload []byte
	expires time.Time
}

// NewMemory creates an in-process cache. A zero ttl means entries never
// expire.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
	}
}

// Get implements DecisionCache. Expired entries are dropped on read.
func (m *Memory) Get(_ context.Context, key string) (*engine.Result, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if !e.expires.IsZero() && time.Now().After(e.expires) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, nil
	}

	var res engine.Result
	if err := json.Unmarshal(e.payload, &res); err != nil {
		return nil, fmt.Errorf("decoding cached decision: %w", err)
	}
	return &res, nil
}

// Set implements DecisionCache.
func (m *Memory) Set(_ context.Context, key string, res *engine.Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding decision for cache: %w", err)
	}

	e := memoryEntry{payload: b}
	if m.ttl > 0 {
		e.expires = time.Now().Add(m.ttl)
	}

	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	return nil
}

// Close implements DecisionCache.
func (m *Memory) Close() error {
	return nil
}

// Len returns the number of entries currently held, including any that
// expired but have not been read since.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
