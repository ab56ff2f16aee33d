package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	expiresAt time.Time // zero = never
}

// Memory is an in-process Store for tests and single-node mode.
// Expiry is checked lazily on Get.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	bits    map[string]map[int64]struct{}
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memEntry),
		bits:    make(map[string]map[int64]struct{}),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetBit(_ context.Context, key string, offset int64) error {
	m.mu.Lock()
	set, ok := m.bits[key]
	if !ok {
		set = make(map[int64]struct{})
		m.bits[key] = set
	}
	set[offset] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetBit(_ context.Context, key string, offset int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.bits[key]
	if !ok {
		return false, nil
	}
	_, on := set[offset]
	return on, nil
}
