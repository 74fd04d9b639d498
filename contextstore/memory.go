package contextstore

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is an in-process backend for development and tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryBackend returns an empty memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (b *MemoryBackend) SetClock(now func() time.Time) {
	b.now = now
}

func (b *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.RLock()
	entry, ok := b.entries[key]
	b.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	if !entry.expiresAt.IsZero() && b.now().After(entry.expiresAt) {
		b.mu.Lock()
		delete(b.entries, key)
		b.mu.Unlock()
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (b *MemoryBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = b.now().Add(ttl)
	}
	b.mu.Lock()
	b.entries[key] = entry
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Del(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Ping(context.Context) error {
	return nil
}

// Len reports the number of live documents, for tests.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
