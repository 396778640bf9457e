package cache

import (
	"context"
	"sync"
	"time"
)

const janitorInterval = time.Minute

// MemoryCache is the single-process backend. Suitable for one relying-party
// instance; use the redis backend when running more than one replica.
type MemoryCache struct {
	mu     sync.RWMutex
	data   map[string]memoryItem
	stopCh chan struct{}
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	mc := &MemoryCache{
		data:   make(map[string]memoryItem),
		stopCh: make(chan struct{}),
	}

	go mc.janitor()

	return mc
}

func (mc *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	item, ok := mc.data[key]
	if !ok || time.Now().After(item.expiresAt) {
		return nil, ErrNotFound
	}

	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (mc *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	mc.data[key] = memoryItem{
		value:     stored,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	delete(mc.data, key)
	return nil
}

func (mc *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	item, ok := mc.data[key]
	if !ok || time.Now().After(item.expiresAt) {
		return false, nil
	}

	return true, nil
}

func (mc *MemoryCache) Close() error {
	close(mc.stopCh)
	return nil
}

func (mc *MemoryCache) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.evictExpired()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MemoryCache) evictExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	for key, item := range mc.data {
		if now.After(item.expiresAt) {
			delete(mc.data, key)
		}
	}
}
