package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryConfig 描述进程内缓存的容量与过期时间。
type MemoryConfig struct {
	Size int
	TTL  time.Duration
	// Clock 仅用于测试，默认为 time.Now。
	Clock func() time.Time
}

type memoryEntry struct {
	value    []byte
	storedAt time.Time
}

// MemoryCache 基于 LRU 的进程内缓存，条目超过 TTL 后视为未命中。
type MemoryCache struct {
	lru   *lru.Cache[string, memoryEntry]
	ttl   time.Duration
	clock func() time.Time
}

// NewMemoryCache 创建进程内缓存，零值字段使用默认值。
func NewMemoryCache(cfg MemoryConfig) (*MemoryCache, error) {
	if cfg.Size <= 0 {
		cfg.Size = defaultSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	store, err := lru.New[string, memoryEntry](cfg.Size)
	if err != nil {
		return nil, fmt.Errorf("创建 LRU 缓存失败: %w", err)
	}
	return &MemoryCache{lru: store, ttl: cfg.TTL, clock: cfg.Clock}, nil
}

// Get 读取缓存，过期条目会被顺带淘汰。
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if c.clock().Sub(entry.storedAt) >= c.ttl {
		c.lru.Remove(key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

// Set 写入缓存。
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.lru.Add(key, memoryEntry{value: append([]byte(nil), value...), storedAt: c.clock()})
	return nil
}

// Len 返回当前条目数量，包括尚未淘汰的过期条目。
func (c *MemoryCache) Len() int { return c.lru.Len() }

// Close 清空缓存。
func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}
