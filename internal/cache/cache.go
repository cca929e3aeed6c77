// Package cache 提供 agent manifest 的缓存实现，支持进程内 LRU 与 Redis 两种后端。
package cache

import (
	"context"
	"fmt"
	"time"

	"supplygraph-a2a/internal/config"
)

// Cache 以字节形式保存缓存条目，由调用方负责编解码。
type Cache interface {
	// Get 返回缓存值，未命中或已过期时 ok 为 false。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open 根据配置构造缓存实例。
func Open(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case "", "memory":
		c, err := NewMemoryCache(MemoryConfig{Size: cfg.Size, TTL: cfg.CacheTTL()})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "redis":
		c, err := NewRedisCache(RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.CacheTTL(),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("不支持的缓存驱动: %s", cfg.Driver)
	}
}

// Nop 不缓存任何内容。
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }
func (Nop) Close() error                                      { return nil }

// Instrumented 在每次 Get 后回调命中情况，通常用于上报指标。
func Instrumented(c Cache, observe func(hit bool)) Cache {
	if c == nil || observe == nil {
		return c
	}
	return &instrumented{Cache: c, observe: observe}
}

type instrumented struct {
	Cache
	observe func(hit bool)
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := i.Cache.Get(ctx, key)
	if err == nil {
		i.observe(ok)
	}
	return value, ok, err
}

const (
	defaultSize = 64
	defaultTTL  = 10 * time.Minute
)
