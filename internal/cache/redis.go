package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 缓存的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// redisClient 是 RedisCache 用到的最小命令集合。
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisCache 使用 Redis 字符串键保存缓存，过期交给 Redis 处理，多个实例可共享。
type RedisCache struct {
	client redisClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache 连接 Redis 并创建缓存实例。
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisCache(client, cfg.Prefix, cfg.TTL), nil
}

func newRedisCache(client redisClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "sgbridge:manifest:"
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get 读取缓存。
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("Redis 读取缓存失败: %w", err)
	}
	return value, true, nil
}

// Set 写入缓存并设置过期时间。
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("Redis 写入缓存失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (c *RedisCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
