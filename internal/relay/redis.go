package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"supplygraph-a2a/pkg/reasoning"
)

// RedisConfig 描述 Redis 发布参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisSink 通过 PUBLISH 把帧推送到频道。
type RedisSink struct {
	client  redisPublisher
	channel string
	clock   func() time.Time
}

// NewRedisSink 连接 Redis 并创建 sink。
func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
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
	return newRedisSink(client, cfg.Channel), nil
}

func newRedisSink(client redisPublisher, channel string) *RedisSink {
	if channel == "" {
		channel = "sgbridge:frames"
	}
	return &RedisSink{client: client, channel: channel, clock: time.Now}
}

func (s *RedisSink) Name() string { return "redis" }

// Send 发布一帧。
func (s *RedisSink) Send(ctx context.Context, agentID string, frame reasoning.Frame) error {
	body, err := encodeMessage(agentID, frame, s.clock())
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.channel, body).Err(); err != nil {
		return fmt.Errorf("Redis 发布推理帧失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisSink) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
