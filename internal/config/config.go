package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"supplygraph-a2a/pkg/logger"
	"supplygraph-a2a/sdk/go/a2a"
)

// 环境变量覆盖项。
const (
	EnvAPIKey     = "SUPPLYGRAPH_API_KEY"
	EnvBaseURL    = "SUPPLYGRAPH_BASE_URL"
	EnvServerAddr = "SGBRIDGE_ADDR"
)

// Config 描述了 sgbridge 在启动阶段需要加载的全部配置。
type Config struct {
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	Cache   CacheConfig   `json:"cache" yaml:"cache"`
	Relay   RelayConfig   `json:"relay" yaml:"relay"`
	Log     logger.Config `json:"log" yaml:"log"`
}

// GatewayConfig 描述远端 agent 网关的连接参数。
type GatewayConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key"`
	// APIKeyEnv 指定从哪个环境变量读取 API Key，避免把密钥写进配置文件。
	APIKeyEnv      string  `json:"api_key_env" yaml:"api_key_env"`
	TimeoutSeconds float64 `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int     `json:"max_retries" yaml:"max_retries"`
	BackoffSeconds float64 `json:"backoff_seconds" yaml:"backoff_seconds"`
	// MaxRetryDelaySeconds 限制两次重试之间的最长等待，包括服务端返回的 Retry-After。
	MaxRetryDelaySeconds float64 `json:"max_retry_delay_seconds" yaml:"max_retry_delay_seconds"`
	UserAgent            string  `json:"user_agent" yaml:"user_agent"`
}

// ServerConfig 控制桥接 HTTP 服务的监听地址等参数。
type ServerConfig struct {
	Address                string `json:"address" yaml:"address"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// CacheConfig 控制 manifest 缓存。driver 取值 memory、redis 或 none。
type CacheConfig struct {
	Driver     string      `json:"driver" yaml:"driver"`
	Size       int         `json:"size" yaml:"size"`
	TTLSeconds int         `json:"ttl_seconds" yaml:"ttl_seconds"`
	Redis      RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig 描述 Redis 连接信息。
type RedisConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
	Channel  string `json:"channel" yaml:"channel"`
}

// RelayConfig 控制推理帧的转发。driver 取值 none、rabbitmq 或 redis。
type RelayConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
}

// RabbitMQConfig 描述 RabbitMQ 连接与交换机参数。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Exchange   string `json:"exchange" yaml:"exchange"`
	RoutingKey string `json:"routing_key" yaml:"routing_key"`
	Durable    bool   `json:"durable" yaml:"durable"`
}

// Load 解析指定路径的配置文件，.yaml/.yml 按 YAML 解析，其余按 JSON 解析。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &cfg)
	default:
		err = json.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回未提供配置文件时使用的配置，仍然读取环境变量。
func Default() *Config {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults("")
	return &cfg
}

// applyEnv 使用环境变量覆盖文件中的配置。
func (c *Config) applyEnv() {
	if c.Gateway.APIKeyEnv != "" {
		if v := os.Getenv(c.Gateway.APIKeyEnv); v != "" {
			c.Gateway.APIKey = v
		}
	}
	if v := os.Getenv(EnvAPIKey); v != "" && c.Gateway.APIKey == "" {
		c.Gateway.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv(EnvServerAddr); v != "" {
		c.Server.Address = v
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = a2a.DefaultBaseURL
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		c.Gateway.TimeoutSeconds = a2a.DefaultTimeout.Seconds()
	}
	if c.Gateway.MaxRetries <= 0 {
		c.Gateway.MaxRetries = a2a.DefaultMaxRetries
	}
	if c.Gateway.BackoffSeconds <= 0 {
		c.Gateway.BackoffSeconds = a2a.DefaultBackoffFactor.Seconds()
	}
	if c.Gateway.MaxRetryDelaySeconds <= 0 {
		c.Gateway.MaxRetryDelaySeconds = a2a.DefaultMaxRetryDelay.Seconds()
	}

	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 5
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = 64
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 600
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "sgbridge:manifest:"
	}

	if c.Relay.Driver == "" {
		c.Relay.Driver = "none"
	}
	if c.Relay.RabbitMQ.Exchange == "" {
		c.Relay.RabbitMQ.Exchange = "sgbridge.frames"
	}
	if c.Relay.Redis.Channel == "" {
		c.Relay.Redis.Channel = "sgbridge:frames"
	}

	if c.Log.Audit.Enabled && c.Log.Audit.Path != "" && baseDir != "" && !filepath.IsAbs(c.Log.Audit.Path) {
		c.Log.Audit.Path = filepath.Join(baseDir, c.Log.Audit.Path)
	}
}

// Validate 检查取值范围受限的字段。
func (c *Config) Validate() error {
	switch c.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("不支持的缓存驱动: %s", c.Cache.Driver)
	}
	if c.Cache.Driver == "redis" && c.Cache.Redis.Address == "" {
		return errors.New("缓存驱动为 redis 时必须配置 cache.redis.address")
	}

	switch c.Relay.Driver {
	case "none":
	case "rabbitmq":
		if c.Relay.RabbitMQ.URL == "" {
			return errors.New("转发驱动为 rabbitmq 时必须配置 relay.rabbitmq.url")
		}
	case "redis":
		if c.Relay.Redis.Address == "" {
			return errors.New("转发驱动为 redis 时必须配置 relay.redis.address")
		}
	default:
		return fmt.Errorf("不支持的转发驱动: %s", c.Relay.Driver)
	}
	return nil
}

// ClientConfig 转换为网关客户端配置。
func (g GatewayConfig) ClientConfig() a2a.Config {
	return a2a.Config{
		BaseURL:       g.BaseURL,
		APIKey:        g.APIKey,
		Timeout:       seconds(g.TimeoutSeconds),
		MaxRetries:    g.MaxRetries,
		BackoffFactor: seconds(g.BackoffSeconds),
		MaxRetryDelay: seconds(g.MaxRetryDelaySeconds),
	}
}

// CacheTTL 返回 manifest 缓存的过期时间。
func (c CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ShutdownTimeout 返回优雅关闭的等待时间。
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
