// Package relay 将推理帧转发到下游：HTTP 响应、RabbitMQ 交换机或 Redis 频道。
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"supplygraph-a2a/internal/config"
	"supplygraph-a2a/pkg/reasoning"
)

// Sink 接收推理帧。
type Sink interface {
	Name() string
	Send(ctx context.Context, agentID string, frame reasoning.Frame) error
	Close() error
}

// Message 是投递到消息中间件的帧格式。
type Message struct {
	AgentID string `json:"agent_id"`
	Event   string `json:"event"`
	Data    any    `json:"data"`
	// SentAt 为毫秒时间戳。
	SentAt int64 `json:"sent_at"`
}

func encodeMessage(agentID string, frame reasoning.Frame, now time.Time) ([]byte, error) {
	body, err := json.Marshal(Message{AgentID: agentID, Event: frame.Event, Data: frame.Data, SentAt: now.UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("编码推理帧失败: %w", err)
	}
	return body, nil
}

// Pipeline 把一个推理流依次投递到所有 sink。
type Pipeline struct {
	Sinks []Sink
	// Mirrors 的投递失败只通过 OnSend 上报，不会中止消费。
	Mirrors []Sink
	// OnFrame 在每一帧投递前调用。
	OnFrame func(reasoning.Frame)
	// OnSend 在每次 sink 投递后调用，err 为投递结果。
	OnSend func(sink string, err error)
}

// Run 消费整个流并返回已投递的帧数。任一 Sinks 失败或 ctx 取消都会中止消费，
// 流本身的错误在最后返回。
func (p Pipeline) Run(ctx context.Context, stream *reasoning.Stream) (int, error) {
	if stream == nil {
		return 0, errors.New("推理流为空")
	}
	sent := 0
	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		frame := stream.Frame()
		if p.OnFrame != nil {
			p.OnFrame(frame)
		}
		for _, sink := range p.Sinks {
			err := sink.Send(ctx, stream.AgentID(), frame)
			if p.OnSend != nil {
				p.OnSend(sink.Name(), err)
			}
			if err != nil {
				return sent, fmt.Errorf("%s 投递失败: %w", sink.Name(), err)
			}
		}
		for _, sink := range p.Mirrors {
			err := sink.Send(ctx, stream.AgentID(), frame)
			if p.OnSend != nil {
				p.OnSend(sink.Name(), err)
			}
		}
		sent++
	}
	return sent, stream.Err()
}

// Pipe 是不带回调的 Pipeline.Run。
func Pipe(ctx context.Context, stream *reasoning.Stream, sinks ...Sink) (int, error) {
	return Pipeline{Sinks: sinks}.Run(ctx, stream)
}

// Open 根据配置创建消息中间件 sink，driver 为 none 时返回 nil。
func Open(cfg config.RelayConfig) (Sink, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		sink, err := NewRabbitMQSink(RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			Durable:    cfg.RabbitMQ.Durable,
		})
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "redis":
		sink, err := NewRedisSink(RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("不支持的转发驱动: %s", cfg.Driver)
	}
}
