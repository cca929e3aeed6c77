package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"supplygraph-a2a/pkg/reasoning"
)

// RabbitMQConfig 描述 RabbitMQ 交换机参数。
type RabbitMQConfig struct {
	URL      string
	Exchange string
	// RoutingKey 为空时使用 agent id。
	RoutingKey string
	Durable    bool
}

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQSink 将每一帧发布到 topic 交换机。
type RabbitMQSink struct {
	publisher  amqpPublisher
	closers    []func() error
	exchange   string
	routingKey string
	clock      func() time.Time
}

// NewRabbitMQSink 连接 RabbitMQ 并声明交换机。
func NewRabbitMQSink(cfg RabbitMQConfig) (*RabbitMQSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "sgbridge.frames"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, cfg.Durable, !cfg.Durable, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 交换机失败: %w", err)
	}
	sink := newRabbitMQSink(ch, exchange, cfg.RoutingKey)
	sink.closers = []func() error{ch.Close, conn.Close}
	return sink, nil
}

func newRabbitMQSink(publisher amqpPublisher, exchange, routingKey string) *RabbitMQSink {
	return &RabbitMQSink{publisher: publisher, exchange: exchange, routingKey: routingKey, clock: time.Now}
}

func (s *RabbitMQSink) Name() string { return "rabbitmq" }

// Send 发布一帧，消息类型为帧事件名。
func (s *RabbitMQSink) Send(ctx context.Context, agentID string, frame reasoning.Frame) error {
	if s == nil || s.publisher == nil {
		return errors.New("RabbitMQ sink 未初始化")
	}
	now := s.clock()
	body, err := encodeMessage(agentID, frame, now)
	if err != nil {
		return err
	}
	key := s.routingKey
	if key == "" {
		key = agentID
	}
	return s.publisher.PublishWithContext(ctx, s.exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        frame.Event,
		Timestamp:   now,
		Body:        body,
	})
}

// Close 关闭 channel 与连接。
func (s *RabbitMQSink) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
