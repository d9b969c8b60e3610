package ledger

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQRelayConfig 描述 RabbitMQ 中继的连接参数。
type RabbitMQRelayConfig struct {
	URL      string
	Exchange string
}

// RabbitMQRelay 使用 fanout 交换机实现提案广播：每个参与方声明一个
// 独占队列绑定到共享交换机，发布的提案会复制到所有队列。
type RabbitMQRelay struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	deliveries chan *Payload
	cancel     context.CancelFunc
}

// NewRabbitMQRelay 创建 RabbitMQ 中继实例并开始消费。
func NewRabbitMQRelay(cfg RabbitMQRelayConfig) (*RabbitMQRelay, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "liquisafe.payloads"
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
	if err := ch.ExchangeDeclare(exchange, "fanout", false, true, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 交换机失败: %w", err)
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("绑定 RabbitMQ 队列失败: %w", err)
	}
	msgs, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("订阅 RabbitMQ 队列失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &RabbitMQRelay{
		conn:       conn,
		ch:         ch,
		exchange:   exchange,
		deliveries: make(chan *Payload, 256),
		cancel:     cancel,
	}
	go r.pump(ctx, msgs)
	return r, nil
}

// Broadcast 将提案发布到共享交换机。
func (r *RabbitMQRelay) Broadcast(ctx context.Context, payload *Payload) error {
	if r == nil || r.ch == nil {
		return errors.New("RabbitMQ 中继未初始化")
	}
	data, err := payload.Encode()
	if err != nil {
		return err
	}
	return r.ch.PublishWithContext(ctx, r.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        data,
	})
}

// Deliveries 返回收到的提案流。
func (r *RabbitMQRelay) Deliveries() <-chan *Payload {
	return r.deliveries
}

// Close 关闭 RabbitMQ 连接。
func (r *RabbitMQRelay) Close() error {
	if r == nil {
		return nil
	}
	r.cancel()
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *RabbitMQRelay) pump(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer close(r.deliveries)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			payload, err := DecodePayload(msg.Body)
			if err != nil {
				continue
			}
			select {
			case r.deliveries <- payload:
			case <-ctx.Done():
				return
			}
		}
	}
}
