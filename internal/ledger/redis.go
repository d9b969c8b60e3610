package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRelayConfig 描述 Redis 中继的连接参数。
type RedisRelayConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

// RedisRelay 使用 Redis 发布订阅实现提案广播：所有参与方订阅同一
// 频道，任何一方发布的提案会到达包括自己在内的全部订阅者。
type RedisRelay struct {
	client     *redis.Client
	pubsub     *redis.PubSub
	channel    string
	deliveries chan *Payload
	cancel     context.CancelFunc
}

// NewRedisRelay 创建 Redis 中继实例并开始订阅。
func NewRedisRelay(cfg RedisRelayConfig) (*RedisRelay, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "liquisafe:payloads"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = client.Close()
		return nil, fmt.Errorf("订阅 Redis 频道失败: %w", err)
	}

	r := &RedisRelay{
		client:     client,
		pubsub:     pubsub,
		channel:    channel,
		deliveries: make(chan *Payload, 256),
		cancel:     cancel,
	}
	go r.pump(ctx)
	return r, nil
}

// Broadcast 将提案发布到共享频道。
func (r *RedisRelay) Broadcast(ctx context.Context, payload *Payload) error {
	data, err := payload.Encode()
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("Redis 发布提案失败: %w", err)
	}
	return nil
}

// Deliveries 返回收到的提案流。
func (r *RedisRelay) Deliveries() <-chan *Payload {
	return r.deliveries
}

// Close 退订频道并关闭连接。
func (r *RedisRelay) Close() error {
	r.cancel()
	if r.pubsub != nil {
		_ = r.pubsub.Close()
	}
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *RedisRelay) pump(ctx context.Context) {
	defer close(r.deliveries)
	ch := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			payload, err := DecodePayload([]byte(msg.Payload))
			if err != nil {
				// 无法解析的消息直接丢弃，计票器不会少算：
				// 合法参与方的提案总是可解析的。
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
