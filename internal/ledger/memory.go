package ledger

import (
	"context"
	"sync"

	xerrors "LiquiSafe-Chain/internal/errors"
)

// Bus 是进程内的提案中继，把同一进程内的多个参与方连接起来。
// 生产部署使用 Redis 或 RabbitMQ 中继，Bus 服务于单进程演练和测试。
type Bus struct {
	mu      sync.Mutex
	members []*memoryRelay
	closed  bool
}

// NewBus 创建空的进程内中继总线。
func NewBus() *Bus {
	return &Bus{}
}

// Join 在总线上注册一个新参与方并返回它的中继端点。
func (b *Bus) Join() Relay {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := &memoryRelay{
		bus:        b,
		deliveries: make(chan *Payload, 256),
	}
	b.members = append(b.members, m)
	return m
}

// Close 关闭总线和所有端点。
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, m := range b.members {
		m.close()
	}
	b.members = nil
}

func (b *Bus) broadcast(ctx context.Context, payload *Payload) error {
	b.mu.Lock()
	members := make([]*memoryRelay, len(b.members))
	copy(members, b.members)
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return xerrors.New(xerrors.CodeLedgerFailure, "中继总线已关闭")
	}
	for _, m := range members {
		if err := m.deliver(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

type memoryRelay struct {
	bus        *Bus
	mu         sync.Mutex
	deliveries chan *Payload
	closed     bool
}

func (m *memoryRelay) Broadcast(ctx context.Context, payload *Payload) error {
	if payload == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "提案不能为空")
	}
	return m.bus.broadcast(ctx, payload)
}

func (m *memoryRelay) Deliveries() <-chan *Payload {
	return m.deliveries
}

func (m *memoryRelay) Close() error {
	m.close()
	return nil
}

func (m *memoryRelay) deliver(ctx context.Context, payload *Payload) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	ch := m.deliveries
	m.mu.Unlock()
	select {
	case ch <- payload:
		return nil
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.CodeLedgerFailure, ctx.Err(), "投递提案被取消")
	}
}

func (m *memoryRelay) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.deliveries)
}
