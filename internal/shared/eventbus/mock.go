// Package eventbus 事件总线 mock 实现
package eventbus

import (
	"context"
	"sync"
)

// ============================================================================
// NoOpEventBus - 空操作的 EventBus 实现（用于测试）
// ============================================================================

// NoOpEventBus 是一个不做任何操作的 EventBus 实现
type NoOpEventBus struct{}

// NewNoOpEventBus 创建 NoOpEventBus 实例
func NewNoOpEventBus() *NoOpEventBus {
	return &NoOpEventBus{}
}

func (e *NoOpEventBus) Close() error {
	return nil
}
func (e *NoOpEventBus) PublishEnrolmentEvent(ctx context.Context, event *EnrolmentEvent) error {
	return nil
}
func (e *NoOpEventBus) SubscribeEnrolmentEvents(ctx context.Context) (<-chan *EnrolmentEvent, error) {
	ch := make(chan *EnrolmentEvent)
	close(ch)
	return ch, nil
}

// ============================================================================
// MemoryEventBus - 进程内广播（未启用 Redis 时使用）
// ============================================================================

// MemoryEventBus 进程内事件广播
type MemoryEventBus struct {
	mu     sync.RWMutex
	subs   map[chan *EnrolmentEvent]struct{}
	closed bool
}

// NewMemoryEventBus 创建进程内事件总线
func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{subs: make(map[chan *EnrolmentEvent]struct{})}
}

// PublishEnrolmentEvent 广播给所有订阅者，慢订阅者的事件被丢弃
func (b *MemoryEventBus) PublishEnrolmentEvent(ctx context.Context, event *EnrolmentEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemoryEventBus) SubscribeEnrolmentEvents(ctx context.Context) (<-chan *EnrolmentEvent, error) {
	ch := make(chan *EnrolmentEvent, SubscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(ch)
	}()
	return ch, nil
}

func (b *MemoryEventBus) unsubscribe(ch chan *EnrolmentEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Close 关闭所有订阅
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		close(ch)
	}
	b.subs = make(map[chan *EnrolmentEvent]struct{})
	b.closed = true
	return nil
}
