// Package eventbus 事件总线抽象接口
//
// 提供事件的发布/订阅能力，当前由 Redis Pub/Sub 或进程内广播实现。
// 事件仅用于实时通知，不做持久化，订阅前发布的事件不会补发。
package eventbus

import (
	"context"
)

// EnrolmentEventBus 选课事件总线接口
type EnrolmentEventBus interface {
	PublishEnrolmentEvent(ctx context.Context, event *EnrolmentEvent) error
	// SubscribeEnrolmentEvents 订阅事件，ctx 取消后 channel 关闭
	SubscribeEnrolmentEvents(ctx context.Context) (<-chan *EnrolmentEvent, error)
}

// EventBus 事件总线组合接口
type EventBus interface {
	EnrolmentEventBus
	Close() error
}
