// Package redis 基于 Redis Pub/Sub 的选课事件总线
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"nayaschool/internal/shared/eventbus"
)

// Store Redis 事件总线
type Store struct {
	client  *redis.Client
	channel string
	cb      *gobreaker.CircuitBreaker
}

var _ eventbus.EventBus = (*Store)(nil)

// NewStoreFromClient 从现有 Redis 客户端创建事件总线
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{
		client:  client,
		channel: eventbus.ChannelEnrolmentEvents,
		cb:      newPublishBreaker("Redis-EventBus"),
	}
}

// newPublishBreaker 连续 3 次发布失败后熔断 5 秒
func newPublishBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[Redis/EventBus] circuit breaker %s: %s -> %s", name, from, to)
		},
	})
}

// PublishEnrolmentEvent 发布选课事件
func (s *Store) PublishEnrolmentEvent(ctx context.Context, event *eventbus.EnrolmentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Publish(ctx, s.channel, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// SubscribeEnrolmentEvents 订阅选课事件，ctx 取消后退订并关闭 channel
func (s *Store) SubscribeEnrolmentEvents(ctx context.Context) (<-chan *eventbus.EnrolmentEvent, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	// 等待订阅确认，确保之后发布的事件不会丢失
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan *eventbus.EnrolmentEvent, eventbus.SubscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event eventbus.EnrolmentEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("[Redis/EventBus] dropping malformed event: %v", err)
					continue
				}
				select {
				case out <- &event:
				default:
				}
			}
		}
	}()

	return out, nil
}

// Close 事件总线与缓存共用客户端，由 infra 统一关闭
func (s *Store) Close() error {
	return nil
}
