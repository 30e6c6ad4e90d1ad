// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - Storage：持久化存储（SQLite / PostgreSQL / MySQL）
//   - Cache：令牌吊销缓存（Redis 或进程内）
//   - EventBus：选课事件总线（Redis Pub/Sub 或进程内）
package infra

import (
	"errors"

	"nayaschool/internal/shared/cache"
	"nayaschool/internal/shared/eventbus"
	"nayaschool/internal/shared/storage"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	Storage  storage.PersistentStore
	Cache    cache.Cache
	EventBus eventbus.EventBus

	redis *RedisInfra
}

// New 组装基础设施；redisURL 为空时使用进程内实现
func New(store storage.PersistentStore, redisURL string) (*Infrastructure, error) {
	if redisURL == "" {
		return NewMemoryInfrastructure(store), nil
	}

	r, err := NewRedisInfra(redisURL)
	if err != nil {
		return nil, err
	}
	return &Infrastructure{
		Storage:  store,
		Cache:    r.Cache(),
		EventBus: r.EventBus(),
		redis:    r,
	}, nil
}

// NewMemoryInfrastructure 单实例部署和测试使用的进程内基础设施
func NewMemoryInfrastructure(store storage.PersistentStore) *Infrastructure {
	return &Infrastructure{
		Storage:  store,
		Cache:    cache.NewMemoryCache(),
		EventBus: eventbus.NewMemoryEventBus(),
	}
}

// Close 关闭所有基础设施连接
func (i *Infrastructure) Close() error {
	var errs []error

	if i.EventBus != nil {
		errs = append(errs, i.EventBus.Close())
	}
	if i.redis != nil {
		errs = append(errs, i.redis.Close())
	} else if i.Cache != nil {
		errs = append(errs, i.Cache.Close())
	}
	if i.Storage != nil {
		errs = append(errs, i.Storage.Close())
	}

	return errors.Join(errs...)
}
