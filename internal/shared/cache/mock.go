// Package cache 缓存层 mock 实现
package cache

import (
	"context"
	"sync"
	"time"
)

// ============================================================================
// NoOpCache - 空操作的 Cache 实现（用于测试）
// ============================================================================

// NoOpCache 是一个不做任何操作的 Cache 实现，吊销永不生效
type NoOpCache struct{}

// NewNoOpCache 创建 NoOpCache 实例
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (c *NoOpCache) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	return nil
}
func (c *NoOpCache) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return false, nil
}
func (c *NoOpCache) Ping(ctx context.Context) error { return nil }
func (c *NoOpCache) Close() error                   { return nil }

// ============================================================================
// MemoryCache - 进程内实现（未启用 Redis 时使用）
// ============================================================================

// MemoryCache 进程内缓存，单实例部署可用
type MemoryCache struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryCache 创建进程内缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{revoked: make(map[string]time.Time), now: time.Now}
}

func (c *MemoryCache) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = c.now().Add(ttl)
	return nil
}

func (c *MemoryCache) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.revoked[jti]
	if !ok {
		return false, nil
	}
	if !c.now().Before(exp) {
		delete(c.revoked, jti)
		return false, nil
	}
	return true, nil
}

func (c *MemoryCache) Ping(ctx context.Context) error { return nil }
func (c *MemoryCache) Close() error                   { return nil }
