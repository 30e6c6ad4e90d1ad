// Package cache 缓存层抽象接口
//
// 提供临时状态和缓存的存取能力，当前由 Redis 实现。
package cache

import (
	"context"
	"time"
)

// TokenRevocationCache 访问令牌吊销名单
//
// 登出时按 jti 写入，TTL 为令牌剩余有效期，过期后自动清除。
type TokenRevocationCache interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Cache 缓存组合接口
type Cache interface {
	TokenRevocationCache
	Ping(ctx context.Context) error
	Close() error
}
