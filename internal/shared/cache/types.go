// Package cache 缓存层类型定义
package cache

// ============================================================================
// Key 前缀
// ============================================================================

const (
	// KeyRevokedToken 吊销令牌 key 前缀，后接 jti
	KeyRevokedToken = "nayaschool:revoked_token:"
)
