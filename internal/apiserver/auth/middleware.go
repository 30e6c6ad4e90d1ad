package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"nayaschool/internal/apiserver/apiutil"
	"nayaschool/internal/shared/apperr"
	"nayaschool/internal/shared/cache"
	"nayaschool/internal/shared/model"
	"nayaschool/pkg/logging"
)

// 免认证路由白名单（前缀匹配）
var publicPrefixes = []string{
	"/auth/register",
	"/auth/login",
	"/auth/refresh",
	"/health",
	"/metrics",
	"/ws/", // WebSocket 通过 ?token= 自行认证
}

// 免认证路由精确匹配
var publicExact = map[string]bool{
	"GET /openapi.yaml": true,
}

var (
	errMissingToken = errors.New("missing authorization header")
	errTokenType    = errors.New("invalid token type")
	errTokenRevoked = errors.New("token has been revoked")
)

func isPublicRoute(method, path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return publicExact[method+" "+path]
}

// bearerToken 提取 Authorization: Bearer <token>
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errMissingToken
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", errors.New("invalid authorization header")
	}
	return parts[1], nil
}

// Authenticate 校验访问令牌（签名、类型、吊销），返回认证用户
func Authenticate(ctx context.Context, cfg Config, revoked cache.TokenRevocationCache, token string) (*AuthUser, error) {
	claims, err := ParseToken(cfg, token)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAccess {
		return nil, errTokenType
	}
	if revoked != nil && claims.ID != "" {
		isRevoked, err := revoked.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if isRevoked {
			return nil, errTokenRevoked
		}
	}

	user := &AuthUser{
		ID:      claims.Subject,
		Email:   claims.Email,
		Role:    model.UserRole(claims.Role),
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		user.ExpiresAt = claims.ExpiresAt.Time
	}
	return user, nil
}

// Middleware 创建 JWT 认证中间件
func Middleware(cfg Config, revoked cache.TokenRevocationCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 公开路由：直接放行
			if isPublicRoute(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, err := bearerToken(r)
			if err != nil {
				apiutil.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}

			user, err := Authenticate(r.Context(), cfg, revoked, token)
			if err != nil {
				log.Printf("[auth] token rejected: %v", err)
				apiutil.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			// 注入 auth user 到 context，日志中间件从 context 读取 user_id
			ctx := WithAuthUser(r.Context(), user)
			ctx = logging.WithUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole 角色守卫：未登录返回 401，角色不符返回 403
func RequireRole(roles ...model.UserRole) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user := GetAuthUser(r.Context())
			if user == nil {
				apiutil.WriteErr(w, apperr.ErrUnauthorized)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next(w, r)
					return
				}
			}
			apiutil.WriteErr(w, apperr.ErrForbidden)
		}
	}
}

// AdminOnly 管理员专属路由
func AdminOnly(next http.HandlerFunc) http.HandlerFunc {
	return RequireRole(model.UserRoleAdmin)(next)
}
