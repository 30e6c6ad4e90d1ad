package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"nayaschool/internal/apiserver/apiutil"
	"nayaschool/internal/shared/apperr"
	"nayaschool/internal/shared/cache"
	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage"
)

// UserStore 用户存储接口
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	UpdateUserRole(ctx context.Context, id string, role model.UserRole) error
}

// Handler 认证 HTTP 处理器
type Handler struct {
	store   UserStore
	revoked cache.TokenRevocationCache
	cfg     Config
}

// NewHandler 创建认证处理器
func NewHandler(store UserStore, revoked cache.TokenRevocationCache, cfg Config) *Handler {
	return &Handler{store: store, revoked: revoked, cfg: cfg}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/register", h.Register)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("POST /auth/refresh", h.Refresh)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/me", h.Me)
	mux.HandleFunc("PUT /auth/password", h.ChangePassword)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type authResponse struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	ExpiresIn    int         `json:"expires_in"`
}

// ============================================================================
// Handlers
// ============================================================================

// Register 学生自助注册
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.AllowRegistration {
		apiutil.WriteErr(w, fmt.Errorf("%w: registration is disabled", apperr.ErrForbidden))
		return
	}

	var req registerRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	user, err := CreateAccount(r.Context(), h.store, h.cfg, req.Name, req.Email, req.Password, model.UserRoleStudent)
	if err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	resp, err := h.issueTokens(user)
	if err != nil {
		log.Printf("[auth.register] issue tokens error: %v", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] User registered: %s (%s)", user.Email, user.ID)
	apiutil.WriteJSON(w, http.StatusCreated, resp)
}

// Login 用户登录
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), normalizeEmail(req.Email))
	if err != nil {
		log.Printf("[auth.login] GetUserByEmail error: %v", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil || !CheckPassword(req.Password, user.PasswordHash) {
		apiutil.WriteError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	resp, err := h.issueTokens(user)
	if err != nil {
		log.Printf("[auth.login] issue tokens error: %v", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] User logged in: %s", user.Email)
	apiutil.WriteJSON(w, http.StatusOK, resp)
}

// Refresh 刷新访问令牌，角色以数据库为准
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	claims, err := ParseToken(h.cfg, req.RefreshToken)
	if err != nil {
		apiutil.WriteError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if claims.Type != TokenTypeRefresh {
		apiutil.WriteError(w, http.StatusUnauthorized, "invalid token type")
		return
	}
	if revoked, err := h.revoked.IsTokenRevoked(r.Context(), claims.ID); err != nil || revoked {
		apiutil.WriteError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	// 查询用户确保仍然存在
	user, err := h.store.GetUserByID(r.Context(), claims.Subject)
	if err != nil || user == nil {
		apiutil.WriteError(w, http.StatusUnauthorized, "user not found")
		return
	}

	accessToken, err := GenerateAccessToken(h.cfg, user)
	if err != nil {
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": accessToken,
		"expires_in":   int(h.cfg.AccessTokenTTL.Seconds()),
	})
}

// Logout 吊销当前访问令牌；请求体携带 refresh_token 时一并吊销
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		apiutil.WriteErr(w, apperr.ErrUnauthorized)
		return
	}

	if err := h.revoke(r.Context(), authUser.TokenID, time.Until(authUser.ExpiresAt)); err != nil {
		log.Printf("[auth.logout] revoke access token error: %v", err)
		apiutil.WriteError(w, http.StatusServiceUnavailable, "logout is temporarily unavailable")
		return
	}

	var req refreshRequest
	if r.ContentLength != 0 && apiutil.DecodeJSON(r, &req) == nil && req.RefreshToken != "" {
		if claims, err := ParseToken(h.cfg, req.RefreshToken); err == nil && claims.Subject == authUser.ID {
			if err := h.revoke(r.Context(), claims.ID, claims.remaining()); err != nil {
				log.Printf("[auth.logout] revoke refresh token error: %v", err)
			}
		}
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me 获取当前用户信息
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		apiutil.WriteErr(w, apperr.ErrUnauthorized)
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		apiutil.WriteError(w, http.StatusNotFound, "user not found")
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, user)
}

// ChangePassword 修改密码
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		apiutil.WriteErr(w, apperr.ErrUnauthorized)
		return
	}

	var req changePasswordRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		apiutil.WriteError(w, http.StatusNotFound, "user not found")
		return
	}
	if !CheckPassword(req.OldPassword, user.PasswordHash) {
		apiutil.WriteErr(w, apperr.NewValidationError("old_password", "The old password is incorrect."))
		return
	}

	hash, err := HashPassword(req.NewPassword, h.cfg.BcryptCost)
	if err != nil {
		apiutil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.store.UpdateUserPassword(r.Context(), user.ID, hash); err != nil {
		log.Printf("[auth.password] UpdateUserPassword error: %v", err)
		apiutil.WriteError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *Handler) issueTokens(user *model.User) (*authResponse, error) {
	accessToken, err := GenerateAccessToken(h.cfg, user)
	if err != nil {
		return nil, err
	}
	refreshToken, err := GenerateRefreshToken(h.cfg, user.ID)
	if err != nil {
		return nil, err
	}
	return &authResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(h.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (h *Handler) revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	return h.revoked.RevokeToken(ctx, jti, ttl)
}

// ============================================================================
// 账号创建与管理员引导
// ============================================================================

// CreateAccount 创建指定角色的账号，邮箱重复时返回字段校验错误
func CreateAccount(ctx context.Context, store UserStore, cfg Config, name, email, password string, role model.UserRole) (*model.User, error) {
	email = normalizeEmail(email)

	existing, err := store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, apperr.NewValidationError("email", "The email has already been taken.")
	}

	hash, err := HashPassword(password, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           apiutil.GenerateID(apiutil.PrefixUser),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperr.NewValidationError("email", "The email has already been taken.")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// EnsureAdminUser 确保管理员用户存在（启动时调用）
// 已存在但非管理员的账号会被提升为 admin
func EnsureAdminUser(ctx context.Context, store UserStore, cfg Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	existing, err := store.GetUserByEmail(ctx, normalizeEmail(cfg.AdminEmail))
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if existing != nil {
		if existing.Role != model.UserRoleAdmin {
			log.Printf("[auth] Upgrading user %s to admin role", existing.Email)
			if err := store.UpdateUserRole(ctx, existing.ID, model.UserRoleAdmin); err != nil {
				return fmt.Errorf("upgrade admin user: %w", err)
			}
		}
		log.Printf("[auth] Admin user already exists: %s (%s)", existing.Email, existing.ID)
		return nil
	}

	user, err := CreateAccount(ctx, store, cfg, "Admin", cfg.AdminEmail, cfg.AdminPassword, model.UserRoleAdmin)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("[auth] Created admin user: %s (%s)", user.Email, user.ID)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
