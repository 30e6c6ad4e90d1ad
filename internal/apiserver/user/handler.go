// Package user 管理员账号管理接口：教师、学生与角色变更
package user

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"nayaschool/internal/apiserver/apiutil"
	"nayaschool/internal/apiserver/auth"
	"nayaschool/internal/shared/apperr"
	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage"
)

// Store 账号管理所需的存储操作
type Store interface {
	auth.UserStore
	storage.Transactor
	ListTeachers(ctx context.Context) ([]*model.TeacherSummary, error)
}

// Handler 账号管理 HTTP 处理器
type Handler struct {
	store Store
	cfg   auth.Config
}

// NewHandler 创建账号管理处理器
func NewHandler(store Store, cfg auth.Config) *Handler {
	return &Handler{store: store, cfg: cfg}
}

// RegisterRoutes 注册账号管理路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/teachers", auth.AdminOnly(h.ListTeachers))
	mux.HandleFunc("POST /admin/teachers", auth.AdminOnly(h.CreateTeacher))
	mux.HandleFunc("DELETE /admin/teachers/{id}", auth.AdminOnly(h.DeleteTeacher))
	mux.HandleFunc("POST /admin/students", auth.AdminOnly(h.CreateStudent))
	mux.HandleFunc("PATCH /admin/users/{id}/role", auth.AdminOnly(h.UpdateRole))
}

type createAccountRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8"`
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// ListTeachers 教师列表及其负责的模块数
func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.store.ListTeachers(r.Context())
	if err != nil {
		apiutil.WriteErr(w, fmt.Errorf("list teachers: %w", err))
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]interface{}{"data": teachers})
}

// CreateTeacher 创建教师账号
func (h *Handler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	h.createAccount(w, r, model.UserRoleTeacher)
}

// CreateStudent 创建学生账号
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	h.createAccount(w, r, model.UserRoleStudent)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request, role model.UserRole) {
	var req createAccountRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	user, err := auth.CreateAccount(r.Context(), h.store, h.cfg, req.Name, req.Email, req.Password, role)
	if err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	log.Printf("[user] Created %s account: %s (%s)", role, user.Email, user.ID)
	apiutil.Respond(w, r, http.StatusCreated, user)
}

// DeleteTeacher 删除教师：同一事务内先取消其模块指派再删除账号
func (h *Handler) DeleteTeacher(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var unassigned int
	err := h.store.WithTx(r.Context(), func(tx storage.TxStore) error {
		u, err := tx.LockUser(r.Context(), id)
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if u == nil {
			return fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
		}
		if !u.Role.IsTeacher() {
			return fmt.Errorf("%w: can only delete teacher accounts", apperr.ErrForbidden)
		}

		if unassigned, err = tx.UnassignTeacherModules(r.Context(), id); err != nil {
			return fmt.Errorf("unassign modules: %w", err)
		}
		return tx.DeleteUser(r.Context(), id)
	})
	if err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	log.Printf("[user] Deleted teacher %s, unassigned %d module(s)", id, unassigned)
	apiutil.Respond(w, r, http.StatusOK, map[string]interface{}{
		"success":            true,
		"unassigned_modules": unassigned,
	})
}

// UpdateRole 变更用户角色（如学生毕业转为往届学生）
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteErr(w, err)
		return
	}
	role, ok := model.ParseUserRole(req.Role)
	if !ok {
		apiutil.WriteErr(w, apperr.NewValidationError("role", "The selected role is invalid."))
		return
	}

	id := r.PathValue("id")
	if err := h.store.UpdateUserRole(r.Context(), id, role); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			apiutil.WriteErr(w, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound))
			return
		}
		apiutil.WriteErr(w, fmt.Errorf("update role: %w", err))
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		apiutil.WriteErr(w, fmt.Errorf("get user: %w", err))
		return
	}

	log.Printf("[user] Role of %s changed to %s", id, role)
	apiutil.Respond(w, r, http.StatusOK, user)
}
