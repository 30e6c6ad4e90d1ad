package module

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"nayaschool/internal/apiserver/apiutil"
	"nayaschool/internal/apiserver/auth"
	"nayaschool/internal/shared/apperr"
	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage"
)

// Handler 模块管理 HTTP 处理器
type Handler struct {
	store   Store
	perPage int
}

// NewHandler 创建模块处理器
func NewHandler(store Store, perPage int) *Handler {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Handler{store: store, perPage: perPage}
}

// RegisterRoutes 注册模块相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/modules", auth.AdminOnly(h.List))
	mux.HandleFunc("POST /admin/modules", auth.AdminOnly(h.Create))
	mux.HandleFunc("PATCH /admin/modules/{id}/toggle", auth.AdminOnly(h.Toggle))
	mux.HandleFunc("POST /admin/modules/{id}/toggle", auth.AdminOnly(h.Toggle))
	mux.HandleFunc("PATCH /admin/modules/{id}/teacher", auth.AdminOnly(h.AssignTeacher))
	mux.HandleFunc("DELETE /admin/modules/{id}", auth.AdminOnly(h.Archive))
	mux.HandleFunc("GET /modules/{id}", h.Get)
}

// ============================================================================
// 请求类型
// ============================================================================

type createModuleRequest struct {
	Code        string  `json:"code" validate:"required,max=50"`
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	MaxStudents *int    `json:"max_students" validate:"omitempty,min=1,max=50"`
	TeacherID   *string `json:"teacher_id"`
}

type assignTeacherRequest struct {
	TeacherID *string `json:"teacher_id"`
}

// ============================================================================
// Handlers
// ============================================================================

// List 模块分页列表（新建的在前）
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, err := LoadPage(r.Context(), h.store, apiutil.PageParam(r), h.perPage)
	if err != nil {
		apiutil.WriteErr(w, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, page)
}

// Create 创建模块，新模块默认开放
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createModuleRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteErr(w, err)
		return
	}
	// 先去空白再校验，纯空白的 code/title 按缺失处理
	req.Code = strings.TrimSpace(req.Code)
	req.Title = strings.TrimSpace(req.Title)
	if err := apiutil.Validate(&req); err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	code := req.Code
	existing, err := h.store.GetModuleByCode(r.Context(), code)
	if err != nil {
		apiutil.WriteErr(w, fmt.Errorf("check module code: %w", err))
		return
	}
	if existing != nil {
		apiutil.WriteErr(w, apperr.NewValidationError("code", "The code has already been taken."))
		return
	}

	teacherID := normalizeID(req.TeacherID)
	if err := h.checkTeacher(r.Context(), teacherID); err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	maxStudents := model.DefaultMaxStudents
	if req.MaxStudents != nil {
		maxStudents = *req.MaxStudents
	}

	now := time.Now().UTC()
	m := &model.Module{
		ID:          apiutil.GenerateID(apiutil.PrefixModule),
		Code:        code,
		Title:       req.Title,
		Description: req.Description,
		TeacherID:   teacherID,
		MaxStudents: maxStudents,
		IsAvailable: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.store.CreateModule(r.Context(), m); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			apiutil.WriteErr(w, apperr.NewValidationError("code", "The code has already been taken."))
			return
		}
		apiutil.WriteErr(w, fmt.Errorf("create module: %w", err))
		return
	}

	log.Printf("[module] Created module %s (%s)", m.Code, m.ID)
	apiutil.Respond(w, r, http.StatusCreated, m)
}

// Toggle 切换模块开放状态
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, err := h.store.ToggleModuleAvailability(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		apiutil.WriteErr(w, fmt.Errorf("module %s: %w", id, apperr.ErrNotFound))
		return
	}
	if err != nil {
		apiutil.WriteErr(w, fmt.Errorf("toggle module: %w", err))
		return
	}

	log.Printf("[module] Module %s availability set to %v", m.Code, m.IsAvailable)
	apiutil.Respond(w, r, http.StatusOK, m)
}

// AssignTeacher 指派或取消指派教师，teacher_id 为 null 表示取消
func (h *Handler) AssignTeacher(w http.ResponseWriter, r *http.Request) {
	var req assignTeacherRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	m, err := h.mustGet(r.Context(), r.PathValue("id"))
	if err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	teacherID := normalizeID(req.TeacherID)
	if err := h.checkTeacher(r.Context(), teacherID); err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	if err := h.store.SetModuleTeacher(r.Context(), m.ID, teacherID); err != nil {
		apiutil.WriteErr(w, fmt.Errorf("assign teacher: %w", err))
		return
	}
	m.TeacherID = teacherID

	apiutil.Respond(w, r, http.StatusOK, m)
}

// Archive 归档模块（软删除，保留选课历史）
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	m, err := h.mustGet(r.Context(), r.PathValue("id"))
	if err != nil {
		apiutil.WriteErr(w, err)
		return
	}
	if m.IsAvailable {
		if err := h.store.SetModuleAvailability(r.Context(), m.ID, false); err != nil {
			apiutil.WriteErr(w, fmt.Errorf("archive module: %w", err))
			return
		}
	}

	log.Printf("[module] Archived module %s", m.Code)
	apiutil.Respond(w, r, http.StatusOK, map[string]interface{}{
		"archived": true,
		"message":  "Module archived.",
	})
}

// Get 模块详情及在读人数，登录用户均可访问
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if auth.GetAuthUser(r.Context()) == nil {
		apiutil.WriteErr(w, apperr.ErrUnauthorized)
		return
	}

	m, err := h.mustGet(r.Context(), r.PathValue("id"))
	if err != nil {
		apiutil.WriteErr(w, err)
		return
	}
	n, err := h.store.CountActiveStudents(r.Context(), m.ID)
	if err != nil {
		apiutil.WriteErr(w, fmt.Errorf("count active students: %w", err))
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, &model.ModuleSummary{Module: *m, ActiveStudentsCount: n})
}

// ============================================================================
// 工具函数
// ============================================================================

func (h *Handler) mustGet(ctx context.Context, id string) (*model.Module, error) {
	m, err := h.store.GetModule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get module: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("module %s: %w", id, apperr.ErrNotFound)
	}
	return m, nil
}

// checkTeacher teacherID 非空时必须是教师账号
func (h *Handler) checkTeacher(ctx context.Context, teacherID *string) error {
	if teacherID == nil {
		return nil
	}
	u, err := h.store.GetUserByID(ctx, *teacherID)
	if err != nil {
		return fmt.Errorf("get teacher: %w", err)
	}
	if u == nil || !u.Role.IsTeacher() {
		return apperr.NewValidationError("teacher_id", "The selected teacher is invalid.")
	}
	return nil
}

func normalizeID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
