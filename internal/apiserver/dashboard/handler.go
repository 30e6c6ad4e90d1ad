// Package dashboard 按角色返回的首页视图
package dashboard

import (
	"context"
	"fmt"
	"net/http"

	"nayaschool/internal/apiserver/apiutil"
	"nayaschool/internal/apiserver/auth"
	"nayaschool/internal/apiserver/enrolment"
	"nayaschool/internal/apiserver/module"
	"nayaschool/internal/shared/apperr"
	"nayaschool/internal/shared/model"
)

// DefaultStudentLimit 管理员视图展示的学生数量
const DefaultStudentLimit = 9

// studentRoles 管理员视图中计入学生的角色
var studentRoles = []model.UserRole{model.UserRoleStudent, model.UserRoleOldStudent}

// Store 首页视图所需的存储操作
type Store interface {
	module.Store
	ListTeachers(ctx context.Context) ([]*model.TeacherSummary, error)
	ListUsersByRole(ctx context.Context, roles []model.UserRole, limit int) ([]*model.User, error)
	CountUsersByRole(ctx context.Context, roles []model.UserRole) (int, error)
	ListModuleEnrolments(ctx context.Context, moduleID string) ([]*model.ModuleEnrolment, error)
	CountActiveStudentsByModule(ctx context.Context, moduleIDs []string) (map[string]int, error)
	CountStudentsByModule(ctx context.Context, moduleIDs []string) (map[string]int, error)
	ListStudentEnrolments(ctx context.Context, userID string, active bool) ([]*model.StudentEnrolment, error)
}

// Config 首页视图配置
type Config struct {
	ModulesPerPage int
	StudentLimit   int
}

// Handler 首页 HTTP 处理器
type Handler struct {
	store  Store
	engine *enrolment.Engine
	cfg    Config
}

// NewHandler 创建首页处理器
func NewHandler(store Store, engine *enrolment.Engine, cfg Config) *Handler {
	if cfg.ModulesPerPage <= 0 {
		cfg.ModulesPerPage = module.DefaultPerPage
	}
	if cfg.StudentLimit <= 0 {
		cfg.StudentLimit = DefaultStudentLimit
	}
	return &Handler{store: store, engine: engine, cfg: cfg}
}

// RegisterRoutes 注册首页路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /dashboard", h.Dashboard)
}

// ============================================================================
// 响应类型
// ============================================================================

// AdminView 管理员首页
type AdminView struct {
	Role               model.UserRole          `json:"role"`
	Modules            *module.Page            `json:"modules"`
	Teachers           []*model.TeacherSummary `json:"teachers"`
	Students           []*model.UserSummary    `json:"students"`
	TotalStudentsCount int                     `json:"total_students_count"`
}

// TeacherModule 教师视图中的模块
type TeacherModule struct {
	model.Module
	Enrolments         []*model.ModuleEnrolment `json:"enrolments"`
	StudentsCount      int                      `json:"students_count"`
	TotalStudentsCount int                      `json:"total_students_count"`
}

// TeacherView 教师首页
type TeacherView struct {
	Role    model.UserRole   `json:"role"`
	Modules []*TeacherModule `json:"modules"`
}

// StudentView 学生（含往届学生）首页
type StudentView struct {
	Role                model.UserRole            `json:"role"`
	CurrentEnrolments   []*model.StudentEnrolment `json:"current_enrolments"`
	CompletedEnrolments []*model.StudentEnrolment `json:"completed_enrolments"`
	AvailableModules    []*model.ModuleSummary    `json:"available_modules"`
	CanEnrolMore        bool                      `json:"can_enrol_more"`
	IsOldStudent        bool                      `json:"is_old_student"`
}

// ============================================================================
// Handlers
// ============================================================================

// Dashboard 按数据库中的当前角色返回对应视图
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	authUser := auth.GetAuthUser(r.Context())
	if authUser == nil {
		apiutil.WriteErr(w, apperr.ErrUnauthorized)
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil {
		apiutil.WriteErr(w, fmt.Errorf("get user: %w", err))
		return
	}
	if user == nil {
		apiutil.WriteErr(w, apperr.ErrUnauthorized)
		return
	}

	var view interface{}
	switch {
	case user.Role.IsAdmin():
		view, err = h.adminView(r.Context(), apiutil.PageParam(r))
	case user.Role.IsTeacher():
		view, err = h.teacherView(r.Context(), user)
	case user.Role.CanViewHistory():
		view, err = h.studentView(r.Context(), user)
	default:
		err = apperr.ErrForbidden
	}
	if err != nil {
		apiutil.WriteErr(w, err)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) adminView(ctx context.Context, page int) (*AdminView, error) {
	modules, err := module.LoadPage(ctx, h.store, page, h.cfg.ModulesPerPage)
	if err != nil {
		return nil, err
	}
	teachers, err := h.store.ListTeachers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	users, err := h.store.ListUsersByRole(ctx, studentRoles, h.cfg.StudentLimit)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	total, err := h.store.CountUsersByRole(ctx, studentRoles)
	if err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}

	students := make([]*model.UserSummary, 0, len(users))
	for _, u := range users {
		students = append(students, u.Summary())
	}
	return &AdminView{
		Role:               model.UserRoleAdmin,
		Modules:            modules,
		Teachers:           teachers,
		Students:           students,
		TotalStudentsCount: total,
	}, nil
}

func (h *Handler) teacherView(ctx context.Context, teacher *model.User) (*TeacherView, error) {
	modules, err := h.store.ListModulesByTeacher(ctx, teacher.ID)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}

	ids := make([]string, 0, len(modules))
	for _, m := range modules {
		ids = append(ids, m.ID)
	}
	active, err := h.store.CountActiveStudentsByModule(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count active students: %w", err)
	}
	totals, err := h.store.CountStudentsByModule(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}

	view := &TeacherView{Role: model.UserRoleTeacher, Modules: make([]*TeacherModule, 0, len(modules))}
	for _, m := range modules {
		enrolments, err := h.store.ListModuleEnrolments(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("list enrolments: %w", err)
		}
		view.Modules = append(view.Modules, &TeacherModule{
			Module:             *m,
			Enrolments:         enrolments,
			StudentsCount:      active[m.ID],
			TotalStudentsCount: totals[m.ID],
		})
	}
	return view, nil
}

func (h *Handler) studentView(ctx context.Context, student *model.User) (*StudentView, error) {
	current, err := h.store.ListStudentEnrolments(ctx, student.ID, true)
	if err != nil {
		return nil, fmt.Errorf("list current enrolments: %w", err)
	}
	completed, err := h.store.ListStudentEnrolments(ctx, student.ID, false)
	if err != nil {
		return nil, fmt.Errorf("list completed enrolments: %w", err)
	}
	available, err := h.engine.ListAvailableModules(ctx, student.ID)
	if err != nil {
		return nil, fmt.Errorf("list available modules: %w", err)
	}
	canEnrolMore, err := h.engine.CanEnrolMore(ctx, student)
	if err != nil {
		return nil, fmt.Errorf("count active enrolments: %w", err)
	}

	return &StudentView{
		Role:                student.Role,
		CurrentEnrolments:   current,
		CompletedEnrolments: completed,
		AvailableModules:    available,
		CanEnrolMore:        canEnrolMore,
		IsOldStudent:        student.Role.IsOldStudent(),
	}, nil
}
