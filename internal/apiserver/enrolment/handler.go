package enrolment

import (
	"net/http"

	"nayaschool/internal/apiserver/apiutil"
	"nayaschool/internal/apiserver/auth"
	"nayaschool/internal/shared/model"
)

// Handler 选课 HTTP 处理器
type Handler struct {
	engine *Engine
}

// NewHandler 创建选课处理器
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes 注册选课相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	student := auth.RequireRole(model.UserRoleStudent)
	teacher := auth.RequireRole(model.UserRoleTeacher)

	mux.HandleFunc("POST /enrol/{moduleId}", student(h.Enrol))
	mux.HandleFunc("PATCH /enrolments/{id}/result", teacher(h.RecordResult))
	mux.HandleFunc("DELETE /admin/enrolments/{id}", auth.AdminOnly(h.Delete))
}

type enrolResponse struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Created   bool             `json:"created"`
	Enrolment *model.Enrolment `json:"enrolment"`
}

type recordResultRequest struct {
	Result string `json:"result"`
}

// Enrol 学生选课
// 新建返回 201，已存在返回 200
func (h *Handler) Enrol(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())

	enrolment, created, err := h.engine.TryEnrol(r.Context(), user.ID, r.PathValue("moduleId"))
	if err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	if !created {
		apiutil.Respond(w, r, http.StatusOK, enrolResponse{
			Success:   true,
			Message:   "You are already enrolled in this module.",
			Enrolment: enrolment,
		})
		return
	}
	apiutil.Respond(w, r, http.StatusCreated, enrolResponse{
		Success:   true,
		Message:   "Successfully enrolled in module.",
		Created:   true,
		Enrolment: enrolment,
	})
}

// RecordResult 教师登记成绩
func (h *Handler) RecordResult(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())

	id := r.PathValue("id")

	// 归属校验优先：非本模块教师看不到请求体错误
	var req recordResultRequest
	if decodeErr := apiutil.DecodeJSON(r, &req); decodeErr != nil {
		if err := h.engine.AuthorizeResult(r.Context(), id, user.ID); err != nil {
			apiutil.WriteErr(w, err)
			return
		}
		apiutil.WriteErr(w, decodeErr)
		return
	}

	enrolment, err := h.engine.RecordResult(r.Context(), id, user.ID, req.Result)
	if err != nil {
		apiutil.WriteErr(w, err)
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Result recorded.",
		"enrolment": enrolment,
	})
}

// Delete 管理员删除选课记录
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteEnrolment(r.Context(), r.PathValue("id")); err != nil {
		apiutil.WriteErr(w, err)
		return
	}
	apiutil.Respond(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Enrolment deleted.",
	})
}
