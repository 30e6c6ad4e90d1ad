// Package server 路由配置与核心基础设施
//
// 本包组装各领域 Handler，并提供跨领域的基础能力：
//   - server.go: Handler 定义、路由与健康检查
//   - middleware.go: 请求 ID、访问日志、CORS
//   - metrics.go: Prometheus 指标
//   - events_ws.go: 选课事件 WebSocket 推送
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"nayaschool/api"
	"nayaschool/internal/apiserver/apiutil"
	"nayaschool/internal/apiserver/auth"
	"nayaschool/internal/apiserver/dashboard"
	"nayaschool/internal/apiserver/enrolment"
	"nayaschool/internal/apiserver/module"
	"nayaschool/internal/apiserver/user"
	"nayaschool/internal/shared/infra"
	"nayaschool/pkg/logging"
)

// readyTimeout 就绪检查中单个依赖的超时
const readyTimeout = 2 * time.Second

// Options 服务装配参数
type Options struct {
	Auth           auth.Config
	Policy         enrolment.Policy
	ModulesPerPage int
	StudentLimit   int
	Logger         *logging.Logger
}

// Handler API 处理器
//
// 持有基础设施与选课引擎，Router 把请求分发到各领域独立包。
type Handler struct {
	infra   *infra.Infrastructure
	engine  *enrolment.Engine
	feed    *EnrolmentFeed
	metrics *Metrics
	logger  *logging.Logger
	opts    Options
}

// NewHandler 创建 Handler 实例
func NewHandler(inf *infra.Infrastructure, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Default("api-server")
	}
	metrics := NewMetrics("nayaschool")

	engine := enrolment.NewEngine(inf.Storage, inf.EventBus, opts.Policy,
		enrolment.WithRecorder(metrics),
		enrolment.WithLogger(opts.Logger),
	)

	return &Handler{
		infra:   inf,
		engine:  engine,
		feed:    NewEnrolmentFeed(inf.Storage, inf.EventBus, opts.Auth, inf.Cache, metrics),
		metrics: metrics,
		logger:  opts.Logger,
		opts:    opts,
	}
}

// Engine 返回选课引擎
func (h *Handler) Engine() *enrolment.Engine {
	return h.engine
}

// Metrics 返回指标实例
func (h *Handler) Metrics() *Metrics {
	return h.metrics
}

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 系统:
//   - GET /health, /health/live, /health/ready
//   - GET /metrics
//   - GET /openapi.yaml
//
// 认证 (auth):
//   - POST /auth/register | /auth/login | /auth/refresh | /auth/logout
//   - GET  /auth/me
//   - PUT  /auth/password
//
// 选课 (enrolment):
//   - POST   /enrol/{moduleId}          - 学生选课
//   - PATCH  /enrolments/{id}/result    - 教师登记成绩
//   - DELETE /admin/enrolments/{id}     - 管理员删除选课
//
// 模块与账号管理 (module, user):
//   - /admin/modules..., /modules/{id}
//   - /admin/teachers..., /admin/students, /admin/users/{id}/role
//
// 仪表盘:
//   - GET /dashboard
//
// WebSocket:
//   - GET /ws/enrolments?token=       - 选课事件推送
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	store := h.infra.Storage

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", h.Live)
	mux.HandleFunc("GET /health/ready", h.Ready)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", h.metrics.Handler())

	// OpenAPI 文档
	mux.HandleFunc("GET /openapi.yaml", h.OpenAPI)

	auth.NewHandler(store, h.infra.Cache, h.opts.Auth).RegisterRoutes(mux)
	enrolment.NewHandler(h.engine).RegisterRoutes(mux)
	module.NewHandler(store, h.opts.ModulesPerPage).RegisterRoutes(mux)
	user.NewHandler(store, h.opts.Auth).RegisterRoutes(mux)
	dashboard.NewHandler(store, h.engine, dashboard.Config{
		ModulesPerPage: h.opts.ModulesPerPage,
		StudentLimit:   h.opts.StudentLimit,
	}).RegisterRoutes(mux)

	// 中间件顺序（外到内）：请求 ID → 访问日志 → 指标 → 认证
	var handler http.Handler = mux
	handler = auth.Middleware(h.opts.Auth, h.infra.Cache)(handler)
	handler = h.metrics.MetricsMiddleware(handler)
	handler = loggingMiddleware(h.logger)(handler)
	handler = requestIDMiddleware(handler)

	// 顶层路由，WebSocket 绕过包装 ResponseWriter 的中间件（避免 http.Hijacker 问题）
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /ws/enrolments", h.feed.HandleWebSocket)
	topMux.Handle("/", corsMiddleware(handler))

	return topMux
}

// Health 健康检查接口
//
// 路由: GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Live 存活探针，只要进程能响应即返回 ok
//
// 路由: GET /health/live
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready 就绪探针，检查数据库与缓存连通性
//
// 路由: GET /health/ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"database": h.ping(r.Context(), h.infra.Storage.Ping),
		"cache":    h.ping(r.Context(), h.infra.Cache.Ping),
	}

	status, code := "ok", http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status, code = "unavailable", http.StatusServiceUnavailable
			break
		}
	}
	apiutil.WriteJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

func (h *Handler) ping(ctx context.Context, fn func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Printf("[health] readiness check failed: %v", err)
		return "error: " + err.Error()
	}
	return "ok"
}

// OpenAPI 返回内嵌的 OpenAPI 文档
//
// 路由: GET /openapi.yaml
func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	data, err := api.SpecYAML()
	if err != nil {
		apiutil.WriteErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
