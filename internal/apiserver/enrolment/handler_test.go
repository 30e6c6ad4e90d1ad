package enrolment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"nayaschool/internal/apiserver/auth"
	"nayaschool/internal/shared/cache"
	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage/repository"
	"nayaschool/internal/shared/storage/storagetest"
)

type handlerEnv struct {
	store *repository.Store
	cfg   auth.Config
	mux   http.Handler
}

func newHandlerEnv(t *testing.T, policy Policy) *handlerEnv {
	t.Helper()
	engine, store, _, _ := newTestEngine(t, policy)

	cfg := auth.DefaultConfig()
	cfg.JWTSecret = "handler-secret"
	cfg.BcryptCost = bcrypt.MinCost

	mux := http.NewServeMux()
	NewHandler(engine).RegisterRoutes(mux)
	return &handlerEnv{store: store, cfg: cfg, mux: auth.Middleware(cfg, cache.NewNoOpCache())(mux)}
}

func (e *handlerEnv) do(t *testing.T, user *model.User, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Accept", "application/json")
	if user != nil {
		token, err := auth.GenerateAccessToken(e.cfg, user)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func TestEnrolEndpoint(t *testing.T) {
	env := newHandlerEnv(t, DefaultPolicy())
	s := storagetest.User(t, env.store, "h-student", model.UserRoleStudent)
	m := storagetest.Module(t, env.store, "HE101", 2, nil)

	rec := env.do(t, s, "POST", "/enrol/"+m.ID, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp enrolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Created)
	assert.Equal(t, m.ID, resp.Enrolment.ModuleID)

	rec = env.do(t, s, "POST", "/enrol/"+m.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	second := storagetest.User(t, env.store, "h-student2", model.UserRoleStudent)
	rec = env.do(t, second, "POST", "/enrol/"+m.ID, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	other := storagetest.User(t, env.store, "h-student3", model.UserRoleStudent)
	rec = env.do(t, other, "POST", "/enrol/"+m.ID, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Module is full or unavailable.")

	// 模块满员后已选学生重复提交也是 422
	rec = env.do(t, s, "POST", "/enrol/"+m.ID, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, other, "POST", "/enrol/mod-missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnrolEndpointRoleGate(t *testing.T) {
	env := newHandlerEnv(t, DefaultPolicy())
	m := storagetest.Module(t, env.store, "HE201", 10, nil)

	rec := env.do(t, nil, "POST", "/enrol/"+m.ID, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	for _, role := range []model.UserRole{model.UserRoleTeacher, model.UserRoleAdmin, model.UserRoleOldStudent} {
		u := storagetest.User(t, env.store, "gate-"+string(role), role)
		rec := env.do(t, u, "POST", "/enrol/"+m.ID, "")
		assert.Equal(t, http.StatusForbidden, rec.Code, role)
	}

	// 令牌角色过期（已降级为往届学生）时以数据库为准
	demoted := storagetest.User(t, env.store, "demoted", model.UserRoleOldStudent)
	stale := *demoted
	stale.Role = model.UserRoleStudent
	rec = env.do(t, &stale, "POST", "/enrol/"+m.ID, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEnrolLimitMessage(t *testing.T) {
	env := newHandlerEnv(t, DefaultPolicy())
	s := storagetest.User(t, env.store, "h-limit", model.UserRoleStudent)
	for _, code := range []string{"HL1", "HL2", "HL3", "HL4"} {
		m := storagetest.Module(t, env.store, code, 10, nil)
		storagetest.Enrolment(t, env.store, s.ID, m.ID, nil)
	}
	m := storagetest.Module(t, env.store, "HL5", 10, nil)

	rec := env.do(t, s, "POST", "/enrol/"+m.ID, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "You have reached the maximum of 4 current modules.")
}

func TestEnrolBrowserRedirect(t *testing.T) {
	env := newHandlerEnv(t, DefaultPolicy())
	s := storagetest.User(t, env.store, "h-browser", model.UserRoleStudent)
	m := storagetest.Module(t, env.store, "HB101", 10, nil)

	token, err := auth.GenerateAccessToken(env.cfg, s)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/enrol/"+m.ID, nil)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Referer", "http://school.test/dashboard")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "http://school.test/dashboard", rec.Header().Get("Location"))
}

func TestRecordResultEndpoint(t *testing.T) {
	env := newHandlerEnv(t, DefaultPolicy())
	owner := storagetest.User(t, env.store, "h-owner", model.UserRoleTeacher)
	other := storagetest.User(t, env.store, "h-other", model.UserRoleTeacher)
	s := storagetest.User(t, env.store, "h-graded", model.UserRoleStudent)
	m := storagetest.Module(t, env.store, "HR101", 10, &owner.ID)
	e := storagetest.Enrolment(t, env.store, s.ID, m.ID, nil)
	path := "/enrolments/" + e.ID + "/result"

	tests := []struct {
		name string
		user *model.User
		body string
		want int
	}{
		{"student cannot record", s, `{"result":"pass"}`, http.StatusForbidden},
		{"other teacher forbidden", other, `{"result":"pass"}`, http.StatusForbidden},
		{"other teacher forbidden before validation", other, `{"result":"excellent"}`, http.StatusForbidden},
		{"invalid result", owner, `{"result":"excellent"}`, http.StatusUnprocessableEntity},
		{"missing body", owner, ``, http.StatusUnprocessableEntity},
		{"other teacher forbidden on malformed body", other, `{"result":`, http.StatusForbidden},
		{"malformed body", owner, `{"result":`, http.StatusUnprocessableEntity},
		{"uppercase result rejected", owner, `{"result":"PASS"}`, http.StatusUnprocessableEntity},
		{"owner records pass", owner, `{"result":"pass"}`, http.StatusOK},
		{"owner regrades", owner, `{"result":"fail"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.user, "PATCH", path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	got, err := env.store.GetEnrolment(t.Context(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrolmentResultFail, *got.Result)

	rec := env.do(t, owner, "PATCH", "/enrolments/enr-missing/result", `{"result":"pass"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordResultEndpointMalformedBody(t *testing.T) {
	env := newHandlerEnv(t, DefaultPolicy())
	owner := storagetest.User(t, env.store, "h-body", model.UserRoleTeacher)
	s := storagetest.User(t, env.store, "h-body-s", model.UserRoleStudent)
	m := storagetest.Module(t, env.store, "HB101", 10, &owner.ID)
	e := storagetest.Enrolment(t, env.store, s.ID, m.ID, nil)

	rec := env.do(t, owner, "PATCH", "/enrolments/"+e.ID+"/result", `{"result":`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Fields, "body")
	assert.NotContains(t, body.Fields, "result")

	// 请求体错误不会落库
	got, err := env.store.GetEnrolment(t.Context(), e.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive())
}

func TestRecordResultEndpointNoRegrade(t *testing.T) {
	env := newHandlerEnv(t, Policy{MaxActiveEnrolments: 4, AllowRegrade: false})
	owner := storagetest.User(t, env.store, "h-strict", model.UserRoleTeacher)
	s := storagetest.User(t, env.store, "h-strict-s", model.UserRoleStudent)
	m := storagetest.Module(t, env.store, "HS101", 10, &owner.ID)
	e := storagetest.Enrolment(t, env.store, s.ID, m.ID, nil)
	path := "/enrolments/" + e.ID + "/result"

	assert.Equal(t, http.StatusOK, env.do(t, owner, "PATCH", path, `{"result":"pass"}`).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, owner, "PATCH", path, `{"result":"fail"}`).Code)
}

func TestAdminDeleteEnrolment(t *testing.T) {
	env := newHandlerEnv(t, DefaultPolicy())
	admin := storagetest.User(t, env.store, "h-admin", model.UserRoleAdmin)
	teacher := storagetest.User(t, env.store, "h-teacher", model.UserRoleTeacher)
	s := storagetest.User(t, env.store, "h-del", model.UserRoleStudent)
	m := storagetest.Module(t, env.store, "HD101", 10, nil)
	e := storagetest.Enrolment(t, env.store, s.ID, m.ID, nil)

	assert.Equal(t, http.StatusForbidden, env.do(t, teacher, "DELETE", "/admin/enrolments/"+e.ID, "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, admin, "DELETE", "/admin/enrolments/"+e.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, admin, "DELETE", "/admin/enrolments/"+e.ID, "").Code)
}
