package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nayaschool/internal/apiserver/auth"
	"nayaschool/internal/apiserver/enrolment"
	"nayaschool/internal/shared/cache"
	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage/repository"
	"nayaschool/internal/shared/storage/storagetest"
	"nayaschool/pkg/logging"
)

type dashboardEnv struct {
	store *repository.Store
	cfg   auth.Config
	mux   http.Handler
}

func newDashboardEnv(t *testing.T) *dashboardEnv {
	t.Helper()
	store := storagetest.NewStore(t)
	engine := enrolment.NewEngine(store, nil, enrolment.DefaultPolicy(), enrolment.WithLogger(logging.Discard()))
	cfg := auth.DefaultConfig()
	cfg.JWTSecret = "dashboard-secret"

	mux := http.NewServeMux()
	NewHandler(store, engine, Config{}).RegisterRoutes(mux)
	return &dashboardEnv{store: store, cfg: cfg, mux: auth.Middleware(cfg, cache.NewNoOpCache())(mux)}
}

func (e *dashboardEnv) get(t *testing.T, user *model.User, path string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	token, err := auth.GenerateAccessToken(e.cfg, user)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestAdminDashboard(t *testing.T) {
	env := newDashboardEnv(t)
	admin := storagetest.User(t, env.store, "dash-admin", model.UserRoleAdmin)
	teacher := storagetest.User(t, env.store, "dash-teacher", model.UserRoleTeacher)
	for i := 0; i < 10; i++ {
		storagetest.User(t, env.store, fmt.Sprintf("dash-s%02d", i), model.UserRoleStudent)
	}
	storagetest.User(t, env.store, "dash-alumni", model.UserRoleOldStudent)
	for i := 1; i <= 4; i++ {
		storagetest.Module(t, env.store, fmt.Sprintf("DA%d", i), 10, &teacher.ID)
	}

	var view AdminView
	require.Equal(t, http.StatusOK, env.get(t, admin, "/dashboard", &view))

	assert.Equal(t, model.UserRoleAdmin, view.Role)
	assert.Equal(t, 11, view.TotalStudentsCount)
	require.Len(t, view.Students, 9)
	assert.Equal(t, "dash-s00", view.Students[0].Name)
	require.Len(t, view.Teachers, 1)
	assert.Equal(t, 4, view.Teachers[0].TeachingModulesCount)
	require.Len(t, view.Modules.Data, 3)
	assert.Equal(t, 2, view.Modules.Meta.LastPage)

	require.Equal(t, http.StatusOK, env.get(t, admin, "/dashboard?page=2", &view))
	require.Len(t, view.Modules.Data, 1)
	assert.Equal(t, "DA1", view.Modules.Data[0].Code)
}

func TestTeacherDashboard(t *testing.T) {
	env := newDashboardEnv(t)
	teacher := storagetest.User(t, env.store, "td-teacher", model.UserRoleTeacher)
	other := storagetest.User(t, env.store, "td-other", model.UserRoleTeacher)
	s1 := storagetest.User(t, env.store, "td-s1", model.UserRoleStudent)
	s2 := storagetest.User(t, env.store, "td-s2", model.UserRoleStudent)

	older := storagetest.Module(t, env.store, "TD101", 10, &teacher.ID)
	newer := storagetest.Module(t, env.store, "TD102", 10, &teacher.ID)
	storagetest.Module(t, env.store, "TD103", 10, &other.ID)

	storagetest.Enrolment(t, env.store, s1.ID, older.ID, nil)
	storagetest.Enrolment(t, env.store, s2.ID, older.ID, storagetest.Result(model.EnrolmentResultPass))

	var view TeacherView
	require.Equal(t, http.StatusOK, env.get(t, teacher, "/dashboard", &view))
	require.Len(t, view.Modules, 2)
	assert.Equal(t, newer.ID, view.Modules[0].ID)

	m := view.Modules[1]
	assert.Equal(t, older.ID, m.ID)
	assert.Equal(t, 1, m.StudentsCount)
	assert.Equal(t, 2, m.TotalStudentsCount)
	require.Len(t, m.Enrolments, 2)
	assert.Equal(t, s1.ID, m.Enrolments[0].Student.ID)
	assert.Empty(t, view.Modules[0].Enrolments)
}

func TestStudentDashboard(t *testing.T) {
	env := newDashboardEnv(t)
	s := storagetest.User(t, env.store, "sd-student", model.UserRoleStudent)
	done := storagetest.Module(t, env.store, "SD101", 10, nil)
	current := storagetest.Module(t, env.store, "SD102", 10, nil)
	open := storagetest.Module(t, env.store, "SD103", 10, nil)
	full := storagetest.Module(t, env.store, "SD104", 1, nil)
	other := storagetest.User(t, env.store, "sd-other", model.UserRoleStudent)

	storagetest.Enrolment(t, env.store, s.ID, done.ID, storagetest.Result(model.EnrolmentResultPass))
	storagetest.Enrolment(t, env.store, s.ID, current.ID, nil)
	storagetest.Enrolment(t, env.store, other.ID, full.ID, nil)

	var view StudentView
	require.Equal(t, http.StatusOK, env.get(t, s, "/dashboard", &view))
	assert.Equal(t, model.UserRoleStudent, view.Role)
	assert.True(t, view.CanEnrolMore)
	assert.False(t, view.IsOldStudent)

	require.Len(t, view.CurrentEnrolments, 1)
	assert.Equal(t, "SD102", view.CurrentEnrolments[0].Module.Code)
	require.Len(t, view.CompletedEnrolments, 1)
	assert.Equal(t, model.EnrolmentResultPass, *view.CompletedEnrolments[0].Result)
	require.Len(t, view.AvailableModules, 1)
	assert.Equal(t, open.ID, view.AvailableModules[0].ID)
}

func TestOldStudentDashboard(t *testing.T) {
	env := newDashboardEnv(t)
	alumni := storagetest.User(t, env.store, "od-alumni", model.UserRoleOldStudent)
	m := storagetest.Module(t, env.store, "OD101", 10, nil)
	storagetest.Module(t, env.store, "OD102", 10, nil)
	storagetest.Enrolment(t, env.store, alumni.ID, m.ID, storagetest.Result(model.EnrolmentResultFail))

	var view StudentView
	require.Equal(t, http.StatusOK, env.get(t, alumni, "/dashboard", &view))
	assert.True(t, view.IsOldStudent)
	assert.False(t, view.CanEnrolMore)
	assert.Empty(t, view.AvailableModules)
	require.Len(t, view.CompletedEnrolments, 1)
}

func TestDashboardUsesCurrentRole(t *testing.T) {
	env := newDashboardEnv(t)
	u := storagetest.User(t, env.store, "rc-user", model.UserRoleStudent)
	require.NoError(t, env.store.UpdateUserRole(t.Context(), u.ID, model.UserRoleOldStudent))

	// 令牌中仍是 student
	var view StudentView
	require.Equal(t, http.StatusOK, env.get(t, u, "/dashboard", &view))
	assert.True(t, view.IsOldStudent)

	gone := &model.User{ID: "usr-deleted", Role: model.UserRoleAdmin}
	assert.Equal(t, http.StatusUnauthorized, env.get(t, gone, "/dashboard", nil))
}
