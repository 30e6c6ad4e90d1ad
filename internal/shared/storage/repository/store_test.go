// Package repository SQLite 集成测试
//
// 使用 SQLite 内存数据库验证 repository 层所有存储接口的正确性。
// 无需外部数据库依赖，可在任何环境下运行。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage"
	"nayaschool/internal/shared/storage/dbutil"
	mysqldriver "nayaschool/internal/shared/storage/driver/mysql"
	postgresdriver "nayaschool/internal/shared/storage/driver/postgres"
	sqlitedriver "nayaschool/internal/shared/storage/driver/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore 创建用于测试的 SQLite 内存数据库 Store
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), dbutil.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var fixtureBase = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

func mustUser(t *testing.T, s *Store, n int, role model.UserRole) *model.User {
	t.Helper()
	at := fixtureBase.Add(time.Duration(n) * time.Minute)
	u := &model.User{
		ID:           fmt.Sprintf("usr-%03d", n),
		Name:         fmt.Sprintf("User %d", n),
		Email:        fmt.Sprintf("user%d@school.com", n),
		PasswordHash: "hash",
		Role:         role,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func mustModule(t *testing.T, s *Store, n int, maxStudents int, teacherID *string) *model.Module {
	t.Helper()
	at := fixtureBase.Add(time.Duration(n) * time.Minute)
	m := &model.Module{
		ID:          fmt.Sprintf("mod-%03d", n),
		Code:        fmt.Sprintf("CS%d01", n),
		Title:       fmt.Sprintf("Module %d", n),
		TeacherID:   teacherID,
		MaxStudents: maxStudents,
		IsAvailable: true,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	require.NoError(t, s.CreateModule(context.Background(), m))
	return m
}

func mustEnrol(t *testing.T, s *Store, user *model.User, module *model.Module) *model.Enrolment {
	t.Helper()
	now := time.Now().UTC()
	e := &model.Enrolment{
		ID:         "enr-" + user.ID + "-" + module.ID,
		UserID:     user.ID,
		ModuleID:   module.ID,
		EnrolledAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, s.CreateEnrolment(context.Background(), e))
	return e
}

// ============================================================================
// Dialect 基础测试
// ============================================================================

func TestDialectTypes(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, dbutil.DriverSQLite, d.DriverType())
	assert.Empty(t, d.LockClause())
	assert.False(t, d.IsUniqueViolation(errors.New("UNIQUE constraint failed")))
}

func TestRebind(t *testing.T) {
	d := sqlitedriver.NewDialect()
	assert.Equal(t, "SELECT * FROM t WHERE id = ? AND name = ?",
		d.Rebind("SELECT * FROM t WHERE id = $1 AND name = $2"))
	// 应去除 PG 类型转换
	assert.Equal(t, "UPDATE t SET role = ? WHERE id = ?",
		d.Rebind("UPDATE t SET role = $1::varchar WHERE id = $2"))
}

// ============================================================================
// User 测试
// ============================================================================

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := mustUser(t, s, 1, model.UserRoleStudent)

	got, err := s.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, model.UserRoleStudent, got.Role)

	missing, err := s.GetUserByID(ctx, "usr-missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// 邮箱唯一
	dup := *u
	dup.ID = "usr-other"
	err = s.CreateUser(ctx, &dup)
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	require.NoError(t, s.UpdateUserRole(ctx, u.ID, model.UserRoleOldStudent))
	got, err = s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserRoleOldStudent, got.Role)

	require.NoError(t, s.UpdateUserPassword(ctx, u.ID, "new-hash"))
	got, err = s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	assert.ErrorIs(t, s.UpdateUserRole(ctx, "usr-missing", model.UserRoleAdmin), storage.ErrNotFound)

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	assert.ErrorIs(t, s.DeleteUser(ctx, u.ID), storage.ErrNotFound)
}

func TestListUsersByRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustUser(t, s, 1, model.UserRoleAdmin)
	s1 := mustUser(t, s, 2, model.UserRoleStudent)
	s2 := mustUser(t, s, 3, model.UserRoleOldStudent)
	s3 := mustUser(t, s, 4, model.UserRoleStudent)
	mustUser(t, s, 5, model.UserRoleTeacher)

	roles := []model.UserRole{model.UserRoleStudent, model.UserRoleOldStudent}
	all, err := s.ListUsersByRole(ctx, roles, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{s1.ID, s2.ID, s3.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	limited, err := s.ListUsersByRole(ctx, roles, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	n, err := s.CountUsersByRole(ctx, roles)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	total, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
}

func TestListTeachersWithModuleCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t1 := mustUser(t, s, 1, model.UserRoleTeacher)
	t2 := mustUser(t, s, 2, model.UserRoleTeacher)
	mustModule(t, s, 1, 10, &t1.ID)
	mustModule(t, s, 2, 10, &t1.ID)

	teachers, err := s.ListTeachers(ctx)
	require.NoError(t, err)
	require.Len(t, teachers, 2)

	counts := map[string]int{}
	for _, tc := range teachers {
		counts[tc.ID] = tc.TeachingModulesCount
	}
	assert.Equal(t, 2, counts[t1.ID])
	assert.Equal(t, 0, counts[t2.ID])
}

// ============================================================================
// Module 测试
// ============================================================================

func TestModuleCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	teacher := mustUser(t, s, 1, model.UserRoleTeacher)
	m := mustModule(t, s, 1, 10, nil)

	got, err := s.GetModule(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.Code, got.Code)
	assert.True(t, got.IsAvailable)
	assert.Nil(t, got.TeacherID)
	assert.Nil(t, got.Description)

	byCode, err := s.GetModuleByCode(ctx, m.Code)
	require.NoError(t, err)
	require.NotNil(t, byCode)
	assert.Equal(t, m.ID, byCode.ID)

	// code 唯一
	dup := *m
	dup.ID = "mod-dup"
	assert.ErrorIs(t, s.CreateModule(ctx, &dup), storage.ErrDuplicate)

	require.NoError(t, s.SetModuleAvailability(ctx, m.ID, false))
	require.NoError(t, s.SetModuleTeacher(ctx, m.ID, &teacher.ID))
	got, err = s.GetModule(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAvailable)
	require.NotNil(t, got.TeacherID)
	assert.Equal(t, teacher.ID, *got.TeacherID)

	require.NoError(t, s.SetModuleTeacher(ctx, m.ID, nil))
	got, err = s.GetModule(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got.TeacherID)

	assert.ErrorIs(t, s.SetModuleAvailability(ctx, "mod-missing", true), storage.ErrNotFound)
}

func TestToggleModuleAvailability(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := mustModule(t, s, 1, 10, nil)

	got, err := s.ToggleModuleAvailability(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAvailable)

	got, err = s.ToggleModuleAvailability(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)

	_, err = s.ToggleModuleAvailability(ctx, "mod-missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestToggleModuleAvailabilityConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := mustModule(t, s, 1, 10, nil)

	// 偶数次翻转后应回到初始状态，不丢失任何一次
	const toggles = 10
	var wg sync.WaitGroup
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ToggleModuleAvailability(ctx, m.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetModule(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)
}

func TestTxIsolationPerDialect(t *testing.T) {
	// MySQL 必须 READ COMMITTED：加锁后的计数要看到其他事务刚提交的选课
	assert.Equal(t, sql.LevelReadCommitted, mysqldriver.NewDialect().TxIsolation())
	assert.Equal(t, sql.LevelDefault, postgresdriver.NewDialect().TxIsolation())
	assert.Equal(t, sql.LevelDefault, sqlitedriver.NewDialect().TxIsolation())
}

func TestListModulesPage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		mustModule(t, s, i, 10, nil)
	}

	page, total, err := s.ListModulesPage(ctx, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, page, 3)
	// 新建的在前
	assert.Equal(t, "mod-007", page[0].ID)
	assert.Equal(t, "mod-005", page[2].ID)

	last, _, err := s.ListModulesPage(ctx, 6, 3)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "mod-001", last[0].ID)
}

func TestDeleteTeacherUnassignsModules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	teacher := mustUser(t, s, 1, model.UserRoleTeacher)
	m1 := mustModule(t, s, 1, 10, &teacher.ID)
	m2 := mustModule(t, s, 2, 10, &teacher.ID)

	n, err := s.UnassignTeacherModules(ctx, teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, s.DeleteUser(ctx, teacher.ID))

	for _, id := range []string{m1.ID, m2.ID} {
		got, err := s.GetModule(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Nil(t, got.TeacherID)
	}
}

// ============================================================================
// Enrolment 测试
// ============================================================================

func TestEnrolmentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	student := mustUser(t, s, 1, model.UserRoleStudent)
	m := mustModule(t, s, 1, 10, nil)
	e := mustEnrol(t, s, student, m)

	// (user, module) 唯一
	dup := *e
	dup.ID = "enr-dup"
	assert.ErrorIs(t, s.CreateEnrolment(ctx, &dup), storage.ErrDuplicate)

	byPair, err := s.GetEnrolmentByPair(ctx, student.ID, m.ID)
	require.NoError(t, err)
	require.NotNil(t, byPair)
	assert.Equal(t, e.ID, byPair.ID)
	assert.True(t, byPair.IsActive())

	active, err := s.CountActiveEnrolments(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	at := time.Now().UTC()
	require.NoError(t, s.CompleteEnrolment(ctx, e.ID, model.EnrolmentResultPass, at, true))

	got, err := s.GetEnrolment(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Result)
	assert.Equal(t, model.EnrolmentResultPass, *got.Result)

	// 已完成后不再计入在读
	active, err = s.CountActiveStudents(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, active)

	// 仅在读可更新时返回冲突，允许覆盖时直接更新
	assert.ErrorIs(t, s.CompleteEnrolment(ctx, e.ID, model.EnrolmentResultFail, at, true), storage.ErrConflict)
	require.NoError(t, s.CompleteEnrolment(ctx, e.ID, model.EnrolmentResultFail, at, false))
	got, err = s.GetEnrolment(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EnrolmentResultFail, *got.Result)

	assert.ErrorIs(t, s.CompleteEnrolment(ctx, "enr-missing", model.EnrolmentResultPass, at, true), storage.ErrNotFound)

	require.NoError(t, s.DeleteEnrolment(ctx, e.ID))
	assert.ErrorIs(t, s.DeleteEnrolment(ctx, e.ID), storage.ErrNotFound)
}

func TestListAvailableModules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	student := mustUser(t, s, 1, model.UserRoleStudent)
	other := mustUser(t, s, 2, model.UserRoleStudent)

	open := mustModule(t, s, 1, 10, nil)
	full := mustModule(t, s, 2, 1, nil)
	archived := mustModule(t, s, 3, 10, nil)
	taken := mustModule(t, s, 4, 10, nil)
	completed := mustModule(t, s, 5, 10, nil)

	mustEnrol(t, s, other, full)
	require.NoError(t, s.SetModuleAvailability(ctx, archived.ID, false))
	mustEnrol(t, s, student, taken)
	done := mustEnrol(t, s, student, completed)
	require.NoError(t, s.CompleteEnrolment(ctx, done.ID, model.EnrolmentResultPass, time.Now().UTC(), true))

	available, err := s.ListAvailableModules(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, open.ID, available[0].ID)
	assert.Equal(t, 0, available[0].ActiveStudentsCount)

	// 对另一名学生：已选的 full 排除，其余开放模块都在，按 code 排序
	available, err = s.ListAvailableModules(ctx, other.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(available))
	for _, m := range available {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{open.ID, taken.ID, completed.ID}, ids)
	assert.Equal(t, 1, available[1].ActiveStudentsCount)
}

func TestEnrolmentViews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	student := mustUser(t, s, 1, model.UserRoleStudent)
	peer := mustUser(t, s, 2, model.UserRoleStudent)
	m1 := mustModule(t, s, 1, 10, nil)
	m2 := mustModule(t, s, 2, 10, nil)

	mustEnrol(t, s, student, m1)
	mustEnrol(t, s, peer, m1)
	done := mustEnrol(t, s, student, m2)
	require.NoError(t, s.CompleteEnrolment(ctx, done.ID, model.EnrolmentResultFail, time.Now().UTC(), true))

	current, err := s.ListStudentEnrolments(ctx, student.ID, true)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, m1.Code, current[0].Module.Code)

	history, err := s.ListStudentEnrolments(ctx, student.ID, false)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, m2.ID, history[0].Module.ID)
	assert.Equal(t, model.EnrolmentResultFail, *history[0].Result)

	roster, err := s.ListActiveStudents(ctx, m1.ID)
	require.NoError(t, err)
	assert.Len(t, roster, 2)

	all, err := s.ListModuleEnrolments(ctx, m2.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, student.ID, all[0].Student.ID)
	assert.False(t, all[0].IsActive())

	activeCounts, err := s.CountActiveStudentsByModule(ctx, []string{m1.ID, m2.ID})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{m1.ID: 2, m2.ID: 0}, activeCounts)

	totals, err := s.CountStudentsByModule(ctx, []string{m1.ID, m2.ID})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{m1.ID: 2, m2.ID: 1}, totals)
}

func TestDeleteUserCascadesEnrolments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	student := mustUser(t, s, 1, model.UserRoleStudent)
	m := mustModule(t, s, 1, 10, nil)
	e := mustEnrol(t, s, student, m)

	require.NoError(t, s.DeleteUser(ctx, student.ID))
	got, err := s.GetEnrolment(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// ============================================================================
// 事务测试
// ============================================================================

func TestWithTx(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	student := mustUser(t, s, 1, model.UserRoleStudent)
	m := mustModule(t, s, 1, 10, nil)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx storage.TxStore) error {
		locked, err := tx.LockModule(ctx, m.ID)
		require.NoError(t, err)
		require.NotNil(t, locked)
		mustEnrol(t, tx.(*Store), student, m)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// 回滚后记录不存在
	got, err := s.GetEnrolmentByPair(ctx, student.ID, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	err = s.WithTx(ctx, func(tx storage.TxStore) error {
		u, err := tx.LockUser(ctx, student.ID)
		require.NoError(t, err)
		require.NotNil(t, u)
		mustEnrol(t, tx.(*Store), student, m)
		return nil
	})
	require.NoError(t, err)

	got, err = s.GetEnrolmentByPair(ctx, student.ID, m.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
