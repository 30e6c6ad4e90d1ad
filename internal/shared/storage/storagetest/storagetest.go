// Package storagetest 测试辅助：内存 SQLite 存储与常用数据构造
package storagetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"nayaschool/internal/shared/model"
	"nayaschool/internal/shared/storage/dbutil"
	"nayaschool/internal/shared/storage/repository"
)

// Password 测试账号统一密码
const Password = "password"

var (
	seq          atomic.Int64
	passwordHash = mustHash(Password)
)

func mustHash(pw string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}

// NewStore 创建内存 SQLite 存储，测试结束时关闭
func NewStore(t *testing.T) *repository.Store {
	t.Helper()
	store, err := repository.Open(context.Background(), dbutil.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// base 按序号递增的时间戳，保证创建顺序稳定
func base(n int64) time.Time {
	return time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Second)
}

// User 创建指定角色用户，邮箱为 <name>@school.com
func User(t *testing.T, s *repository.Store, name string, role model.UserRole) *model.User {
	t.Helper()
	n := seq.Add(1)
	u := &model.User{
		ID:           fmt.Sprintf("usr-t%05d", n),
		Name:         name,
		Email:        name + "@school.com",
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    base(n),
		UpdatedAt:    base(n),
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

// Module 创建开放模块
func Module(t *testing.T, s *repository.Store, code string, maxStudents int, teacherID *string) *model.Module {
	t.Helper()
	n := seq.Add(1)
	m := &model.Module{
		ID:          fmt.Sprintf("mod-t%05d", n),
		Code:        code,
		Title:       "Module " + code,
		TeacherID:   teacherID,
		MaxStudents: maxStudents,
		IsAvailable: true,
		CreatedAt:   base(n),
		UpdatedAt:   base(n),
	}
	require.NoError(t, s.CreateModule(context.Background(), m))
	return m
}

// Enrolment 直接写入选课记录；result 非空时记为已完成
func Enrolment(t *testing.T, s *repository.Store, userID, moduleID string, result *model.EnrolmentResult) *model.Enrolment {
	t.Helper()
	n := seq.Add(1)
	e := &model.Enrolment{
		ID:         fmt.Sprintf("enr-t%05d", n),
		UserID:     userID,
		ModuleID:   moduleID,
		EnrolledAt: base(n),
		CreatedAt:  base(n),
		UpdatedAt:  base(n),
	}
	if result != nil {
		at := base(n).Add(time.Hour)
		e.CompletedAt = &at
		e.Result = result
	}
	require.NoError(t, s.CreateEnrolment(context.Background(), e))
	return e
}

// Result 返回结果指针
func Result(r model.EnrolmentResult) *model.EnrolmentResult {
	return &r
}
