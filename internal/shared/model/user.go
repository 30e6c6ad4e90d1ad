package model

import (
	"strings"
	"time"
)

// UserRole 用户角色（封闭枚举）
type UserRole string

const (
	UserRoleAdmin      UserRole = "admin"
	UserRoleTeacher    UserRole = "teacher"
	UserRoleStudent    UserRole = "student"
	UserRoleOldStudent UserRole = "old_student"
)

// AllUserRoles 全部合法角色
var AllUserRoles = []UserRole{UserRoleAdmin, UserRoleTeacher, UserRoleStudent, UserRoleOldStudent}

// ParseUserRole 解析角色字符串，兼容 "old-student" 写法
func ParseUserRole(s string) (UserRole, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "old-student" {
		s = string(UserRoleOldStudent)
	}
	r := UserRole(s)
	return r, r.Valid()
}

// Valid 是否为合法角色
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleTeacher, UserRoleStudent, UserRoleOldStudent:
		return true
	}
	return false
}

func (r UserRole) IsAdmin() bool      { return r == UserRoleAdmin }
func (r UserRole) IsTeacher() bool    { return r == UserRoleTeacher }
func (r UserRole) IsStudent() bool    { return r == UserRoleStudent }
func (r UserRole) IsOldStudent() bool { return r == UserRoleOldStudent }

// CanEnrol 只有在读学生可以选课，往届学生仅能查看历史
func (r UserRole) CanEnrol() bool {
	return r == UserRoleStudent
}

// CanViewHistory 在读或往届学生可查看选课历史
func (r UserRole) CanViewHistory() bool {
	return r == UserRoleStudent || r == UserRoleOldStudent
}

// User 用户
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // never expose in JSON
	Role         UserRole  `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Summary 返回用户摘要
func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// UserSummary 嵌入到其他视图中的用户摘要
type UserSummary struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}

// TeacherSummary 教师及其负责的模块数
type TeacherSummary struct {
	UserSummary
	TeachingModulesCount int `json:"teaching_modules_count"`
}
