package model

import "time"

const (
	// DefaultMaxStudents 模块默认容量
	DefaultMaxStudents = 10
	// MinMaxStudents / MaxMaxStudents 管理员可设置的容量范围
	MinMaxStudents = 1
	MaxMaxStudents = 50
)

// Module 课程模块
type Module struct {
	ID          string    `json:"id" db:"id"`
	Code        string    `json:"code" db:"code"`
	Title       string    `json:"title" db:"title"`
	Description *string   `json:"description,omitempty" db:"description"`
	TeacherID   *string   `json:"teacher_id,omitempty" db:"teacher_id"`
	MaxStudents int       `json:"max_students" db:"max_students"`
	IsAvailable bool      `json:"is_available" db:"is_available"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// HasCapacity 给定在读人数时是否还有空位
func (m *Module) HasCapacity(active int) bool {
	return active < m.MaxStudents
}

// IsTaughtBy 模块是否由指定教师负责
func (m *Module) IsTaughtBy(userID string) bool {
	return m.TeacherID != nil && *m.TeacherID == userID
}

// ModuleSummary 模块及其在读人数（学生可选模块列表）
type ModuleSummary struct {
	Module
	ActiveStudentsCount int `json:"active_students_count"`
}

// ModuleDetail 管理员视图：模块 + 教师 + 在读学生
type ModuleDetail struct {
	Module
	Teacher             *UserSummary   `json:"teacher,omitempty"`
	ActiveStudents      []*UserSummary `json:"active_students"`
	ActiveStudentsCount int            `json:"active_students_count"`
}
