// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在 repository/ 中，方言差异由 driver/ 屏蔽
//   - 初始化时通过依赖注入传入实现
//
// 查询约定：Get* 在记录不存在时返回 (nil, nil)；
// Update*/Delete* 在目标不存在时返回 ErrNotFound。
package storage

import (
	"context"
	"time"

	"nayaschool/internal/shared/model"
)

// UserStore 用户（角色注册表）存储
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	UpdateUserRole(ctx context.Context, id string, role model.UserRole) error
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int, error)
	// ListUsersByRole 按创建顺序列出指定角色用户，limit <= 0 表示不限
	ListUsersByRole(ctx context.Context, roles []model.UserRole, limit int) ([]*model.User, error)
	CountUsersByRole(ctx context.Context, roles []model.UserRole) (int, error)
	ListTeachers(ctx context.Context) ([]*model.TeacherSummary, error)
}

// ModuleStore 模块目录存储
type ModuleStore interface {
	CreateModule(ctx context.Context, module *model.Module) error
	GetModule(ctx context.Context, id string) (*model.Module, error)
	GetModuleByCode(ctx context.Context, code string) (*model.Module, error)
	// ListModulesPage 按创建时间倒序分页，返回当页模块和总数
	ListModulesPage(ctx context.Context, offset, limit int) ([]*model.Module, int, error)
	ListModulesByTeacher(ctx context.Context, teacherID string) ([]*model.Module, error)
	SetModuleAvailability(ctx context.Context, id string, available bool) error
	// ToggleModuleAvailability 原子翻转 is_available，模块不存在时返回 ErrNotFound
	ToggleModuleAvailability(ctx context.Context, id string) (*model.Module, error)
	SetModuleTeacher(ctx context.Context, id string, teacherID *string) error
	// UnassignTeacherModules 将教师负责的所有模块置为无教师，返回受影响数量
	UnassignTeacherModules(ctx context.Context, teacherID string) (int, error)
}

// EnrolmentStore 选课记录存储
type EnrolmentStore interface {
	CreateEnrolment(ctx context.Context, enrolment *model.Enrolment) error
	GetEnrolment(ctx context.Context, id string) (*model.Enrolment, error)
	GetEnrolmentByPair(ctx context.Context, userID, moduleID string) (*model.Enrolment, error)
	// CompleteEnrolment 同时写入 completed_at 与 result；
	// onlyActive 为 true 时仅更新在读记录，已完成则返回 ErrConflict
	CompleteEnrolment(ctx context.Context, id string, result model.EnrolmentResult, at time.Time, onlyActive bool) error
	DeleteEnrolment(ctx context.Context, id string) error

	CountActiveEnrolments(ctx context.Context, userID string) (int, error)
	CountActiveStudents(ctx context.Context, moduleID string) (int, error)
	// CountActiveStudentsByModule 批量统计在读人数，未出现的模块计为 0
	CountActiveStudentsByModule(ctx context.Context, moduleIDs []string) (map[string]int, error)
	CountStudentsByModule(ctx context.Context, moduleIDs []string) (map[string]int, error)

	// ListAvailableModules 可选模块：开放、未满、该用户从未选过，按 code 排序
	ListAvailableModules(ctx context.Context, userID string) ([]*model.ModuleSummary, error)
	ListActiveStudents(ctx context.Context, moduleID string) ([]*model.UserSummary, error)
	ListModuleEnrolments(ctx context.Context, moduleID string) ([]*model.ModuleEnrolment, error)
	// ListStudentEnrolments active 为 true 返回在读（按选课时间），否则返回已完成（按完成时间倒序）
	ListStudentEnrolments(ctx context.Context, userID string, active bool) ([]*model.StudentEnrolment, error)
}

// Locker 事务内行锁（PostgreSQL/MySQL 为 SELECT ... FOR UPDATE）
//
// 多行加锁顺序固定为先用户后模块，避免死锁。
type Locker interface {
	LockUser(ctx context.Context, id string) (*model.User, error)
	LockModule(ctx context.Context, id string) (*model.Module, error)
}

// TxStore 事务内可用的存储操作
type TxStore interface {
	UserStore
	ModuleStore
	EnrolmentStore
	Locker
}

// Transactor 事务执行器
// fn 返回错误时回滚，否则提交
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx TxStore) error) error
}

// PersistentStore 持久化存储聚合接口
type PersistentStore interface {
	UserStore
	ModuleStore
	EnrolmentStore
	Transactor

	Ping(ctx context.Context) error
	Close() error
}
