package model

import (
	"time"
)

// MaxActiveEnrolments 每名学生同时在读模块数上限
const MaxActiveEnrolments = 4

// EnrolmentResult 选课结果
type EnrolmentResult string

const (
	EnrolmentResultPass EnrolmentResult = "pass"
	EnrolmentResultFail EnrolmentResult = "fail"
)

// ParseEnrolmentResult 解析结果字符串，只接受小写的 pass / fail，区分大小写
func ParseEnrolmentResult(s string) (EnrolmentResult, bool) {
	r := EnrolmentResult(s)
	return r, r.Valid()
}

// Valid 是否为合法结果
func (r EnrolmentResult) Valid() bool {
	return r == EnrolmentResultPass || r == EnrolmentResultFail
}

// EnrolmentState 选课状态：Active 为初始态，Completed 为终态
type EnrolmentState string

const (
	EnrolmentStateActive    EnrolmentState = "active"
	EnrolmentStateCompleted EnrolmentState = "completed"
)

// Enrolment 学生与模块的选课记录，(user_id, module_id) 唯一
type Enrolment struct {
	ID          string           `json:"id" db:"id"`
	UserID      string           `json:"user_id" db:"user_id"`
	ModuleID    string           `json:"module_id" db:"module_id"`
	EnrolledAt  time.Time        `json:"enrolled_at" db:"enrolled_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	Result      *EnrolmentResult `json:"result,omitempty" db:"result"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// IsActive completed_at 为空即在读
func (e *Enrolment) IsActive() bool {
	return e.CompletedAt == nil
}

// State 返回当前状态
func (e *Enrolment) State() EnrolmentState {
	if e.IsActive() {
		return EnrolmentStateActive
	}
	return EnrolmentStateCompleted
}

// StudentEnrolment 学生视图：选课记录 + 模块
type StudentEnrolment struct {
	Enrolment
	Module *Module `json:"module"`
}

// ModuleEnrolment 教师视图：选课记录 + 学生
type ModuleEnrolment struct {
	Enrolment
	Student *UserSummary `json:"student"`
}
