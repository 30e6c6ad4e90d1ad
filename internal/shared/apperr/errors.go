// Package apperr 业务错误分类
//
// 业务层只返回这里定义的错误（或包装它们），HTTP 层据此映射状态码：
//   - ErrModuleUnavailable / ErrEnrolmentLimitReached / *ValidationError → 422
//   - ErrForbidden → 403
//   - ErrNotFound → 404
//   - ErrAlreadyCompleted → 409
//   - ErrUnauthorized → 401
package apperr

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrModuleUnavailable 模块已关闭或已满
	ErrModuleUnavailable = errors.New("module is full or unavailable")

	// ErrEnrolmentLimitReached 学生在读模块数已达上限
	ErrEnrolmentLimitReached = errors.New("enrolment limit reached")

	// ErrForbidden 角色或归属校验失败
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound 模块/用户/选课记录不存在
	ErrNotFound = errors.New("not found")

	// ErrAlreadyCompleted 不允许重复登记成绩时，对已完成选课再次登记
	ErrAlreadyCompleted = errors.New("enrolment already completed")

	// ErrUnauthorized 未登录或凭证无效
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError 输入校验失败，Fields 为字段级错误信息
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError 创建单字段校验错误
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add 追加字段错误，同一字段只保留第一条
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// HasErrors 是否存在字段错误
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// OrNil 无字段错误时返回 nil，便于 return v.OrNil()
func (e *ValidationError) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
