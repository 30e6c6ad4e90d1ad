// Package storage 定义存储层领域错误
//
// 这些错误用于隔离业务层与底层存储引擎的错误类型，
// 各驱动方言负责将底层错误（如唯一约束冲突）转换为这些领域错误。
package storage

import "errors"

var (
	// ErrNotFound 实体不存在（UPDATE/DELETE 未命中）
	ErrNotFound = errors.New("entity not found")

	// ErrConflict 状态冲突（如对已完成的选课再次登记成绩）
	ErrConflict = errors.New("conflict: entity state changed")

	// ErrDuplicate 唯一键冲突
	ErrDuplicate = errors.New("duplicate: entity already exists")
)
