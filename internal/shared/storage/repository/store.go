// Package repository 数据库无关的存储实现
//
// 通过 dbutil.Dialect 接口屏蔽不同数据库的 SQL 差异，
// 所有 SQL 以 PostgreSQL 风格编写，运行时由 Dialect.Rebind() 转换。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nayaschool/internal/shared/storage"
	"nayaschool/internal/shared/storage/dbutil"
)

// dbtx *sql.DB 与 *sql.Tx 的公共子集
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store 通用存储实现
// 实现了 storage.PersistentStore 接口；事务内的 Store 只持有 tx
type Store struct {
	db      dbtx
	sqlDB   *sql.DB
	dialect dbutil.Dialect
}

var (
	_ storage.PersistentStore = (*Store)(nil)
	_ storage.TxStore         = (*Store)(nil)
)

// NewStore 创建通用存储
func NewStore(db *sql.DB, dialect dbutil.Dialect) *Store {
	return &Store{db: db, sqlDB: db, dialect: dialect}
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping 检查数据库连通性
func (s *Store) Ping(ctx context.Context) error {
	if s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.PingContext(ctx)
}

// DB 返回底层数据库连接（仅用于测试）
func (s *Store) DB() *sql.DB {
	return s.sqlDB
}

// Dialect 返回当前方言
func (s *Store) Dialect() dbutil.Dialect {
	return s.dialect
}

// WithTx 在单个事务中执行 fn
func (s *Store) WithTx(ctx context.Context, fn func(tx storage.TxStore) error) error {
	if s.sqlDB == nil {
		// 已在事务中，直接复用
		return fn(s)
	}

	tx, err := s.sqlDB.BeginTx(ctx, &sql.TxOptions{Isolation: s.dialect.TxIsolation()})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.translate(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// rebind 快捷方法：将 PG 风格 SQL 转换为当前方言
func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}

// lockClause 事务中追加的行锁子句
func (s *Store) lockClause() string {
	if s.sqlDB != nil {
		return ""
	}
	if c := s.dialect.LockClause(); c != "" {
		return " " + c
	}
	return ""
}

// translate 将驱动错误转换为存储层领域错误
func (s *Store) translate(err error) error {
	if err == nil {
		return nil
	}
	if s.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}
	return err
}

// expectAffected 检查 UPDATE/DELETE 是否命中记录
func expectAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// isNoRows sql.ErrNoRows 判断
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// scanner 兼容 *sql.Row 与 *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}
