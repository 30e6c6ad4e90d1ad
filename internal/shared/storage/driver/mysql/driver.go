// Package mysql MySQL 数据库驱动
//
// 提供 MySQL 连接管理、方言实现和 Schema 迁移。要求 MySQL 8.0+（CHECK 约束生效）。
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nayaschool/internal/shared/storage/dbutil"

	"github.com/go-sql-driver/mysql"
)

// erDupEntry MySQL ER_DUP_ENTRY
const erDupEntry = 1062

// Dialect MySQL 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverMySQL
}

func (d *Dialect) Rebind(query string) string {
	return dbutil.StripPgCasts(dbutil.RebindToQuestion(query))
}

func (d *Dialect) LockClause() string {
	return "FOR UPDATE"
}

// TxIsolation InnoDB 默认 REPEATABLE READ 下，首次普通读即固定快照，
// 拿到模块行锁后的计数可能看不到刚提交的选课，这里改用 READ COMMITTED
func (d *Dialect) TxIsolation() sql.IsolationLevel {
	return sql.LevelReadCommitted
}

func (d *Dialect) IsUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == erDupEntry
}

func (d *Dialect) AutoMigrate(ctx context.Context, db *sql.DB) error {
	return dbutil.ExecScript(ctx, db, schema)
}

// Open 创建 MySQL 数据库连接
// dsn 示例: "user:pass@tcp(localhost:3306)/school"，parseTime 会被强制开启
func Open(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	// UPDATE 未改变值时也返回匹配行数，与 PostgreSQL/SQLite 行为一致
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	return db, nil
}

// NewDialect 创建 MySQL 方言
func NewDialect() *Dialect {
	return &Dialect{}
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    email VARCHAR(255) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL,
    role VARCHAR(32) NOT NULL DEFAULT 'student'
        CHECK (role IN ('admin', 'teacher', 'student', 'old_student')),
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    INDEX idx_users_role (role)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS modules (
    id VARCHAR(64) PRIMARY KEY,
    code VARCHAR(50) NOT NULL UNIQUE,
    title VARCHAR(255) NOT NULL,
    description TEXT,
    teacher_id VARCHAR(64),
    max_students INT NOT NULL DEFAULT 10 CHECK (max_students > 0),
    is_available BOOLEAN NOT NULL DEFAULT TRUE,
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    INDEX idx_modules_teacher (teacher_id),
    CONSTRAINT fk_modules_teacher FOREIGN KEY (teacher_id) REFERENCES users(id) ON DELETE SET NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

CREATE TABLE IF NOT EXISTS enrolments (
    id VARCHAR(64) PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    module_id VARCHAR(64) NOT NULL,
    enrolled_at DATETIME(6) NOT NULL,
    completed_at DATETIME(6) NULL,
    result VARCHAR(8) NULL CHECK (result IN ('pass', 'fail')),
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    UNIQUE KEY uq_enrolments_user_module (user_id, module_id),
    INDEX idx_enrolments_module_active (module_id, completed_at),
    INDEX idx_enrolments_user_active (user_id, completed_at),
    CONSTRAINT fk_enrolments_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
    CONSTRAINT fk_enrolments_module FOREIGN KEY (module_id) REFERENCES modules(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
`
