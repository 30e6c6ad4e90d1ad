package repository

import (
	"context"
	"database/sql"
	"fmt"

	"nayaschool/internal/shared/storage/dbutil"
	mysqldriver "nayaschool/internal/shared/storage/driver/mysql"
	pgdriver "nayaschool/internal/shared/storage/driver/postgres"
	sqlitedriver "nayaschool/internal/shared/storage/driver/sqlite"
)

// Open 根据驱动类型打开数据库、执行 AutoMigrate 并返回 Store
func Open(ctx context.Context, driver dbutil.DriverType, dsn string) (*Store, error) {
	var (
		db      *sql.DB
		dialect dbutil.Dialect
		err     error
	)

	switch driver {
	case dbutil.DriverPostgres:
		db, err = pgdriver.Open(dsn)
		dialect = pgdriver.NewDialect()
	case dbutil.DriverSQLite:
		db, err = sqlitedriver.Open(dsn)
		dialect = sqlitedriver.NewDialect()
	case dbutil.DriverMySQL:
		db, err = mysqldriver.Open(dsn)
		dialect = mysqldriver.NewDialect()
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := dialect.AutoMigrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("auto migrate %s: %w", driver, err)
	}

	return NewStore(db, dialect), nil
}
