package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"nayaschool/internal/shared/storage/dbutil"
	"nayaschool/pkg/logging"
)

var (
	urlPasswordRe   = regexp.MustCompile(`(://[^:/@]*:)([^@]+)(@)`)
	mysqlPasswordRe = regexp.MustCompile(`^([^:/@]+:)([^@]+)(@tcp\()`)
)

func defaultLog() logging.Config {
	return logging.Config{Level: "info", Format: "text", Output: "stdout"}
}

// buildDatabaseURL 根据驱动类型构建连接字符串
func buildDatabaseURL(driver dbutil.DriverType, db DatabaseConfig) string {
	switch driver {
	case dbutil.DriverPostgres:
		return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
			db.User, db.Password, net.JoinHostPort(db.Host, strconv.Itoa(db.Port)), db.Name, db.SSLMode)
	case dbutil.DriverMySQL:
		port := db.Port
		if port == 0 || port == 5432 {
			port = 3306
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true",
			db.User, db.Password, net.JoinHostPort(db.Host, strconv.Itoa(port)), db.Name)
	default: // sqlite
		path := db.Path
		if path == "" {
			path = "data/nayaschool.db"
		}
		return fmt.Sprintf("file:%s?cache=shared&mode=rwc", path)
	}
}

// detectDatabaseDriver 检测数据库驱动类型
// 优先级：显式 driver 字段 > DATABASE_URL 前缀 > 默认 sqlite
func detectDatabaseDriver(driver, databaseURL string) string {
	if d := strings.ToLower(strings.TrimSpace(driver)); d != "" {
		return d
	}
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return string(dbutil.DriverPostgres)
	case strings.Contains(databaseURL, "@tcp("):
		return string(dbutil.DriverMySQL)
	default:
		return string(dbutil.DriverSQLite)
	}
}

// buildRedisURL 构建 Redis 连接字符串，URL 字段非空时直接使用
func buildRedisURL(redis RedisConfig) string {
	if redis.URL != "" {
		return redis.URL
	}
	addr := net.JoinHostPort(redis.Host, strconv.Itoa(redis.Port))
	if redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s/%d", redis.Password, addr, redis.DB)
	}
	return fmt.Sprintf("redis://%s/%d", addr, redis.DB)
}

// maskPassword 隐藏连接串中的密码
func maskPassword(url string) string {
	url = urlPasswordRe.ReplaceAllString(url, "${1}***${3}")
	return mysqlPasswordRe.ReplaceAllString(url, "${1}***${3}")
}

// parseEnv 解析环境字符串
func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

// getEnv 获取环境变量，支持默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// IsProduction 是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	redis := "disabled"
	if c.RedisURL != "" {
		redis = maskPassword(c.RedisURL)
	}
	return fmt.Sprintf("Config{Env: %s, Port: %s, Driver: %s, DB: %s, Redis: %s, MaxActive: %d, AllowRegrade: %v}",
		c.Env, c.Server.Port, c.DatabaseDriver, maskPassword(c.DatabaseURL), redis,
		c.School.MaxActiveEnrolments, c.School.AllowRegrade)
}
