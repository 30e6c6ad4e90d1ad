// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（shell、systemd 或 .env 文件注入）
//  2. YAML 配置文件（{env}.yaml 覆盖 common.yaml）
//  3. 代码硬编码默认值
//
// 密码与密钥只从环境变量读取，YAML 中不存储任何凭据。
//
// 环境：
//   - 开发: APP_ENV=dev → configs/dev.yaml + .env.dev
//   - 测试: APP_ENV=test → configs/test.yaml + .env.test
//   - 生产: APP_ENV=prod → /etc/nayaschool/prod.yaml，凭据由 systemd 注入
package config

import (
	"time"

	"nayaschool/internal/shared/storage/dbutil"
	"nayaschool/pkg/logging"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	School   SchoolConfig   `yaml:"school"`
	Log      logging.Config `yaml:"log"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite", "postgres" 或 "mysql"（默认 sqlite）
	Path     string `yaml:"path"`   // SQLite 文件路径
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从 DB_PASSWORD 环境变量读取
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig Redis 配置，未启用时令牌吊销与事件总线使用进程内实现
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`   // 只从 REDIS_PASSWORD 环境变量读取
	URL      string `yaml:"url"` // 直接指定 URL，优先于 host/port/db
}

// AuthConfig 认证配置
// JWTSecret/AdminEmail/AdminPassword 只从环境变量读取
type AuthConfig struct {
	JWTSecret         string        `yaml:"-"`
	AccessTokenTTL    time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL   time.Duration `yaml:"refresh_token_ttl"`
	AllowRegistration bool          `yaml:"allow_registration"`
	BcryptCost        int           `yaml:"bcrypt_cost"`
	AdminEmail        string        `yaml:"-"`
	AdminPassword     string        `yaml:"-"`
}

// SchoolConfig 选课业务参数
type SchoolConfig struct {
	MaxActiveEnrolments   int  `yaml:"max_active_enrolments"`
	AllowRegrade          bool `yaml:"allow_regrade"`
	ModulesPerPage        int  `yaml:"modules_per_page"`
	DashboardStudentLimit int  `yaml:"dashboard_student_limit"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	Server         ServerConfig
	DatabaseDriver dbutil.DriverType
	DatabaseURL    string
	RedisURL       string // 为空表示未启用 Redis
	Auth           AuthConfig
	School         SchoolConfig
	Log            logging.Config
	ConfigFilePath string // 实际加载的 {env}.yaml 路径
}
