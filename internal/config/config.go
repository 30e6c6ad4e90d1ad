package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"nayaschool/internal/shared/storage/dbutil"
)

// 开发环境未配置 JWT_SECRET 时使用的密钥
const devJWTSecret = "nayaschool-dev-secret"

// ErrMissingJWTSecret 生产环境必须提供 JWT_SECRET
var ErrMissingJWTSecret = errors.New("JWT_SECRET must be set in production")

// configDir 由外部通过 SetConfigDir 指定，优先级最高
var configDir string

// envSearchDirs .env 文件搜索目录
var envSearchDirs = []string{".", ".."}

// SetConfigDir 设置配置文件目录（用于 --config 命令行参数）
func SetConfigDir(dir string) {
	configDir = dir
}

// defaults 代码内默认值
func defaults() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:    "data/nayaschool.db",
			Host:    "localhost",
			Port:    5432,
			User:    "nayaschool",
			Name:    "nayaschool",
			SSLMode: "disable",
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth: AuthConfig{
			AccessTokenTTL:    15 * time.Minute,
			RefreshTokenTTL:   7 * 24 * time.Hour,
			AllowRegistration: true,
			BcryptCost:        12,
		},
		School: SchoolConfig{
			MaxActiveEnrolments:   4,
			AllowRegrade:          true,
			ModulesPerPage:        3,
			DashboardStudentLimit: 9,
		},
		Log: defaultLog(),
	}
}

// Load 加载配置
//  1. 加载 .env / .env.{env}
//  2. 默认值 → common.yaml → {env}.yaml
//  3. 环境变量覆盖
func Load() (*Config, error) {
	env := parseEnv(os.Getenv("APP_ENV"))
	loadEnvFiles(env)
	// .env 中可能设置了 APP_ENV
	env = parseEnv(getEnv("APP_ENV", string(env)))

	yamlCfg, loadedFrom, err := loadYAMLConfig(env)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(yamlCfg)

	driver, err := dbutil.ParseDriverType(detectDatabaseDriver(yamlCfg.Database.Driver, os.Getenv("DATABASE_URL")))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:            env,
		Server:         yamlCfg.Server,
		DatabaseDriver: driver,
		DatabaseURL:    getEnv("DATABASE_URL", buildDatabaseURL(driver, yamlCfg.Database)),
		Auth:           yamlCfg.Auth,
		School:         yamlCfg.School,
		Log:            yamlCfg.Log,
		ConfigFilePath: loadedFrom,
	}
	if yamlCfg.Redis.Enabled {
		cfg.RedisURL = buildRedisURL(yamlCfg.Redis)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml，文件不存在时跳过
func loadYAMLConfig(env Environment) (*YAMLConfig, string, error) {
	cfg := defaults()
	loadedFrom := ""

	for _, name := range []string{"common.yaml", fmt.Sprintf("%s.yaml", env)} {
		path := findFile(effectiveConfigPaths(env), name)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("parse config %s: %w", path, err)
		}
		loadedFrom = path
	}
	return cfg, loadedFrom, nil
}

// applyEnvOverrides 环境变量覆盖 YAML 配置
func applyEnvOverrides(cfg *YAMLConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	cfg.Database.Password = os.Getenv("DB_PASSWORD")

	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		} else {
			log.Printf("[config] ignoring invalid REDIS_ENABLED=%q", v)
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")

	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.Auth.AdminEmail = os.Getenv("ADMIN_EMAIL")
	cfg.Auth.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate 校验并填充默认值
func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		if c.Env == EnvProduction {
			return ErrMissingJWTSecret
		}
		log.Printf("[config] JWT_SECRET not set, using development secret")
		c.Auth.JWTSecret = devJWTSecret
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	if c.School.MaxActiveEnrolments <= 0 {
		return fmt.Errorf("school.max_active_enrolments must be positive, got %d", c.School.MaxActiveEnrolments)
	}
	if c.School.ModulesPerPage <= 0 {
		c.School.ModulesPerPage = 3
	}
	if c.School.DashboardStudentLimit <= 0 {
		c.School.DashboardStudentLimit = 9
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	return nil
}

// effectiveConfigPaths 返回配置文件搜索路径
//
// 优先级：
//  1. --config 命令行参数（SetConfigDir）
//  2. CONFIG_DIR 环境变量
//  3. 按 APP_ENV 选择默认路径
func effectiveConfigPaths(env Environment) []string {
	if configDir != "" {
		return []string{configDir}
	}
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return []string{dir}
	}
	if env == EnvProduction {
		return []string{"/etc/nayaschool"}
	}
	return []string{"configs", "../configs"}
}

func findFile(dirs []string, name string) string {
	for _, dir := range dirs {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadEnvFiles 加载 .env 文件
//
// 生产环境不搜索 .env 文件（由 systemd EnvironmentFile 注入）。
// godotenv.Load 不覆盖已有环境变量，优先级低于 shell 环境变量。
func loadEnvFiles(env Environment) {
	if env == EnvProduction {
		return
	}
	for _, name := range []string{fmt.Sprintf(".env.%s", env), ".env"} {
		for _, dir := range envSearchDirs {
			if err := godotenv.Load(filepath.Join(dir, name)); err == nil {
				break
			}
		}
	}
}
