// Package main API Server 入口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"nayaschool/api"
	"nayaschool/internal/apiserver/auth"
	"nayaschool/internal/apiserver/enrolment"
	"nayaschool/internal/apiserver/server"
	"nayaschool/internal/apiserver/setup"
	"nayaschool/internal/config"
	"nayaschool/internal/shared/infra"
	"nayaschool/internal/shared/storage/dbutil"
	"nayaschool/internal/shared/storage/repository"
	"nayaschool/pkg/logging"
)

func main() {
	seed := flag.Bool("seed", false, "populate an empty database with demo data")
	configDir := flag.String("config", "", "directory containing common.yaml and {env}.yaml")
	flag.Parse()

	if *configDir != "" {
		config.SetConfigDir(*configDir)
	}

	// 加载配置（.env → YAML → 环境变量）
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Log.Component = "api-server"
	logger := logging.New(cfg.Log)

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := api.LoadSpec(ctx); err != nil {
		log.Fatalf("Invalid OpenAPI document: %v", err)
	}

	// 打开数据库并迁移
	if cfg.DatabaseDriver == dbutil.DriverSQLite {
		if err := ensureSQLiteDir(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to prepare SQLite directory: %v", err)
		}
	}
	store, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open %s database: %v", cfg.DatabaseDriver, err)
	}
	log.Printf("Connected to %s", cfg.DatabaseDriver)

	authCfg := auth.Config{
		JWTSecret:         cfg.Auth.JWTSecret,
		AccessTokenTTL:    cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL:   cfg.Auth.RefreshTokenTTL,
		AllowRegistration: cfg.Auth.AllowRegistration,
		BcryptCost:        cfg.Auth.BcryptCost,
		AdminEmail:        cfg.Auth.AdminEmail,
		AdminPassword:     cfg.Auth.AdminPassword,
	}

	// 演示数据须在空库上执行，先于管理员初始化
	if *seed {
		if _, err := setup.Seed(ctx, store, authCfg); err != nil {
			store.Close()
			log.Fatalf("Failed to seed demo data: %v", err)
		}
	}
	if err := auth.EnsureAdminUser(ctx, store, authCfg); err != nil {
		store.Close()
		log.Fatalf("Failed to bootstrap admin user: %v", err)
	}

	inf, err := openInfra(store, cfg)
	if err != nil {
		store.Close()
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}
	defer inf.Close()

	h := server.NewHandler(inf, server.Options{
		Auth: authCfg,
		Policy: enrolment.Policy{
			MaxActiveEnrolments: cfg.School.MaxActiveEnrolments,
			AllowRegrade:        cfg.School.AllowRegrade,
		},
		ModulesPerPage: cfg.School.ModulesPerPage,
		StudentLimit:   cfg.School.DashboardStudentLimit,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		<-ctx.Done()

		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.Server.Port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Server error: %v", err)
		return
	}

	fmt.Println("Server stopped")
}

// openInfra 连接 Redis；未启用时使用进程内实现
// 非生产环境下 Redis 不可用时降级为进程内实现
func openInfra(store *repository.Store, cfg *config.Config) (*infra.Infrastructure, error) {
	if cfg.RedisURL == "" {
		log.Println("Redis disabled, using in-memory cache and event bus")
		return infra.NewMemoryInfrastructure(store), nil
	}

	inf, err := infra.New(store, cfg.RedisURL)
	if err == nil {
		log.Println("Connected to Redis")
		return inf, nil
	}
	if cfg.IsProduction() {
		return nil, err
	}
	log.Printf("WARNING: %v; falling back to in-memory cache and event bus", err)
	return infra.NewMemoryInfrastructure(store), nil
}

// ensureSQLiteDir 创建 SQLite 文件所在目录
func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0755)
}
