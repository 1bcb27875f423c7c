/**
 * @file main.go
 * @brief Space.Tab API Server 入口
 *
 * 架构定位: I/O 密集层
 * 技术选型: Gin Framework + MySQL + Redis (+ 可选 MinIO)
 *
 * ===========================================================================
 * 启动顺序
 * ===========================================================================
 *
 * 1. 配置: .env (godotenv, 不覆盖) -> config.yaml -> 环境变量, 环境变量优先
 * 2. 存储: MySQL 连接池 (可选 goose 迁移), Redis 会话缓存与登录限流
 * 3. 可选组件:
 *    - MINIO_ENDPOINT 为空时关闭头像上传 (503)
 *    - CLIENT_PRIVATE_KEY_PATH 为空时客户端路由返回 500
 * 4. 鉴权: JWT (HS256) + Redis 会话 (user:<id>, 默认 72h)
 * 5. 后台维护: 周期解除到期封禁 (BAN_SWEEP_*)
 * 6. 优雅关闭: SIGINT/SIGTERM 后等待 API_SHUTDOWN_TIMEOUT_SEC
 */
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lingke-net/Space.Tab/internal/api"
	"github.com/lingke-net/Space.Tab/internal/appconfig"
	"github.com/lingke-net/Space.Tab/internal/auth"
	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/internal/release"
	"github.com/lingke-net/Space.Tab/internal/repository"
	"github.com/lingke-net/Space.Tab/internal/scheduler"
	"github.com/lingke-net/Space.Tab/internal/session"
	"github.com/lingke-net/Space.Tab/pkg/common"
	"github.com/lingke-net/Space.Tab/pkg/observability"
)

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func redisAddr() string {
	if v := os.Getenv("REDIS_URL"); v != "" {
		return v
	}
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(getEnvInt("REDIS_PORT", 6379)))
}

func main() {
	// .env 只补齐未设置的变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	cfg, cfgPath, err := appconfig.Load()
	if err != nil {
		observability.Fatal("Failed to load config", "path", cfgPath, "error", err)
	}
	if cfgPath != "" {
		observability.Info("Loaded config", "path", cfgPath)
	}
	cfg.ExportEnv()

	logger := observability.Logger().With(
		"service", os.Getenv("SERVICE_NAME"),
		"instance_id", os.Getenv("INSTANCE_ID"),
	)
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// =========================================================================
	// 1. 初始化 MySQL
	// =========================================================================
	ctx := context.Background()

	db, err := repository.NewMySQLDB(ctx, repository.MySQLConfigFromEnv())
	if err != nil {
		observability.Fatal("Failed to connect to MySQL", "error", err)
	}
	defer db.Close()
	slog.Info("Connected to MySQL")

	if getEnvBool("MYSQL_AUTO_MIGRATE", false) {
		if err := repository.Migrate(ctx, db.DB()); err != nil {
			observability.Fatal("Failed to migrate schema", "error", err)
		}
		slog.Info("Schema migrated")
	}

	// =========================================================================
	// 2. 初始化 Redis
	// =========================================================================
	redisClient := repository.NewRedisClient(redisAddr())
	if err := redisClient.Ping(ctx); err != nil {
		observability.Fatal("Failed to connect to Redis", "error", err)
	}
	defer redisClient.Close()
	slog.Info("Connected to Redis")

	// =========================================================================
	// 3. 可选组件: MinIO 头像存储 / 客户端私钥
	// =========================================================================
	deps := api.Deps{
		Users:     db,
		Servers:   db,
		Equipment: db,
		Mirrors:   db,
		Limiter:   redisClient,
		Latest: model.LatestVersion{
			Latest:      os.Getenv("LATEST_VERSION"),
			DownloadURL: os.Getenv("LATEST_DOWNLOAD_URL"),
		},
	}

	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		bucket := os.Getenv("MINIO_BUCKET")
		if bucket == "" {
			bucket = "space-tab-avatars"
		}
		minioClient, err := repository.NewMinIOClient(ctx, endpoint,
			os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"),
			bucket, os.Getenv("AVATAR_PUBLIC_BASE_URL"))
		if err != nil {
			observability.Fatal("Failed to connect to MinIO", "error", err)
		}
		deps.Avatars = minioClient
		slog.Info("Connected to MinIO", "bucket", bucket)
	} else {
		slog.Warn("MINIO_ENDPOINT not set, avatar upload disabled")
	}

	if keyPath := os.Getenv("CLIENT_PRIVATE_KEY_PATH"); keyPath != "" {
		key, err := auth.LoadPrivateKeyFile(keyPath)
		if err != nil {
			observability.Fatal("Failed to load client private key", "path", keyPath, "error", err)
		}
		window := time.Duration(getEnvInt("CLIENT_REPLAY_WINDOW_SEC", int(common.DefaultReplayWindow/time.Second))) * time.Second
		deps.Decrypter = auth.NewClientDecrypter(key, window)
	} else {
		slog.Warn("CLIENT_PRIVATE_KEY_PATH not set, client routes disabled")
	}

	// =========================================================================
	// 4. 鉴权 / 会话 / 镜像客户端
	// =========================================================================
	tokens, err := auth.NewTokenManager(os.Getenv("JWT_SECRET"),
		time.Duration(getEnvInt("JWT_EXPIRE_HOURS", int(common.DefaultSessionTTL/time.Hour)))*time.Hour)
	if err != nil {
		observability.Fatal("Failed to init token manager", "error", err)
	}
	deps.Tokens = tokens
	deps.Hasher = auth.NewHasher(getEnvInt("BCRYPT_COST", common.DefaultBcryptCost))
	deps.Sessions = session.NewStore(redisClient,
		time.Duration(getEnvInt("SESSION_TTL_HOURS", int(common.DefaultSessionTTL/time.Hour)))*time.Hour)
	deps.Releases = release.NewClient(os.Getenv("RELEASE_REPO"),
		time.Duration(getEnvInt("RELEASE_TIMEOUT_SEC", int(common.DefaultReleaseTimeout/time.Second)))*time.Second,
		release.WithToken(os.Getenv("RELEASE_GITHUB_TOKEN")))

	handler := api.NewHandler(deps)

	// =========================================================================
	// 5. 路由
	// =========================================================================
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(api.RequestIDMiddleware())
	r.Use(api.RecoveryMiddleware())
	r.Use(api.CORSMiddleware())
	r.Use(api.SecurityHeadersMiddleware())
	r.Use(api.AccessLogMiddleware())
	r.Use(api.MetricsMiddleware())
	api.RegisterRoutes(r, handler)

	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()
	go scheduler.StartBanSweepLoop(loopCtx, scheduler.LoadMaintenanceConfig(), db)

	var metricsSrv *http.Server
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		metricsSrv = observability.StartMetricsServer(addr)
	}

	// =========================================================================
	// 6. 优雅关闭 (Graceful Shutdown)
	// =========================================================================
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("API Server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Fatal("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	stopLoops()

	shutdownSec := getEnvInt("API_SHUTDOWN_TIMEOUT_SEC", 5)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(shutdownSec)*time.Second)
	defer cancel()

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server exited")
}
