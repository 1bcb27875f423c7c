package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/lingke-net/Space.Tab/pkg/common"
)

type rateLimitConfig struct {
	loginLimit int
	window     time.Duration
}

func getRateLimitConfig() rateLimitConfig {
	windowSec := getEnvInt("RATE_LIMIT_WINDOW_SEC", 60)
	return rateLimitConfig{
		loginLimit: getEnvInt("LOGIN_RATE_LIMIT", 10),
		window:     time.Duration(windowSec) * time.Second,
	}
}

// allowLogin 固定窗口限流, 按客户端 IP 计数
func (h *Handler) allowLogin(ctx context.Context, ip string) bool {
	if h.limiter == nil {
		return true
	}
	cfg := getRateLimitConfig()
	return h.consumeRateLimit(ctx, common.RateLimitKeyPrefix+ip, cfg.loginLimit, cfg.window)
}

func (h *Handler) consumeRateLimit(ctx context.Context, key string, limit int, window time.Duration) bool {
	count, err := h.limiter.Incr(ctx, key)
	if err != nil {
		slog.Error("RateLimit Redis Error", "error", err)
		return true // 降级: 放行
	}
	if count == 1 {
		if _, err := h.limiter.Expire(ctx, key, window); err != nil {
			slog.Warn("RateLimit expire failed", "key", key, "error", err)
		}
	}
	return count <= int64(limit)
}
