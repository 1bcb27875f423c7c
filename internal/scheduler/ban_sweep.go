// Package scheduler 运行 API 进程内的周期性维护任务
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

const (
	sweepResultOK      = "ok"
	sweepResultSkipped = "skipped"
	sweepResultError   = "error"
)

// BanLifter 解除到期封禁
type BanLifter interface {
	LiftExpiredBans(ctx context.Context, now time.Time, limit int) (int64, error)
}

// StartBanSweepLoop 周期解除到期封禁, 阻塞直到 ctx 结束.
// 登录时也会惰性解除, 这里只负责让列表与详情中的封禁状态及时归零.
func StartBanSweepLoop(ctx context.Context, cfg MaintenanceConfig, store BanLifter) {
	logger := slog.With("component", "scheduler", "loop", "ban_sweep")
	if !cfg.BanSweepEnabled {
		logger.Info("ban sweep 已禁用", "event", "ban_sweep_disabled")
		observeBanSweep(sweepResultSkipped, 0)
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(time.Duration(cfg.BanSweepIntervalSec) * time.Second)
	defer ticker.Stop()

	logger.Info("ban sweep 已启动",
		"event", "ban_sweep_started",
		"interval_sec", cfg.BanSweepIntervalSec,
		"batch_size", cfg.BanSweepBatchSize,
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runBanSweep(ctx, cfg, store, time.Now(), logger)
		}
	}
}

// runBanSweep 分批处理, 直到某一批不满 batch 或出错
func runBanSweep(ctx context.Context, cfg MaintenanceConfig, store BanLifter, now time.Time, logger *slog.Logger) int64 {
	var total int64
	for {
		n, err := store.LiftExpiredBans(ctx, now, cfg.BanSweepBatchSize)
		if err != nil {
			observeBanSweep(sweepResultError, total)
			logger.Error("ban sweep 执行失败", "event", "ban_sweep", "result", sweepResultError, "lifted", total, "error", err)
			return total
		}
		total += n
		if n < int64(cfg.BanSweepBatchSize) || ctx.Err() != nil {
			break
		}
	}
	observeBanSweep(sweepResultOK, total)
	if total > 0 {
		logger.Info("ban sweep 完成", "event", "ban_sweep", "result", sweepResultOK, "lifted", total)
	}
	return total
}
