package scheduler

import (
	"os"
	"strconv"
	"strings"
)

const (
	defaultBanSweepEnabled     = true
	defaultBanSweepIntervalSec = 300
	defaultBanSweepBatchSize   = 500
)

type MaintenanceConfig struct {
	BanSweepEnabled     bool
	BanSweepIntervalSec int
	BanSweepBatchSize   int
}

func LoadMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		BanSweepEnabled:     envSwitch("BAN_SWEEP_ENABLED", defaultBanSweepEnabled),
		BanSweepIntervalSec: envPositive("BAN_SWEEP_INTERVAL_SEC", defaultBanSweepIntervalSec),
		BanSweepBatchSize:   envPositive("BAN_SWEEP_BATCH_SIZE", defaultBanSweepBatchSize),
	}
}

func envPositive(key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// envSwitch 除 strconv.ParseBool 的取值外还接受 on/off, yes/no
func envSwitch(key string, fallback bool) bool {
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv(key))); v {
	case "on", "yes":
		return true
	case "off", "no":
		return false
	default:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
}
