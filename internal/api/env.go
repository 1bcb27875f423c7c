package api

import (
	"os"
	"strconv"
	"strings"
)

// getEnvInt64 读取正整数环境变量, 缺失或非法时返回 fallback
func getEnvInt64(key string, fallback int64) int64 {
	i, err := strconv.ParseInt(strings.TrimSpace(os.Getenv(key)), 10, 64)
	if err != nil || i <= 0 {
		return fallback
	}
	return i
}

func getEnvInt(key string, fallback int) int {
	return int(getEnvInt64(key, int64(fallback)))
}
