package repository

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lingke-net/Space.Tab/pkg/common"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPoolSize     = 10
	defaultMinIdleConns = 3
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// RedisClient 封装 Redis 操作 (会话缓存 + 登录限流计数)
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient 创建 Redis 客户端, addr 可以是 host:port 或 redis:// URL
func NewRedisClient(addr string) *RedisClient {
	poolSize := getEnvInt("REDIS_POOL_SIZE", defaultPoolSize)
	minIdle := getEnvInt("REDIS_MIN_IDLE_CONNS", defaultMinIdleConns)
	dialTimeout := time.Duration(getEnvInt("REDIS_DIAL_TIMEOUT_MS", int(defaultDialTimeout/time.Millisecond))) * time.Millisecond
	readTimeout := time.Duration(getEnvInt("REDIS_READ_TIMEOUT_MS", int(defaultReadTimeout/time.Millisecond))) * time.Millisecond
	writeTimeout := time.Duration(getEnvInt("REDIS_WRITE_TIMEOUT_MS", int(defaultWriteTimeout/time.Millisecond))) * time.Millisecond

	opts := &redis.Options{
		Addr: addr,
		DB:   getEnvInt("REDIS_DB", 0),
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if parsed, err := redis.ParseURL(addr); err == nil {
			opts = parsed
		}
	}

	if opts.Password == "" {
		opts.Password = os.Getenv("REDIS_PASSWORD")
	}
	if opts.TLSConfig == nil {
		if strings.HasPrefix(addr, "rediss://") || getEnvBool("REDIS_TLS", false) {
			opts.TLSConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}
	}
	opts.PoolSize = poolSize
	opts.MinIdleConns = minIdle
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = readTimeout
	opts.WriteTimeout = writeTimeout

	return &RedisClient{client: redis.NewClient(opts)}
}

// Ping 测试连接
func (r *RedisClient) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis PING 失败: %w", err)
	}
	return nil
}

// Close 关闭连接
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Get 获取值, 键不存在时返回 common.ErrCacheMiss
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	result, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", common.ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("Redis GET %s 失败: %w", key, err)
	}
	return result, nil
}

// Set 设置值
func (r *RedisClient) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	if err := r.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return fmt.Errorf("Redis SET %s 失败: %w", key, err)
	}
	return nil
}

// SetIfExists 仅在键已存在时覆盖值, 保留原有 TTL (SET XX KEEPTTL)
func (r *RedisClient) SetIfExists(ctx context.Context, key, value string) (bool, error) {
	res, err := r.client.SetArgs(ctx, key, value, redis.SetArgs{Mode: "XX", KeepTTL: true}).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("Redis SET XX %s 失败: %w", key, err)
	}
	return res == "OK", nil
}

// Del 删除键
func (r *RedisClient) Del(ctx context.Context, keys ...string) error {
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("Redis DEL 失败: %w", err)
	}
	return nil
}

// Incr 自增
func (r *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	val, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("Redis INCR %s 失败: %w", key, err)
	}
	return val, nil
}

// Expire 设置过期时间
func (r *RedisClient) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	val, err := r.client.Expire(ctx, key, expiration).Result()
	if err != nil {
		return false, fmt.Errorf("Redis EXPIRE %s 失败: %w", key, err)
	}
	return val, nil
}
