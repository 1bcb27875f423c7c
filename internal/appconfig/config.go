package appconfig

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 对应 config.yaml; 所有值最终通过环境变量生效, 已设置的环境变量优先
type Config struct {
	API           APIConfig           `yaml:"api"`
	MySQL         MySQLConfig         `yaml:"mysql"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Client        ClientConfig        `yaml:"client"`
	Release       ReleaseConfig       `yaml:"release"`
	Avatar        AvatarConfig        `yaml:"avatar"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type APIConfig struct {
	Port               int      `yaml:"port"`
	GinMode            string   `yaml:"gin_mode"`
	ShutdownTimeoutSec int      `yaml:"shutdown_timeout_sec"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	MetricsToken       string   `yaml:"metrics_token"`
	MetricsAddr        string   `yaml:"metrics_addr"`
}

type MySQLConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	Database           string `yaml:"database"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMin int    `yaml:"conn_max_lifetime_min"`
	AutoMigrate        *bool  `yaml:"auto_migrate"`
}

type RedisConfig struct {
	URL            string `yaml:"url"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	PoolSize       int    `yaml:"pool_size"`
	MinIdleConns   int    `yaml:"min_idle_conns"`
	DialTimeoutMs  int    `yaml:"dial_timeout_ms"`
	ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
}

type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	JWTExpireHours  int    `yaml:"jwt_expire_hours"`
	SessionTTLHours int    `yaml:"session_ttl_hours"`
	BcryptCost      int    `yaml:"bcrypt_cost"`
}

type ClientConfig struct {
	PrivateKeyPath  string `yaml:"private_key_path"`
	ReplayWindowSec int    `yaml:"replay_window_sec"`
}

type ReleaseConfig struct {
	Repo              string `yaml:"repo"`
	TimeoutSec        int    `yaml:"timeout_sec"`
	GitHubToken       string `yaml:"github_token"`
	LatestVersion     string `yaml:"latest_version"`
	LatestDownloadURL string `yaml:"latest_download_url"`
}

type AvatarConfig struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Bucket        string `yaml:"bucket"`
	PublicBaseURL string `yaml:"public_base_url"`
	MaxBytes      int64  `yaml:"max_bytes"`
}

type RateLimitConfig struct {
	LoginLimit int `yaml:"login_limit"`
	WindowSec  int `yaml:"window_sec"`
}

type MaintenanceConfig struct {
	BanSweepEnabled     *bool `yaml:"ban_sweep_enabled"`
	BanSweepIntervalSec int   `yaml:"ban_sweep_interval_sec"`
	BanSweepBatchSize   int   `yaml:"ban_sweep_batch_size"`
}

type ObservabilityConfig struct {
	ServiceName string `yaml:"service_name"`
	InstanceID  string `yaml:"instance_id"`
	LogLevel    string `yaml:"log_level"`
}

func ResolveConfigPath() string {
	if v := os.Getenv("APP_CONFIG"); v != "" {
		return v
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	if _, err := os.Stat("/app/config.yaml"); err == nil {
		return "/app/config.yaml"
	}
	return ""
}

func Load() (*Config, string, error) {
	path := ResolveConfigPath()
	if path == "" {
		return &Config{}, "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, err
	}
	return &cfg, path, nil
}

// ExportEnv 把配置文件中的值写入尚未设置的环境变量
func (c *Config) ExportEnv() {
	if c == nil {
		return
	}
	SetEnvIfEmptyInt("PORT", c.API.Port)
	SetEnvIfEmpty("GIN_MODE", c.API.GinMode)
	SetEnvIfEmptyInt("API_SHUTDOWN_TIMEOUT_SEC", c.API.ShutdownTimeoutSec)
	SetEnvIfEmptySlice("CORS_ALLOWED_ORIGINS", c.API.CORSAllowedOrigins)
	SetEnvIfEmpty("METRICS_TOKEN", c.API.MetricsToken)
	SetEnvIfEmpty("METRICS_ADDR", c.API.MetricsAddr)

	SetEnvIfEmpty("MYSQL_HOST", c.MySQL.Host)
	SetEnvIfEmptyInt("MYSQL_PORT", c.MySQL.Port)
	SetEnvIfEmpty("MYSQL_USER", c.MySQL.User)
	SetEnvIfEmpty("MYSQL_PASSWORD", c.MySQL.Password)
	SetEnvIfEmpty("MYSQL_DATABASE", c.MySQL.Database)
	SetEnvIfEmptyInt("MYSQL_MAX_OPEN_CONNS", c.MySQL.MaxOpenConns)
	SetEnvIfEmptyInt("MYSQL_MAX_IDLE_CONNS", c.MySQL.MaxIdleConns)
	SetEnvIfEmptyInt("MYSQL_CONN_MAX_LIFETIME_MIN", c.MySQL.ConnMaxLifetimeMin)
	SetEnvIfEmptyBool("MYSQL_AUTO_MIGRATE", c.MySQL.AutoMigrate)

	SetEnvIfEmpty("REDIS_URL", c.Redis.URL)
	SetEnvIfEmpty("REDIS_HOST", c.Redis.Host)
	SetEnvIfEmptyInt("REDIS_PORT", c.Redis.Port)
	SetEnvIfEmpty("REDIS_PASSWORD", c.Redis.Password)
	SetEnvIfEmptyInt("REDIS_DB", c.Redis.DB)
	SetEnvIfEmptyInt("REDIS_POOL_SIZE", c.Redis.PoolSize)
	SetEnvIfEmptyInt("REDIS_MIN_IDLE_CONNS", c.Redis.MinIdleConns)
	SetEnvIfEmptyInt("REDIS_DIAL_TIMEOUT_MS", c.Redis.DialTimeoutMs)
	SetEnvIfEmptyInt("REDIS_READ_TIMEOUT_MS", c.Redis.ReadTimeoutMs)
	SetEnvIfEmptyInt("REDIS_WRITE_TIMEOUT_MS", c.Redis.WriteTimeoutMs)

	SetEnvIfEmpty("JWT_SECRET", c.Auth.JWTSecret)
	SetEnvIfEmptyInt("JWT_EXPIRE_HOURS", c.Auth.JWTExpireHours)
	SetEnvIfEmptyInt("SESSION_TTL_HOURS", c.Auth.SessionTTLHours)
	SetEnvIfEmptyInt("BCRYPT_COST", c.Auth.BcryptCost)

	SetEnvIfEmpty("CLIENT_PRIVATE_KEY_PATH", c.Client.PrivateKeyPath)
	SetEnvIfEmptyInt("CLIENT_REPLAY_WINDOW_SEC", c.Client.ReplayWindowSec)

	SetEnvIfEmpty("RELEASE_REPO", c.Release.Repo)
	SetEnvIfEmptyInt("RELEASE_TIMEOUT_SEC", c.Release.TimeoutSec)
	SetEnvIfEmpty("RELEASE_GITHUB_TOKEN", c.Release.GitHubToken)
	SetEnvIfEmpty("LATEST_VERSION", c.Release.LatestVersion)
	SetEnvIfEmpty("LATEST_DOWNLOAD_URL", c.Release.LatestDownloadURL)

	SetEnvIfEmpty("MINIO_ENDPOINT", c.Avatar.Endpoint)
	SetEnvIfEmpty("MINIO_ACCESS_KEY", c.Avatar.AccessKey)
	SetEnvIfEmpty("MINIO_SECRET_KEY", c.Avatar.SecretKey)
	SetEnvIfEmpty("MINIO_BUCKET", c.Avatar.Bucket)
	SetEnvIfEmpty("AVATAR_PUBLIC_BASE_URL", c.Avatar.PublicBaseURL)
	SetEnvIfEmptyInt64("AVATAR_MAX_BYTES", c.Avatar.MaxBytes)

	SetEnvIfEmptyInt("LOGIN_RATE_LIMIT", c.RateLimit.LoginLimit)
	SetEnvIfEmptyInt("RATE_LIMIT_WINDOW_SEC", c.RateLimit.WindowSec)

	SetEnvIfEmptyBool("BAN_SWEEP_ENABLED", c.Maintenance.BanSweepEnabled)
	SetEnvIfEmptyInt("BAN_SWEEP_INTERVAL_SEC", c.Maintenance.BanSweepIntervalSec)
	SetEnvIfEmptyInt("BAN_SWEEP_BATCH_SIZE", c.Maintenance.BanSweepBatchSize)

	SetEnvIfEmpty("SERVICE_NAME", c.Observability.ServiceName)
	SetEnvIfEmpty("INSTANCE_ID", c.Observability.InstanceID)
	SetEnvIfEmpty("LOG_LEVEL", c.Observability.LogLevel)
}

func SetEnvIfEmpty(key, value string) {
	if value == "" {
		return
	}
	if _, ok := os.LookupEnv(key); ok {
		return
	}
	_ = os.Setenv(key, value)
}

func SetEnvIfEmptyInt(key string, value int) {
	if value <= 0 {
		return
	}
	SetEnvIfEmpty(key, strconv.Itoa(value))
}

func SetEnvIfEmptyInt64(key string, value int64) {
	if value <= 0 {
		return
	}
	SetEnvIfEmpty(key, strconv.FormatInt(value, 10))
}

func SetEnvIfEmptyBool(key string, value *bool) {
	if value == nil {
		return
	}
	SetEnvIfEmpty(key, strconv.FormatBool(*value))
}

func SetEnvIfEmptySlice(key string, values []string) {
	if len(values) == 0 {
		return
	}
	SetEnvIfEmpty(key, strings.Join(values, ","))
}
