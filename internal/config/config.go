package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL      string
	DBConnectTimeout time.Duration
	DBQueryTimeout   time.Duration
	DBMaxOpenConns   int
	DBMaxIdleConns   int

	// Presence
	PresenceWindow          time.Duration
	HeartbeatInterval       time.Duration
	PresenceRefreshInterval time.Duration
	SessionRetentionDays    int
	// MonitorUsername が設定されている場合、monitorプロセス自身のセッションを記録する
	MonitorUsername string

	// Engagement
	TrendingDays int

	// Users
	BcryptCost int

	// Server
	ServerPort   string
	HTTPMaxConns int

	// Rate Limit
	RateLimitGeneral int

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または値の組み合わせが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBConnectTimeout = getEnvDuration("DB_CONNECT_TIMEOUT", 5*time.Second)
	cfg.DBQueryTimeout = getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second)
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.PresenceWindow = getEnvDuration("PRESENCE_WINDOW", 45*time.Second)
	cfg.HeartbeatInterval = getEnvDuration("HEARTBEAT_INTERVAL", 15*time.Second)
	cfg.PresenceRefreshInterval = getEnvDuration("PRESENCE_REFRESH_INTERVAL", 10*time.Second)
	cfg.SessionRetentionDays = getEnvInt("SESSION_RETENTION_DAYS", 90)
	cfg.MonitorUsername = getEnvString("MONITOR_USERNAME", "")
	cfg.TrendingDays = getEnvInt("TRENDING_DAYS", 7)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 12)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.HTTPMaxConns = getEnvInt("HTTP_MAX_CONNS", 256)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate は設定値の整合性を検証する。
// ハートビート間隔がプレゼンスウィンドウ以上だと、正常なクライアントでもオフライン判定になる。
func (c *Config) validate() error {
	if c.PresenceWindow <= 0 {
		return fmt.Errorf("PRESENCE_WINDOW must be positive: %s", c.PresenceWindow)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive: %s", c.HeartbeatInterval)
	}
	if c.HeartbeatInterval >= c.PresenceWindow {
		return fmt.Errorf("HEARTBEAT_INTERVAL (%s) must be shorter than PRESENCE_WINDOW (%s)",
			c.HeartbeatInterval, c.PresenceWindow)
	}
	if c.DBQueryTimeout <= 0 || c.DBConnectTimeout <= 0 {
		return fmt.Errorf("database timeouts must be positive")
	}
	if c.SessionRetentionDays < 1 {
		return fmt.Errorf("SESSION_RETENTION_DAYS must be at least 1: %d", c.SessionRetentionDays)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
