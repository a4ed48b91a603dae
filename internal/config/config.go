package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth (ゲートウェイの認証基盤)
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	RefreshSkew     time.Duration

	// Visitor (ブラウザ単位のアプリケーションコンテキスト)
	VisitorMaxAge      int
	VisitorIdleTimeout time.Duration
	MaxVisitors        int
	AuthLoadWait       time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitLogin   int

	// Logging
	LogLevel string

	// Cleanup
	CleanupInterval   time.Duration
	TokenRetention    time.Duration
	CartRetentionDays int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}

	// Optional fields with defaults
	cfg.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", time.Hour)
	cfg.RefreshTokenTTL = getEnvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	cfg.RefreshSkew = getEnvDuration("REFRESH_SKEW", time.Minute)
	cfg.VisitorMaxAge = getEnvInt("VISITOR_MAX_AGE", 7*86400)
	cfg.VisitorIdleTimeout = getEnvDuration("VISITOR_IDLE_TIMEOUT", 2*time.Hour)
	cfg.MaxVisitors = getEnvInt("MAX_VISITORS", 10000)
	cfg.AuthLoadWait = getEnvDuration("AUTH_LOAD_WAIT", 2*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.TokenRetention = getEnvDuration("TOKEN_RETENTION", 7*24*time.Hour)
	cfg.CartRetentionDays = getEnvInt("CART_RETENTION_DAYS", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は値同士の整合性を検証する。
// リフレッシュの前倒し幅がアクセストークンの寿命以上だと、毎リクエストでリフレッシュが走る。
func (c *Config) validate() error {
	var problems []string
	if c.RefreshSkew >= c.AccessTokenTTL {
		problems = append(problems, fmt.Sprintf("REFRESH_SKEW (%s) must be shorter than ACCESS_TOKEN_TTL (%s)", c.RefreshSkew, c.AccessTokenTTL))
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		problems = append(problems, fmt.Sprintf("REFRESH_TOKEN_TTL (%s) must be longer than ACCESS_TOKEN_TTL (%s)", c.RefreshTokenTTL, c.AccessTokenTTL))
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitLogin <= 0 {
		problems = append(problems, "RATE_LIMIT_GENERAL and RATE_LIMIT_LOGIN must be positive")
	}
	if c.MaxVisitors < 0 {
		problems = append(problems, "MAX_VISITORS must not be negative")
	}
	if c.CartRetentionDays < 1 {
		problems = append(problems, "CART_RETENTION_DAYS must be at least 1")
	}
	if c.CleanupInterval <= 0 {
		problems = append(problems, "CLEANUP_INTERVAL must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
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
