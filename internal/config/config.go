package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	FrontendURL        string

	// EncryptionSecret はアクセストークン暗号化用のAES-256鍵（64桁のhex）。
	EncryptionSecret string

	// Session
	SessionMaxAge int

	// Rate Limit
	RateLimitWindow      time.Duration
	RateLimitMaxRequests int
	RateLimitRetention   time.Duration
	TrustProxy           bool

	// Worker
	CleanupInterval time.Duration

	// Football API
	FootballAPIKey     string
	FootballAPIBaseURL string
	FootballAPIRate    int
	OutboundTimeout    time.Duration

	// Logging
	LogLevel string

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
// 必須環境変数が未設定の場合、または暗号化鍵の形式が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	required := []struct {
		key string
		dst *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"GOOGLE_CLIENT_ID", &cfg.GoogleClientID},
		{"GOOGLE_CLIENT_SECRET", &cfg.GoogleClientSecret},
		{"GOOGLE_REDIRECT_URL", &cfg.GoogleRedirectURL},
		{"ENCRYPTION_SECRET", &cfg.EncryptionSecret},
		{"BASE_URL", &cfg.BaseURL},
	}

	var missing []string
	for _, r := range required {
		*r.dst = os.Getenv(r.key)
		if *r.dst == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}

	if err := validateEncryptionSecret(cfg.EncryptionSecret); err != nil {
		return nil, err
	}

	// Optional fields with defaults
	cfg.FrontendURL = getEnvString("FRONTEND_URL", "http://localhost:4200/")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 600)
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second)
	cfg.RateLimitMaxRequests = getEnvInt("RATE_LIMIT_MAX_REQUESTS", 50)
	cfg.RateLimitRetention = getEnvDuration("RATE_LIMIT_RETENTION", 24*time.Hour)
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.FootballAPIKey = getEnvString("FOOTBALL_API_KEY", "")
	cfg.FootballAPIBaseURL = getEnvString("FOOTBALL_API_BASE_URL", "https://v3.football.api-sports.io")
	cfg.FootballAPIRate = getEnvInt("FOOTBALL_API_RATE", 5)
	cfg.OutboundTimeout = getEnvDuration("OUTBOUND_TIMEOUT", 10*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:4200")

	// 保持期間がウィンドウより短いと判定に必要な記録まで消してしまう
	if cfg.RateLimitRetention < cfg.RateLimitWindow {
		cfg.RateLimitRetention = cfg.RateLimitWindow
	}

	return cfg, nil
}

// validateEncryptionSecret は鍵が32バイトを表す64桁のhexであることを確認する。
func validateEncryptionSecret(secret string) error {
	if len(secret) != 64 {
		return fmt.Errorf("ENCRYPTION_SECRET must be 64 hex characters, got %d", len(secret))
	}
	if _, err := hex.DecodeString(secret); err != nil {
		return fmt.Errorf("ENCRYPTION_SECRET is not valid hex: %w", err)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	return getEnv(key, defaultVal, func(v string) (string, error) { return v, nil })
}

func getEnvInt(key string, defaultVal int) int {
	return getEnv(key, defaultVal, strconv.Atoi)
}

func getEnvBool(key string, defaultVal bool) bool {
	return getEnv(key, defaultVal, strconv.ParseBool)
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	return getEnv(key, defaultVal, time.ParseDuration)
}

// getEnv は環境変数をparseで変換して返す。未設定または変換できない場合はdefaultValを返す。
func getEnv[T any](key string, defaultVal T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parsed, err := parse(v)
	if err != nil {
		return defaultVal
	}
	return parsed
}
