// Package config は環境変数ベースのアプリケーション設定を提供する。
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
	DatabaseURL string

	// Connector
	MLAccessToken    string
	MLBaseURL        string
	MagaluBaseURL    string
	OfferFeedURL     string // 空の場合はオファーフィードコネクタを登録しない
	ConnectorTimeout time.Duration
	ConnectorMaxSize int64
	ConnectorRate    float64 // req/sec
	ConnectorBurst   int

	// Monitor
	MonitorEnabled        bool
	MonitorInterval       time.Duration
	MonitorDedupeWindow   time.Duration
	MonitorMaxListings    int
	MonitorListingTimeout time.Duration

	// Research cache
	ResearchCacheTTL      time.Duration
	ResearchCacheCapacity int
	RedisURL              string // 空の場合はインプロセスキャッシュを使用

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// 監視ループ関連の数値設定は非正値を1に丸め、タイトループを防ぐ。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.MLAccessToken = getEnvString("ML_ACCESS_TOKEN", "")
	cfg.MLBaseURL = getEnvString("ML_BASE_URL", "https://api.mercadolibre.com")
	cfg.MagaluBaseURL = getEnvString("MAGALU_BASE_URL", "https://www.magazineluiza.com.br")
	cfg.OfferFeedURL = getEnvString("OFFER_FEED_URL", "")
	cfg.ConnectorTimeout = getEnvDuration("CONNECTOR_TIMEOUT", 30*time.Second)
	cfg.ConnectorMaxSize = getEnvInt64("CONNECTOR_MAX_SIZE", 5242880)
	cfg.ConnectorRate = getEnvFloat("CONNECTOR_RATE", 2.0)
	cfg.ConnectorBurst = getEnvInt("CONNECTOR_BURST", 5)

	cfg.MonitorEnabled = getEnvBool("MONITOR_ENABLED", true)
	cfg.MonitorInterval = time.Duration(clampPositive(getEnvInt("MONITOR_INTERVAL_MINUTES", 10))) * time.Minute
	cfg.MonitorDedupeWindow = time.Duration(clampPositive(getEnvInt("MONITOR_DEDUPE_HOURS", 6))) * time.Hour
	cfg.MonitorMaxListings = clampPositive(getEnvInt("MONITOR_MAX_LISTINGS_PER_CYCLE", 100))
	cfg.MonitorListingTimeout = getEnvDuration("MONITOR_LISTING_TIMEOUT", 45*time.Second)

	cfg.ResearchCacheTTL = getEnvDuration("RESEARCH_CACHE_TTL", 10*time.Minute)
	cfg.ResearchCacheCapacity = clampPositive(getEnvInt("RESEARCH_CACHE_CAPACITY", 200))
	cfg.RedisURL = getEnvString("REDIS_URL", "")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

// clampPositive は非正値を1に丸める。
// 0以下の設定値は「1を使う」と解釈する。
func clampPositive(v int) int {
	if v <= 0 {
		return 1
	}
	return v
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
