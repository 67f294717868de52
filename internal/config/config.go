package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingCRMWebhookURL = errors.New("BITRIX24_WEBHOOK_URL is not set")

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	CRMWebhookURL string
	CRMTimeout    time.Duration

	ShopifyWebhookSecret string
	AcceptedCurrencies   []string
	MappingsFile         string
	AdminAPIToken        string

	LockPrefix      string
	LockTTL         time.Duration
	LockWaitTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBLogLevel        string
	DBSlowThreshold   time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:              getenv("APP_SERVICE", "orderlead"),
		AppVersion:           getenv("APP_VERSION", "0.1.0"),
		Environment:          getenv("ENVIRONMENT", "development"),
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		NodeID:               int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint:         getenv("OTLP_ENDPOINT", "localhost:4317"),
		CRMWebhookURL:        strings.TrimSpace(getenv("BITRIX24_WEBHOOK_URL", "")),
		CRMTimeout:           getenvDuration("BITRIX24_TIMEOUT", 15*time.Second),
		ShopifyWebhookSecret: strings.TrimSpace(getenv("SHOPIFY_WEBHOOK_SECRET", "")),
		AcceptedCurrencies:   parseList(getenv("ACCEPTED_CURRENCIES", "USD")),
		MappingsFile:         strings.TrimSpace(getenv("MAPPINGS_FILE", "")),
		AdminAPIToken:        strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		LockPrefix:           getenv("LOCK_PREFIX", "leadsync:lock:"),
		LockTTL:              getenvDuration("LOCK_TTL", 30*time.Second),
		LockWaitTimeout:      getenvDuration("LOCK_WAIT_TIMEOUT", 30*time.Second),
		RedisAddr:            strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:        getenv("REDIS_PASSWORD", ""),
		RedisDB:              getenvInt("REDIS_DB", 0),
		DBType:               strings.ToLower(strings.TrimSpace(getenv("DATABASE_TYPE", ""))),
		DBHost:               getenv("DATABASE_HOST", "localhost"),
		DBPort:               getenv("DATABASE_PORT", "5432"),
		DBName:               getenv("DATABASE_NAME", "orderlead"),
		DBUser:               getenv("DATABASE_USER", "postgres"),
		DBPassword:           getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:            getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:        getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:        getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime:    getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime:    getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBLogLevel:           strings.ToLower(getenv("DATABASE_LOG_LEVEL", "warn")),
		DBSlowThreshold:      getenvDuration("DATABASE_SLOW_THRESHOLD", 200*time.Millisecond),
	}
}

// Validate fails fast on configuration the service cannot run without.
func (c Config) Validate() error {
	if c.CRMWebhookURL == "" {
		return ErrMissingCRMWebhookURL
	}
	return nil
}

// DeliveryLogEnabled reports whether a database was configured.
func (c Config) DeliveryLogEnabled() bool {
	return c.DBType != ""
}

func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go durations ("15s") or a bare number of seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
