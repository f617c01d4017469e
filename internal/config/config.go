package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL          string
	HTTPPort             string
	AdminAPIKey          string
	LogLevel             slog.Level
	LedgerURL            string
	KongSwapURL          string
	ICPSwapURL           string
	PoolStatsURL         string
	RemoteRetryMax       int
	RemoteRetryBaseDelay time.Duration
	AdapterTimeout       time.Duration
	RebalanceInterval    time.Duration
	MetricsInterval      time.Duration
	SnapshotInterval     time.Duration
	RebalanceProfile     string
	GoogleSheetsID       string
	GoogleCredentials    string
	VaultAccount         string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DatabaseURL:          envOrDefaultWarn("DATABASE_URL", ""),
		HTTPPort:             envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:          envOrDefault("ADMIN_API_KEY", ""),
		LogLevel:             envOrDefaultLevel("LOG_LEVEL", slog.LevelInfo),
		LedgerURL:            envOrDefault("LEDGER_URL", ""),
		KongSwapURL:          envOrDefault("DEX_KONGSWAP_URL", ""),
		ICPSwapURL:           envOrDefault("DEX_ICPSWAP_URL", ""),
		PoolStatsURL:         envOrDefault("POOL_STATS_URL", ""),
		RemoteRetryMax:       envOrDefaultInt("REMOTE_RETRY_MAX", 5),
		RemoteRetryBaseDelay: envOrDefaultDuration("REMOTE_RETRY_BASE_DELAY", 2*time.Second),
		AdapterTimeout:       envOrDefaultDuration("ADAPTER_TIMEOUT", 2*time.Minute),
		RebalanceInterval:    envOrDefaultDuration("REBALANCE_INTERVAL", 1*time.Hour),
		MetricsInterval:      envOrDefaultDuration("METRICS_INTERVAL", 15*time.Minute),
		SnapshotInterval:     envOrDefaultDuration("SNAPSHOT_INTERVAL", 24*time.Hour),
		RebalanceProfile:     envOrDefault("REBALANCE_PROFILE", ""),
		GoogleSheetsID:       envOrDefault("GOOGLE_SHEETS_ID", ""),
		GoogleCredentials:    envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
		VaultAccount:         envOrDefault("VAULT_ACCOUNT", "vault"),
	}
}

// Sandbox reports whether the ledger or DEX run in-process.
func (c Config) Sandbox() bool {
	return c.LedgerURL == "" || c.KongSwapURL == "" || c.ICPSwapURL == ""
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func envOrDefaultLevel(key string, defaultVal slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			slog.Warn("invalid log level env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return l
	}
	return defaultVal
}
