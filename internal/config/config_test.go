package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might affect defaults
	for _, key := range []string{
		"DATABASE_URL", "HTTP_PORT", "LOG_LEVEL", "LEDGER_URL", "DEX_KONGSWAP_URL",
		"DEX_ICPSWAP_URL", "REMOTE_RETRY_MAX", "ADAPTER_TIMEOUT", "VAULT_ACCOUNT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.HTTPPort)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want INFO", cfg.LogLevel)
	}
	if cfg.RemoteRetryMax != 5 {
		t.Errorf("RemoteRetryMax = %d, want 5", cfg.RemoteRetryMax)
	}
	if cfg.RemoteRetryBaseDelay != 2*time.Second {
		t.Errorf("RemoteRetryBaseDelay = %v, want 2s", cfg.RemoteRetryBaseDelay)
	}
	if cfg.AdapterTimeout != 2*time.Minute {
		t.Errorf("AdapterTimeout = %v, want 2m", cfg.AdapterTimeout)
	}
	if cfg.VaultAccount != "vault" {
		t.Errorf("VaultAccount = %q, want vault", cfg.VaultAccount)
	}
	if !cfg.Sandbox() {
		t.Error("Sandbox() = false, want true without adapter URLs")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/testdb")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LEDGER_URL", "https://ledger.example.com")
	t.Setenv("DEX_KONGSWAP_URL", "https://kong.example.com")
	t.Setenv("DEX_ICPSWAP_URL", "https://icpswap.example.com")
	t.Setenv("REMOTE_RETRY_MAX", "10")
	t.Setenv("REBALANCE_INTERVAL", "30m")

	cfg := Load()

	if cfg.DatabaseURL != "postgres://localhost/testdb" {
		t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("HTTPPort = %q, want 9090", cfg.HTTPPort)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
	}
	if cfg.RemoteRetryMax != 10 {
		t.Errorf("RemoteRetryMax = %d, want 10", cfg.RemoteRetryMax)
	}
	if cfg.RebalanceInterval != 30*time.Minute {
		t.Errorf("RebalanceInterval = %v, want 30m", cfg.RebalanceInterval)
	}
	if cfg.Sandbox() {
		t.Error("Sandbox() = true, want false with adapter URLs")
	}
}

func TestLoadInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("REMOTE_RETRY_MAX", "not-a-number")
	t.Setenv("REMOTE_RETRY_BASE_DELAY", "invalid-duration")
	t.Setenv("LOG_LEVEL", "loud")

	cfg := Load()

	if cfg.RemoteRetryMax != 5 {
		t.Errorf("RemoteRetryMax = %d, want default 5 on invalid input", cfg.RemoteRetryMax)
	}
	if cfg.RemoteRetryBaseDelay != 2*time.Second {
		t.Errorf("RemoteRetryBaseDelay = %v, want default 2s on invalid input", cfg.RemoteRetryBaseDelay)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want default INFO on invalid input", cfg.LogLevel)
	}
}
