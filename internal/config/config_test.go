package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "LEDGER_BACKEND", "DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"RESERVE_ACCOUNT", "TRANSACTION_FEE", "LEDGER_MAX_RETRIES", "LEDGER_RETRY_BACKOFF",
	"BCRYPT_COST", "LEGACY_STATUS", "ADMIN_JWT_SECRET", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"LOG_LEVEL", "EVENTS_ENABLED",
}

// clearEnv blanks every key for the test; getEnv treats empty as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.LedgerBackend)
	assert.Equal(t, "BANK", cfg.ReserveAccount)
	assert.Equal(t, int64(1), cfg.TransactionFee)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, cfg.RetryBackoff)
	assert.False(t, cfg.LegacyStatus)
	assert.False(t, cfg.EventsEnabled)
	assert.False(t, cfg.UsesRedis())
}

func TestEventsDefaultFollowsBackend(t *testing.T) {
	tests := []struct {
		backend string
		events  string
		want    bool
	}{
		{BackendMemory, "", false},
		{BackendMemory, "true", true},
		{BackendPostgres, "", true},
		{BackendRedis, "", true},
		{BackendRedis, "false", false},
	}
	for _, tt := range tests {
		t.Run(tt.backend+"/"+tt.events, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("LEDGER_BACKEND", tt.backend)
			t.Setenv("EVENTS_ENABLED", tt.events)

			cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.EventsEnabled)
			assert.Equal(t, tt.want || tt.backend == BackendRedis, cfg.UsesRedis())
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEDGER_BACKEND", "Postgres")
	t.Setenv("TRANSACTION_FEE", "3")
	t.Setenv("LEDGER_RETRY_BACKOFF", "25ms")
	t.Setenv("LEGACY_STATUS", "true")
	t.Setenv("EVENTS_ENABLED", "false")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.LedgerBackend)
	assert.Equal(t, int64(3), cfg.TransactionFee)
	assert.Equal(t, 25*time.Millisecond, cfg.RetryBackoff)
	assert.True(t, cfg.LegacyStatus)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.False(t, cfg.UsesRedis())
}

func TestLoadFromDotEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RESERVE_ACCOUNT=VAULT\nPORT=9000\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("RESERVE_ACCOUNT")
		os.Unsetenv("PORT")
	})

	// godotenv does not override variables that are already set, even empty.
	os.Unsetenv("RESERVE_ACCOUNT")
	os.Unsetenv("PORT")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "VAULT", cfg.ReserveAccount)
	assert.Equal(t, "9000", cfg.Port)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"LEDGER_BACKEND", "mongo"},
		{"TRANSACTION_FEE", "-1"},
		{"TRANSACTION_FEE", "one"},
		{"LEDGER_MAX_RETRIES", "-2"},
		{"LEDGER_RETRY_BACKOFF", "soon"},
		{"LEGACY_STATUS", "maybe"},
		{"LOG_LEVEL", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			assert.Error(t, err)
		})
	}
}
