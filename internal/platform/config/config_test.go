package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "")
	t.Setenv("ENVIRONMENT", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, devSigningKey, cfg.Auth.JWTSigningKey)
	assert.Equal(t, DefaultRegistryTimeout, cfg.Registry.Timeout)
	assert.Equal(t, DefaultAccessLogLimit, cfg.Ledger.DefaultLimit)
	assert.Equal(t, MaxAccessLogLimit, cfg.Ledger.MaxLimit)
	assert.Equal(t, DefaultTxTimeout, cfg.Consent.TxTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("HEALTHCONSENT_ADDR", ":9090")
	t.Setenv("REGISTRY_TIMEOUT", "2s")
	t.Setenv("ACCESS_LOG_DEFAULT_LIMIT", "50")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, 10.0.0.2 ,")
	t.Setenv("DATABASE_MIGRATE", "true")
	t.Setenv("SEED_DEMO_DATA", "1")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Registry.Timeout)
	assert.Equal(t, 50, cfg.Ledger.DefaultLimit)
	assert.True(t, cfg.Server.SeedDemoData)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Server.TrustedProxies)
	assert.True(t, cfg.Database.MigrateOnStart)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":       {"TOKEN_TTL", "soon"},
		"bad integer":        {"REDIS_POOL_SIZE", "many"},
		"limit above max":    {"ACCESS_LOG_DEFAULT_LIMIT", "5000"},
		"non-positive limit": {"ACCESS_LOG_DEFAULT_LIMIT", "0"},
		"zero timeout":       {"REGISTRY_TIMEOUT", "0s"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestProductionRequiresSigningKey(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SIGNING_KEY", "")

	_, err := FromEnv()
	assert.ErrorContains(t, err, "JWT_SIGNING_KEY")
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("REGISTRY_API_KEY=from-dotenv\n"), 0o600))
	t.Setenv("REGISTRY_API_KEY", "")
	require.NoError(t, os.Unsetenv("REGISTRY_API_KEY"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Registry.APIKey)

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)
}
