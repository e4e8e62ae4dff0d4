package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stacingest/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.GinMode)
	assert.Equal(t, 128, cfg.Extensions.CacheSize)
	assert.Equal(t, 15*time.Minute, cfg.Extensions.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.Services.Timeout)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.False(t, cfg.Auth.Disabled)
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": "9000", "gin_mode": "release"},
		"extensions": {"cache_size": 16},
		"log": {"level": "debug"}
	}`), 0o600))

	t.Setenv("STACINGEST_SERVER__PORT", "9100")
	t.Setenv("STACINGEST_AUTH__DISABLED", "true")
	t.Setenv("STACINGEST_AUTH__TEST_TENANTS", "veda,ghg")
	t.Setenv("STACINGEST_EXTENSIONS__CACHE_TTL", "2m")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.GinMode)
	assert.Equal(t, 16, cfg.Extensions.CacheSize)
	assert.Equal(t, 2*time.Minute, cfg.Extensions.CacheTTL)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
	assert.True(t, cfg.Auth.Disabled)
	assert.Equal(t, []string{"veda", "ghg"}, cfg.Auth.TestTenants)
}

func TestUnprefixedVariablesFeedDefaults(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://localhost/stac")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/stac", cfg.Database.URL)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad gin mode", map[string]string{"STACINGEST_SERVER__GIN_MODE": "chaos"}},
		{"non numeric port", map[string]string{"STACINGEST_SERVER__PORT": "eighty"}},
		{"bad ingest url", map[string]string{"STACINGEST_SERVICES__INGEST_API_URL": "not a url"}},
		{"bad driver", map[string]string{"STACINGEST_DATABASE__DRIVER": "mysql"}},
		{"test scopes without disabled auth", map[string]string{"STACINGEST_AUTH__TEST_SCOPES": "ingest:write"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile("")
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "extensions.cache_size", envTransform("STACINGEST_EXTENSIONS__CACHE_SIZE"))
	assert.Equal(t, "server.port", envTransform("STACINGEST_SERVER__PORT"))
}
