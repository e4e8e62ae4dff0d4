package container

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stacingest/domain/ingest"
	"stacingest/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{Port: "8080", GinMode: "test"},
		Database:   config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"},
		Extensions: config.ExtensionsConfig{CacheSize: 8, CacheTTL: time.Minute},
		Auth:       config.AuthConfig{Disabled: true},
		Log:        config.LogConfig{Level: "ERROR"},
	}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestContainerWithSQLite(t *testing.T) {
	cfg := testConfig()
	c, err := New(cfg)
	require.NoError(t, err)
	assert.Nil(t, c.SessionRepo)

	ctx := context.Background()
	db, err := OpenDatabase(ctx, cfg.Database)
	require.NoError(t, err)
	require.NoError(t, c.InitWithDatabase(ctx, db))
	defer c.Close()
	require.NotNil(t, c.SessionRepo)

	s, err := c.Sessions.Create(ctx, ingest.Dataset, false, "tester")
	require.NoError(t, err)

	rec, err := c.SessionRepo.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, "tester", rec.Owner)
}

func TestOpenDatabaseWithoutURL(t *testing.T) {
	db, err := OpenDatabase(context.Background(), config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, db)
}
