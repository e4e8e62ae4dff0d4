package container

import (
	"context"
	"fmt"
	"time"

	"stacingest/adapters/ingestapi"
	"stacingest/adapters/postgres"
	"stacingest/adapters/schemafetch"
	"stacingest/internal"
	"stacingest/internal/auth"
	"stacingest/internal/config"
	"stacingest/internal/extension"
	"stacingest/internal/migration"
	"stacingest/internal/session"
	"stacingest/internal/submission"
	"stacingest/internal/validation"
	"stacingest/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB *sqlx.DB

	// Repositories (data access layer)
	SessionRepo ports.SessionRepository

	// Collaborators
	SchemaFetcher ports.SchemaFetcher
	IngestAPI     *ingestapi.Client

	// Domain components
	Validator  *validation.Validator
	Resolver   *extension.Resolver
	Authorizer *auth.Authorizer
	Sessions   *session.Manager
}

// New creates a new dependency injection container. Sessions are kept in
// memory until InitWithDatabase attaches a repository.
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	logger := internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level))
	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	validator, err := validation.New(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load base schemas: %w", err)
	}
	c.Validator = validator

	c.SchemaFetcher = schemafetch.New(cfg.Extensions.FetchTimeout, logger)
	c.Resolver = extension.NewResolver(c.SchemaFetcher, extension.ResolverOptions{
		CacheSize:    cfg.Extensions.CacheSize,
		CacheTTL:     cfg.Extensions.CacheTTL,
		FetchTimeout: cfg.Extensions.FetchTimeout,
	}, logger)

	c.IngestAPI = ingestapi.New(cfg.Services.IngestAPIURL, cfg.Services.Timeout, logger)
	if cfg.Services.IngestAPIURL == "" {
		logger.Warn("[Container] ingest API URL is not configured; submissions and edit loading will fail")
	}

	c.Authorizer = auth.New(auth.Config{
		Disabled:    cfg.Auth.Disabled,
		TestTenants: cfg.Auth.TestTenants,
		TestScopes:  cfg.Auth.TestScopes,
	})
	if cfg.Auth.Disabled {
		logger.Warn("[Container] authorization is disabled; requests run as %s", auth.TestSubject)
	}

	c.initSessions()
	return c, nil
}

// OpenDatabase connects to the configured session store. It returns nil
// without error when no database URL is configured.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// InitWithDatabase initializes components that require database access
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	c.DB = db

	// Test database connection
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	if err := migration.NewRunner().Run(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	c.SessionRepo = postgres.NewSessionRepository(db)
	c.initSessions()

	c.Logger.Info("[Container] session store attached (%s)", db.DriverName())
	return nil
}

// Close releases infrastructure resources
func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

func (c *Container) initSessions() {
	c.Sessions = session.NewManager(session.ManagerConfig{
		Validator: c.Validator,
		Resolver:  c.Resolver,
		Submission: submission.Deps{
			PR:        c.IngestAPI,
			Retrieval: c.IngestAPI,
			COG:       c.IngestAPI,
			Logger:    c.Logger,
		},
		Repository: c.SessionRepo,
		Logger:     c.Logger,
	})
}
