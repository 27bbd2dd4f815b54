package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	crmsync "github.com/goliatone/go-crm-sync"
	"github.com/goliatone/go-crm-sync/adapters/gologger"
	"github.com/goliatone/go-crm-sync/migrations"
	"github.com/goliatone/go-crm-sync/security"
	sqlstore "github.com/goliatone/go-crm-sync/store/sql"
)

type persistenceConfig struct {
	driver      string
	server      string
	debug       bool
	pingTimeout time.Duration
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return c.pingTimeout }
func (c persistenceConfig) GetOtelIdentifier() string     { return gologger.DefaultLoggerName }

type runtime struct {
	app     AppConfig
	client  *persistence.Client
	factory *sqlstore.RepositoryFactory
	service *crmsync.Service
	loggers *slogProvider
}

func (r *runtime) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func openPersistence(ctx context.Context, cfg DatabaseConfig) (*persistence.Client, error) {
	var (
		driverName string
		dialectKey string
		dialect    schema.Dialect
		dsn        = cfg.DSN
	)
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite3"
	}
	dialectKey = migrations.DialectForDriver(driver)
	switch dialectKey {
	case migrations.DialectSQLite:
		driverName, dialect = "sqlite3", sqlitedialect.New()
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + dsn + "?_foreign_keys=on&_busy_timeout=5000"
	case migrations.DialectPostgres:
		driverName, dialect = "postgres", pgdialect.New()
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driverName == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{
		driver:      driverName,
		server:      dsn,
		debug:       cfg.Debug,
		pingTimeout: cfg.PingTimeout,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	_, err = migrations.Register(ctx, func(_ context.Context, target string, _ string, fsys fs.FS) error {
		if target != dialectKey {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(dialectKey))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	return client, nil
}

// newRuntime opens the database and assembles the service. Migrations are
// registered but only applied by the migrate command or with autoMigrate.
func newRuntime(ctx context.Context, environ []string, autoMigrate bool) (*runtime, error) {
	app, err := loadAppConfig(ctx, environ)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	loggers := newLoggerProvider(os.Stderr, app.Debug)

	client, err := openPersistence(ctx, app.Database)
	if err != nil {
		return nil, err
	}
	rt := &runtime{app: app, client: client, loggers: loggers}
	if autoMigrate {
		if err := client.Migrate(ctx); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	factoryOpts := []sqlstore.FactoryOption{}
	if app.AppKey != "" {
		secrets, err := newSecretProvider(app)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("app key: %w", err)
		}
		factoryOpts = append(factoryOpts, sqlstore.WithSecretProvider(secrets))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("repository factory: %w", err)
	}
	rt.factory = factory

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = app.CacheTTL
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("person cache: %w", err)
	}
	persons, err := sqlstore.NewCachedPersonDirectory(factory.PersonDirectory(), cacheService)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	clients, err := crmsync.ProviderClients(app.Providers)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	// An empty runtime layer lets the environment override the defaults.
	svc, err := crmsync.NewService(crmsync.Config{},
		crmsync.WithLoggerProvider(loggers),
		crmsync.WithConfigProvider(crmsync.NewCfgxConfigProvider(serviceConfigLoader(environ))),
		crmsync.WithStoreProvider(factory),
		crmsync.WithPersonDirectory(persons),
		crmsync.WithProviderClients(clients...),
	)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("new service: %w", err)
	}
	rt.service = svc
	return rt, nil
}

// newSecretProvider seals tokens under the current app key. A previous key,
// when set, stays readable until its expiry so tokens are re-sealed as
// connections are written.
func newSecretProvider(app AppConfig) (security.SecretProvider, error) {
	version := app.AppKeyVersion
	if version <= 0 {
		version = 1
	}
	current, err := security.NewAppKeySecretProviderFromString(app.AppKey, security.WithVersion(version))
	if err != nil {
		return nil, err
	}
	if app.PreviousAppKey == "" {
		return current, nil
	}
	if version < 2 {
		return nil, fmt.Errorf("previous app key requires app_key_version >= 2")
	}
	previous, err := security.NewAppKeySecretProviderFromString(app.PreviousAppKey, security.WithVersion(version-1))
	if err != nil {
		return nil, fmt.Errorf("previous app key: %w", err)
	}
	window := security.KeyRotationWindow{}
	if app.PreviousAppKeyExpires != "" {
		expires, err := time.Parse(time.RFC3339, app.PreviousAppKeyExpires)
		if err != nil {
			return nil, fmt.Errorf("previous app key expiry: %w", err)
		}
		window.NotAfter = expires
	}
	ring, err := security.NewKeyRing(current)
	if err != nil {
		return nil, err
	}
	if err := ring.Retire(previous, window); err != nil {
		return nil, err
	}
	return ring, nil
}
