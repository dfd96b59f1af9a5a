package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-cms/pkg/simplecms"
	auditpg "github.com/tendant/simple-cms/pkg/simplecms/audit/postgres"
	"github.com/tendant/simple-cms/pkg/simplecms/cache"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	repomongo "github.com/tendant/simple-cms/pkg/simplecms/repo/mongo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Database types
const (
	DatabaseMemory = "memory"
	DatabaseMongo  = "mongo"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       DatabaseMemory,
		MongoDatabase:      "simplecms",
		SiteCacheTTL:       cache.DefaultTTL,
		DefaultLanguages:   []string{"en"},
		CopyConcurrency:    4,
		LogLevel:           "info",
		EnableEventLogging: true,
	}
}

// ServerConfig represents server configuration for the CMS service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseType  string // "memory", "mongo"
	MongoURI      string
	MongoDatabase string

	// AuditDatabaseURL enables the Postgres audit sink when set
	AuditDatabaseURL string

	// Content options
	SiteCacheTTL     time.Duration
	DefaultLanguages []string
	CopyConcurrency  int

	// Server options
	LogLevel           string
	EnableEventLogging bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required),
		validation.Field(&c.DatabaseType, validation.Required, validation.In(DatabaseMemory, DatabaseMongo)),
		validation.Field(&c.MongoURI, validation.When(c.DatabaseType == DatabaseMongo, validation.Required)),
		validation.Field(&c.MongoDatabase, validation.When(c.DatabaseType == DatabaseMongo, validation.Required)),
		validation.Field(&c.DefaultLanguages, validation.Required),
		validation.Field(&c.CopyConcurrency, validation.Min(1)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
}

// SlogLevel maps LogLevel onto a slog level. Development always logs debug.
func (c *ServerConfig) SlogLevel() slog.Level {
	if c.Environment == "development" {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Runtime is the assembled set of services plus the resources they hold.
type Runtime struct {
	Registry *simplecms.Registry
	Sites    *simplecms.SiteService

	closers []func(context.Context) error
}

// Close releases database connections in reverse order of acquisition.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// repositories builds the node and version repositories of one kind.
type repositories func(kind simplecms.Kind) (simplecms.ContentRepository, simplecms.VersionRepository)

// BuildRegistry creates one Service per content kind, the site service and
// the configured event sinks. observer may be nil.
func (c *ServerConfig) BuildRegistry(ctx context.Context, logger *slog.Logger, observer simplecms.FlowObserver) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{Registry: simplecms.NewRegistry()}

	repos, sites, err := c.buildRepositories(ctx, rt)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	sink, err := c.buildEventSink(ctx, rt, logger)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to build event sink: %w", err)
	}

	pages, pageVersions := repos(simplecms.KindPage)
	rt.Sites = simplecms.NewSiteService(sites,
		simplecms.WithSiteCache(cache.New(c.SiteCacheTTL)),
		simplecms.WithStartPages(pages),
		simplecms.WithDefaultLanguages(c.DefaultLanguages...),
		simplecms.WithSiteLogger(logger),
	)

	for _, kind := range simplecms.Kinds() {
		contents, versions := pages, pageVersions
		if kind != simplecms.KindPage {
			contents, versions = repos(kind)
		}
		svc, err := simplecms.New(kind,
			simplecms.WithContentRepository(contents),
			simplecms.WithVersionRepository(versions),
			simplecms.WithRegistry(rt.Registry),
			simplecms.WithSiteResolver(rt.Sites),
			simplecms.WithEventSink(sink),
			simplecms.WithFlowObserver(observer),
			simplecms.WithLogger(logger),
			simplecms.WithCopyConcurrency(c.CopyConcurrency),
		)
		if err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("failed to build %s service: %w", kind, err)
		}
		rt.Registry.Register(svc)
	}

	return rt, nil
}

func (c *ServerConfig) buildRepositories(ctx context.Context, rt *Runtime) (repositories, simplecms.SiteRepository, error) {
	switch c.DatabaseType {
	case DatabaseMemory:
		return func(simplecms.Kind) (simplecms.ContentRepository, simplecms.VersionRepository) {
			return memory.NewContentRepository(), memory.NewVersionRepository()
		}, memory.NewSiteRepository(), nil

	case DatabaseMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		rt.closers = append(rt.closers, client.Disconnect)
		if err := client.Ping(ctx, nil); err != nil {
			return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
		}

		db := client.Database(c.MongoDatabase)
		if err := repomongo.EnsureIndexes(ctx, db, simplecms.Kinds()...); err != nil {
			return nil, nil, err
		}
		return func(kind simplecms.Kind) (simplecms.ContentRepository, simplecms.VersionRepository) {
			return repomongo.NewContentRepository(db, kind), repomongo.NewVersionRepository(db, kind)
		}, repomongo.NewSiteRepository(db), nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) buildEventSink(ctx context.Context, rt *Runtime, logger *slog.Logger) (simplecms.EventSink, error) {
	var sinks simplecms.MultiEventSink
	if c.EnableEventLogging {
		sinks = append(sinks, simplecms.NewLoggingEventSink(logger))
	}

	if c.AuditDatabaseURL != "" {
		pool, err := pgxpool.New(ctx, c.AuditDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error {
			pool.Close()
			return nil
		})
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping audit database: %w", err)
		}
		audit := auditpg.NewWithPool(pool)
		if err := audit.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, audit)
	}

	if len(sinks) == 0 {
		return simplecms.NewNoopEventSink(), nil
	}
	return sinks, nil
}
