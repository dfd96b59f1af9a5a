package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig mirrors the environment variables WithEnv understands. Unset
// variables leave the current configuration untouched.
type envConfig struct {
	Port               string        `env:"PORT"`
	Environment        string        `env:"ENVIRONMENT"`
	DatabaseType       string        `env:"DATABASE_TYPE"`
	MongoURI           string        `env:"MONGO_URI"`
	MongoDatabase      string        `env:"MONGO_DATABASE"`
	AuditDatabaseURL   string        `env:"AUDIT_DATABASE_URL"`
	SiteCacheTTL       time.Duration `env:"SITE_CACHE_TTL"`
	DefaultLanguages   []string      `env:"DEFAULT_LANGUAGES" env-separator:","`
	CopyConcurrency    int           `env:"COPY_CONCURRENCY"`
	LogLevel           string        `env:"LOG_LEVEL"`
	EnableEventLogging string        `env:"ENABLE_EVENT_LOGGING"`
}

// WithEnv applies environment variable overrides.
//
//	PORT               - Server port (default: "8080")
//	ENVIRONMENT        - Runtime environment (default: "development")
//	DATABASE_TYPE      - "memory" (default) or "mongo"
//	MONGO_URI          - e.g. "mongodb://localhost:27017"; implies DATABASE_TYPE=mongo when that is unset
//	MONGO_DATABASE     - Database name (default: "simplecms")
//	AUDIT_DATABASE_URL - Postgres URL for the audit log, disabled when empty
//	SITE_CACHE_TTL     - e.g. "10m"
//	DEFAULT_LANGUAGES  - Comma separated, first one is the fallback (default: "en")
//	COPY_CONCURRENCY   - Parallel child copies (default: 4)
//	LOG_LEVEL          - debug, info, warn, error
//	ENABLE_EVENT_LOGGING - true/false (default: true)
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env envConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return env.apply(c)
	}
}

func (e envConfig) apply(c *ServerConfig) error {
	if e.Port != "" {
		c.Port = e.Port
	}
	if e.Environment != "" {
		c.Environment = e.Environment
	}
	if e.MongoURI != "" {
		c.MongoURI = e.MongoURI
		c.DatabaseType = DatabaseMongo
	}
	if e.DatabaseType != "" {
		c.DatabaseType = strings.ToLower(e.DatabaseType)
	}
	if e.MongoDatabase != "" {
		c.MongoDatabase = e.MongoDatabase
	}
	if e.AuditDatabaseURL != "" {
		c.AuditDatabaseURL = e.AuditDatabaseURL
	}
	if e.SiteCacheTTL > 0 {
		c.SiteCacheTTL = e.SiteCacheTTL
	}
	var langs []string
	for _, l := range e.DefaultLanguages {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	if len(langs) > 0 {
		c.DefaultLanguages = langs
	}
	if e.CopyConcurrency != 0 {
		c.CopyConcurrency = e.CopyConcurrency
	}
	if e.LogLevel != "" {
		c.LogLevel = strings.ToLower(e.LogLevel)
	}
	if e.EnableEventLogging != "" {
		enabled, err := strconv.ParseBool(e.EnableEventLogging)
		if err != nil {
			return fmt.Errorf("invalid ENABLE_EVENT_LOGGING %q: %w", e.EnableEventLogging, err)
		}
		c.EnableEventLogging = enabled
	}
	return nil
}
