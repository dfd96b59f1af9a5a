package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithMemoryDatabase keeps every repository in process memory
func WithMemoryDatabase() Option {
	return func(c *ServerConfig) error {
		c.DatabaseType = DatabaseMemory
		c.MongoURI = ""
		return nil
	}
}

// WithMongo configures the MongoDB backend
func WithMongo(uri, database string) Option {
	return func(c *ServerConfig) error {
		if uri == "" {
			return fmt.Errorf("mongo URI is required")
		}
		c.DatabaseType = DatabaseMongo
		c.MongoURI = uri
		if database != "" {
			c.MongoDatabase = database
		}
		return nil
	}
}

// WithAuditDatabase enables the Postgres audit sink
func WithAuditDatabase(url string) Option {
	return func(c *ServerConfig) error {
		c.AuditDatabaseURL = url
		return nil
	}
}

// WithSiteCacheTTL sets how long site resolutions are cached
func WithSiteCacheTTL(ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if ttl <= 0 {
			return fmt.Errorf("site cache TTL must be positive, got: %s", ttl)
		}
		c.SiteCacheTTL = ttl
		return nil
	}
}

// WithDefaultLanguages sets the enabled languages, first one is the fallback
func WithDefaultLanguages(languages ...string) Option {
	return func(c *ServerConfig) error {
		if len(languages) == 0 {
			return fmt.Errorf("at least one language is required")
		}
		c.DefaultLanguages = append([]string(nil), languages...)
		return nil
	}
}

// WithCopyConcurrency bounds parallel child copies
func WithCopyConcurrency(n int) Option {
	return func(c *ServerConfig) error {
		if n < 1 {
			return fmt.Errorf("copy concurrency must be at least 1, got: %d", n)
		}
		c.CopyConcurrency = n
		return nil
	}
}

// WithLogLevel sets the log level (debug, info, warn, error)
func WithLogLevel(level string) Option {
	return func(c *ServerConfig) error {
		c.LogLevel = level
		return nil
	}
}

// WithEventLogging toggles the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
