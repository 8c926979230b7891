package config

import "fmt"

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server   APIServerConfig    `yaml:"server"`
	Auth     APIAuthConfig      `yaml:"auth"`
	Database APIDatabaseConfig  `yaml:"database"`
	Indexing *APIIndexingConfig `yaml:"indexing,omitempty"`
}

// APIIndexingConfig configures the background indexing service that
// scans the results directory and maintains a queryable index in a
// database.
type APIIndexingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Interval    string `yaml:"interval,omitempty"`
	Concurrency int    `yaml:"concurrency,omitempty"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute,omitempty"`
}

// APIAuthConfig contains authentication settings.
type APIAuthConfig struct {
	AnonymousRead bool            `yaml:"anonymous_read"`
	Users         []BasicAuthUser `yaml:"users,omitempty"`
}

// BasicAuthUser defines a basic auth user from config.
type BasicAuthUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// APIDatabaseConfig contains database connection settings.
type APIDatabaseConfig struct {
	Driver   string               `yaml:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path"`
}

// ValidateAPI checks the API section for the settings the server
// cannot start without.
func (c *Config) ValidateAPI() error {
	if c.API == nil {
		return fmt.Errorf("api section is required")
	}

	if c.API.Server.Listen == "" {
		return fmt.Errorf("api: server listen address is required")
	}

	switch c.API.Database.Driver {
	case "sqlite":
		if c.API.Database.SQLite.Path == "" {
			return fmt.Errorf("api: sqlite path is required")
		}
	case "postgres":
		if c.API.Database.Postgres.Host == "" {
			return fmt.Errorf("api: postgres host is required")
		}
	default:
		return fmt.Errorf(
			"api: unsupported database driver %q", c.API.Database.Driver,
		)
	}

	if c.API.Server.RateLimit.Enabled &&
		c.API.Server.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("api: rate limit requests_per_minute must be positive")
	}

	if !c.API.Auth.AnonymousRead && len(c.API.Auth.Users) == 0 {
		return fmt.Errorf("api: at least one user is required unless anonymous_read is enabled")
	}

	for _, u := range c.API.Auth.Users {
		if u.Username == "" || u.Password == "" {
			return fmt.Errorf("api: users need both username and password")
		}
	}

	return nil
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`
}
