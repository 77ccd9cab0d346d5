package collector

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/promptlens/internal/ratelimit"
)

const (
	DefaultListen            = ":8080"
	DefaultDriver            = DriverSQLite
	DefaultSQLiteDSN         = "promptlens.db"
	DefaultRetentionSchedule = "@daily"
	DefaultMaxBodyBytes      = 4 << 20
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DriverSQLiteCgo uses the cgo SQLite driver; it needs a cgo build.
	DriverSQLiteCgo = "sqlite3"
)

// Config configures the collector service.
type Config struct {
	Listen string      `yaml:"listen" json:"listen"`
	Store  StoreConfig `yaml:"store" json:"store"`

	// AuthKeys and JWTSecret enable bearer authentication when set.
	AuthKeys    []string      `yaml:"auth_keys" json:"auth_keys"`
	JWTSecret   string        `yaml:"jwt_secret" json:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry" json:"token_expiry"`

	// Retention prunes records older than this. Zero keeps everything.
	Retention         time.Duration `yaml:"retention" json:"retention"`
	RetentionSchedule string        `yaml:"retention_schedule" json:"retention_schedule"`

	MaxBodyBytes int64 `yaml:"max_body_bytes" json:"max_body_bytes"`

	// RateLimit applies per caller to the API routes. Zero disables it.
	RateLimit ratelimit.Config `yaml:"rate_limit" json:"rate_limit"`
}

// StoreConfig selects and tunes the metric store.
type StoreConfig struct {
	Driver          string        `yaml:"driver" json:"driver"`
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = DefaultListen
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultDriver
	}
	if (c.Store.Driver == DriverSQLite || c.Store.Driver == DriverSQLiteCgo) && strings.TrimSpace(c.Store.DSN) == "" {
		c.Store.DSN = DefaultSQLiteDSN
	}
	if c.Store.MaxOpenConns == 0 {
		c.Store.MaxOpenConns = 10
	}
	if c.Store.ConnMaxLifetime == 0 {
		c.Store.ConnMaxLifetime = 5 * time.Minute
	}
	if strings.TrimSpace(c.RetentionSchedule) == "" {
		c.RetentionSchedule = DefaultRetentionSchedule
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}

// Validate returns one issue string per problem found.
func (c Config) Validate() []string {
	var issues []string
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", DriverMemory, DriverSQLite, DriverSQLiteCgo:
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			issues = append(issues, "collector.store.dsn is required for the postgres driver")
		}
	default:
		issues = append(issues, fmt.Sprintf("collector.store.driver %q is not one of memory, sqlite, sqlite3, postgres", c.Store.Driver))
	}
	if c.Store.MaxOpenConns < 0 {
		issues = append(issues, "collector.store.max_open_conns must be >= 0")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.BurstSize < 0 {
		issues = append(issues, "collector.rate_limit values must be >= 0")
	}
	if c.TokenExpiry < 0 {
		issues = append(issues, "collector.token_expiry must be >= 0")
	}
	if c.Retention < 0 {
		issues = append(issues, "collector.retention must be >= 0")
	}
	if spec := strings.TrimSpace(c.RetentionSchedule); spec != "" {
		if _, err := retentionParser.Parse(spec); err != nil {
			issues = append(issues, fmt.Sprintf("collector.retention_schedule: %v", err))
		}
	}
	for i, key := range c.AuthKeys {
		if strings.TrimSpace(key) == "" {
			issues = append(issues, fmt.Sprintf("collector.auth_keys[%d] is empty", i))
		}
	}
	return issues
}
