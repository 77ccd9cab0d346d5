package storage

import (
	"database/sql"
	"time"
)

// SQLConfig tunes the connection pool of a SQL store. Zero fields take the
// DefaultSQLConfig value. SQLite ignores the pool settings.
type SQLConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultSQLConfig returns the pool settings used for PostgreSQL.
func DefaultSQLConfig() *SQLConfig {
	return &SQLConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

func (c *SQLConfig) withDefaults() SQLConfig {
	def := *DefaultSQLConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.MaxOpenConns <= 0 {
		out.MaxOpenConns = def.MaxOpenConns
	}
	if out.MaxIdleConns <= 0 {
		out.MaxIdleConns = min(def.MaxIdleConns, out.MaxOpenConns)
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = def.ConnMaxLifetime
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = def.ConnMaxIdleTime
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = def.ConnectTimeout
	}
	return out
}

func (c SQLConfig) apply(db *sql.DB, dialect Dialect) {
	if dialect.sqlite() {
		// One long-lived connection: SQLite has a single writer, and a
		// ":memory:" database lives only as long as its connection.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
		return
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
}
