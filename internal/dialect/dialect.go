// Package dialect abstracts the four supported warehouse engines:
// SQLite, MS SQL/Azure SQL, PostgreSQL and MySQL. An Adapter builds the
// connection string, opens a pooled connection with dialect session
// setup applied, and translates canonical DDL into the engine's form.
//
// Canonical DDL is written in SQLite-flavored SQL; Normalize rewrites
// types, autoincrement, timestamp and function tokens per dialect.
package dialect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/coastline/wharf/internal/config"
)

// Sentinel errors for the adapter layer.
var (
	// ErrDialect wraps connect and session-setup failures.
	ErrDialect = errors.New("dialect error")
	// ErrUnsupportedFeature marks operations the active engine cannot do.
	ErrUnsupportedFeature = errors.New("unsupported feature")
)

// Adapter is one warehouse engine binding.
type Adapter interface {
	// Name is the configured dialect name (config.Dialect* values).
	Name() string
	// DriverName is the database/sql driver this adapter opens.
	DriverName() string
	// DSN builds the connection string from the resolved config.
	DSN() (string, error)
	// Open connects, applies session setup and verifies the connection.
	Open(ctx context.Context) (*sqlx.DB, error)
	// Normalize translates canonical DDL/SQL fragments to this dialect.
	Normalize(ddl string) string
	// QuoteIdent quotes a table or column identifier.
	QuoteIdent(name string) string
	// ColumnsQuery returns the introspection query for a table's
	// column names, in this dialect's placeholder style.
	ColumnsQuery(table string) (query string, args []any)
	// LimitClause renders pagination for this dialect. limit < 0 means
	// no limit.
	LimitClause(limit, offset int) string
}

// Factory builds an adapter from DB config.
type Factory func(cfg config.DB) (Adapter, error)

var registry = make(map[string]Factory)

// Register adds a dialect factory. Called from init() in each adapter
// file.
func Register(name string, f Factory) {
	registry[name] = f
}

// New returns the adapter for cfg.Dialect.
func New(cfg config.DB) (Adapter, error) {
	if f, ok := registry[cfg.Dialect]; ok {
		return f(cfg)
	}
	return nil, fmt.Errorf("%w: unknown dialect %q", ErrDialect, cfg.Dialect)
}

// openPool opens the driver, applies shared pool limits and pings with
// the configured timeout. Shared by all adapters.
func openPool(ctx context.Context, driver, dsn string, cfg config.DB) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrDialect, driver, err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxIdleTime(30 * time.Minute)

	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging %s: %v", ErrDialect, driver, err)
	}
	return db, nil
}
