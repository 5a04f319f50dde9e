package dialect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver" // registers "sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"  // embeds the sqlite wasm build
	"github.com/tetratelabs/wazero"

	"github.com/coastline/wharf/internal/config"
)

func init() {
	setupWASMCache()
	Register(config.DialectSQLite, func(cfg config.DB) (Adapter, error) {
		return &sqliteAdapter{cfg: cfg}, nil
	})
}

// setupWASMCache points go-sqlite3's wazero runtime at a persistent
// compilation cache so process start skips the wasm JIT when possible.
// Falls back to an in-memory cache when the cache dir is unavailable.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "wharf", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

// Per-connection session pragmas, applied via the URI so every pooled
// connection gets them. journal_mode is persistent and set once after
// open instead.
const sqliteSessionParams = "_pragma=foreign_keys(ON)" +
	"&_pragma=busy_timeout(30000)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=cache_size(10000)" +
	"&_pragma=temp_store(MEMORY)" +
	"&_time_format=sqlite"

type sqliteAdapter struct {
	cfg config.DB
}

func (a *sqliteAdapter) Name() string       { return config.DialectSQLite }
func (a *sqliteAdapter) DriverName() string { return "sqlite3" }

// DSN builds a file URI with the session pragmas baked in. In-memory
// databases use a shared cache so the pool sees one database.
func (a *sqliteAdapter) DSN() (string, error) {
	path := a.cfg.Path
	if path == "" {
		return "", fmt.Errorf("%w: sqlite path is empty", ErrDialect)
	}
	if path == ":memory:" {
		// WAL does not apply to in-memory databases.
		return "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&" + sqliteSessionParams, nil
	}
	if strings.HasPrefix(path, "file:") {
		if !strings.Contains(path, "_pragma=foreign_keys") {
			path += "&" + sqliteSessionParams
		}
		return path, nil
	}
	return "file:" + path + "?" + sqliteSessionParams, nil
}

func (a *sqliteAdapter) Open(ctx context.Context) (*sqlx.DB, error) {
	dsn, err := a.DSN()
	if err != nil {
		return nil, err
	}

	inMemory := a.cfg.Path == ":memory:" || strings.Contains(dsn, "mode=memory")
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(a.cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("%w: creating database directory: %v", ErrDialect, err)
		}
	}

	db, err := openPool(ctx, a.DriverName(), dsn, a.cfg)
	if err != nil {
		return nil, err
	}

	if inMemory {
		// In-memory databases are isolated per connection; force a
		// single connection so the pool sees one database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: enabling WAL mode: %v", ErrDialect, err)
		}
	}
	return db, nil
}

// Normalize is the identity: canonical DDL is already SQLite-flavored.
func (a *sqliteAdapter) Normalize(ddl string) string {
	return ddl
}

func (a *sqliteAdapter) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (a *sqliteAdapter) ColumnsQuery(table string) (string, []any) {
	return "SELECT name FROM pragma_table_info(?)", []any{table}
}

func (a *sqliteAdapter) LimitClause(limit, offset int) string {
	if limit < 0 {
		if offset > 0 {
			return fmt.Sprintf("LIMIT -1 OFFSET %d", offset)
		}
		return ""
	}
	if offset > 0 {
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	}
	return fmt.Sprintf("LIMIT %d", limit)
}
