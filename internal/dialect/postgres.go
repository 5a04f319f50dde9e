package dialect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/jmoiron/sqlx"

	"github.com/coastline/wharf/internal/config"
)

func init() {
	Register(config.DialectPostgres, func(cfg config.DB) (Adapter, error) {
		return &postgresAdapter{cfg: cfg}, nil
	})
}

type postgresAdapter struct {
	cfg config.DB
}

func (a *postgresAdapter) Name() string       { return config.DialectPostgres }
func (a *postgresAdapter) DriverName() string { return "pgx" }

func (a *postgresAdapter) DSN() (string, error) {
	if a.cfg.Host == "" {
		return "", fmt.Errorf("%w: postgres host is empty", ErrDialect)
	}
	port := a.cfg.Port
	if port == 0 {
		port = 5432
	}

	parts := []string{
		"host=" + a.cfg.Host,
		fmt.Sprintf("port=%d", port),
		"dbname=" + a.cfg.Database,
		"user=" + a.cfg.User,
	}
	if a.cfg.Password != "" {
		parts = append(parts, "password="+a.cfg.Password)
	}
	if a.cfg.ConnectionTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(a.cfg.ConnectionTimeout.Seconds())))
	}
	return strings.Join(parts, " "), nil
}

func (a *postgresAdapter) Open(ctx context.Context) (*sqlx.DB, error) {
	dsn, err := a.DSN()
	if err != nil {
		return nil, err
	}
	return openPool(ctx, a.DriverName(), dsn, a.cfg)
}

var postgresRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\bINTEGER PRIMARY KEY AUTOINCREMENT\b`), "SERIAL PRIMARY KEY"},
	{regexp.MustCompile(`(?i)\bAUTOINCREMENT\b`), "SERIAL"},
	{regexp.MustCompile(`(?i)\bTEXT\b`), "VARCHAR"},
	{regexp.MustCompile(`(?i)\bBOOL\b`), "BOOLEAN"},
	{regexp.MustCompile(`(?i)julianday\('now'\)\s*-\s*julianday\((\w+)\)`), "(CURRENT_DATE - $1::date)"},
}

// Normalize rewrites autoincrement and text tokens; TIMESTAMP, REAL
// and || are already valid PostgreSQL.
func (a *postgresAdapter) Normalize(ddl string) string {
	for _, r := range postgresRules {
		ddl = r.re.ReplaceAllString(ddl, r.repl)
	}
	return ddl
}

func (a *postgresAdapter) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (a *postgresAdapter) ColumnsQuery(table string) (string, []any) {
	return "SELECT column_name FROM information_schema.columns WHERE table_schema = 'public' AND table_name = $1 ORDER BY ordinal_position", []any{table}
}

func (a *postgresAdapter) LimitClause(limit, offset int) string {
	if limit < 0 {
		if offset > 0 {
			return fmt.Sprintf("OFFSET %d", offset)
		}
		return ""
	}
	if offset > 0 {
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	}
	return fmt.Sprintf("LIMIT %d", limit)
}
