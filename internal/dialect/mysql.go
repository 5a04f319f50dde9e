package dialect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/coastline/wharf/internal/config"
)

func init() {
	Register(config.DialectMySQL, func(cfg config.DB) (Adapter, error) {
		return &mysqlAdapter{cfg: cfg}, nil
	})
}

type mysqlAdapter struct {
	cfg config.DB
}

func (a *mysqlAdapter) Name() string       { return config.DialectMySQL }
func (a *mysqlAdapter) DriverName() string { return "mysql" }

func (a *mysqlAdapter) DSN() (string, error) {
	if a.cfg.Host == "" {
		return "", fmt.Errorf("%w: mysql host is empty", ErrDialect)
	}
	port := a.cfg.Port
	if port == 0 {
		port = 3306
	}

	mc := gomysql.NewConfig()
	mc.User = a.cfg.User
	mc.Passwd = a.cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", a.cfg.Host, port)
	mc.DBName = a.cfg.Database
	if a.cfg.ConnectionTimeout > 0 {
		mc.Timeout = a.cfg.ConnectionTimeout
	}
	return mc.FormatDSN(), nil
}

func (a *mysqlAdapter) Open(ctx context.Context) (*sqlx.DB, error) {
	dsn, err := a.DSN()
	if err != nil {
		return nil, err
	}
	return openPool(ctx, a.DriverName(), dsn, a.cfg)
}

var mysqlRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\bAUTOINCREMENT\b`), "AUTO_INCREMENT"},
	{regexp.MustCompile(`(?i)\bTIMESTAMP\b`), "DATETIME"},
	// TEXT cannot be a key column without a prefix length.
	{regexp.MustCompile(`(?i)\bTEXT PRIMARY KEY\b`), "VARCHAR(255) PRIMARY KEY"},
	{regexp.MustCompile(`(?i)julianday\('now'\)\s*-\s*julianday\((\w+)\)`), "DATEDIFF(NOW(), $1)"},
}

// Normalize rewrites autoincrement and timestamp tokens; INTEGER
// PRIMARY KEY AUTO_INCREMENT and non-key TEXT are already valid MySQL.
func (a *mysqlAdapter) Normalize(ddl string) string {
	for _, r := range mysqlRules {
		ddl = r.re.ReplaceAllString(ddl, r.repl)
	}
	return ddl
}

func (a *mysqlAdapter) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (a *mysqlAdapter) ColumnsQuery(table string) (string, []any) {
	return "SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position", []any{table}
}

func (a *mysqlAdapter) LimitClause(limit, offset int) string {
	if limit < 0 {
		if offset > 0 {
			// MySQL has no bare OFFSET; use the documented huge limit.
			return fmt.Sprintf("LIMIT 18446744073709551615 OFFSET %d", offset)
		}
		return ""
	}
	if offset > 0 {
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	}
	return fmt.Sprintf("LIMIT %d", limit)
}
