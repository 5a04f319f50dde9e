package dialect

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	_ "github.com/denisenkom/go-mssqldb" // registers "sqlserver"
	"github.com/jmoiron/sqlx"

	"github.com/coastline/wharf/internal/config"
)

// azureSuffix identifies Azure SQL servers, which require encrypted
// connections and SQL authentication.
const azureSuffix = ".database.windows.net"

func init() {
	Register(config.DialectMSSQL, func(cfg config.DB) (Adapter, error) {
		return &mssqlAdapter{cfg: cfg}, nil
	})
}

type mssqlAdapter struct {
	cfg config.DB
}

func (a *mssqlAdapter) Name() string       { return config.DialectMSSQL }
func (a *mssqlAdapter) DriverName() string { return "sqlserver" }

// IsAzure reports whether the configured server is an Azure SQL host.
func (a *mssqlAdapter) IsAzure() bool {
	return strings.Contains(strings.ToLower(a.cfg.Server), azureSuffix)
}

func (a *mssqlAdapter) DSN() (string, error) {
	if a.cfg.Server == "" {
		return "", fmt.Errorf("%w: mssql server is empty", ErrDialect)
	}
	port := a.cfg.Port
	if port == 0 {
		port = 1433
	}

	query := url.Values{}
	query.Add("database", a.cfg.Database)
	if a.cfg.ConnectionTimeout > 0 {
		query.Add("dial timeout", fmt.Sprintf("%d", int(a.cfg.ConnectionTimeout.Seconds())))
	}

	u := &url.URL{
		Scheme: "sqlserver",
		Host:   fmt.Sprintf("%s:%d", a.cfg.Server, port),
	}

	if a.IsAzure() {
		if a.cfg.Trusted {
			return "", fmt.Errorf("%w: azure sql does not support trusted connections; configure user and password", ErrDialect)
		}
		query.Set("encrypt", "true")
		query.Set("TrustServerCertificate", "false")
	}

	if !a.cfg.Trusted {
		u.User = url.UserPassword(a.cfg.User, a.cfg.Password)
	}

	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (a *mssqlAdapter) Open(ctx context.Context) (*sqlx.DB, error) {
	dsn, err := a.DSN()
	if err != nil {
		return nil, err
	}
	return openPool(ctx, a.DriverName(), dsn, a.cfg)
}

// Canonical-to-T-SQL rewrites, applied in order. The autoincrement
// phrase must convert before the bare INTEGER rule.
var mssqlRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)\bINTEGER PRIMARY KEY AUTOINCREMENT\b`), "INT IDENTITY(1,1) PRIMARY KEY"},
	{regexp.MustCompile(`(?i)\bAUTOINCREMENT\b`), "IDENTITY(1,1)"},
	{regexp.MustCompile(`(?i)\bINTEGER\b`), "INT"},
	// NVARCHAR(MAX) cannot be an index key; key columns get an indexable
	// width under the 900-byte cap.
	{regexp.MustCompile(`(?i)\bTEXT PRIMARY KEY\b`), "NVARCHAR(450) PRIMARY KEY"},
	{regexp.MustCompile(`(?i)\bTEXT\b`), "NVARCHAR(MAX)"},
	{regexp.MustCompile(`(?i)\bTIMESTAMP\b`), "DATETIME2"},
	{regexp.MustCompile(`(?i)\bREAL\b`), "FLOAT"},
	{regexp.MustCompile(`(?i)\bBOOL\b`), "BIT"},
	{regexp.MustCompile(`(?i)\bCURRENT_TIMESTAMP\b`), "GETDATE()"},
	{regexp.MustCompile(`(?i)julianday\('now'\)\s*-\s*julianday\((\w+)\)`), "DATEDIFF(day, $1, GETDATE())"},
	{regexp.MustCompile(`(?i)\bIF NOT EXISTS\b\s*`), ""},
	{regexp.MustCompile(`\|\|`), "+"},
}

func (a *mssqlAdapter) Normalize(ddl string) string {
	for _, r := range mssqlRules {
		ddl = r.re.ReplaceAllString(ddl, r.repl)
	}
	return ddl
}

func (a *mssqlAdapter) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (a *mssqlAdapter) ColumnsQuery(table string) (string, []any) {
	return "SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = @p1 ORDER BY ORDINAL_POSITION", []any{table}
}

// LimitClause uses OFFSET/FETCH, which requires an ORDER BY; callers
// without one get a constant ordering.
func (a *mssqlAdapter) LimitClause(limit, offset int) string {
	if limit < 0 && offset <= 0 {
		return ""
	}
	clause := fmt.Sprintf("ORDER BY (SELECT NULL) OFFSET %d ROWS", offset)
	if limit >= 0 {
		clause += fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", limit)
	}
	return clause
}
