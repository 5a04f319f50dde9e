// Package warehouse loads cleaned rows into the relational warehouse
// through a dialect adapter. All identifiers are quoted and all values
// parameterized; cleaned cells arrive as strings and empty strings are
// bound as SQL NULL.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/coastline/wharf/internal/dialect"
	"github.com/coastline/wharf/internal/schema"
)

// ErrRepo wraps every failure surfaced by the repository.
var ErrRepo = errors.New("repository error")

// maxParams keeps multi-row inserts under the smallest placeholder
// limit across supported drivers (SQL Server caps at 2100).
const maxParams = 2000

// InsertResult summarizes one load operation.
type InsertResult struct {
	Inserted  int   `json:"inserted"`
	Updated   int   `json:"updated"`
	Skipped   int   `json:"skipped"`
	Total     int   `json:"total"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

// Warehouse is the load-and-query surface consumed by the worker, the
// host commands, and the telemetry decorator. Repository is the only
// real implementation.
type Warehouse interface {
	Adapter() dialect.Adapter
	Catalog() *schema.Catalog
	EnsureSchema(ctx context.Context) error
	Columns(ctx context.Context, table string) ([]string, error)
	InsertBatch(ctx context.Context, table string, columns []string, rows [][]string) (*InsertResult, error)
	UpsertByPrimaryKey(ctx context.Context, table string, columns []string, rows [][]string, pk string) (*InsertResult, error)
	Count(ctx context.Context, table string) (int64, error)
	GetAll(ctx context.Context, table string, limit, offset int) ([]map[string]any, error)
	GetByID(ctx context.Context, table, pkCol, id string) (map[string]any, error)
	Search(ctx context.Context, table, term string, cols []string, limit int) ([]map[string]any, error)
}

var _ Warehouse = (*Repository)(nil)

// Repository executes warehouse reads and writes for one open pool.
type Repository struct {
	db        *sqlx.DB
	adapter   dialect.Adapter
	catalog   *schema.Catalog
	batchSize int
}

// New wires a repository over an open pool. batchSize bounds the rows
// per INSERT statement; values <= 0 fall back to 1000.
func New(db *sqlx.DB, adapter dialect.Adapter, catalog *schema.Catalog, batchSize int) *Repository {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Repository{db: db, adapter: adapter, catalog: catalog, batchSize: batchSize}
}

// Adapter exposes the dialect adapter backing this repository.
func (r *Repository) Adapter() dialect.Adapter { return r.adapter }

// Catalog exposes the schema catalog backing this repository.
func (r *Repository) Catalog() *schema.Catalog { return r.catalog }

// DB exposes the underlying pool, mainly for health checks.
func (r *Repository) DB() *sqlx.DB { return r.db }

// EnsureSchema creates every cataloged table and its indexes where the
// table does not exist yet, normalized for the active dialect. The
// existence check runs per table because MS SQL DDL carries no
// IF NOT EXISTS guard after normalization. Tables that exist are left
// alone entirely; divergence from the catalog is drift's concern.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, table := range r.catalog.Tables() {
		cols, err := r.Columns(ctx, table)
		if err != nil {
			return err
		}
		if len(cols) > 0 {
			continue
		}
		ddl, err := r.catalog.CreateTableDDL(table)
		if err != nil {
			return fmt.Errorf("%w: failed to render DDL for %s: %w", ErrRepo, table, err)
		}
		if _, err := r.db.ExecContext(ctx, r.adapter.Normalize(ddl)); err != nil {
			return fmt.Errorf("%w: failed to create table %s: %w", ErrRepo, table, err)
		}
		for _, idx := range r.catalog.IndexDDLFor(table) {
			if _, err := r.db.ExecContext(ctx, r.adapter.Normalize(idx)); err != nil {
				return fmt.Errorf("%w: failed to create index on %s: %w", ErrRepo, table, err)
			}
		}
	}
	return nil
}

// Columns returns the live warehouse column names for table, in
// definition order and lowercased. A missing table yields an empty
// slice and no error.
func (r *Repository) Columns(ctx context.Context, table string) ([]string, error) {
	query, args := r.adapter.ColumnsQuery(strings.ToLower(table))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to introspect %s: %w", ErrRepo, table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: failed to scan column name: %w", ErrRepo, err)
		}
		cols = append(cols, strings.ToLower(name))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to introspect %s: %w", ErrRepo, table, err)
	}
	return cols, nil
}

// InsertBatch appends rows to table in chunked multi-row INSERT
// statements inside one transaction. columns is the cleaned file
// header; both audit columns are stamped with the load time.
func (r *Repository) InsertBatch(ctx context.Context, table string, columns []string, rows [][]string) (*InsertResult, error) {
	start := time.Now()
	if len(rows) == 0 {
		return &InsertResult{}, nil
	}
	cols, err := r.checkShape(table, columns, rows)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", ErrRepo, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := r.insertRows(ctx, tx, table, cols, rows, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit insert into %s: %w", ErrRepo, table, err)
	}
	return &InsertResult{
		Inserted:  len(rows),
		Total:     len(rows),
		ElapsedMS: time.Since(start).Milliseconds(),
	}, nil
}

// UpsertByPrimaryKey loads rows into table, updating rows whose key
// already exists and inserting the rest. Existing keys are prefetched
// with a single SELECT, new rows go in chunked bulk INSERTs, and
// existing rows are updated one by one through a prepared statement.
// Updates refresh etl_updated_at and leave etl_loaded_at untouched.
// Rows with an empty key, and repeated keys within the batch, are
// skipped.
func (r *Repository) UpsertByPrimaryKey(ctx context.Context, table string, columns []string, rows [][]string, pk string) (*InsertResult, error) {
	start := time.Now()
	if len(rows) == 0 {
		return &InsertResult{}, nil
	}
	cols, err := r.checkShape(table, columns, rows)
	if err != nil {
		return nil, err
	}

	pk = strings.ToLower(pk)
	pkIdx := -1
	for i, c := range cols {
		if c == pk {
			pkIdx = i
			break
		}
	}
	if pkIdx < 0 {
		return nil, fmt.Errorf("%w: primary key column %q not present in input for %s", ErrRepo, pk, table)
	}

	existing, err := r.fetchKeys(ctx, table, pk)
	if err != nil {
		return nil, err
	}

	var (
		inserts [][]string
		updates [][]string
		skipped int
		seen    = make(map[string]struct{}, len(rows))
	)
	for _, row := range rows {
		key := row[pkIdx]
		if key == "" {
			skipped++
			continue
		}
		if _, dup := seen[key]; dup {
			skipped++
			continue
		}
		seen[key] = struct{}{}
		if _, ok := existing[key]; ok {
			updates = append(updates, row)
		} else {
			inserts = append(inserts, row)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %w", ErrRepo, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if len(inserts) > 0 {
		if err := r.insertRows(ctx, tx, table, cols, inserts, now); err != nil {
			return nil, err
		}
	}
	if len(updates) > 0 {
		if err := r.updateRows(ctx, tx, table, cols, updates, pk, pkIdx, now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit upsert into %s: %w", ErrRepo, table, err)
	}
	return &InsertResult{
		Inserted:  len(inserts),
		Updated:   len(updates),
		Skipped:   skipped,
		Total:     len(rows),
		ElapsedMS: time.Since(start).Milliseconds(),
	}, nil
}

// Count returns the row count of table.
func (r *Repository) Count(ctx context.Context, table string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", r.quote(table))
	var n int64
	if err := r.db.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("%w: failed to count %s: %w", ErrRepo, table, err)
	}
	return n, nil
}

// GetAll returns a page of rows from table as column-keyed maps.
// limit < 0 means no limit.
func (r *Repository) GetAll(ctx context.Context, table string, limit, offset int) ([]map[string]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s", r.quote(table))
	if clause := r.adapter.LimitClause(limit, offset); clause != "" {
		query += " " + clause
	}
	out, err := r.queryMaps(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrRepo, table, err)
	}
	return out, nil
}

// GetByID returns the row of table whose pkCol equals id, or nil when
// no such row exists.
func (r *Repository) GetByID(ctx context.Context, table, pkCol, id string) (map[string]any, error) {
	query := r.db.Rebind(fmt.Sprintf(
		"SELECT * FROM %s WHERE %s = ?",
		r.quote(table), r.quote(pkCol),
	))
	out, err := r.queryMaps(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s by %s: %w", ErrRepo, table, pkCol, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// Search returns rows of table where any of cols contains term,
// case-insensitively.
func (r *Repository) Search(ctx context.Context, table, term string, cols []string, limit int) ([]map[string]any, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: search needs at least one column", ErrRepo)
	}
	conds := make([]string, len(cols))
	args := make([]any, len(cols))
	pattern := "%" + strings.ToLower(term) + "%"
	for i, c := range cols {
		conds[i] = fmt.Sprintf("LOWER(%s) LIKE ?", r.quote(c))
		args[i] = pattern
	}
	query := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s",
		r.quote(table), strings.Join(conds, " OR "),
	)
	if clause := r.adapter.LimitClause(limit, 0); clause != "" {
		query += " " + clause
	}
	out, err := r.queryMaps(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search %s: %w", ErrRepo, table, err)
	}
	return out, nil
}

// checkShape lowercases the header and verifies each row matches it.
func (r *Repository) checkShape(table string, columns []string, rows [][]string) ([]string, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no columns for %s", ErrRepo, table)
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = strings.ToLower(strings.TrimSpace(c))
	}
	for i, row := range rows {
		if len(row) != len(cols) {
			return nil, fmt.Errorf("%w: row %d has %d cells, header has %d columns", ErrRepo, i, len(row), len(cols))
		}
	}
	return cols, nil
}

// insertRows issues chunked multi-row INSERTs, stamping both audit
// columns with now.
func (r *Repository) insertRows(ctx context.Context, tx *sqlx.Tx, table string, cols []string, rows [][]string, now time.Time) error {
	quoted := make([]string, 0, len(cols)+len(schema.AuditColumns))
	for _, c := range cols {
		quoted = append(quoted, r.quote(c))
	}
	for _, c := range schema.AuditColumns {
		quoted = append(quoted, r.quote(c))
	}
	width := len(quoted)

	perChunk := r.batchSize
	if byParams := maxParams / width; byParams < perChunk {
		perChunk = byParams
	}
	if perChunk < 1 {
		perChunk = 1
	}

	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?,", width), ",") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", r.quote(table), strings.Join(quoted, ", "))

	for len(rows) > 0 {
		chunk := rows
		if len(chunk) > perChunk {
			chunk = rows[:perChunk]
		}
		rows = rows[len(chunk):]

		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*width)
		for i, row := range chunk {
			placeholders[i] = rowPlaceholder
			for _, cell := range row {
				args = append(args, bindCell(cell))
			}
			args = append(args, now, now)
		}
		query := r.db.Rebind(prefix + strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%w: failed to insert into %s: %w", ErrRepo, table, err)
		}
	}
	return nil
}

// updateRows rewrites existing rows one by one through a prepared
// statement, refreshing etl_updated_at only.
func (r *Repository) updateRows(ctx context.Context, tx *sqlx.Tx, table string, cols []string, rows [][]string, pk string, pkIdx int, now time.Time) error {
	sets := make([]string, 0, len(cols))
	for i, c := range cols {
		if i == pkIdx {
			continue
		}
		sets = append(sets, r.quote(c)+" = ?")
	}
	sets = append(sets, r.quote("etl_updated_at")+" = ?")

	query := r.db.Rebind(fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = ?",
		r.quote(table), strings.Join(sets, ", "), r.quote(pk),
	))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare update for %s: %w", ErrRepo, table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]any, 0, len(cols)+1)
		for i, cell := range row {
			if i == pkIdx {
				continue
			}
			args = append(args, bindCell(cell))
		}
		args = append(args, now, row[pkIdx])
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("%w: failed to update %s row %s=%s: %w", ErrRepo, table, pk, row[pkIdx], err)
		}
	}
	return nil
}

// fetchKeys loads the full key set of table into memory.
func (r *Repository) fetchKeys(ctx context.Context, table, pk string) (map[string]struct{}, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", r.quote(pk), r.quote(table))
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to prefetch keys from %s: %w", ErrRepo, table, err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key any
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%w: failed to scan key from %s: %w", ErrRepo, table, err)
		}
		if key == nil {
			continue
		}
		keys[asString(key)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to prefetch keys from %s: %w", ErrRepo, table, err)
	}
	return keys, nil
}

func (r *Repository) queryMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) quote(name string) string {
	return r.adapter.QuoteIdent(strings.ToLower(name))
}

// bindCell maps the cleaner's empty-string null marker to SQL NULL.
func bindCell(cell string) any {
	if cell == "" {
		return nil
	}
	return cell
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
