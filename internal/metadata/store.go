// Package metadata persists ETL bookkeeping in a dedicated SQLite
// database: job history, per-file results, the processed-file ledger,
// schema drift, data quality issues, and the audit trail. The warehouse
// never shares this database.
package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver" // registers "sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"  // embeds the sqlite wasm build

	"github.com/coastline/wharf/internal/types"
)

// Processed-file ledger states.
const (
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped"
)

// Recovery messages written at startup for work interrupted by a crash.
const (
	recoveredJobError  = "server restarted during job execution"
	recoveredFileError = "processing interrupted"
)

// FileRecord is one row of the processed-file ledger.
type FileRecord struct {
	ID               int64      `json:"id"`
	FileName         string     `json:"file_name"`
	TableName        string     `json:"table_name"`
	FileDate         string     `json:"file_date"`
	RecordsProcessed int        `json:"records_processed"`
	RecordsInserted  int        `json:"records_inserted"`
	RecordsUpdated   int        `json:"records_updated"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Status           string     `json:"status"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	FileHash         string     `json:"file_hash"`
	TriggerType      string     `json:"trigger_type"`
	TriggeredBy      string     `json:"triggered_by"`
}

// RecoveryReport counts the rows rewritten by startup recovery.
type RecoveryReport struct {
	Jobs  int `json:"jobs"`
	Files int `json:"files"`
}

// Store owns the internal metadata database.
type Store struct {
	db   *sqlx.DB
	path string
}

// Open opens (and creates if needed) the metadata database at path and
// applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	var connStr string
	switch {
	case path == ":memory:":
		// Shared cache so pooled connections see one database; WAL does
		// not work in-memory.
		connStr = "file:wharfmeta?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
		}
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create metadata directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_pragma=synchronous(NORMAL)&_time_format=sqlite"
	}

	db, err := sqlx.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}

	inMemory := path == ":memory:" || strings.Contains(connStr, "mode=memory")
	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, metaSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply metadata schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path the store was opened with.
func (s *Store) Path() string { return s.path }

// RecoverInterrupted rewrites work left over from a crash: running jobs
// become failed, and ledger rows stuck in processing become failed.
// Safe to call repeatedly.
func (s *Store) RecoverInterrupted(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE etl_jobs SET status = ?, error_message = ?, end_time = ?
		WHERE status = ?`,
		string(types.JobFailed), recoveredJobError, now, string(types.JobRunning))
	if err != nil {
		return report, fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		report.Jobs = int(n)
	}

	res, err = s.db.ExecContext(ctx, `
		UPDATE etl_metadata SET status = ?, error_message = ?, completed_at = ?
		WHERE status = ?`,
		StatusFailed, recoveredFileError, now, StatusProcessing)
	if err != nil {
		return report, fmt.Errorf("failed to recover interrupted files: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		report.Files = int(n)
	}
	return report, nil
}

// SaveJob upserts the job row and replaces its per-file results.
// Call it whenever the job reaches a state worth persisting; the last
// call wins.
func (s *Store) SaveJob(ctx context.Context, p *types.JobProgress) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var errorMessage sql.NullString
	if len(p.Errors) > 0 {
		raw, err := json.Marshal(p.Errors)
		if err != nil {
			return fmt.Errorf("failed to encode job errors: %w", err)
		}
		errorMessage = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO etl_jobs (
			job_id, status, trigger_type, username,
			total_files, completed_files, failed_files, skipped_files,
			records_processed, records_loaded, records_inserted, records_updated,
			error_message, start_time, end_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			trigger_type = excluded.trigger_type,
			username = excluded.username,
			total_files = excluded.total_files,
			completed_files = excluded.completed_files,
			failed_files = excluded.failed_files,
			skipped_files = excluded.skipped_files,
			records_processed = excluded.records_processed,
			records_loaded = excluded.records_loaded,
			records_inserted = excluded.records_inserted,
			records_updated = excluded.records_updated,
			error_message = excluded.error_message,
			start_time = excluded.start_time,
			end_time = excluded.end_time`,
		p.JobID, string(p.Status), string(p.Trigger), p.TriggeredBy,
		p.TotalFiles, p.CompletedFiles, p.FailedFiles, p.SkippedFiles,
		p.TotalRecordsProcessed, p.TotalRecordsLoaded, p.TotalRecordsInserted, p.TotalRecordsUpdated,
		errorMessage, nullTime(&p.StartedAt), nullTimePtr(p.EndedAt))
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", p.JobID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM etl_job_files WHERE job_id = ?`, p.JobID); err != nil {
		return fmt.Errorf("failed to clear job files for %s: %w", p.JobID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO etl_job_files (
			job_id, filename, table_name, file_date, content_hash, status,
			records_processed, records_loaded, records_inserted,
			records_updated, records_skipped, issue_count,
			error, skip_reason, elapsed_sec, started_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare job file insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range p.Files {
		_, err := stmt.ExecContext(ctx,
			p.JobID, f.FileName, f.Table, f.FileDate, f.ContentHash, string(f.Status),
			f.Processed, f.Loaded, f.Inserted, f.Updated, f.Skipped, f.Issues,
			nullString(f.Error), nullString(f.SkipReason), f.ElapsedSeconds(),
			nullTimePtr(f.StartedAt), nullTimePtr(f.EndedAt))
		if err != nil {
			return fmt.Errorf("failed to save job file %s: %w", f.FileName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job %s: %w", p.JobID, err)
	}
	return nil
}

// GetJob loads one persisted job with its per-file results, or nil when
// the job is unknown.
func (s *Store) GetJob(ctx context.Context, jobID string) (*types.JobProgress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, status, trigger_type, username,
			total_files, completed_files, failed_files, skipped_files,
			records_processed, records_loaded, records_inserted, records_updated,
			error_message, start_time, end_time
		FROM etl_jobs WHERE job_id = ?`, jobID)

	p, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT filename, table_name, file_date, content_hash, status,
			records_processed, records_loaded, records_inserted,
			records_updated, records_skipped, issue_count,
			error, skip_reason, started_at, ended_at
		FROM etl_job_files WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load files for job %s: %w", jobID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f                  types.FileTask
			status             string
			errMsg, skip       sql.NullString
			startedAt, endedAt sql.NullTime
		)
		if err := rows.Scan(&f.FileName, &f.Table, &f.FileDate, &f.ContentHash, &status,
			&f.Processed, &f.Loaded, &f.Inserted, &f.Updated, &f.Skipped, &f.Issues,
			&errMsg, &skip, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job file: %w", err)
		}
		f.Status = types.TaskStatus(status)
		f.Error = errMsg.String
		f.SkipReason = skip.String
		f.StartedAt = timePtr(startedAt)
		f.EndedAt = timePtr(endedAt)
		p.Files = append(p.Files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load files for job %s: %w", jobID, err)
	}
	return p, nil
}

// ListJobs returns persisted job summaries, newest first, without
// per-file detail. limit <= 0 returns everything.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*types.JobProgress, error) {
	query := `
		SELECT job_id, status, trigger_type, username,
			total_files, completed_files, failed_files, skipped_files,
			records_processed, records_loaded, records_inserted, records_updated,
			error_message, start_time, end_time
		FROM etl_jobs ORDER BY created_at DESC, job_id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*types.JobProgress
	for rows.Next() {
		p, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, p)
	}
	return jobs, rows.Err()
}

// PruneJobs deletes all but the newest keep jobs and returns how many
// were removed. Per-file rows go with their job.
func (s *Store) PruneJobs(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM etl_jobs WHERE job_id NOT IN (
			SELECT job_id FROM etl_jobs ORDER BY created_at DESC, job_id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// BeginFile opens (or reopens) the ledger row for a file that is about
// to be processed. A previous entry for the same filename is superseded.
func (s *Store) BeginFile(ctx context.Context, task *types.FileTask, trig types.Trigger, username string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO etl_metadata (
			file_name, table_name, file_date, records_processed,
			records_inserted, records_updated, started_at, completed_at,
			status, error_message, file_hash, trigger_type, triggered_by
		) VALUES (?, ?, ?, 0, 0, 0, ?, NULL, ?, NULL, ?, ?, ?)
		ON CONFLICT(file_name) DO UPDATE SET
			table_name = excluded.table_name,
			file_date = excluded.file_date,
			records_processed = 0,
			records_inserted = 0,
			records_updated = 0,
			started_at = excluded.started_at,
			completed_at = NULL,
			status = excluded.status,
			error_message = NULL,
			file_hash = excluded.file_hash,
			trigger_type = excluded.trigger_type,
			triggered_by = excluded.triggered_by`,
		task.FileName, task.Table, task.FileDate, now, StatusProcessing,
		task.ContentHash, string(trig), username)
	if err != nil {
		return fmt.Errorf("failed to begin metadata for %s: %w", task.FileName, err)
	}
	return nil
}

// CloseFile finalizes the ledger row for a terminal task.
func (s *Store) CloseFile(ctx context.Context, task *types.FileTask) error {
	var errMsg sql.NullString
	switch {
	case task.Error != "":
		errMsg = sql.NullString{String: task.Error, Valid: true}
	case task.SkipReason != "":
		errMsg = sql.NullString{String: task.SkipReason, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE etl_metadata SET
			records_processed = ?,
			records_inserted = ?,
			records_updated = ?,
			completed_at = ?,
			status = ?,
			error_message = ?
		WHERE file_name = ?`,
		task.Processed, task.Inserted, task.Updated, time.Now().UTC(),
		ledgerStatus(task.Status), errMsg, task.FileName)
	if err != nil {
		return fmt.Errorf("failed to close metadata for %s: %w", task.FileName, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to close metadata for %s: no open row", task.FileName)
	}
	return nil
}

// IsProcessed reports whether fileName already succeeded with the same
// content hash.
func (s *Store) IsProcessed(ctx context.Context, fileName, contentHash string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM etl_metadata
		WHERE file_name = ? AND file_hash = ? AND status = ?`,
		fileName, contentHash, StatusSuccess)
	if err != nil {
		return false, fmt.Errorf("failed to check processed state of %s: %w", fileName, err)
	}
	return n > 0, nil
}

// ProcessedFiles returns ledger rows, most recently completed first.
// limit <= 0 returns everything.
func (s *Store) ProcessedFiles(ctx context.Context, limit int) ([]FileRecord, error) {
	query := `
		SELECT id, file_name, table_name, file_date, records_processed,
			records_inserted, records_updated, started_at, completed_at,
			status, error_message, file_hash, trigger_type, triggered_by
		FROM etl_metadata ORDER BY completed_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed files: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var (
			r                 FileRecord
			startedAt, doneAt sql.NullTime
			errMsg            sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.FileName, &r.TableName, &r.FileDate,
			&r.RecordsProcessed, &r.RecordsInserted, &r.RecordsUpdated,
			&startedAt, &doneAt, &r.Status, &errMsg, &r.FileHash,
			&r.TriggerType, &r.TriggeredBy); err != nil {
			return nil, fmt.Errorf("failed to scan processed file: %w", err)
		}
		r.StartedAt = timePtr(startedAt)
		r.CompletedAt = timePtr(doneAt)
		r.ErrorMessage = errMsg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordDrift appends drift events to schema_errors.
func (s *Store) RecordDrift(ctx context.Context, drifts []types.SchemaDrift) error {
	if len(drifts) == 0 {
		return nil
	}
	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO schema_errors (drift_type, table_name, file_name, details, suggested_sql, severity, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare drift insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range drifts {
		at := d.DetectedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, string(d.Kind), d.Table, d.File,
			d.Details, d.SuggestedSQL, string(d.Severity), at); err != nil {
			return fmt.Errorf("failed to record drift for %s: %w", d.Table, err)
		}
	}
	return nil
}

// UnresolvedDrift returns drift events that have not been resolved,
// newest first.
func (s *Store) UnresolvedDrift(ctx context.Context) ([]types.SchemaDrift, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, drift_type, table_name, file_name, details, suggested_sql, severity, detected_at
		FROM schema_errors WHERE resolved_at IS NULL
		ORDER BY detected_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schema drift: %w", err)
	}
	defer rows.Close()

	var out []types.SchemaDrift
	for rows.Next() {
		var (
			d              types.SchemaDrift
			kind, severity string
		)
		if err := rows.Scan(&d.ID, &kind, &d.Table, &d.File, &d.Details,
			&d.SuggestedSQL, &severity, &d.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schema drift: %w", err)
		}
		d.Kind = types.DriftKind(kind)
		d.Severity = types.DriftSeverity(severity)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ResolveDrift stamps one drift event as resolved.
func (s *Store) ResolveDrift(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schema_errors SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve drift %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to resolve drift %d: not found or already resolved", id)
	}
	return nil
}

// RecordIssues appends cleaning events to data_quality_issues.
func (s *Store) RecordIssues(ctx context.Context, issues []types.DataQualityIssue) error {
	if len(issues) == 0 {
		return nil
	}
	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO data_quality_issues (table_name, file_name, issue_type, description, detected_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare issue insert: %w", err)
	}
	defer stmt.Close()

	for _, is := range issues {
		at := is.DetectedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, is.Table, is.File, is.Kind, is.Description, at); err != nil {
			return fmt.Errorf("failed to record issue for %s: %w", is.File, err)
		}
	}
	return nil
}

// RecentIssues returns cleaning events, newest first. limit <= 0
// returns everything.
func (s *Store) RecentIssues(ctx context.Context, limit int) ([]types.DataQualityIssue, error) {
	query := `
		SELECT id, table_name, file_name, issue_type, description, detected_at
		FROM data_quality_issues ORDER BY detected_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var out []types.DataQualityIssue
	for rows.Next() {
		var is types.DataQualityIssue
		if err := rows.Scan(&is.ID, &is.Table, &is.File, &is.Kind, &is.Description, &is.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

// Audit appends one audit trail entry.
func (s *Store) Audit(ctx context.Context, e types.AuditEntry) error {
	at := e.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	username := e.Username
	if username == "" {
		username = "system"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sys_audit_trail (event_type, detail, username, created_at)
		VALUES (?, ?, ?, ?)`,
		e.EventType, e.Detail, username, at)
	if err != nil {
		return fmt.Errorf("failed to record audit event %s: %w", e.EventType, err)
	}
	return nil
}

// RecentAudit returns audit entries, newest first. limit <= 0 returns
// everything.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]types.AuditEntry, error) {
	query := `
		SELECT id, event_type, detail, username, created_at
		FROM sys_audit_trail ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit trail: %w", err)
	}
	defer rows.Close()

	var out []types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		if err := rows.Scan(&e.ID, &e.EventType, &e.Detail, &e.Username, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*types.JobProgress, error) {
	var (
		p                  types.JobProgress
		status, trig       string
		errorMessage       sql.NullString
		startTime, endTime sql.NullTime
	)
	err := row.Scan(&p.JobID, &status, &trig, &p.TriggeredBy,
		&p.TotalFiles, &p.CompletedFiles, &p.FailedFiles, &p.SkippedFiles,
		&p.TotalRecordsProcessed, &p.TotalRecordsLoaded, &p.TotalRecordsInserted, &p.TotalRecordsUpdated,
		&errorMessage, &startTime, &endTime)
	if err != nil {
		return nil, err
	}
	p.Status = types.JobStatus(status)
	p.Trigger = types.Trigger(trig)
	if startTime.Valid {
		p.StartedAt = startTime.Time
	}
	p.EndedAt = timePtr(endTime)
	if errorMessage.Valid {
		if err := json.Unmarshal([]byte(errorMessage.String), &p.Errors); err != nil {
			p.Errors = []string{errorMessage.String}
		}
	}
	return &p, nil
}

// ledgerStatus maps a terminal task status onto the processed-file
// ledger vocabulary.
func ledgerStatus(s types.TaskStatus) string {
	switch s {
	case types.TaskCompleted:
		return StatusSuccess
	case types.TaskFailed:
		return StatusFailed
	case types.TaskSkipped:
		return StatusSkipped
	default:
		return StatusProcessing
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return nullTime(t)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	at := t.Time
	return &at
}
