package metadata

const metaSchema = `
-- Job history
CREATE TABLE IF NOT EXISTS etl_jobs (
    job_id TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'pending',
    trigger_type TEXT NOT NULL DEFAULT 'manual',
    username TEXT NOT NULL DEFAULT 'system',
    total_files INTEGER NOT NULL DEFAULT 0,
    completed_files INTEGER NOT NULL DEFAULT 0,
    failed_files INTEGER NOT NULL DEFAULT 0,
    skipped_files INTEGER NOT NULL DEFAULT 0,
    records_processed INTEGER NOT NULL DEFAULT 0,
    records_loaded INTEGER NOT NULL DEFAULT 0,
    records_inserted INTEGER NOT NULL DEFAULT 0,
    records_updated INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    start_time DATETIME,
    end_time DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Per-file results within a job
CREATE TABLE IF NOT EXISTS etl_job_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL REFERENCES etl_jobs(job_id) ON DELETE CASCADE,
    filename TEXT NOT NULL,
    table_name TEXT NOT NULL DEFAULT '',
    file_date TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    records_processed INTEGER NOT NULL DEFAULT 0,
    records_loaded INTEGER NOT NULL DEFAULT 0,
    records_inserted INTEGER NOT NULL DEFAULT 0,
    records_updated INTEGER NOT NULL DEFAULT 0,
    records_skipped INTEGER NOT NULL DEFAULT 0,
    issue_count INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    skip_reason TEXT,
    elapsed_sec REAL NOT NULL DEFAULT 0,
    started_at DATETIME,
    ended_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_etl_job_files_job ON etl_job_files(job_id);

-- Processed-file ledger; file_name is the identity, a re-ingest of the
-- same name supersedes the previous row
CREATE TABLE IF NOT EXISTS etl_metadata (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_name TEXT NOT NULL UNIQUE,
    table_name TEXT NOT NULL DEFAULT '',
    file_date TEXT NOT NULL DEFAULT '',
    records_processed INTEGER NOT NULL DEFAULT 0,
    records_inserted INTEGER NOT NULL DEFAULT 0,
    records_updated INTEGER NOT NULL DEFAULT 0,
    started_at DATETIME,
    completed_at DATETIME,
    status TEXT NOT NULL DEFAULT 'processing',
    error_message TEXT,
    file_hash TEXT NOT NULL DEFAULT '',
    trigger_type TEXT NOT NULL DEFAULT 'manual',
    triggered_by TEXT NOT NULL DEFAULT 'system'
);

CREATE INDEX IF NOT EXISTS idx_etl_metadata_status ON etl_metadata(status);

-- Schema drift log
CREATE TABLE IF NOT EXISTS schema_errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    drift_type TEXT NOT NULL,
    table_name TEXT NOT NULL,
    file_name TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '',
    suggested_sql TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL DEFAULT 'warning',
    detected_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    resolved_at DATETIME
);

-- Cleaning events
CREATE TABLE IF NOT EXISTS data_quality_issues (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    table_name TEXT NOT NULL,
    file_name TEXT NOT NULL DEFAULT '',
    issue_type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    detected_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- System audit trail
CREATE TABLE IF NOT EXISTS sys_audit_trail (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    username TEXT NOT NULL DEFAULT 'system',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sys_audit_trail_created ON sys_audit_trail(created_at);
`
