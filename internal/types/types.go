// Package types defines core data structures for the wharf ETL pipeline.
package types

import (
	"fmt"
	"time"
)

// TaskStatus tracks a single file through its processing lifecycle.
type TaskStatus string

// File task status constants
const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

// IsValid checks if the task status value is valid
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskProcessing, TaskCompleted, TaskFailed, TaskSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether the status is a final state for a task.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskSkipped:
		return true
	}
	return false
}

// JobStatus tracks an orchestrator run.
type JobStatus string

// Job status constants
const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsValid checks if the job status value is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status is a final state for a job.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Trigger records how a job was started.
type Trigger string

// Trigger constants
const (
	TriggerManual    Trigger = "manual"
	TriggerAutomatic Trigger = "automatic"
)

// IsValid checks if the trigger value is valid
func (t Trigger) IsValid() bool {
	return t == TriggerManual || t == TriggerAutomatic
}

// FileTask is one source file under processing. Created by discovery,
// mutated only by the worker that owns it, and merged into JobProgress
// by the orchestrator when it reaches a terminal status.
type FileTask struct {
	Path        string     `json:"path"`
	FileName    string     `json:"file_name"`
	Table       string     `json:"table"`
	FileDate    string     `json:"file_date"`    // YYYYMMDD
	ContentHash string     `json:"content_hash"` // MD5 hex of the file bytes
	Status      TaskStatus `json:"status"`
	Processed   int        `json:"processed"` // rows after empty-row removal
	Loaded      int        `json:"loaded"`    // rows handed to the warehouse
	Inserted    int        `json:"inserted"`
	Updated     int        `json:"updated"`
	Skipped     int        `json:"skipped"`
	Issues      int        `json:"issues"` // data quality issues recorded
	Error       string     `json:"error,omitempty"`
	SkipReason  string     `json:"skip_reason,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// Clone returns a deep copy safe to hand to subscribers while the
// original keeps mutating under the orchestrator lock.
func (t *FileTask) Clone() *FileTask {
	c := *t
	if t.StartedAt != nil {
		at := *t.StartedAt
		c.StartedAt = &at
	}
	if t.EndedAt != nil {
		at := *t.EndedAt
		c.EndedAt = &at
	}
	return &c
}

// ElapsedSeconds returns wall-clock duration of the task, or 0 if it
// has not run.
func (t *FileTask) ElapsedSeconds() float64 {
	if t.StartedAt == nil || t.EndedAt == nil {
		return 0
	}
	return t.EndedAt.Sub(*t.StartedAt).Seconds()
}

// Validate checks counter consistency for terminal tasks.
func (t *FileTask) Validate() error {
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid task status: %s", t.Status)
	}
	if t.Inserted+t.Updated > t.Loaded {
		return fmt.Errorf("task %s: inserted+updated (%d) exceeds loaded (%d)", t.FileName, t.Inserted+t.Updated, t.Loaded)
	}
	if t.Loaded > t.Processed {
		return fmt.Errorf("task %s: loaded (%d) exceeds processed (%d)", t.FileName, t.Loaded, t.Processed)
	}
	if t.Status == TaskSkipped && (t.Loaded != 0 || t.Inserted != 0 || t.Updated != 0) {
		return fmt.Errorf("task %s: skipped task has warehouse writes", t.FileName)
	}
	return nil
}

// JobOptions enumerate the knobs accepted by StartJob.
type JobOptions struct {
	ForceReprocess bool     `json:"force_reprocess"`
	LatestOnly     bool     `json:"latest_only"`
	MaxWorkers     int      `json:"max_workers"`
	SelectedFiles  []string `json:"selected_files,omitempty"`
	Username       string   `json:"username,omitempty"`
	Trigger        Trigger  `json:"trigger"`
}

// Normalized returns a copy with defaults applied: at least one worker,
// a manual trigger when unset, and "system" as the fallback username.
func (o JobOptions) Normalized() JobOptions {
	if o.MaxWorkers < 1 {
		o.MaxWorkers = 1
	}
	if o.Trigger == "" {
		o.Trigger = TriggerManual
	}
	if o.Username == "" {
		o.Username = "system"
	}
	return o
}

// JobProgress is the full state of one orchestrator run.
type JobProgress struct {
	JobID          string    `json:"job_id"`
	Status         JobStatus `json:"status"`
	Trigger        Trigger   `json:"trigger"`
	TriggeredBy    string    `json:"triggered_by"`
	TotalFiles     int       `json:"total_files"`
	CompletedFiles int       `json:"completed_files"`
	FailedFiles    int       `json:"failed_files"`
	SkippedFiles   int       `json:"skipped_files"`

	TotalRecordsProcessed int `json:"total_records_processed"`
	TotalRecordsLoaded    int `json:"total_records_loaded"`
	TotalRecordsInserted  int `json:"total_records_inserted"`
	TotalRecordsUpdated   int `json:"total_records_updated"`

	CurrentFile string      `json:"current_file,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	EndedAt     *time.Time  `json:"ended_at,omitempty"`
	Errors      []string    `json:"errors,omitempty"`
	Files       []*FileTask `json:"files,omitempty"`
}

// CompletionPercent is (completed+failed+skipped)/total expressed as a
// percentage. Zero-file jobs report 100.
func (p *JobProgress) CompletionPercent() float64 {
	if p.TotalFiles == 0 {
		return 100
	}
	done := p.CompletedFiles + p.FailedFiles + p.SkippedFiles
	return float64(done) / float64(p.TotalFiles) * 100
}

// Clone returns a deep copy safe to publish to subscribers.
func (p *JobProgress) Clone() *JobProgress {
	c := *p
	if p.EndedAt != nil {
		at := *p.EndedAt
		c.EndedAt = &at
	}
	if p.Errors != nil {
		c.Errors = append([]string(nil), p.Errors...)
	}
	if p.Files != nil {
		c.Files = make([]*FileTask, len(p.Files))
		for i, f := range p.Files {
			c.Files[i] = f.Clone()
		}
	}
	return &c
}

// FileFingerprint identifies a successfully processed file. Discovery
// consults the fingerprint set to decide whether a candidate can be
// skipped.
type FileFingerprint struct {
	FileName    string `json:"file_name"`
	ContentHash string `json:"content_hash"`
}

// DriftKind classifies a schema mismatch.
type DriftKind string

// Drift kind constants
const (
	DriftMissingTable  DriftKind = "missing_table"
	DriftMissingColumn DriftKind = "missing_column"
	DriftExtraColumn   DriftKind = "extra_column"
)

// DriftSeverity splits drift into file-failing and advisory classes.
type DriftSeverity string

// Drift severity constants
const (
	SeverityCritical DriftSeverity = "critical"
	SeverityWarning  DriftSeverity = "warning"
)

// SchemaDrift is one mismatch between a file's columns and the target
// warehouse table. Critical drift fails the file; warnings are recorded
// and the file continues.
type SchemaDrift struct {
	ID           int64         `json:"id,omitempty"`
	Kind         DriftKind     `json:"kind"`
	Table        string        `json:"table"`
	File         string        `json:"file"`
	Details      string        `json:"details"`
	SuggestedSQL string        `json:"suggested_sql,omitempty"`
	Severity     DriftSeverity `json:"severity"`
	DetectedAt   time.Time     `json:"detected_at"`
	ResolvedAt   *time.Time    `json:"resolved_at,omitempty"`
}

// DataQualityIssue is one cleaning event observed while preparing a
// file's rows for load.
type DataQualityIssue struct {
	ID          int64     `json:"id,omitempty"`
	Table       string    `json:"table"`
	File        string    `json:"file"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

// Data quality issue kinds
const (
	IssueEmptyRows  = "empty_rows"
	IssuePHIHashing = "phi_hashing"
	IssueMojibake   = "mojibake"
)

// AuditEntry is one row of the system audit trail.
type AuditEntry struct {
	ID        int64     `json:"id,omitempty"`
	EventType string    `json:"event_type"`
	Detail    string    `json:"detail,omitempty"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Audit event types
const (
	AuditJobStarted    = "JOB_STARTED"
	AuditJobCompleted  = "JOB_COMPLETED"
	AuditJobFailed     = "JOB_FAILED"
	AuditJobCancelled  = "JOB_CANCELLED"
	AuditFileProcessed = "FILE_PROCESSED"
	AuditFileSkipped   = "FILE_SKIPPED"
	AuditFileFailed    = "FILE_FAILED"
	AuditSchemaDrift   = "SCHEMA_DRIFT"
	AuditSFTPPull      = "SFTP_PULL"
	AuditStartup       = "SYSTEM_STARTUP"
	AuditShutdown      = "SYSTEM_SHUTDOWN"
	AuditRecovery      = "STARTUP_RECOVERY"
)
