// Package wharf provides a minimal public API for embedding the wharf
// ETL service in other Go programs.
//
// Most hosts should use the wharf binary. This package exports only the
// essential types and the constructor needed to run the ingestion
// pipeline programmatically: resolve a Config, call New, Start the
// returned Service, and drive jobs through its Orchestrator.
package wharf

import (
	"context"
	"log/slog"

	"github.com/coastline/wharf/internal/config"
	"github.com/coastline/wharf/internal/core"
	"github.com/coastline/wharf/internal/events"
	"github.com/coastline/wharf/internal/types"
)

// Core types for observing jobs and files
type (
	FileTask         = types.FileTask
	JobProgress      = types.JobProgress
	JobOptions       = types.JobOptions
	SchemaDrift      = types.SchemaDrift
	DataQualityIssue = types.DataQualityIssue
	AuditEntry       = types.AuditEntry
	TaskStatus       = types.TaskStatus
	JobStatus        = types.JobStatus
	Trigger          = types.Trigger
)

// TaskStatus constants
const (
	TaskPending    = types.TaskPending
	TaskProcessing = types.TaskProcessing
	TaskCompleted  = types.TaskCompleted
	TaskFailed     = types.TaskFailed
	TaskSkipped    = types.TaskSkipped
)

// JobStatus constants
const (
	JobPending   = types.JobPending
	JobRunning   = types.JobRunning
	JobCompleted = types.JobCompleted
	JobFailed    = types.JobFailed
	JobCancelled = types.JobCancelled
)

// Trigger constants
const (
	TriggerManual    = types.TriggerManual
	TriggerAutomatic = types.TriggerAutomatic
)

// Config is the complete resolved configuration for one wharf process.
// Hosts own resolution (files, env, flags); the service only validates.
type Config = config.Core

// DefaultConfig returns a Config with every knob at its documented
// default. Overlay directories and warehouse settings before New.
func DefaultConfig() Config { return config.Default() }

// Sink receives pipeline events: audit entries, job progress, per-file
// task updates and schema drift. Implementations must be safe for
// concurrent use.
type Sink = events.Sink

// NopSink discards all events.
type NopSink = events.NopSink

// MultiSink fans events out to several sinks.
type MultiSink = events.MultiSink

// NewLogSink returns a Sink that writes every event as a structured
// slog record on the given logger.
func NewLogSink(log *slog.Logger) Sink { return events.NewLogSink(log) }

// Service is one assembled wharf process: metadata store, warehouse
// connection, cleaning pipeline and orchestrator.
type Service = core.Core

// New validates cfg, locks the database directory and assembles an
// idle Service. Call Start to arm the orchestrator and automatic
// intake, and Shutdown to stop. sink and log may be nil.
func New(ctx context.Context, cfg Config, sink Sink, log *slog.Logger) (*Service, error) {
	return core.Init(ctx, cfg, sink, log)
}
