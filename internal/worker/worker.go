// Package worker processes one FileTask at a time: read, validate,
// clean, load, and close out the metadata ledger. Process never
// returns an error; every outcome lands on the task itself.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/coastline/wharf/internal/cleaner"
	"github.com/coastline/wharf/internal/delimited"
	"github.com/coastline/wharf/internal/events"
	"github.com/coastline/wharf/internal/metadata"
	"github.com/coastline/wharf/internal/schema"
	"github.com/coastline/wharf/internal/types"
	"github.com/coastline/wharf/internal/warehouse"
)

// SkipReasonEmpty is the skip reason for files with no data rows.
const SkipReasonEmpty = "Empty file"

// Worker owns the per-file pipeline. It is safe for concurrent use by
// multiple goroutines; per-table serialization is the dispatcher's job.
type Worker struct {
	repo    warehouse.Warehouse
	store   *metadata.Store
	cleaner *cleaner.Cleaner
	sink    events.Sink
	log     *slog.Logger
}

// New wires a worker. sink may be nil for a silent worker.
func New(repo warehouse.Warehouse, store *metadata.Store, cl *cleaner.Cleaner, sink events.Sink, log *slog.Logger) *Worker {
	if sink == nil {
		sink = events.NopSink{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{repo: repo, store: store, cleaner: cl, sink: sink, log: log}
}

// Process runs task to a terminal status. Panics and adapter errors
// are converted to status=failed; the caller only inspects the task.
func (w *Worker) Process(ctx context.Context, task *types.FileTask, trig types.Trigger, username string) {
	// Large frames die young: encourage the runtime to hand memory
	// back between files.
	defer debug.FreeOSMemory()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("worker panic", "file", task.FileName, "panic", r)
			if !task.Status.IsTerminal() {
				w.fail(ctx, task, username, fmt.Sprintf("panic while processing %s: %v", task.FileName, r))
			}
		}
	}()

	started := time.Now().UTC()
	task.Status = types.TaskProcessing
	task.StartedAt = &started
	w.sink.EmitTaskUpdate(task.Clone())

	if err := w.store.BeginFile(ctx, task, trig, username); err != nil {
		w.fail(ctx, task, username, fmt.Sprintf("metadata store unavailable: %v", err))
		return
	}

	frame, err := delimited.ReadFile(task.Path)
	if err != nil {
		w.fail(ctx, task, username, err.Error())
		return
	}
	if frame.Empty() {
		w.skip(ctx, task, username, SkipReasonEmpty)
		return
	}

	warehouseCols, err := w.repo.Columns(ctx, task.Table)
	if err != nil {
		w.fail(ctx, task, username, err.Error())
		return
	}
	drifts := schema.Validate(w.repo.Catalog(), task.Table, task.FileName, warehouseCols, frame.Header)
	if len(drifts) > 0 {
		for i := range drifts {
			if drifts[i].SuggestedSQL != "" {
				drifts[i].SuggestedSQL = w.repo.Adapter().Normalize(drifts[i].SuggestedSQL)
			}
		}
		if err := w.store.RecordDrift(ctx, drifts); err != nil {
			w.log.Warn("failed to persist schema drift", "file", task.FileName, "error", err)
		}
		for _, d := range drifts {
			w.sink.EmitSchemaDrift(d)
		}
		if schema.HasCritical(drifts) {
			w.fail(ctx, task, username, schema.CriticalSummary(drifts))
			return
		}
	}

	cleaned, issues := w.cleaner.Clean(frame, task.Table, task.FileName)
	task.Processed = len(cleaned.Rows)
	task.Issues = len(issues)
	if err := w.store.RecordIssues(ctx, issues); err != nil {
		w.log.Warn("failed to persist data quality issues", "file", task.FileName, "error", err)
	}

	var res *warehouse.InsertResult
	pk, hasPK := w.repo.Catalog().PrimaryKey(task.Table)
	if hasPK && cleaned.ColumnIndex(pk) >= 0 {
		res, err = w.repo.UpsertByPrimaryKey(ctx, task.Table, cleaned.Header, cleaned.Rows, pk)
	} else {
		res, err = w.repo.InsertBatch(ctx, task.Table, cleaned.Header, cleaned.Rows)
	}
	if err != nil {
		w.fail(ctx, task, username, err.Error())
		return
	}

	task.Inserted = res.Inserted
	task.Updated = res.Updated
	task.Skipped = res.Skipped
	task.Loaded = res.Inserted + res.Updated
	w.complete(ctx, task, username)
}

func (w *Worker) complete(ctx context.Context, task *types.FileTask, username string) {
	w.finish(task, types.TaskCompleted)
	if err := w.store.CloseFile(ctx, task); err != nil {
		w.log.Warn("failed to close metadata row", "file", task.FileName, "error", err)
	}
	w.audit(ctx, types.AuditFileProcessed,
		fmt.Sprintf("%s -> %s: %d inserted, %d updated, %d skipped",
			task.FileName, task.Table, task.Inserted, task.Updated, task.Skipped),
		username)
	w.log.Info("file processed",
		"file", task.FileName, "table", task.Table,
		"inserted", task.Inserted, "updated", task.Updated, "skipped", task.Skipped)
	w.sink.EmitTaskUpdate(task.Clone())
}

func (w *Worker) fail(ctx context.Context, task *types.FileTask, username, msg string) {
	task.Error = msg
	w.finish(task, types.TaskFailed)
	if err := w.store.CloseFile(ctx, task); err != nil {
		w.log.Warn("failed to close metadata row", "file", task.FileName, "error", err)
	}
	w.audit(ctx, types.AuditFileFailed, fmt.Sprintf("%s: %s", task.FileName, msg), username)
	w.log.Error("file failed", "file", task.FileName, "table", task.Table, "error", msg)
	w.sink.EmitTaskUpdate(task.Clone())
}

func (w *Worker) skip(ctx context.Context, task *types.FileTask, username, reason string) {
	task.SkipReason = reason
	w.finish(task, types.TaskSkipped)
	if err := w.store.CloseFile(ctx, task); err != nil {
		w.log.Warn("failed to close metadata row", "file", task.FileName, "error", err)
	}
	w.audit(ctx, types.AuditFileSkipped, fmt.Sprintf("%s: %s", task.FileName, reason), username)
	w.log.Info("file skipped", "file", task.FileName, "reason", reason)
	w.sink.EmitTaskUpdate(task.Clone())
}

func (w *Worker) finish(task *types.FileTask, status types.TaskStatus) {
	ended := time.Now().UTC()
	task.Status = status
	task.EndedAt = &ended
}

func (w *Worker) audit(ctx context.Context, event, detail, username string) {
	entry := types.AuditEntry{EventType: event, Detail: detail, Username: username}
	if err := w.store.Audit(ctx, entry); err != nil {
		w.log.Warn("failed to record audit event", "event", event, "error", err)
	}
	w.sink.EmitAudit(entry)
}
