package events

import (
	"log/slog"

	"github.com/coastline/wharf/internal/types"
)

// LogSink writes every event as a structured slog record. The host
// typically points the logger at a rotating file so the event stream
// doubles as the operational log.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a sink over the given logger. A nil logger uses
// slog.Default().
func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) EmitAudit(entry types.AuditEntry) {
	s.log.Info("audit",
		"event_type", entry.EventType,
		"detail", entry.Detail,
		"username", entry.Username,
	)
}

func (s *LogSink) EmitProgress(p *types.JobProgress) {
	s.log.Info("job progress",
		"job_id", p.JobID,
		"status", string(p.Status),
		"total_files", p.TotalFiles,
		"completed", p.CompletedFiles,
		"failed", p.FailedFiles,
		"skipped", p.SkippedFiles,
		"percent", p.CompletionPercent(),
	)
}

func (s *LogSink) EmitTaskUpdate(t *types.FileTask) {
	attrs := []any{
		"file", t.FileName,
		"table", t.Table,
		"status", string(t.Status),
	}
	if t.Status.IsTerminal() {
		attrs = append(attrs,
			"processed", t.Processed,
			"inserted", t.Inserted,
			"updated", t.Updated,
		)
	}
	if t.Error != "" {
		attrs = append(attrs, "error", t.Error)
		s.log.Error("file task", attrs...)
		return
	}
	s.log.Info("file task", attrs...)
}

func (s *LogSink) EmitSchemaDrift(d types.SchemaDrift) {
	logFn := s.log.Warn
	if d.Severity == types.SeverityCritical {
		logFn = s.log.Error
	}
	logFn("schema drift",
		"kind", string(d.Kind),
		"table", d.Table,
		"file", d.File,
		"details", d.Details,
		"severity", string(d.Severity),
	)
}
