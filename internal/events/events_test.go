package events

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coastline/wharf/internal/types"
)

// recordingSink counts events per method for assertions.
type recordingSink struct {
	mu       sync.Mutex
	audits   []types.AuditEntry
	progress []*types.JobProgress
	tasks    []*types.FileTask
	drifts   []types.SchemaDrift
}

func (r *recordingSink) EmitAudit(e types.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, e)
}

func (r *recordingSink) EmitProgress(p *types.JobProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recordingSink) EmitTaskUpdate(t *types.FileTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
}

func (r *recordingSink) EmitSchemaDrift(d types.SchemaDrift) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drifts = append(r.drifts, d)
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := NewMultiSink(a)
	m.Add(b)

	m.EmitAudit(types.AuditEntry{EventType: types.AuditJobStarted, CreatedAt: time.Now()})
	m.EmitProgress(&types.JobProgress{JobID: "j1"})
	m.EmitTaskUpdate(&types.FileTask{FileName: "f.txt"})
	m.EmitSchemaDrift(types.SchemaDrift{Table: "people"})

	for i, r := range []*recordingSink{a, b} {
		if len(r.audits) != 1 || len(r.progress) != 1 || len(r.tasks) != 1 || len(r.drifts) != 1 {
			t.Errorf("sink %d missed events: %d audits %d progress %d tasks %d drifts",
				i, len(r.audits), len(r.progress), len(r.tasks), len(r.drifts))
		}
	}
}

func TestLogSinkEmitsStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	sink.EmitAudit(types.AuditEntry{EventType: types.AuditFileSkipped, Detail: "File already processed", Username: "system"})
	if out := buf.String(); !strings.Contains(out, types.AuditFileSkipped) || !strings.Contains(out, "File already processed") {
		t.Errorf("audit record missing fields: %s", out)
	}

	buf.Reset()
	sink.EmitTaskUpdate(&types.FileTask{FileName: "people.txt", Table: "people", Status: types.TaskFailed, Error: "boom"})
	if out := buf.String(); !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "boom") {
		t.Errorf("failed task should log at error level with message: %s", out)
	}

	buf.Reset()
	sink.EmitSchemaDrift(types.SchemaDrift{Kind: types.DriftMissingColumn, Table: "people", Severity: types.SeverityCritical})
	if out := buf.String(); !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "missing_column") {
		t.Errorf("critical drift should log at error level: %s", out)
	}

	buf.Reset()
	sink.EmitSchemaDrift(types.SchemaDrift{Kind: types.DriftExtraColumn, Table: "people", Severity: types.SeverityWarning})
	if out := buf.String(); !strings.Contains(out, "level=WARN") {
		t.Errorf("warning drift should log at warn level: %s", out)
	}
}

func TestNopSinkIsSafe(t *testing.T) {
	var s NopSink
	s.EmitAudit(types.AuditEntry{})
	s.EmitProgress(nil)
	s.EmitTaskUpdate(nil)
	s.EmitSchemaDrift(types.SchemaDrift{})
}
