package metadata

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/coastline/wharf/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "internal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testTask(name string, status types.TaskStatus) *types.FileTask {
	started := time.Now().UTC().Add(-2 * time.Second)
	ended := time.Now().UTC()
	return &types.FileTask{
		Path:        "/in/" + name,
		FileName:    name,
		Table:       "people",
		FileDate:    "20250828",
		ContentHash: "abc123",
		Status:      status,
		Processed:   3,
		Loaded:      3,
		Inserted:    2,
		Updated:     1,
		StartedAt:   &started,
		EndedAt:     &ended,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "internal.db")

	s1, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s1.Close()

	s2, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	s2.Close()
}

func TestSaveAndGetJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ended := time.Now().UTC()
	job := &types.JobProgress{
		JobID:                 "job_20250828_101500_000001",
		Status:                types.JobCompleted,
		Trigger:               types.TriggerManual,
		TriggeredBy:           "ops",
		TotalFiles:            2,
		CompletedFiles:        1,
		FailedFiles:           1,
		TotalRecordsProcessed: 3,
		TotalRecordsLoaded:    3,
		TotalRecordsInserted:  2,
		TotalRecordsUpdated:   1,
		StartedAt:             time.Now().UTC().Add(-time.Minute),
		EndedAt:               &ended,
		Errors:                []string{"chhsca_cases_20250828.txt: boom"},
		Files: []*types.FileTask{
			testTask("chhsca_people_20250828.txt", types.TaskCompleted),
			{FileName: "chhsca_cases_20250828.txt", Table: "cases", Status: types.TaskFailed, Error: "boom"},
		},
	}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	got, err := store.GetJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got == nil {
		t.Fatal("job not found after save")
	}
	if got.Status != types.JobCompleted || got.TriggeredBy != "ops" {
		t.Errorf("job round trip mismatch: %+v", got)
	}
	if got.TotalRecordsInserted != 2 || got.TotalRecordsUpdated != 1 {
		t.Errorf("counter mismatch: %+v", got)
	}
	if len(got.Errors) != 1 || got.Errors[0] != "chhsca_cases_20250828.txt: boom" {
		t.Errorf("errors round trip mismatch: %v", got.Errors)
	}
	if len(got.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(got.Files))
	}
	if got.Files[0].Status != types.TaskCompleted || got.Files[0].Inserted != 2 {
		t.Errorf("file round trip mismatch: %+v", got.Files[0])
	}
	if got.Files[1].Error != "boom" {
		t.Errorf("file error lost: %+v", got.Files[1])
	}

	// Saving again replaces rather than duplicates the file rows.
	job.Status = types.JobFailed
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("second SaveJob: %v", err)
	}
	got, err = store.GetJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != types.JobFailed || len(got.Files) != 2 {
		t.Errorf("resave mismatch: status=%s files=%d", got.Status, len(got.Files))
	}
}

func TestGetJobUnknown(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetJob(context.Background(), "job_nope")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown job, got %+v", got)
	}
}

func TestListJobsAndPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"job_a", "job_b", "job_c"} {
		job := &types.JobProgress{
			JobID:     id,
			Status:    types.JobCompleted,
			Trigger:   types.TriggerAutomatic,
			StartedAt: time.Now().UTC(),
			Files:     []*types.FileTask{{FileName: id + ".txt", Status: types.TaskCompleted}},
		}
		if err := store.SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob %s: %v", id, err)
		}
	}

	jobs, err := store.ListJobs(ctx, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	if jobs[0].JobID != "job_c" {
		t.Errorf("expected newest first, got %s", jobs[0].JobID)
	}
	if jobs[0].Files != nil {
		t.Error("ListJobs should not hydrate per-file detail")
	}

	removed, err := store.PruneJobs(ctx, 2)
	if err != nil {
		t.Fatalf("PruneJobs: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned job, got %d", removed)
	}
	got, err := store.GetJob(ctx, "job_a")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got != nil {
		t.Error("oldest job should have been pruned")
	}
}

func TestFileLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	task := testTask("chhsca_people_20250828.txt", types.TaskProcessing)

	ok, err := store.IsProcessed(ctx, task.FileName, task.ContentHash)
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if ok {
		t.Fatal("unprocessed file reported as processed")
	}

	if err := store.BeginFile(ctx, task, types.TriggerManual, "ops"); err != nil {
		t.Fatalf("BeginFile: %v", err)
	}

	task.Status = types.TaskCompleted
	if err := store.CloseFile(ctx, task); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	ok, err = store.IsProcessed(ctx, task.FileName, task.ContentHash)
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if !ok {
		t.Fatal("completed file not reported as processed")
	}

	// A different content hash is a different file as far as skipping
	// is concerned.
	ok, err = store.IsProcessed(ctx, task.FileName, "otherhash")
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if ok {
		t.Fatal("changed file should not count as processed")
	}

	// Reprocessing the same filename supersedes the ledger row.
	if err := store.BeginFile(ctx, task, types.TriggerAutomatic, "scheduler"); err != nil {
		t.Fatalf("second BeginFile: %v", err)
	}
	records, err := store.ProcessedFiles(ctx, 0)
	if err != nil {
		t.Fatalf("ProcessedFiles: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected a single ledger row, got %d", len(records))
	}
	if records[0].Status != StatusProcessing || records[0].TriggeredBy != "scheduler" {
		t.Errorf("ledger row not superseded: %+v", records[0])
	}
}

func TestCloseFileWithoutBegin(t *testing.T) {
	store := newTestStore(t)

	task := testTask("never_begun.txt", types.TaskCompleted)
	if err := store.CloseFile(context.Background(), task); err == nil {
		t.Fatal("expected error closing a ledger row that was never opened")
	}
}

func TestRecoverInterrupted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &types.JobProgress{
		JobID:     "job_crash",
		Status:    types.JobRunning,
		Trigger:   types.TriggerManual,
		StartedAt: time.Now().UTC(),
	}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	task := testTask("inflight.txt", types.TaskProcessing)
	if err := store.BeginFile(ctx, task, types.TriggerManual, "ops"); err != nil {
		t.Fatalf("BeginFile: %v", err)
	}

	report, err := store.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("RecoverInterrupted: %v", err)
	}
	if report.Jobs != 1 || report.Files != 1 {
		t.Fatalf("report = %+v, want 1 job and 1 file", report)
	}

	got, err := store.GetJob(ctx, "job_crash")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != types.JobFailed {
		t.Errorf("job status = %s, want failed", got.Status)
	}
	if len(got.Errors) != 1 || got.Errors[0] != "server restarted during job execution" {
		t.Errorf("job error = %v", got.Errors)
	}

	records, err := store.ProcessedFiles(ctx, 0)
	if err != nil {
		t.Fatalf("ProcessedFiles: %v", err)
	}
	if len(records) != 1 || records[0].Status != StatusFailed {
		t.Fatalf("ledger not recovered: %+v", records)
	}
	if records[0].ErrorMessage != "processing interrupted" {
		t.Errorf("ledger error = %q", records[0].ErrorMessage)
	}

	// Idempotent: a second pass has nothing to do.
	report, err = store.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("second RecoverInterrupted: %v", err)
	}
	if report.Jobs != 0 || report.Files != 0 {
		t.Fatalf("second recovery should be a no-op, got %+v", report)
	}
}

func TestDriftLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	drifts := []types.SchemaDrift{
		{
			Kind:         types.DriftMissingColumn,
			Table:        "people",
			File:         "chhsca_people_20250828.txt",
			Details:      "column preferred_name is missing from table people",
			SuggestedSQL: "ALTER TABLE people ADD COLUMN preferred_name TEXT;",
			Severity:     types.SeverityCritical,
		},
		{
			Kind:     types.DriftExtraColumn,
			Table:    "people",
			File:     "chhsca_people_20250828.txt",
			Details:  "table column email is not present in the file",
			Severity: types.SeverityWarning,
		},
	}
	if err := store.RecordDrift(ctx, drifts); err != nil {
		t.Fatalf("RecordDrift: %v", err)
	}

	open, err := store.UnresolvedDrift(ctx)
	if err != nil {
		t.Fatalf("UnresolvedDrift: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 unresolved drifts, got %d", len(open))
	}

	var critical types.SchemaDrift
	for _, d := range open {
		if d.Severity == types.SeverityCritical {
			critical = d
		}
	}
	if critical.SuggestedSQL != "ALTER TABLE people ADD COLUMN preferred_name TEXT;" {
		t.Errorf("suggested_sql = %q", critical.SuggestedSQL)
	}

	if err := store.ResolveDrift(ctx, critical.ID); err != nil {
		t.Fatalf("ResolveDrift: %v", err)
	}
	open, err = store.UnresolvedDrift(ctx)
	if err != nil {
		t.Fatalf("UnresolvedDrift: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 unresolved drift after resolve, got %d", len(open))
	}
	if err := store.ResolveDrift(ctx, critical.ID); err == nil {
		t.Error("resolving twice should fail")
	}
}

func TestIssuesAndAudit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	issues := []types.DataQualityIssue{
		{Table: "people", File: "a.txt", Kind: types.IssueEmptyRows, Description: "dropped 2 empty rows"},
		{Table: "people", File: "a.txt", Kind: types.IssuePHIHashing, Description: "hashed 3 columns"},
	}
	if err := store.RecordIssues(ctx, issues); err != nil {
		t.Fatalf("RecordIssues: %v", err)
	}
	got, err := store.RecentIssues(ctx, 10)
	if err != nil {
		t.Fatalf("RecentIssues: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(got))
	}

	if err := store.Audit(ctx, types.AuditEntry{EventType: types.AuditJobStarted, Detail: "job_x", Username: "ops"}); err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if err := store.Audit(ctx, types.AuditEntry{EventType: types.AuditFileSkipped, Detail: "File already processed"}); err != nil {
		t.Fatalf("Audit: %v", err)
	}
	entries, err := store.RecentAudit(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Username != "system" {
		t.Errorf("empty username should default to system, got %q", entries[0].Username)
	}
}
