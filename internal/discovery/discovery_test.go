package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coastline/wharf/internal/config"
	"github.com/coastline/wharf/internal/types"
)

type fakeLedger struct {
	processed map[string]string // file name -> content hash
}

func (f *fakeLedger) IsProcessed(_ context.Context, name, hash string) (bool, error) {
	return f.processed[name] == hash, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func etlDefaults() config.ETL {
	return config.Default().ETL
}

func TestResolveTable(t *testing.T) {
	prefixes := []string{"SAMPLE", "TEST", "CHHSCA"}
	tests := []struct {
		name     string
		file     string
		mappings map[string]string
		want     string
	}{
		{"plain", "people_20250828.txt", nil, "people"},
		{"ignored prefix", "CHHSCA_people_20250828.txt", nil, "people"},
		{"stacked prefixes", "SAMPLE_chhsca_people_20250828.txt", nil, "people"},
		{"multi word table", "chhsca_care_team_members_20250828.txt", nil, "care_team_members"},
		{"no date token", "referrals.txt", nil, "referrals"},
		{"mixed case", "Chhsca_People_20250828.csv", nil, "people"},
		{"only prefixes and date", "CHHSCA_20250828.txt", nil, UnknownTable},
		{"empty stem", "_.txt", nil, UnknownTable},
		{"exact mapping wins", "legacy-extract.txt", map[string]string{"legacy-extract.txt": "encounters"}, "encounters"},
		{"glob mapping", "nightly_dump_01.txt", map[string]string{"nightly_dump_*.txt": "services"}, "services"},
		{"mapping beats parser", "people_20250828.txt", map[string]string{"people_*.txt": "cases"}, "cases"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTable(tt.file, tt.mappings, prefixes)
			if got != tt.want {
				t.Errorf("ResolveTable(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}

func TestParseFileDate(t *testing.T) {
	mod := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	if got := ParseFileDate("chhsca_people_20250828.txt", mod); got != "20250828" {
		t.Errorf("date token: got %q", got)
	}
	// 99999999 is eight digits but not a calendar date.
	if got := ParseFileDate("people_99999999.txt", mod); got != "20250801" {
		t.Errorf("invalid date token should fall back to mtime: got %q", got)
	}
	if got := ParseFileDate("people.txt", mod); got != "20250801" {
		t.Errorf("missing token should fall back to mtime: got %q", got)
	}
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x.txt", "hello world")

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if got != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("md5 = %q", got)
	}

	if _, err := HashFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "chhsca_people_20250828.txt", "person_id|first_name\np1|Ada\n")
	writeFile(t, dir, "chhsca_cases_20250828.txt", "case_id\nc1\n")
	writeFile(t, dir, "notes.log", "not a source file")
	if err := os.Mkdir(filepath.Join(dir, "archive"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	peopleHash, err := HashFile(filepath.Join(dir, "chhsca_people_20250828.txt"))
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	ledger := &fakeLedger{processed: map[string]string{"chhsca_people_20250828.txt": peopleHash}}
	scanner := NewScanner(dir, etlDefaults(), ledger)

	tasks, err := scanner.Discover(context.Background(), types.JobOptions{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}

	byName := map[string]*types.FileTask{}
	for _, task := range tasks {
		byName[task.FileName] = task
	}
	people := byName["chhsca_people_20250828.txt"]
	if people.Status != types.TaskSkipped || people.SkipReason != SkipReasonProcessed {
		t.Errorf("processed file should be skipped: %+v", people)
	}
	cases := byName["chhsca_cases_20250828.txt"]
	if cases.Status != types.TaskPending || cases.Table != "cases" || cases.FileDate != "20250828" {
		t.Errorf("unexpected cases task: %+v", cases)
	}
	if cases.ContentHash == "" {
		t.Error("content hash not populated")
	}

	t.Run("force reprocess", func(t *testing.T) {
		tasks, err := scanner.Discover(context.Background(), types.JobOptions{ForceReprocess: true})
		if err != nil {
			t.Fatalf("Discover: %v", err)
		}
		for _, task := range tasks {
			if task.Status != types.TaskPending {
				t.Errorf("%s should be pending under force, got %s", task.FileName, task.Status)
			}
		}
	})

	t.Run("selected files", func(t *testing.T) {
		tasks, err := scanner.Discover(context.Background(), types.JobOptions{
			SelectedFiles: []string{"chhsca_cases_20250828.txt"},
		})
		if err != nil {
			t.Fatalf("Discover: %v", err)
		}
		if len(tasks) != 1 || tasks[0].FileName != "chhsca_cases_20250828.txt" {
			t.Fatalf("selected_files not honored: %+v", tasks)
		}
	})
}

func TestDiscoverLatestOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "people_20250827.txt", "person_id\np1\n")
	writeFile(t, dir, "people_20250828.txt", "person_id\np1\n")
	writeFile(t, dir, "cases_20250810.txt", "case_id\nc1\n")

	scanner := NewScanner(dir, etlDefaults(), nil)
	tasks, err := scanner.Discover(context.Background(), types.JobOptions{LatestOnly: true})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected one task per table, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.Table == "people" && task.FileDate != "20250828" {
			t.Errorf("latest_only kept %s", task.FileName)
		}
	}
}

func TestDiscoverSkipProcessedDisabled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "people_20250828.txt", "person_id\np1\n")

	hash, err := HashFile(filepath.Join(dir, "people_20250828.txt"))
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	ledger := &fakeLedger{processed: map[string]string{"people_20250828.txt": hash}}

	cfg := etlDefaults()
	cfg.SkipProcessed = false
	scanner := NewScanner(dir, cfg, ledger)

	tasks, err := scanner.Discover(context.Background(), types.JobOptions{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != types.TaskPending {
		t.Fatalf("skip_processed=false should leave tasks pending: %+v", tasks)
	}
}

func TestDiscoverMissingDirectory(t *testing.T) {
	scanner := NewScanner(filepath.Join(t.TempDir(), "nope"), etlDefaults(), nil)
	if _, err := scanner.Discover(context.Background(), types.JobOptions{}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
