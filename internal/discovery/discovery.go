// Package discovery scans the landing directory and turns source files
// into FileTasks: table resolution, file date extraction, content
// hashing, and the skip decision against the processed-file ledger.
package discovery

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coastline/wharf/internal/config"
	"github.com/coastline/wharf/internal/types"
)

// UnknownTable is assigned when neither the mapping table nor stem
// parsing yields a table name. The task is still emitted; validation
// fails it with a clear message instead of silently dropping the file.
const UnknownTable = "unknown_table"

// SkipReasonProcessed is the skip reason for unchanged, already loaded
// files.
const SkipReasonProcessed = "File already processed"

// ProcessedChecker answers whether a (file name, content hash) pair has
// already been loaded successfully.
type ProcessedChecker interface {
	IsProcessed(ctx context.Context, fileName, contentHash string) (bool, error)
}

// Scanner discovers candidate files in one directory.
type Scanner struct {
	dir    string
	cfg    config.ETL
	ledger ProcessedChecker
}

// NewScanner builds a scanner over dir. ledger may be nil, in which
// case nothing is ever skipped as already processed.
func NewScanner(dir string, cfg config.ETL, ledger ProcessedChecker) *Scanner {
	return &Scanner{dir: dir, cfg: cfg, ledger: ledger}
}

// Discover lists matching files and returns one task per candidate,
// ordered by file name. Tasks are marked skipped when the ledger knows
// their exact content already, unless the options force reprocessing.
func (s *Scanner) Discover(ctx context.Context, opts types.JobOptions) ([]*types.FileTask, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", s.dir, err)
	}

	selected := make(map[string]struct{}, len(opts.SelectedFiles))
	for _, name := range opts.SelectedFiles {
		selected[name] = struct{}{}
	}

	force := opts.ForceReprocess || !s.cfg.SkipProcessed

	var tasks []*types.FileTask
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !matchesAny(name, s.cfg.FilePatterns) {
			continue
		}
		if len(selected) > 0 {
			if _, ok := selected[name]; !ok {
				continue
			}
		}

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}

		task := &types.FileTask{
			Path:     filepath.Join(s.dir, name),
			FileName: name,
			Table:    ResolveTable(name, s.cfg.TableMappings, s.cfg.IgnoredFilenamePrefixes),
			FileDate: ParseFileDate(name, info.ModTime()),
			Status:   types.TaskPending,
		}

		hash, err := HashFile(task.Path)
		if err != nil {
			// The file exists but cannot be read; surface it as a failed
			// task so the job accounts for it.
			task.Status = types.TaskFailed
			task.Error = fmt.Sprintf("failed to hash file: %v", err)
			tasks = append(tasks, task)
			continue
		}
		task.ContentHash = hash

		if !force && s.ledger != nil {
			done, err := s.ledger.IsProcessed(ctx, task.FileName, task.ContentHash)
			if err != nil {
				return nil, fmt.Errorf("failed to consult processed ledger for %s: %w", name, err)
			}
			if done {
				task.Status = types.TaskSkipped
				task.SkipReason = SkipReasonProcessed
			}
		}
		tasks = append(tasks, task)
	}

	if opts.LatestOnly {
		tasks = filterLatest(tasks)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].FileName < tasks[j].FileName })
	return tasks, nil
}

// ResolveTable maps a file name to its warehouse table: exact mapping
// first, then glob mappings, then stem parsing. Stem parsing drops the
// extension and any leading run of ignored prefixes case-insensitively
// and collects tokens until the first eight-digit token.
func ResolveTable(fileName string, mappings map[string]string, ignoredPrefixes []string) string {
	if table, ok := mappings[fileName]; ok {
		return table
	}
	// Sort patterns so overlapping globs resolve deterministically.
	patterns := make([]string, 0, len(mappings))
	for p := range mappings {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	for _, p := range patterns {
		if ok, err := filepath.Match(p, fileName); err == nil && ok {
			return mappings[p]
		}
	}

	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	tokens := strings.Split(stem, "_")

	ignored := make(map[string]struct{}, len(ignoredPrefixes))
	for _, p := range ignoredPrefixes {
		ignored[strings.ToLower(p)] = struct{}{}
	}
	for len(tokens) > 0 {
		if _, ok := ignored[strings.ToLower(tokens[0])]; !ok {
			break
		}
		tokens = tokens[1:]
	}

	var parts []string
	for _, tok := range tokens {
		if isEightDigits(tok) {
			break
		}
		if tok != "" {
			parts = append(parts, strings.ToLower(tok))
		}
	}
	if len(parts) == 0 {
		return UnknownTable
	}
	return strings.Join(parts, "_")
}

// ParseFileDate returns the first eight-digit token that is a real
// calendar date, falling back to the modification time as YYYYMMDD.
func ParseFileDate(fileName string, modTime time.Time) string {
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	for _, tok := range strings.Split(stem, "_") {
		if !isEightDigits(tok) {
			continue
		}
		if _, err := time.Parse("20060102", tok); err == nil {
			return tok
		}
	}
	return modTime.Format("20060102")
}

// HashFile computes the streaming MD5 of the file in 4 KiB chunks.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, 4096)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// filterLatest keeps, per table, only the task with the greatest file
// date (ties broken by file name).
func filterLatest(tasks []*types.FileTask) []*types.FileTask {
	best := make(map[string]*types.FileTask, len(tasks))
	for _, t := range tasks {
		b, ok := best[t.Table]
		if !ok || t.FileDate > b.FileDate || (t.FileDate == b.FileDate && t.FileName > b.FileName) {
			best[t.Table] = t
		}
	}
	out := tasks[:0]
	for _, t := range tasks {
		if best[t.Table] == t {
			out = append(out, t)
		}
	}
	return out
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func isEightDigits(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
