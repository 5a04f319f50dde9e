// Package cleaner prepares parsed file rows for loading: empty-row
// removal, whitespace trimming, mojibake repair, null normalization and
// PHI hashing, with a DataQualityIssue record per cleaning event.
//
// Cleaning only edits cells; the row count may decrease but never
// increases, and no row is rejected for a bad value. Typing is the
// warehouse's concern.
package cleaner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/coastline/wharf/internal/delimited"
	"github.com/coastline/wharf/internal/phi"
	"github.com/coastline/wharf/internal/types"
)

// Common UTF-8-read-as-CP1252 artifacts seen in upstream extracts.
// Longer patterns first so the shared "â€" prefix cannot shadow them.
var mojibake = strings.NewReplacer(
	"â€™", "'",
	"â€œ", `"`,
	"â€", `"`,
)

// Cleaner runs the cleaning steps with a configured hasher.
type Cleaner struct {
	hasher *phi.Hasher
}

// New creates a Cleaner. The hasher may be disabled; step 4 is then a
// no-op.
func New(hasher *phi.Hasher) *Cleaner {
	return &Cleaner{hasher: hasher}
}

// Clean runs the steps in order over f and returns the cleaned frame
// plus the issues produced. The input frame is not modified.
func (c *Cleaner) Clean(f *delimited.Frame, table, file string) (*delimited.Frame, []types.DataQualityIssue) {
	now := time.Now().UTC()
	var issues []types.DataQualityIssue

	out := &delimited.Frame{
		Header: append([]string(nil), f.Header...),
		Rows:   make([][]string, 0, len(f.Rows)),
	}

	// Step 1: drop rows where every cell is empty or a null marker.
	dropped := 0
	for _, row := range f.Rows {
		if rowIsEmpty(row) {
			dropped++
			continue
		}
		out.Rows = append(out.Rows, append([]string(nil), row...))
	}
	if dropped > 0 {
		issues = append(issues, types.DataQualityIssue{
			Table:       table,
			File:        file,
			Kind:        types.IssueEmptyRows,
			Description: fmt.Sprintf("Removed %d empty rows", dropped),
			DetectedAt:  now,
		})
	}

	// Steps 2 and 3: trim, repair mojibake, normalize null markers.
	fixed := 0
	for _, row := range out.Rows {
		for i, cell := range row {
			v := strings.TrimSpace(cell)
			if repaired := mojibake.Replace(v); repaired != v {
				v = repaired
				fixed++
			}
			if isNullMarker(v) {
				v = ""
			}
			row[i] = v
		}
	}
	if fixed > 0 {
		issues = append(issues, types.DataQualityIssue{
			Table:       table,
			File:        file,
			Kind:        types.IssueMojibake,
			Description: fmt.Sprintf("Repaired %d cells with encoding artifacts", fixed),
			DetectedAt:  now,
		})
	}

	// Step 4: hash configured PHI columns present in this frame.
	if c.hasher != nil && c.hasher.Enabled() {
		var hashed []string
		for _, col := range c.hasher.Columns(table) {
			idx := out.ColumnIndex(col)
			if idx < 0 {
				continue // column absent from this batch: silently ignored
			}
			for _, row := range out.Rows {
				row[idx] = c.hasher.Hash(row[idx])
			}
			hashed = append(hashed, col)
		}
		if len(hashed) > 0 {
			sort.Strings(hashed)
			issues = append(issues, types.DataQualityIssue{
				Table:       table,
				File:        file,
				Kind:        types.IssuePHIHashing,
				Description: "Hashed columns: " + strings.Join(hashed, ", "),
				DetectedAt:  now,
			})
		}
	}

	return out, issues
}

// rowIsEmpty reports whether every cell is blank or a null marker.
func rowIsEmpty(row []string) bool {
	for _, cell := range row {
		if !isNullMarker(strings.TrimSpace(cell)) {
			return false
		}
	}
	return true
}

// isNullMarker matches the format's null representations: empty,
// NULL, None and the literal "nan" (any case).
func isNullMarker(v string) bool {
	switch strings.ToLower(v) {
	case "", "null", "none", "nan":
		return true
	}
	return false
}
