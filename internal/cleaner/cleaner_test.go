package cleaner

import (
	"strings"
	"testing"

	"github.com/coastline/wharf/internal/delimited"
	"github.com/coastline/wharf/internal/phi"
	"github.com/coastline/wharf/internal/types"
)

var testSalt = strings.Repeat("0f", 32)

func newTestCleaner(t *testing.T, fields map[string][]string) *Cleaner {
	t.Helper()
	h, err := phi.NewHasher(testSalt, fields)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return New(h)
}

func findIssue(issues []types.DataQualityIssue, kind string) *types.DataQualityIssue {
	for i := range issues {
		if issues[i].Kind == kind {
			return &issues[i]
		}
	}
	return nil
}

func TestCleanDropsEmptyRows(t *testing.T) {
	c := newTestCleaner(t, nil)
	f := &delimited.Frame{
		Header: []string{"person_id", "first_name"},
		Rows: [][]string{
			{"p1", "John"},
			{"", ""},
			{"  ", "NULL"},
			{"None", "nan"},
			{"p2", "Jane"},
		},
	}

	out, issues := c.Clean(f, "people", "people.txt")
	if len(out.Rows) != 2 {
		t.Fatalf("Rows = %d, want 2", len(out.Rows))
	}
	issue := findIssue(issues, types.IssueEmptyRows)
	if issue == nil {
		t.Fatal("expected an empty_rows issue")
	}
	if !strings.Contains(issue.Description, "3") {
		t.Errorf("empty_rows description = %q, want count 3", issue.Description)
	}
}

func TestCleanTrimsWhitespace(t *testing.T) {
	c := newTestCleaner(t, nil)
	f := &delimited.Frame{
		Header: []string{"person_id", "first_name"},
		Rows:   [][]string{{"  p1  ", "\tJohn "}},
	}
	out, _ := c.Clean(f, "people", "people.txt")
	if out.Rows[0][0] != "p1" || out.Rows[0][1] != "John" {
		t.Errorf("cells not trimmed: %v", out.Rows[0])
	}
}

func TestCleanRepairsMojibake(t *testing.T) {
	c := newTestCleaner(t, nil)
	f := &delimited.Frame{
		Header: []string{"notes"},
		Rows: [][]string{
			{"donâ€™t"},
			{"â€œquotedâ€"},
		},
	}
	out, issues := c.Clean(f, "people", "people.txt")
	if out.Rows[0][0] != "don't" {
		t.Errorf("apostrophe fix: got %q", out.Rows[0][0])
	}
	if out.Rows[1][0] != `"quoted"` {
		t.Errorf("quote fix: got %q", out.Rows[1][0])
	}
	if findIssue(issues, types.IssueMojibake) == nil {
		t.Error("expected a mojibake issue")
	}
}

func TestCleanNormalizesNullMarkers(t *testing.T) {
	c := newTestCleaner(t, nil)
	f := &delimited.Frame{
		Header: []string{"a", "b", "c", "d"},
		Rows:   [][]string{{"NULL", "None", "nan", "keep"}},
	}
	out, _ := c.Clean(f, "people", "people.txt")
	row := out.Rows[0]
	if row[0] != "" || row[1] != "" || row[2] != "" {
		t.Errorf("null markers not normalized: %v", row)
	}
	if row[3] != "keep" {
		t.Errorf("regular value clobbered: %v", row)
	}
}

func TestCleanHashesConfiguredColumns(t *testing.T) {
	c := newTestCleaner(t, map[string][]string{"people": {"person_id"}})
	f := &delimited.Frame{
		Header: []string{"person_id", "first_name"},
		Rows: [][]string{
			{"p1", "John"},
			{"", "Jane"}, // empty passes through
		},
	}
	out, issues := c.Clean(f, "people", "people.txt")

	if len(out.Rows[0][0]) != 64 {
		t.Errorf("person_id not hashed: %q", out.Rows[0][0])
	}
	if out.Rows[0][1] != "John" {
		t.Errorf("unconfigured column touched: %q", out.Rows[0][1])
	}
	if out.Rows[1][0] != "" {
		t.Errorf("empty cell must pass through, got %q", out.Rows[1][0])
	}

	issue := findIssue(issues, types.IssuePHIHashing)
	if issue == nil {
		t.Fatal("expected a phi_hashing issue")
	}
	if !strings.Contains(issue.Description, "person_id") {
		t.Errorf("phi_hashing description = %q", issue.Description)
	}
}

func TestCleanMissingHashColumnIgnored(t *testing.T) {
	c := newTestCleaner(t, map[string][]string{"people": {"ssn"}})
	f := &delimited.Frame{
		Header: []string{"person_id", "first_name"},
		Rows:   [][]string{{"p1", "John"}},
	}
	out, issues := c.Clean(f, "people", "people.txt")
	if out.Rows[0][0] != "p1" {
		t.Errorf("cell changed despite missing hash column: %q", out.Rows[0][0])
	}
	if findIssue(issues, types.IssuePHIHashing) != nil {
		t.Error("no phi_hashing issue expected when no column was hashed")
	}
}

func TestCleanDeterministicHashAcrossFiles(t *testing.T) {
	c := newTestCleaner(t, map[string][]string{
		"people": {"person_id"},
		"cases":  {"person_id"},
	})
	people := &delimited.Frame{Header: []string{"person_id"}, Rows: [][]string{{"p1"}}}
	cases := &delimited.Frame{Header: []string{"person_id"}, Rows: [][]string{{"p1"}}}

	outPeople, _ := c.Clean(people, "people", "people.txt")
	outCases, _ := c.Clean(cases, "cases", "cases.txt")

	if outPeople.Rows[0][0] != outCases.Rows[0][0] {
		t.Error("same person_id hashed differently across tables")
	}
}

func TestCleanNeverAddsRows(t *testing.T) {
	c := newTestCleaner(t, nil)
	f := &delimited.Frame{
		Header: []string{"a"},
		Rows:   [][]string{{"1"}, {"2"}, {""}},
	}
	out, _ := c.Clean(f, "t", "t.txt")
	if len(out.Rows) > len(f.Rows) {
		t.Errorf("row count increased: %d > %d", len(out.Rows), len(f.Rows))
	}
}

func TestCleanDoesNotMutateInput(t *testing.T) {
	c := newTestCleaner(t, map[string][]string{"people": {"person_id"}})
	f := &delimited.Frame{
		Header: []string{"person_id"},
		Rows:   [][]string{{" p1 "}},
	}
	c.Clean(f, "people", "people.txt")
	if f.Rows[0][0] != " p1 " {
		t.Errorf("input frame mutated: %q", f.Rows[0][0])
	}
}
