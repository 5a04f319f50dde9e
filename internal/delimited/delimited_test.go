package delimited

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
	return path
}

func TestReadFileBasic(t *testing.T) {
	path := writeTestFile(t, "people.txt", []byte("person_id|first_name|last_name\np1|John|Doe\np2|Jane|Smith\n"))

	f, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(f.Header) != 3 || f.Header[0] != "person_id" {
		t.Errorf("Header = %v", f.Header)
	}
	if len(f.Rows) != 2 {
		t.Fatalf("Rows = %d, want 2", len(f.Rows))
	}
	if f.Rows[0][1] != "John" || f.Rows[1][2] != "Smith" {
		t.Errorf("rows parsed wrong: %v", f.Rows)
	}
}

func TestParseQuotedCells(t *testing.T) {
	f, err := Parse([]byte("person_id|notes\np1|\"contains | a pipe\"\np2|\"line\nbreak\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Rows[0][1] != "contains | a pipe" {
		t.Errorf("quoted pipe cell = %q", f.Rows[0][1])
	}
	if f.Rows[1][1] != "line\nbreak" {
		t.Errorf("quoted newline cell = %q", f.Rows[1][1])
	}
}

func TestParseUTF8(t *testing.T) {
	f, err := Parse([]byte("person_id|first_name|last_name\np3|José|García\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Rows[0][1] != "José" {
		t.Errorf("utf-8 cell = %q, want José", f.Rows[0][1])
	}
}

func TestParseLatin1Fallback(t *testing.T) {
	// "José" with é as latin-1 0xE9 — not valid utf-8.
	data := []byte("person_id|first_name\np3|Jos")
	data = append(data, 0xE9)
	data = append(data, '\n')

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Rows[0][1] != "José" {
		t.Errorf("latin-1 cell = %q, want José", f.Rows[0][1])
	}
}

func TestParseBOMStripped(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("person_id|first_name\np1|John\n")...)
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Header[0] != "person_id" {
		t.Errorf("Header[0] = %q, want person_id without BOM", f.Header[0])
	}
}

func TestParseHeaderWhitespaceTrimmed(t *testing.T) {
	f, err := Parse([]byte(" person_id | first_name \np1|John\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Header[0] != "person_id" || f.Header[1] != "first_name" {
		t.Errorf("Header = %v, want trimmed names", f.Header)
	}
}

func TestParseEmptyInputs(t *testing.T) {
	t.Run("zero bytes", func(t *testing.T) {
		f, err := Parse(nil)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if !f.Empty() {
			t.Error("zero-byte file should be empty")
		}
	})

	t.Run("header only", func(t *testing.T) {
		f, err := Parse([]byte("person_id|first_name\n"))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if !f.Empty() {
			t.Error("header-only file should be empty")
		}
		if len(f.Header) != 2 {
			t.Errorf("Header = %v", f.Header)
		}
	})
}

func TestParseRaggedRowFails(t *testing.T) {
	_, err := Parse([]byte("a|b|c\n1|2\n"))
	if err == nil {
		t.Fatal("expected error for ragged row")
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.txt"))
	if !errors.Is(err, ErrRead) {
		t.Errorf("got %v, want ErrRead", err)
	}
}

func TestColumnIndex(t *testing.T) {
	f := &Frame{Header: []string{"Person_ID", "first_name"}}
	if got := f.ColumnIndex("person_id"); got != 0 {
		t.Errorf("ColumnIndex(person_id) = %d, want 0", got)
	}
	if got := f.ColumnIndex("FIRST_NAME"); got != 1 {
		t.Errorf("ColumnIndex(FIRST_NAME) = %d, want 1", got)
	}
	if got := f.ColumnIndex("missing"); got != -1 {
		t.Errorf("ColumnIndex(missing) = %d, want -1", got)
	}
}
