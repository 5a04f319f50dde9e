// Package delimited reads the pipe-delimited extract files published
// by the upstream platform: "|" separated, double-quote quoted, one
// header row, encoded as UTF-8 or one of the legacy Windows charsets.
package delimited

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrRead wraps any failure to read or parse a source file.
var ErrRead = errors.New("file read error")

// Frame is one parsed file: a header row plus zero or more data rows.
// All cells are strings; typing is the warehouse's concern.
type Frame struct {
	Header []string
	Rows   [][]string
}

// Empty reports whether the frame holds no data rows.
func (f *Frame) Empty() bool {
	return len(f.Rows) == 0
}

// ColumnIndex returns the position of the named column, matched
// case-insensitively, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, h := range f.Header {
		if strings.EqualFold(h, name) {
			return i
		}
	}
	return -1
}

// ReadFile parses one source file, trying utf-8, latin-1 and cp1252 in
// that order; the first encoding that yields a clean parse wins.
func ReadFile(path string) (*Frame, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from discovery over the configured landing dir
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return Parse(data)
}

// Parse decodes and parses raw file bytes.
func Parse(data []byte) (*Frame, error) {
	var lastErr error

	if utf8.Valid(data) {
		f, err := parseCSV(data)
		if err == nil {
			return f, nil
		}
		lastErr = err
	} else {
		lastErr = errors.New("not valid utf-8")
	}

	for _, cm := range []*charmap.Charmap{charmap.ISO8859_1, charmap.Windows1252} {
		decoded, err := cm.NewDecoder().Bytes(data)
		if err != nil {
			lastErr = err
			continue
		}
		f, err := parseCSV(decoded)
		if err == nil {
			return f, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", ErrRead, lastErr)
}

func parseCSV(data []byte) (*Frame, error) {
	// Strip a UTF-8 BOM; some upstream exports carry one.
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = '|'
	r.ReuseRecord = false

	header, err := r.Read()
	if err == io.EOF {
		return &Frame{}, nil // zero-byte file: empty frame, skip upstream
	}
	if err != nil {
		return nil, err
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return &Frame{Header: header, Rows: rows}, nil
}
