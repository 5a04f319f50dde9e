// Package phi implements deterministic one-way hashing of protected
// fields. Hash is a pure function of (salt, value); equal inputs yield
// equal digests across files, tables and runs, which keeps hashed
// identifiers joinable.
package phi

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/coastline/wharf/internal/config"
)

// Values passed through unchanged instead of hashed. Matched
// case-insensitively; the empty string is always passed through.
var sentinels = map[string]struct{}{
	"nan":  {},
	"none": {},
	"null": {},
}

// Hasher hashes configured columns with a process-wide salt.
type Hasher struct {
	salt   string
	fields map[string]map[string]struct{} // table -> lowercased column set
}

// NewHasher builds a hasher for the given salt and table->columns
// policy. The salt must be 64 hex chars whenever at least one column is
// configured; with no configured columns the hasher is disabled and the
// salt is not inspected.
func NewHasher(salt string, fieldsToHash map[string][]string) (*Hasher, error) {
	h := &Hasher{salt: salt, fields: make(map[string]map[string]struct{}, len(fieldsToHash))}

	enabled := false
	for table, cols := range fieldsToHash {
		if len(cols) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			set[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
		}
		h.fields[strings.ToLower(strings.TrimSpace(table))] = set
		enabled = true
	}

	if enabled {
		if err := config.ValidateSalt(salt); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Enabled reports whether any column is configured for hashing.
func (h *Hasher) Enabled() bool {
	return len(h.fields) > 0
}

// Hash returns the salted SHA-256 of v as 64 lowercase hex chars.
// Empty and sentinel values ("nan", "none", "null", any case) are
// returned unchanged.
func (h *Hasher) Hash(v string) string {
	if v == "" {
		return v
	}
	if _, ok := sentinels[strings.ToLower(v)]; ok {
		return v
	}
	sum := sha256.Sum256([]byte(h.salt + v + h.salt))
	return hex.EncodeToString(sum[:])
}

// ShouldHash reports whether the column of the table is in the
// configured hash set. Lookup is case-insensitive.
func (h *Hasher) ShouldHash(table, column string) bool {
	cols, ok := h.fields[strings.ToLower(table)]
	if !ok {
		return false
	}
	_, ok = cols[strings.ToLower(column)]
	return ok
}

// Columns returns the configured hash columns for a table, lowercased,
// in no particular order. Nil when none are configured.
func (h *Hasher) Columns(table string) []string {
	cols, ok := h.fields[strings.ToLower(table)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(cols))
	for c := range cols {
		out = append(out, c)
	}
	return out
}
