package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/coastline/wharf/internal/types"
)

// InferColumnType guesses a canonical type for a column the catalog has
// never seen, using the upstream naming conventions.
func InferColumnType(name string) ColType {
	n := strings.ToLower(name)
	switch {
	case strings.HasSuffix(n, "_id"):
		return TypeText
	case strings.HasSuffix(n, "_at"), strings.HasSuffix(n, "_date"), strings.HasPrefix(n, "date"):
		return TypeTimestamp
	case strings.HasSuffix(n, "_count"), strings.Contains(n, "size"):
		return TypeInt
	case strings.Contains(n, "income"), strings.Contains(n, "amount"), strings.Contains(n, "price"):
		return TypeReal
	default:
		return TypeText
	}
}

// Validate compares a file's observed columns against the live
// warehouse columns for the target table and returns the minimal drift
// set a subsequent import needs resolved.
//
// warehouseCols empty means the table does not exist; remediation is
// the full canonical CREATE TABLE when the catalog knows the table.
// A file column absent from the warehouse is critical (the INSERT would
// fail); a warehouse column absent from the file is a warning only.
func Validate(cat *Catalog, table, file string, warehouseCols, fileCols []string) []types.SchemaDrift {
	now := time.Now().UTC()

	if len(warehouseCols) == 0 {
		drift := types.SchemaDrift{
			Kind:       types.DriftMissingTable,
			Table:      table,
			File:       file,
			Severity:   types.SeverityCritical,
			DetectedAt: now,
		}
		if ddl, err := cat.CreateTableDDL(table); err == nil {
			drift.Details = fmt.Sprintf("table %s does not exist in the warehouse", table)
			drift.SuggestedSQL = ddl + ";"
		} else {
			drift.Details = fmt.Sprintf("no canonical definition for table %s", table)
		}
		return []types.SchemaDrift{drift}
	}

	have := make(map[string]struct{}, len(warehouseCols))
	for _, c := range warehouseCols {
		have[strings.ToLower(c)] = struct{}{}
	}
	observed := make(map[string]struct{}, len(fileCols))
	for _, c := range fileCols {
		observed[strings.ToLower(c)] = struct{}{}
	}

	var drifts []types.SchemaDrift

	for _, col := range fileCols {
		if _, ok := have[strings.ToLower(col)]; ok {
			continue
		}
		drifts = append(drifts, types.SchemaDrift{
			Kind:         types.DriftMissingColumn,
			Table:        table,
			File:         file,
			Details:      fmt.Sprintf("column %s is missing from table %s", col, table),
			SuggestedSQL: fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", table, col, InferColumnType(col)),
			Severity:     types.SeverityCritical,
			DetectedAt:   now,
		})
	}

	for _, col := range warehouseCols {
		lc := strings.ToLower(col)
		if _, ok := observed[lc]; ok {
			continue
		}
		if isAuditColumn(lc) {
			continue
		}
		drifts = append(drifts, types.SchemaDrift{
			Kind:       types.DriftExtraColumn,
			Table:      table,
			File:       file,
			Details:    fmt.Sprintf("table column %s is not present in the file", col),
			Severity:   types.SeverityWarning,
			DetectedAt: now,
		})
	}

	return drifts
}

// HasCritical reports whether any drift in the set fails the file.
func HasCritical(drifts []types.SchemaDrift) bool {
	for _, d := range drifts {
		if d.Severity == types.SeverityCritical {
			return true
		}
	}
	return false
}

// CriticalSummary renders the failing drift items for the task error
// message, with a pointer to the generated remediation DDL.
func CriticalSummary(drifts []types.SchemaDrift) string {
	var items []string
	for _, d := range drifts {
		if d.Severity != types.SeverityCritical {
			continue
		}
		switch d.Kind {
		case types.DriftMissingTable:
			items = append(items, fmt.Sprintf("missing table %s", d.Table))
		case types.DriftMissingColumn:
			items = append(items, d.Details)
		default:
			items = append(items, d.Details)
		}
	}
	if len(items) == 0 {
		return ""
	}
	return fmt.Sprintf("schema drift: %s (remediation DDL recorded in schema_errors)", strings.Join(items, "; "))
}

func isAuditColumn(name string) bool {
	for _, a := range AuditColumns {
		if name == a {
			return true
		}
	}
	return false
}
