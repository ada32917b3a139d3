package ddl

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// columnTypeRe matches the PostgreSQL type names the type mapper emits,
// optionally with a length or precision/scale parameter.
// Accepted forms:
//
//	WORD                         → INTEGER, TEXT, BOOLEAN, DOUBLE PRECISION
//	WORD(digits)                 → VARCHAR(255)
//	WORD(digits, digits)         → NUMERIC(18,4)
//
// Case-insensitive. Rejects semicolons, comments, quotes and anything else
// that is not a plain type name.
var columnTypeRe = regexp.MustCompile(`(?i)^[A-Z][A-Z0-9_ ]*(?:\(\s*\d+\s*(?:,\s*\d+\s*)?\))?$`)

// maxIdentifierLen is PostgreSQL's NAMEDATALEN-1. Longer names are silently
// truncated by the server, which would break column reconciliation.
const maxIdentifierLen = 63

// maxColumnTypeLen is the maximum length allowed for a column type string.
const maxColumnTypeLen = 64

// ValidateIdentifier checks that name can be used as a quoted identifier:
//   - Non-empty
//   - At most 63 bytes
//   - No control characters
//
// ERP table and column names may contain spaces or symbols, so anything
// printable is accepted; QuoteIdentifier makes it safe.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("name %q must be at most %d bytes", name, maxIdentifierLen)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name %q contains control characters", name)
		}
	}
	return nil
}

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double-quote characters by doubling them (standard SQL).
//
// Always quotes unconditionally, which also preserves case.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified quotes schema and name and joins them with a dot.
func QuoteQualified(schema, name string) string {
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(name)
}

// ValidateColumnType checks that typeName is a safe column type:
//   - Non-empty
//   - At most 64 characters
//   - Matches the allowed type pattern (word, optionally with length or precision/scale)
func ValidateColumnType(typeName string) error {
	if typeName == "" {
		return fmt.Errorf("column type is required")
	}
	if len(typeName) > maxColumnTypeLen {
		return fmt.Errorf("column type must be at most %d characters", maxColumnTypeLen)
	}
	if strings.ContainsAny(typeName, ";-'\"\\") {
		return fmt.Errorf("column type contains invalid characters")
	}
	if !columnTypeRe.MatchString(typeName) {
		return fmt.Errorf("column type %q is not a recognized type pattern", typeName)
	}
	return nil
}
