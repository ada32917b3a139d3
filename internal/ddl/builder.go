// Package ddl builds the PostgreSQL statements the sync engine issues against
// the destination: table provisioning, row loads, and reset operations.
package ddl

import (
	"fmt"
	"strings"
)

// DefaultSchema is the destination schema every table lives in.
const DefaultSchema = "public"

// Information-schema queries against the destination.
const (
	// ExistingColumnsQuery lists live column names for ($1 schema, $2 table).
	ExistingColumnsQuery = `SELECT column_name FROM information_schema.columns ` +
		`WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`

	// ListTablesQuery lists base tables in schema $1.
	ListTablesQuery = `SELECT table_name FROM information_schema.tables ` +
		`WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`
)

// Constraint toggles used around bulk truncation.
const (
	DeferConstraints   = "SET CONSTRAINTS ALL DEFERRED"
	RestoreConstraints = "SET CONSTRAINTS ALL IMMEDIATE"
)

// ColumnDef describes a column for CREATE TABLE.
type ColumnDef struct {
	Name string
	Type string
}

// CreateTableIfNotExists returns:
// CREATE TABLE IF NOT EXISTS "public"."<table>" ("<col1>" TYPE1, "<col2>" TYPE2, ...).
// Column order is preserved. When primaryKey is non-empty a
// PRIMARY KEY ("<k1>", ...) clause is appended.
func CreateTableIfNotExists(table string, columns []ColumnDef, primaryKey []string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}

	colDefs := make([]string, 0, len(columns)+1)
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c.Name, err)
		}
		if err := ValidateColumnType(c.Type); err != nil {
			return "", fmt.Errorf("invalid column type for %q: %w", c.Name, err)
		}
		known[c.Name] = true
		colDefs = append(colDefs, fmt.Sprintf("%s %s", QuoteIdentifier(c.Name), c.Type))
	}
	if len(primaryKey) > 0 {
		for _, k := range primaryKey {
			if !known[k] {
				return "", fmt.Errorf("primary key column %q is not a table column", k)
			}
		}
		colDefs = append(colDefs, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(primaryKey)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		QuoteQualified(DefaultSchema, table),
		strings.Join(colDefs, ", "),
	), nil
}

// Insert returns a single-row parameterized insert:
// INSERT INTO "public"."<table>" ("<c1>", "<c2>") VALUES ($1, $2).
func Insert(table string, columns []string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	for _, c := range columns {
		if err := ValidateIdentifier(c); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c, err)
		}
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteQualified(DefaultSchema, table),
		quoteList(columns),
		strings.Join(placeholders, ", "),
	), nil
}

// Upsert returns Insert followed by an ON CONFLICT clause on conflictKey.
// Non-key columns are overwritten from EXCLUDED; when every column is part
// of the key the conflict is ignored.
func Upsert(table string, columns, conflictKey []string) (string, error) {
	stmt, err := Insert(table, columns)
	if err != nil {
		return "", err
	}
	if len(conflictKey) == 0 {
		return "", fmt.Errorf("conflict key is required")
	}

	isKey := make(map[string]bool, len(conflictKey))
	for _, k := range conflictKey {
		if err := ValidateIdentifier(k); err != nil {
			return "", fmt.Errorf("invalid key column %q: %w", k, err)
		}
		isKey[k] = true
	}
	var sets []string
	for _, c := range columns {
		if isKey[c] {
			continue
		}
		q := QuoteIdentifier(c)
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}

	if len(sets) == 0 {
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", stmt, quoteList(conflictKey)), nil
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
		stmt, quoteList(conflictKey), strings.Join(sets, ", ")), nil
}

// DropTableIfExists returns: DROP TABLE IF EXISTS "<schema>"."<table>" CASCADE.
func DropTableIfExists(schema, table string) (string, error) {
	if err := ValidateIdentifier(schema); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", QuoteQualified(schema, table)), nil
}

// Truncate returns: TRUNCATE TABLE "<schema>"."<table>" RESTART IDENTITY CASCADE.
func Truncate(schema, table string) (string, error) {
	if err := ValidateIdentifier(schema); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", QuoteQualified(schema, table)), nil
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}
