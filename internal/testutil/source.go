// Package testutil provides shared in-memory implementations of the source
// and destination connectors for use in tests across the codebase.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"erpsync/internal/domain"
)

// SourceTable is one table held by FakeSource.
type SourceTable struct {
	Name    string
	Columns []domain.Column
	Rows    [][]any // values in column order
}

// FakeSource implements domain.SourceConnector over in-memory tables. It
// answers the information-schema queries issued by the catalog and
// SELECT * FROM [schema].[table] queries issued by the pipeline.
type FakeSource struct {
	Tables []SourceTable
	// Schema holds every table; empty means dbo. Unqualified names resolve
	// against dbo, the login's default schema.
	Schema string

	// Err, when set, is returned by every call (unreachable source).
	Err error
	// TableErrs fails extraction of the named tables.
	TableErrs map[string]error
	// QueryFn, when set, replaces the built-in query handling.
	QueryFn func(ctx context.Context, query string, args ...any) ([]domain.Record, error)

	Queries []string
	Closed  bool
}

// Query implements the interface method for testing.
func (f *FakeSource) Query(ctx context.Context, query string, args ...any) ([]domain.Record, error) {
	f.Queries = append(f.Queries, query)
	if f.Err != nil {
		return nil, f.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.QueryFn != nil {
		return f.QueryFn(ctx, query, args...)
	}

	switch {
	case strings.Contains(query, "INFORMATION_SCHEMA.COLUMNS"):
		if !f.inSchema(args) {
			return nil, nil
		}
		return f.columnRecords(), nil
	case strings.Contains(query, "'PRIMARY KEY'"):
		if !f.inSchema(args) {
			return nil, nil
		}
		return f.keyRecords(), nil
	case strings.HasPrefix(query, "SELECT * FROM "):
		schema, name := splitQualified(strings.TrimPrefix(query, "SELECT * FROM "))
		if schema != f.schema() {
			return nil, fmt.Errorf("mssql: Invalid object name '%s.%s'", schema, name)
		}
		return f.tableRecords(name)
	}
	panic("unexpected call to FakeSource.Query: " + query)
}

// QuoteIdentifier implements the interface method for testing.
func (f *FakeSource) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// Ping implements the interface method for testing.
func (f *FakeSource) Ping(context.Context) error { return f.Err }

// Close implements the interface method for testing.
func (f *FakeSource) Close() error {
	f.Closed = true
	return nil
}

func (f *FakeSource) schema() string {
	if f.Schema == "" {
		return "dbo"
	}
	return f.Schema
}

// inSchema reports whether the schema bound as @p1 is the one holding the tables.
func (f *FakeSource) inSchema(args []any) bool {
	if len(args) == 0 {
		return true
	}
	s, _ := args[0].(string)
	return s == f.schema()
}

func (f *FakeSource) sortedTables() []SourceTable {
	tables := append([]SourceTable(nil), f.Tables...)
	sort.SliceStable(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables
}

func (f *FakeSource) columnRecords() []domain.Record {
	cols := []string{
		"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "CHARACTER_MAXIMUM_LENGTH",
		"NUMERIC_PRECISION", "NUMERIC_SCALE", "IS_NULLABLE", "ORDINAL_POSITION",
	}
	var out []domain.Record
	for _, t := range f.sortedTables() {
		for i, c := range t.Columns {
			nullable := "NO"
			if c.Nullable {
				nullable = "YES"
			}
			var maxLen any
			if c.MaxLength != 0 {
				maxLen = int64(c.MaxLength)
			}
			out = append(out, domain.Record{Columns: cols, Values: []any{
				t.Name, c.Name, c.SourceType, maxLen,
				uint8(c.Precision), int64(c.Scale), nullable, int64(i + 1), //nolint:gosec // test data
			}})
		}
	}
	return out
}

func (f *FakeSource) keyRecords() []domain.Record {
	cols := []string{"TABLE_NAME", "COLUMN_NAME"}
	var out []domain.Record
	for _, t := range f.sortedTables() {
		for _, c := range t.Columns {
			if c.PrimaryKey {
				out = append(out, domain.Record{Columns: cols, Values: []any{t.Name, c.Name}})
			}
		}
	}
	return out
}

func (f *FakeSource) tableRecords(name string) ([]domain.Record, error) {
	if err := f.TableErrs[name]; err != nil {
		return nil, err
	}
	for _, t := range f.Tables {
		if t.Name != name {
			continue
		}
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name
		}
		out := make([]domain.Record, 0, len(t.Rows))
		for _, r := range t.Rows {
			out = append(out, domain.Record{Columns: cols, Values: append([]any(nil), r...)})
		}
		return out, nil
	}
	return nil, fmt.Errorf("mssql: Invalid object name '%s'", name)
}

// splitQualified splits "[schema].[table]" and defaults a bare name to dbo.
func splitQualified(s string) (schema, table string) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "].["); i >= 0 {
		return unbracket(s[:i+1]), unbracket(s[i+2:])
	}
	return "dbo", unbracket(s)
}

func unbracket(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		s = s[1 : len(s)-1]
	}
	return strings.ReplaceAll(s, "]]", "]")
}

var _ domain.SourceConnector = (*FakeSource)(nil)
