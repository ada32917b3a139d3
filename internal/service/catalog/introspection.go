// Package catalog discovers the source schema and resolves destination types.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"erpsync/internal/ddl"
	"erpsync/internal/domain"
	"erpsync/internal/typemap"
)

// Queries against the SQL Server information schema. @p1 is the source schema.
const (
	columnsQuery = `SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, c.CHARACTER_MAXIMUM_LENGTH,
       c.NUMERIC_PRECISION, c.NUMERIC_SCALE, c.IS_NULLABLE, c.ORDINAL_POSITION
FROM INFORMATION_SCHEMA.COLUMNS c
JOIN INFORMATION_SCHEMA.TABLES t
  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
WHERE t.TABLE_TYPE = 'BASE TABLE' AND c.TABLE_SCHEMA = @p1
ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

	primaryKeysQuery = `SELECT k.TABLE_NAME, k.COLUMN_NAME
FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE k
  ON k.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA AND k.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_SCHEMA = @p1
ORDER BY k.TABLE_NAME, k.ORDINAL_POSITION`
)

// CatalogService introspects the source database. Nothing is cached: every
// call rebuilds the catalog.
//
//nolint:revive // Name chosen for clarity across package boundaries
type CatalogService struct {
	source domain.SourceConnector
	schema string
	logger *slog.Logger
}

// NewCatalogService creates a new CatalogService for the given source schema.
func NewCatalogService(source domain.SourceConnector, schema string, logger *slog.Logger) *CatalogService {
	if schema == "" {
		schema = "dbo"
	}
	return &CatalogService{source: source, schema: schema, logger: logger.With("component", "catalog")}
}

// DiscoverSchema returns every base table of the source schema with its
// columns in ordinal order. Any failure is a SchemaIntrospectionError.
func (s *CatalogService) DiscoverSchema(ctx context.Context) ([]domain.TableDescriptor, error) {
	rows, err := s.source.Query(ctx, columnsQuery, s.schema)
	if err != nil {
		return nil, &domain.SchemaIntrospectionError{Cause: fmt.Errorf("list columns: %w", err)}
	}
	keyRows, err := s.source.Query(ctx, primaryKeysQuery, s.schema)
	if err != nil {
		return nil, &domain.SchemaIntrospectionError{Cause: fmt.Errorf("list primary keys: %w", err)}
	}

	keys := make(map[string]map[string]bool)
	for _, r := range keyRows {
		table, column := asString(field(r, "TABLE_NAME")), asString(field(r, "COLUMN_NAME"))
		if keys[table] == nil {
			keys[table] = make(map[string]bool)
		}
		keys[table][column] = true
	}

	var tables []domain.TableDescriptor
	index := make(map[string]int)
	for _, r := range rows {
		table := asString(field(r, "TABLE_NAME"))
		col := domain.Column{
			Name:       asString(field(r, "COLUMN_NAME")),
			SourceType: asString(field(r, "DATA_TYPE")),
			MaxLength:  asInt(field(r, "CHARACTER_MAXIMUM_LENGTH")),
			Precision:  asInt(field(r, "NUMERIC_PRECISION")),
			Scale:      asInt(field(r, "NUMERIC_SCALE")),
			Nullable:   strings.EqualFold(asString(field(r, "IS_NULLABLE")), "YES"),
			Ordinal:    asInt(field(r, "ORDINAL_POSITION")),
		}
		if table == "" || col.Name == "" {
			return nil, &domain.SchemaIntrospectionError{Cause: errors.New("information schema returned a row without table or column name")}
		}
		col.PrimaryKey = keys[table][col.Name]

		i, ok := index[table]
		if !ok {
			i = len(tables)
			index[table] = i
			tables = append(tables, domain.TableDescriptor{Schema: s.schema, TableName: table})
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}

	s.logger.Info("source schema discovered", "schema", s.schema, "tables", len(tables), "columns", len(rows))
	return tables, nil
}

// MapColumns resolves the destination type of every column of d. An
// unmapped type fails the whole table with the offending column named.
func (s *CatalogService) MapColumns(d domain.TableDescriptor) ([]ddl.ColumnDef, error) {
	defs := make([]ddl.ColumnDef, 0, len(d.Columns))
	for _, c := range d.Columns {
		typ, err := typemap.DestinationType(c)
		if err != nil {
			var unsupported *domain.UnsupportedTypeError
			if errors.As(err, &unsupported) {
				return nil, &domain.UnsupportedTypeError{SourceType: unsupported.SourceType, Table: d.TableName, Column: c.Name}
			}
			return nil, err
		}
		defs = append(defs, ddl.ColumnDef{Name: c.Name, Type: typ})
	}
	return defs, nil
}

func field(r domain.Record, name string) any {
	v, _ := r.Get(name)
	return v
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case int32:
		return int(t)
	case int16:
		return int(t)
	case uint8:
		return int(t)
	case []byte:
		n, _ := strconv.Atoi(string(t))
		return n
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}
