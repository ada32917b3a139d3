package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpsync/internal/ddl"
	"erpsync/internal/domain"
	"erpsync/internal/testutil"
)

func TestDiscoverSchema(t *testing.T) {
	src := &testutil.FakeSource{Tables: []testutil.SourceTable{
		{
			Name: "Invoice",
			Columns: []domain.Column{
				{Name: "No", SourceType: "int", PrimaryKey: true},
				{Name: "Total", SourceType: "money", Precision: 19, Scale: 4},
			},
		},
		testutil.CustomerTable(50),
	}}
	svc := NewCatalogService(src, "", testutil.DiscardLogger())

	tables, err := svc.DiscoverSchema(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.Equal(t, "Customer", tables[0].TableName)
	assert.Equal(t, []string{"Id", "Name", "CreatedAt"}, tables[0].ColumnNames())
	name, ok := tables[0].Column("Name")
	require.True(t, ok)
	assert.Equal(t, "nvarchar", name.SourceType)
	assert.Equal(t, 50, name.MaxLength)
	assert.True(t, name.Nullable)
	assert.Equal(t, 2, name.Ordinal)
	assert.Equal(t, []string{"Id"}, tables[0].PrimaryKey())

	assert.Equal(t, "Invoice", tables[1].TableName)
	total, _ := tables[1].Column("Total")
	assert.Equal(t, 19, total.Precision)
	assert.Equal(t, 4, total.Scale)

	for _, tbl := range tables {
		assert.NotEmpty(t, tbl.Columns, tbl.TableName)
	}
	require.Len(t, src.Queries, 2)
	assert.Contains(t, src.Queries[0], "TABLE_TYPE = 'BASE TABLE'")
}

func TestDiscoverSchema_ConfiguredSchema(t *testing.T) {
	src := &testutil.FakeSource{Schema: "erp", Tables: []testutil.SourceTable{testutil.CustomerTable(50)}}

	tables, err := NewCatalogService(src, "erp", testutil.DiscardLogger()).DiscoverSchema(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "erp", tables[0].Schema)
	assert.Equal(t, "Customer", tables[0].TableName)

	tables, err = NewCatalogService(src, "dbo", testutil.DiscardLogger()).DiscoverSchema(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestDiscoverSchema_Failures(t *testing.T) {
	t.Run("unreachable_source", func(t *testing.T) {
		src := &testutil.FakeSource{Err: domain.ErrSourceConnection(errors.New("dial tcp: refused"))}
		_, err := NewCatalogService(src, "dbo", testutil.DiscardLogger()).DiscoverSchema(context.Background())

		var introspection *domain.SchemaIntrospectionError
		require.ErrorAs(t, err, &introspection)
		var conn *domain.ConnectionError
		assert.ErrorAs(t, err, &conn)
	})

	t.Run("primary_key_query_fails", func(t *testing.T) {
		calls := 0
		src := &testutil.FakeSource{QueryFn: func(context.Context, string, ...any) ([]domain.Record, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("permission denied")
			}
			return nil, nil
		}}
		_, err := NewCatalogService(src, "dbo", testutil.DiscardLogger()).DiscoverSchema(context.Background())

		var introspection *domain.SchemaIntrospectionError
		require.ErrorAs(t, err, &introspection)
		assert.Contains(t, err.Error(), "list primary keys")
	})

	t.Run("empty_schema", func(t *testing.T) {
		tables, err := NewCatalogService(&testutil.FakeSource{}, "dbo", testutil.DiscardLogger()).DiscoverSchema(context.Background())
		require.NoError(t, err)
		assert.Empty(t, tables)
	})
}

func TestMapColumns(t *testing.T) {
	svc := NewCatalogService(&testutil.FakeSource{}, "dbo", testutil.DiscardLogger())

	defs, err := svc.MapColumns(domain.TableDescriptor{
		TableName: "Customer",
		Columns: []domain.Column{
			{Name: "Id", SourceType: "int"},
			{Name: "Name", SourceType: "nvarchar", MaxLength: 50},
			{Name: "Ref", SourceType: "uniqueidentifier"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []ddl.ColumnDef{
		{Name: "Id", Type: "INTEGER"},
		{Name: "Name", Type: "VARCHAR(50)"},
		{Name: "Ref", Type: "UUID"},
	}, defs)

	_, err = svc.MapColumns(domain.TableDescriptor{
		TableName: "Doc",
		Columns: []domain.Column{
			{Name: "Id", SourceType: "int"},
			{Name: "Body", SourceType: "xml"},
		},
	})
	var unsupported *domain.UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "xml", unsupported.SourceType)
	assert.Equal(t, "Doc", unsupported.Table)
	assert.Equal(t, "Body", unsupported.Column)
	assert.Contains(t, err.Error(), "Doc.Body")
}
