package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTableIfNotExists(t *testing.T) {
	tests := []struct {
		name       string
		table      string
		columns    []ColumnDef
		primaryKey []string
		want       string
		wantErr    string
	}{
		{
			name:  "preserves_column_order",
			table: "Customer",
			columns: []ColumnDef{
				{Name: "Id", Type: "INTEGER"},
				{Name: "Name", Type: "VARCHAR(50)"},
				{Name: "CreatedAt", Type: "TIMESTAMP"},
			},
			want: `CREATE TABLE IF NOT EXISTS "public"."Customer" ("Id" INTEGER, "Name" VARCHAR(50), "CreatedAt" TIMESTAMP)`,
		},
		{
			name:    "single_column",
			table:   "T",
			columns: []ColumnDef{{Name: "a", Type: "TEXT"}},
			want:    `CREATE TABLE IF NOT EXISTS "public"."T" ("a" TEXT)`,
		},
		{
			name:  "with_primary_key",
			table: "OrderLine",
			columns: []ColumnDef{
				{Name: "OrderId", Type: "INTEGER"},
				{Name: "Line", Type: "SMALLINT"},
				{Name: "Qty", Type: "NUMERIC"},
			},
			primaryKey: []string{"OrderId", "Line"},
			want:       `CREATE TABLE IF NOT EXISTS "public"."OrderLine" ("OrderId" INTEGER, "Line" SMALLINT, "Qty" NUMERIC, PRIMARY KEY ("OrderId", "Line"))`,
		},
		{
			name:    "quotes_odd_names",
			table:   "Order Lines",
			columns: []ColumnDef{{Name: `a"b`, Type: "TEXT"}},
			want:    `CREATE TABLE IF NOT EXISTS "public"."Order Lines" ("a""b" TEXT)`,
		},
		{
			name:    "no_columns",
			table:   "T",
			wantErr: "at least one column is required",
		},
		{
			name:    "empty_table",
			table:   "",
			columns: []ColumnDef{{Name: "a", Type: "TEXT"}},
			wantErr: "invalid table name",
		},
		{
			name:    "bad_type",
			table:   "T",
			columns: []ColumnDef{{Name: "a", Type: "TEXT; DROP TABLE x"}},
			wantErr: `invalid column type for "a"`,
		},
		{
			name:       "unknown_key_column",
			table:      "T",
			columns:    []ColumnDef{{Name: "a", Type: "TEXT"}},
			primaryKey: []string{"b"},
			wantErr:    `primary key column "b"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CreateTableIfNotExists(tt.table, tt.columns, tt.primaryKey)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInsert(t *testing.T) {
	got, err := Insert("Customer", []string{"Id", "Name", "CreatedAt"})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "public"."Customer" ("Id", "Name", "CreatedAt") VALUES ($1, $2, $3)`, got)

	_, err = Insert("Customer", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one column")

	_, err = Insert("Customer", []string{""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid column name")
}

func TestUpsert(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		key     []string
		want    string
		wantErr string
	}{
		{
			name:    "updates_non_key_columns",
			columns: []string{"Id", "Name"},
			key:     []string{"Id"},
			want:    `INSERT INTO "public"."Customer" ("Id", "Name") VALUES ($1, $2) ON CONFLICT ("Id") DO UPDATE SET "Name" = EXCLUDED."Name"`,
		},
		{
			name:    "key_only_does_nothing",
			columns: []string{"Id"},
			key:     []string{"Id"},
			want:    `INSERT INTO "public"."Customer" ("Id") VALUES ($1) ON CONFLICT ("Id") DO NOTHING`,
		},
		{
			name:    "missing_key",
			columns: []string{"Id"},
			wantErr: "conflict key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Upsert("Customer", tt.columns, tt.key)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDropTableIfExists(t *testing.T) {
	got, err := DropTableIfExists("public", "Customer")
	require.NoError(t, err)
	assert.Equal(t, `DROP TABLE IF EXISTS "public"."Customer" CASCADE`, got)

	_, err = DropTableIfExists("", "Customer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schema name")
}

func TestTruncate(t *testing.T) {
	got, err := Truncate("public", "Customer")
	require.NoError(t, err)
	assert.Equal(t, `TRUNCATE TABLE "public"."Customer" RESTART IDENTITY CASCADE`, got)

	_, err = Truncate("public", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}
