package provision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpsync/internal/domain"
	"erpsync/internal/service/catalog"
	"erpsync/internal/service/reconcile"
	"erpsync/internal/testutil"
)

func newService(dest domain.Execer, mode domain.LoadMode) *ProvisionService {
	mapper := catalog.NewCatalogService(&testutil.FakeSource{}, "dbo", testutil.DiscardLogger())
	return NewProvisionService(mapper, dest, mode, 0, testutil.DiscardLogger())
}

func customer() domain.TableDescriptor {
	return domain.TableDescriptor{
		TableName: "Customer",
		Columns: []domain.Column{
			{Name: "Id", SourceType: "int", PrimaryKey: true},
			{Name: "Name", SourceType: "nvarchar", MaxLength: 50},
			{Name: "CreatedAt", SourceType: "datetime"},
		},
	}
}

func TestProvisionTable(t *testing.T) {
	dest := testutil.NewFakeDestination()
	svc := newService(dest, domain.LoadAppend)

	require.NoError(t, svc.ProvisionTable(context.Background(), customer()))

	stmts := dest.StatementsWithPrefix("CREATE TABLE")
	require.Len(t, stmts, 1)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "public"."Customer" ("Id" INTEGER, "Name" VARCHAR(50), "CreatedAt" TIMESTAMP)`, stmts[0].SQL)
	assert.Equal(t, []string{"Id INTEGER", "Name VARCHAR(50)", "CreatedAt TIMESTAMP"}, dest.ColumnDefs("Customer"))
}

func TestProvisionTable_VisibleToReconciler(t *testing.T) {
	dest := testutil.NewFakeDestination()
	require.NoError(t, newService(dest, domain.LoadAppend).ProvisionTable(context.Background(), customer()))

	cols, err := reconcile.NewReconcileService(dest, 0, testutil.DiscardLogger()).ExistingColumns(context.Background(), "Customer")
	require.NoError(t, err)
	assert.Equal(t, []string{"CreatedAt", "Id", "Name"}, cols.Sorted())
}

func TestProvisionTable_UpsertDeclaresPrimaryKey(t *testing.T) {
	dest := testutil.NewFakeDestination()
	svc := newService(dest, domain.LoadUpsert)

	require.NoError(t, svc.ProvisionTable(context.Background(), customer()))

	stmts := dest.StatementsWithPrefix("CREATE TABLE")
	require.Len(t, stmts, 1)
	assert.True(t, strings.HasSuffix(stmts[0].SQL, `, PRIMARY KEY ("Id"))`), stmts[0].SQL)
}

func TestProvisionAll_Idempotent(t *testing.T) {
	dest := testutil.NewFakeDestination()
	svc := newService(dest, domain.LoadAppend)
	tables := []domain.TableDescriptor{customer(), {
		TableName: "Invoice",
		Columns:   []domain.Column{{Name: "No", SourceType: "int"}},
	}}

	require.NoError(t, svc.ProvisionAll(context.Background(), tables))
	first := map[string][]string{"Customer": dest.ColumnDefs("Customer"), "Invoice": dest.ColumnDefs("Invoice")}
	dest.SeedRows("Customer", map[string]any{"Id": int64(1)})

	require.NoError(t, svc.ProvisionAll(context.Background(), tables))
	assert.Equal(t, first["Customer"], dest.ColumnDefs("Customer"))
	assert.Equal(t, first["Invoice"], dest.ColumnDefs("Invoice"))
	assert.Len(t, dest.Rows("Customer"), 1, "second run must not touch existing data")

	for _, s := range dest.Statements {
		assert.True(t, strings.HasPrefix(s.SQL, "CREATE TABLE IF NOT EXISTS"), s.SQL)
	}
}

func TestProvisionAll_FailFast(t *testing.T) {
	dest := testutil.NewFakeDestination()
	svc := newService(dest, domain.LoadAppend)
	tables := []domain.TableDescriptor{
		customer(),
		{TableName: "Doc", Columns: []domain.Column{{Name: "Body", SourceType: "xml"}}},
		{TableName: "Invoice", Columns: []domain.Column{{Name: "No", SourceType: "int"}}},
	}

	err := svc.ProvisionAll(context.Background(), tables)
	var unsupported *domain.UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "Doc", unsupported.Table)
	assert.Equal(t, "Body", unsupported.Column)

	assert.True(t, dest.HasTable("Customer"))
	assert.False(t, dest.HasTable("Doc"))
	assert.False(t, dest.HasTable("Invoice"), "provisioning must stop at the first failure")
}

func TestProvisionAll_DestinationError(t *testing.T) {
	dest := testutil.NewFakeDestination()
	dest.ExecFn = func(context.Context, string, []any) error { return errors.New("permission denied for schema public") }
	svc := newService(dest, domain.LoadAppend)

	err := svc.ProvisionAll(context.Background(), []domain.TableDescriptor{customer()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create table Customer")
	assert.Contains(t, err.Error(), "permission denied")
}
