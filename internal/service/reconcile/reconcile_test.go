package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpsync/internal/domain"
	"erpsync/internal/testutil"
)

func TestExistingColumns(t *testing.T) {
	dest := testutil.NewFakeDestination()
	dest.CreateTable("Customer", "Id INTEGER", "Name VARCHAR(50)")
	svc := NewReconcileService(dest, 0, testutil.DiscardLogger())

	cols, err := svc.ExistingColumns(context.Background(), "Customer")
	require.NoError(t, err)
	assert.Equal(t, domain.NewColumnSet("Id", "Name"), cols)
	assert.False(t, cols.Has("CreatedAt"))
}

func TestExistingColumns_MissingTable(t *testing.T) {
	svc := NewReconcileService(testutil.NewFakeDestination(), 0, testutil.DiscardLogger())

	cols, err := svc.ExistingColumns(context.Background(), "Nope")
	require.NoError(t, err)
	assert.NotNil(t, cols)
	assert.Empty(t, cols)
}

func TestExistingColumns_Errors(t *testing.T) {
	dest := testutil.NewFakeDestination()
	dest.QueryErr = errors.New("connection reset")
	svc := NewReconcileService(dest, 0, testutil.DiscardLogger())

	_, err := svc.ExistingColumns(context.Background(), "Customer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	_, err = svc.ExistingColumns(context.Background(), "")
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestListTables(t *testing.T) {
	dest := testutil.NewFakeDestination()
	dest.CreateTable("b", "x TEXT")
	dest.CreateTable("a", "x TEXT")
	svc := NewReconcileService(dest, 0, testutil.DiscardLogger())

	names, err := svc.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}
