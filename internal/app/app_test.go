package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpsync/internal/config"
	"erpsync/internal/domain"
	"erpsync/internal/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		Source:            config.SourceConfig{Schema: "dbo"},
		LoadMode:          domain.LoadUpsert,
		TableTransactions: true,
		QueryTimeout:      time.Minute,
		TruncatableTables: []string{"Customer"},
	}
}

func TestNew_WiresOrchestrator(t *testing.T) {
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &testutil.FakeSource{Tables: []testutil.SourceTable{
		testutil.CustomerTable(20, testutil.CustomerRow(1, "Ann", created), testutil.CustomerRow(2, "Bo", created)),
	}}
	dest := testutil.NewFakeDestination()
	a := New(Deps{Cfg: testConfig(), Source: src, Destination: dest, Logger: testutil.DiscardLogger()})

	for range 2 {
		sum, err := a.Orchestrator.FullSync(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, sum.RowsWritten)
	}
	assert.Len(t, dest.Rows("Customer"), 2, "upsert mode keeps re-runs idempotent")

	require.NoError(t, a.Orchestrator.TruncateOne(context.Background(), "Customer"))
	assert.Empty(t, dest.Rows("Customer"))

	require.NoError(t, a.Close())
	assert.True(t, src.Closed)
	assert.True(t, dest.Closed)
}

func TestOpen_MissingSourceHost(t *testing.T) {
	cfg := testConfig()
	cfg.Destination = config.DestinationConfig{Host: "localhost", Database: "erp"}

	_, err := Open(context.Background(), cfg, testutil.DiscardLogger())
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, err.Error(), "SOURCE_HOST")
}
