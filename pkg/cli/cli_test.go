package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpsync/internal/api"
	"erpsync/internal/config"
	"erpsync/internal/domain"
)

type stubEngine struct {
	tables    []domain.TableDescriptor
	summary   *domain.RunSummary
	err       error
	columns   []string
	reset     []string
	gotTables []string
	calls     []string
}

func (s *stubEngine) ListSourceTables(context.Context) ([]domain.TableDescriptor, error) {
	s.calls = append(s.calls, "tables")
	return s.tables, s.err
}

func (s *stubEngine) ProvisionSchema(context.Context) (*domain.RunSummary, error) {
	s.calls = append(s.calls, "provision")
	return s.summary, s.err
}

func (s *stubEngine) SyncSelected(_ context.Context, tables []string) (*domain.RunSummary, error) {
	s.calls = append(s.calls, "sync")
	s.gotTables = tables
	return s.summary, s.err
}

func (s *stubEngine) SyncAll(context.Context) (*domain.RunSummary, error) {
	s.calls = append(s.calls, "sync-all")
	return s.summary, s.err
}

func (s *stubEngine) FullSync(context.Context) (*domain.RunSummary, error) {
	s.calls = append(s.calls, "full-sync")
	return s.summary, s.err
}

func (s *stubEngine) ExistingColumns(_ context.Context, table string) ([]string, error) {
	s.calls = append(s.calls, "columns:"+table)
	return s.columns, s.err
}

func (s *stubEngine) DropAll(context.Context) ([]string, error) {
	s.calls = append(s.calls, "drop-all")
	return s.reset, s.err
}

func (s *stubEngine) TruncateAll(context.Context) ([]string, error) {
	s.calls = append(s.calls, "truncate-all")
	return s.reset, s.err
}

func (s *stubEngine) TruncateOne(_ context.Context, table string) error {
	s.calls = append(s.calls, "truncate:"+table)
	return s.err
}

type harness struct {
	engine   *stubEngine
	env      *env
	closed   int
	terminal bool
	stdin    string
}

// newHarness isolates the command tree from the process environment.
func newHarness(t *testing.T, engine *stubEngine) *harness {
	t.Helper()
	for _, k := range []string{"ENV", "API_KEY", "LOAD_MODE", "SYNC_TABLES", "TRUNCATABLE_TABLES", "QUERY_TIMEOUT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("SYNC_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	h := &harness{engine: engine}
	h.env = &env{
		open: func(context.Context, *config.Config, *slog.Logger) (api.Engine, func() error, error) {
			return engine, func() error { h.closed++; return nil }, nil
		},
		isTerminal: func() bool { return h.terminal },
	}
	return h
}

func (h *harness) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	h.env.stdin = strings.NewReader(h.stdin)
	var stdout, stderr bytes.Buffer
	args = append(args, "--env-file", filepath.Join(t.TempDir(), ".env"))
	code := run(context.Background(), h.env, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func customerSummary() *domain.RunSummary {
	sum := &domain.RunSummary{RunID: "run-1", Mode: domain.ModeSyncAll}
	sum.Add(domain.SyncResult{TableName: "Customer", Status: domain.TableCompleted, RowsRead: 2, RowsWritten: 2})
	sum.Add(domain.SyncResult{
		TableName: "Invoice", Status: domain.TableCompleted, RowsRead: 3, RowsWritten: 2,
		Errors: []domain.RowError{{Row: "Id=7", Message: "value too long"}},
	})
	return sum
}

func TestSyncAll_TableOutput(t *testing.T) {
	h := newHarness(t, &stubEngine{summary: customerSummary()})

	code, out, _ := h.run(t, "sync-all")
	require.Equal(t, 0, code)
	lines := strings.Split(out, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "TABLE     STATUS"), lines[0])
	assert.Contains(t, out, "value too long")
	assert.Contains(t, out, "run run-1 (sync-all): 2 tables, 5 rows read, 4 written, 1 failed")
	assert.Equal(t, 1, h.closed)
}

func TestSyncAll_JSONOutput(t *testing.T) {
	h := newHarness(t, &stubEngine{summary: customerSummary()})

	code, out, _ := h.run(t, "sync-all", "-o", "json")
	require.Equal(t, 0, code)
	var sum domain.RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, 1, sum.RowsFailed)
}

func TestSync_TablesFlag(t *testing.T) {
	engine := &stubEngine{summary: &domain.RunSummary{}}
	h := newHarness(t, engine)

	code, _, _ := h.run(t, "sync", "--tables", "Customer,Invoice")
	require.Equal(t, 0, code)
	assert.Equal(t, []string{"Customer", "Invoice"}, engine.gotTables)

	code, _, _ = h.run(t, "sync")
	require.Equal(t, 0, code)
	assert.Empty(t, engine.gotTables)
}

func TestFatalRun_PrintsPartialSummaryAndExits1(t *testing.T) {
	sum := &domain.RunSummary{RunID: "run-2", Mode: domain.ModeFullSync}
	sum.Add(domain.SyncResult{TableName: "Doc", Status: domain.TableFailed, Errors: []domain.RowError{{Message: "unsupported"}}})
	h := newHarness(t, &stubEngine{summary: sum, err: &domain.UnsupportedTypeError{SourceType: "xml", Table: "Doc", Column: "Body"}})

	code, out, stderr := h.run(t, "full-sync")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Doc")
	assert.Contains(t, stderr, `Error: unsupported source type "xml" for column Doc.Body`)
}

func TestError_JSONOutput(t *testing.T) {
	h := newHarness(t, &stubEngine{err: domain.ErrValidation("table name is empty")})

	code, out, _ := h.run(t, "columns", "x", "-o", "json")
	assert.Equal(t, 1, code)
	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "table name is empty", body["error"])
}

func TestTables(t *testing.T) {
	h := newHarness(t, &stubEngine{tables: []domain.TableDescriptor{{
		TableName: "Customer",
		Columns: []domain.Column{
			{Name: "Id", SourceType: "int", PrimaryKey: true},
			{Name: "Doc", SourceType: "xml", Nullable: true},
		},
	}}})

	code, out, _ := h.run(t, "tables")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "DESTINATION_TYPE")
	assert.Contains(t, out, "INTEGER")
	assert.Contains(t, out, "(unsupported)")
}

func TestColumns(t *testing.T) {
	engine := &stubEngine{columns: []string{"Id", "Name"}}
	h := newHarness(t, engine)

	code, out, _ := h.run(t, "columns", "Customer")
	require.Equal(t, 0, code)
	assert.Equal(t, "COLUMN\nId\nName\n", out)
	assert.Equal(t, []string{"columns:Customer"}, engine.calls)
}

func TestDestructive_RequiresConfirmation(t *testing.T) {
	t.Run("non-interactive without --yes", func(t *testing.T) {
		engine := &stubEngine{}
		h := newHarness(t, engine)
		code, _, stderr := h.run(t, "drop-all")
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "--yes")
		assert.Empty(t, engine.calls)
	})

	t.Run("with --yes", func(t *testing.T) {
		engine := &stubEngine{reset: []string{"Customer"}}
		h := newHarness(t, engine)
		code, out, _ := h.run(t, "truncate-all", "--yes")
		require.Equal(t, 0, code)
		assert.Equal(t, []string{"truncate-all"}, engine.calls)
		assert.Contains(t, out, "Customer")
	})

	t.Run("interactive yes", func(t *testing.T) {
		engine := &stubEngine{}
		h := newHarness(t, engine)
		h.terminal = true
		h.stdin = "yes\n"
		code, _, stderr := h.run(t, "drop-all")
		require.Equal(t, 0, code)
		assert.Contains(t, stderr, "Type 'yes'")
		assert.Equal(t, []string{"drop-all"}, engine.calls)
	})

	t.Run("interactive no", func(t *testing.T) {
		engine := &stubEngine{}
		h := newHarness(t, engine)
		h.terminal = true
		h.stdin = "n\n"
		code, _, stderr := h.run(t, "truncate-all")
		require.Equal(t, 0, code)
		assert.Contains(t, stderr, "aborted")
		assert.Empty(t, engine.calls)
	})
}

func TestTruncate(t *testing.T) {
	engine := &stubEngine{err: &domain.ForbiddenOperationError{Table: "Customer"}}
	h := newHarness(t, engine)

	code, _, stderr := h.run(t, "truncate", "Customer")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not allowed")
	assert.Equal(t, []string{"truncate:Customer"}, engine.calls)
}

func TestVersion_SkipsConfig(t *testing.T) {
	h := newHarness(t, &stubEngine{})
	t.Setenv("ENV", "production")

	code, out, _ := h.run(t, "version")
	require.Equal(t, 0, code)
	assert.Equal(t, "erpsync version dev (commit: none)\n", out)
}

func TestInvalidOutputFormat(t *testing.T) {
	h := newHarness(t, &stubEngine{})
	code, _, stderr := h.run(t, "tables", "-o", "yaml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unsupported output format")
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, []string{"name", "rows"}, [][]string{{"Customer", "2"}, {"Invoice", "10"}}))
	assert.Equal(t, "NAME      ROWS\nCustomer  2\nInvoice   10\n", buf.String())
}
