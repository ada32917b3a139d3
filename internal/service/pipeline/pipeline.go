// Package pipeline implements the per-table extract, transform and load
// loop that copies source rows into the destination.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"erpsync/internal/ddl"
	"erpsync/internal/domain"
	"erpsync/internal/typemap"
)

// ColumnLister returns the live destination columns of a table.
type ColumnLister interface {
	ExistingColumns(ctx context.Context, table string) (domain.ColumnSet, error)
}

// Options tune how rows are loaded.
type Options struct {
	LoadMode domain.LoadMode
	// TableTransactions wraps each table's inserts in one transaction with a
	// savepoint per row.
	TableTransactions bool
	// QueryTimeout bounds each extraction and each row insert.
	QueryTimeout time.Duration
}

// PipelineService runs the row pipeline one table at a time. It is not safe
// for concurrent runs against the same destination tables.
//
//nolint:revive // Name chosen for clarity across package boundaries
type PipelineService struct {
	source  domain.SourceConnector
	dest    domain.DestinationConnector
	columns ColumnLister
	opts    Options
	logger  *slog.Logger
}

// NewPipelineService creates a new PipelineService.
func NewPipelineService(source domain.SourceConnector, dest domain.DestinationConnector,
	columns ColumnLister, opts Options, logger *slog.Logger) *PipelineService {
	if opts.LoadMode == "" {
		opts.LoadMode = domain.LoadAppend
	}
	return &PipelineService{
		source:  source,
		dest:    dest,
		columns: columns,
		opts:    opts,
		logger:  logger.With("component", "pipeline"),
	}
}

// loadPlan is the statement and per-column conversion for one table.
type loadPlan struct {
	stmt       string
	columns    []string // written columns, in source result order
	positions  []int    // index of each written column in the record
	categories []typemap.Category
	keyColumns []string // columns used to identify a row in errors
}

// SyncTable copies one table. Row failures and extraction failures are
// recorded in the result; the returned error is non-nil only for failures
// that must stop the whole run (an unreachable destination or a cancelled
// context).
func (s *PipelineService) SyncTable(ctx context.Context, d domain.TableDescriptor, allow domain.AllowList) (domain.SyncResult, error) {
	start := time.Now()
	logger := s.logger.With("table", d.TableName)
	if id := domain.RunIDFromContext(ctx); id != "" {
		logger = logger.With("run_id", id)
	}
	res := domain.SyncResult{TableName: d.TableName, Status: domain.TableCompleted, Errors: []domain.RowError{}}
	finish := func() domain.SyncResult {
		res.Elapsed = time.Since(start)
		return res
	}

	if !allow.Allows(d.TableName) {
		res.Status = domain.TableSkipped
		res.SkipReason = "not in allow-list"
		logger.Debug("table skipped", "reason", res.SkipReason)
		return finish(), nil
	}

	// Extract
	records, err := s.extract(ctx, d)
	if err != nil {
		if fatal := fatalError(ctx, err); fatal != nil {
			return finish(), fatal
		}
		extractErr := &domain.TableExtractionError{Table: d.TableName, Cause: err}
		logger.Error("table extraction failed", "error", extractErr)
		res.Status = domain.TableFailed
		res.Errors = append(res.Errors, domain.RowError{Message: extractErr.Error()})
		return finish(), nil
	}
	res.RowsRead = len(records)

	// Reconcile
	existing, err := s.columns.ExistingColumns(ctx, d.TableName)
	if err != nil {
		if fatal := fatalError(ctx, err); fatal != nil {
			return finish(), fatal
		}
		logger.Error("column reconciliation failed", "error", err)
		res.Status = domain.TableFailed
		res.Errors = append(res.Errors, domain.RowError{Message: err.Error()})
		return finish(), nil
	}
	if len(existing) == 0 {
		res.Status = domain.TableSkipped
		res.SkipReason = "table not present in destination"
		logger.Warn("table skipped", "reason", res.SkipReason, "rows_read", res.RowsRead)
		return finish(), nil
	}
	if len(records) == 0 {
		logger.Info("table synced", "rows_read", 0, "rows_written", 0)
		return finish(), nil
	}

	plan, err := s.plan(d, records[0].Columns, existing, logger)
	if err != nil {
		res.Status = domain.TableSkipped
		res.SkipReason = err.Error()
		logger.Warn("table skipped", "reason", res.SkipReason)
		return finish(), nil
	}

	// Load
	if s.opts.TableTransactions {
		err = s.loadInTransaction(ctx, d.TableName, plan, records, &res, logger)
	} else {
		err = s.loadDirect(ctx, d.TableName, plan, records, &res, logger)
	}
	if err != nil {
		return finish(), err
	}

	level := slog.LevelInfo
	if len(res.Errors) > 0 {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "table synced",
		"status", res.Status,
		"rows_read", res.RowsRead,
		"rows_written", res.RowsWritten,
		"rows_failed", res.RowsFailed(),
		"elapsed", time.Since(start))
	return finish(), nil
}

func (s *PipelineService) extract(ctx context.Context, d domain.TableDescriptor) ([]domain.Record, error) {
	qctx, cancel := domain.WithQueryTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	return s.source.Query(qctx, "SELECT * FROM "+s.sourceTable(d))
}

// sourceTable is the schema-qualified source name of d. Unqualified names
// would resolve against the login's default schema.
func (s *PipelineService) sourceTable(d domain.TableDescriptor) string {
	if d.Schema == "" {
		return s.source.QuoteIdentifier(d.TableName)
	}
	return s.source.QuoteIdentifier(d.Schema) + "." + s.source.QuoteIdentifier(d.TableName)
}

// plan restricts the written columns to those that exist in the destination
// and picks the insert or upsert statement.
func (s *PipelineService) plan(d domain.TableDescriptor, recordColumns []string, existing domain.ColumnSet, logger *slog.Logger) (loadPlan, error) {
	var p loadPlan
	written := make(map[string]bool)
	for i, c := range recordColumns {
		if !existing.Has(c) {
			continue
		}
		cat := typemap.Unsupported
		if col, ok := d.Column(c); ok {
			if mapped, err := typemap.CategoryOf(col.SourceType); err == nil {
				cat = mapped
			}
		}
		p.columns = append(p.columns, c)
		p.positions = append(p.positions, i)
		p.categories = append(p.categories, cat)
		written[c] = true
	}
	if len(p.columns) == 0 {
		return p, errors.New("no source column exists in the destination table")
	}
	if dropped := len(recordColumns) - len(p.columns); dropped > 0 {
		logger.Warn("source columns missing in destination are not written", "dropped", dropped)
	}

	key := d.PrimaryKey()
	keyWritten := len(key) > 0
	for _, k := range key {
		keyWritten = keyWritten && written[k]
	}
	if keyWritten {
		p.keyColumns = key
	} else {
		p.keyColumns = p.columns[:min(len(p.columns), 3)]
	}

	var err error
	switch {
	case s.opts.LoadMode == domain.LoadUpsert && keyWritten:
		p.stmt, err = ddl.Upsert(d.TableName, p.columns, key)
	case s.opts.LoadMode == domain.LoadUpsert:
		logger.Warn("table has no usable primary key; falling back to plain insert")
		fallthrough
	default:
		p.stmt, err = ddl.Insert(d.TableName, p.columns)
	}
	if err != nil {
		return p, err
	}
	return p, nil
}

// loadInTransaction loads all rows in one transaction with a savepoint per
// row, so a bad row is rolled back alone. A timeout aborts the table and
// rolls back everything it wrote.
func (s *PipelineService) loadInTransaction(ctx context.Context, table string, p loadPlan,
	records []domain.Record, res *domain.SyncResult, logger *slog.Logger) error {

	tx, err := s.dest.Begin(ctx)
	if err != nil {
		if fatal := fatalError(ctx, err); fatal != nil {
			return fatal
		}
		res.Status = domain.TableFailed
		res.Errors = append(res.Errors, domain.RowError{Message: fmt.Sprintf("begin transaction: %v", err)})
		return nil
	}

	written := 0
	for i, rec := range records {
		rowCtx := describeRow(i+1, rec, p.keyColumns)
		args, err := p.args(rec)
		if err != nil {
			s.rowFailed(res, table, rowCtx, err, logger)
			continue
		}

		err = s.insertWithSavepoint(ctx, tx, p.stmt, args)
		if err == nil {
			written++
			continue
		}
		if isTimeout(ctx, err) {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return s.abortTable(ctx, res, table, rowCtx, err, 0, logger)
		}
		if fatal := fatalError(ctx, err); fatal != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return fatal
		}
		s.rowFailed(res, table, rowCtx, err, logger)
	}

	cctx, cancel := domain.WithQueryTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	if err := tx.Commit(cctx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return s.abortTable(ctx, res, table, "commit", err, 0, logger)
	}
	res.RowsWritten = written
	return nil
}

func (s *PipelineService) insertWithSavepoint(ctx context.Context, tx domain.DestinationTx, stmt string, args []any) error {
	qctx, cancel := domain.WithQueryTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()

	sp, err := tx.Begin(qctx)
	if err != nil {
		return err
	}
	if err := sp.Exec(qctx, stmt, args...); err != nil {
		_ = sp.Rollback(context.WithoutCancel(ctx))
		return err
	}
	return sp.Commit(qctx)
}

// loadDirect inserts rows one statement at a time without a transaction.
// Rows written before a timeout stay written.
func (s *PipelineService) loadDirect(ctx context.Context, table string, p loadPlan,
	records []domain.Record, res *domain.SyncResult, logger *slog.Logger) error {

	for i, rec := range records {
		rowCtx := describeRow(i+1, rec, p.keyColumns)
		args, err := p.args(rec)
		if err != nil {
			s.rowFailed(res, table, rowCtx, err, logger)
			continue
		}

		err = s.exec(ctx, s.dest, p.stmt, args)
		if err == nil {
			res.RowsWritten++
			continue
		}
		if isTimeout(ctx, err) {
			return s.abortTable(ctx, res, table, rowCtx, err, res.RowsWritten, logger)
		}
		if fatal := fatalError(ctx, err); fatal != nil {
			return fatal
		}
		s.rowFailed(res, table, rowCtx, err, logger)
	}
	return nil
}

func (s *PipelineService) exec(ctx context.Context, e domain.Execer, stmt string, args []any) error {
	qctx, cancel := domain.WithQueryTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	return e.Exec(qctx, stmt, args...)
}

func (s *PipelineService) rowFailed(res *domain.SyncResult, table, rowCtx string, cause error, logger *slog.Logger) {
	err := &domain.RowLoadError{Table: table, RowContext: rowCtx, Cause: cause}
	logger.Warn("row load failed", "row", rowCtx, "error", err.Cause)
	res.Errors = append(res.Errors, domain.RowError{Row: rowCtx, Message: cause.Error()})
}

// abortTable marks the table incomplete after a per-query timeout. A
// cancelled caller context stops the run instead.
func (s *PipelineService) abortTable(ctx context.Context, res *domain.SyncResult, table, at string,
	cause error, written int, logger *slog.Logger) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	res.Status = domain.TableIncomplete
	res.RowsWritten = written
	res.Errors = append(res.Errors, domain.RowError{Message: fmt.Sprintf("load of %s aborted at %s: %v", table, at, cause)})
	logger.Error("table load incomplete", "at", at, "rows_written", written, "error", cause)
	return nil
}

func (p loadPlan) args(rec domain.Record) ([]any, error) {
	args := make([]any, len(p.columns))
	for i, pos := range p.positions {
		if pos >= len(rec.Values) {
			return nil, fmt.Errorf("row has no value for column %s", p.columns[i])
		}
		v, err := convertValue(p.categories[i], rec.Values[pos])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", p.columns[i], err)
		}
		args[i] = v
	}
	return args, nil
}

// describeRow identifies a row for logs: its position plus key values.
func describeRow(n int, rec domain.Record, keyColumns []string) string {
	parts := make([]string, 0, len(keyColumns))
	for _, k := range keyColumns {
		v, _ := rec.Get(k)
		parts = append(parts, k+"="+formatValue(v))
	}
	return fmt.Sprintf("row %d: %s", n, strings.Join(parts, ", "))
}

// isTimeout reports a per-query deadline that expired while the caller's
// context is still live, or a caller cancellation.
func isTimeout(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}

// fatalError returns the error that must stop the run, if any.
func fatalError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var conn *domain.ConnectionError
	if errors.As(err, &conn) {
		return err
	}
	return nil
}
