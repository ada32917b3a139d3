// Package orchestrator composes catalog, provisioning, pipeline and reset
// into the named run modes exposed to the CLI and the HTTP console.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"erpsync/internal/ddl"
	"erpsync/internal/domain"
)

// Catalog discovers the source tables.
type Catalog interface {
	DiscoverSchema(ctx context.Context) ([]domain.TableDescriptor, error)
}

// Provisioner creates destination tables.
type Provisioner interface {
	ProvisionTable(ctx context.Context, d domain.TableDescriptor) error
}

// TableSyncer copies one table.
type TableSyncer interface {
	SyncTable(ctx context.Context, d domain.TableDescriptor, allow domain.AllowList) (domain.SyncResult, error)
}

// ColumnLister returns the live destination columns of a table.
type ColumnLister interface {
	ExistingColumns(ctx context.Context, table string) (domain.ColumnSet, error)
}

// Resetter performs the destructive destination operations.
type Resetter interface {
	DropAll(ctx context.Context) ([]string, error)
	TruncateAll(ctx context.Context) ([]string, error)
	TruncateOne(ctx context.Context, table string) error
}

// Services bundles the collaborators of an Orchestrator.
type Services struct {
	Catalog   Catalog
	Provision Provisioner
	Pipeline  TableSyncer
	Columns   ColumnLister
	Reset     Resetter
}

// Orchestrator runs one operation at a time. Overlapping calls that touch
// the destination fail with BusyError.
type Orchestrator struct {
	svc       Services
	syncAllow domain.AllowList
	logger    *slog.Logger

	mu      sync.Mutex
	running *activeRun
}

type activeRun struct {
	id   string
	mode domain.RunMode
}

// New creates an Orchestrator. syncAllow is the configured allow-list used
// by SyncSelected when the caller names no tables.
func New(svc Services, syncAllow domain.AllowList, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		svc:       svc,
		syncAllow: syncAllow,
		logger:    logger.With("component", "orchestrator"),
	}
}

// acquire claims the run guard for mode.
func (o *Orchestrator) acquire(mode domain.RunMode) (string, func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running != nil {
		return "", nil, &domain.BusyError{Operation: string(mode), RunID: o.running.id}
	}
	id := uuid.New().String()
	o.running = &activeRun{id: id, mode: mode}
	release := func() {
		o.mu.Lock()
		o.running = nil
		o.mu.Unlock()
	}
	return id, release, nil
}

// ListSourceTables returns the source catalog.
func (o *Orchestrator) ListSourceTables(ctx context.Context) ([]domain.TableDescriptor, error) {
	return o.svc.Catalog.DiscoverSchema(ctx)
}

// ProvisionSchema creates every source table in the destination. It stops at
// the first failing table; the summary lists the tables handled so far.
func (o *Orchestrator) ProvisionSchema(ctx context.Context) (*domain.RunSummary, error) {
	return o.run(ctx, domain.ModeProvision, func(ctx context.Context, sum *domain.RunSummary) error {
		tables, err := o.svc.Catalog.DiscoverSchema(ctx)
		if err != nil {
			return err
		}
		return o.provision(ctx, tables, sum)
	})
}

// SyncSelected copies the named tables. With no names it falls back to the
// configured sync allow-list.
func (o *Orchestrator) SyncSelected(ctx context.Context, tables []string) (*domain.RunSummary, error) {
	allow := o.syncAllow
	if len(tables) > 0 {
		for _, t := range tables {
			if err := ddl.ValidateIdentifier(t); err != nil {
				return nil, domain.ErrValidation("invalid table name %q: %v", t, err)
			}
		}
		allow = domain.OnlyTables(tables...)
	}
	if !allow.All() && len(allow.Names()) == 0 {
		return nil, domain.ErrValidation("no tables selected and no sync allow-list configured")
	}

	return o.run(ctx, domain.ModeSyncSelected, func(ctx context.Context, sum *domain.RunSummary) error {
		catalog, err := o.svc.Catalog.DiscoverSchema(ctx)
		if err != nil {
			return err
		}
		if err := o.syncTables(ctx, catalog, allow, sum); err != nil {
			return err
		}
		o.recordMissing(catalog, allow, sum)
		return nil
	})
}

// SyncAll copies every source table.
func (o *Orchestrator) SyncAll(ctx context.Context) (*domain.RunSummary, error) {
	return o.run(ctx, domain.ModeSyncAll, func(ctx context.Context, sum *domain.RunSummary) error {
		catalog, err := o.svc.Catalog.DiscoverSchema(ctx)
		if err != nil {
			return err
		}
		return o.syncTables(ctx, catalog, domain.AllTables(), sum)
	})
}

// FullSync provisions the schema and then copies every table, using one
// catalog for both phases.
func (o *Orchestrator) FullSync(ctx context.Context) (*domain.RunSummary, error) {
	return o.run(ctx, domain.ModeFullSync, func(ctx context.Context, sum *domain.RunSummary) error {
		catalog, err := o.svc.Catalog.DiscoverSchema(ctx)
		if err != nil {
			return err
		}
		var provisioned domain.RunSummary
		if err := o.provision(ctx, catalog, &provisioned); err != nil {
			sum.Add(provisioned.Results[len(provisioned.Results)-1])
			return err
		}
		return o.syncTables(ctx, catalog, domain.AllTables(), sum)
	})
}

// ExistingColumns returns the destination columns of table in lexical order.
func (o *Orchestrator) ExistingColumns(ctx context.Context, table string) ([]string, error) {
	set, err := o.svc.Columns.ExistingColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	return set.Sorted(), nil
}

// DropAll drops every destination table.
func (o *Orchestrator) DropAll(ctx context.Context) ([]string, error) {
	return o.reset(ctx, domain.ModeDropAll, o.svc.Reset.DropAll)
}

// TruncateAll empties every destination table in one transaction.
func (o *Orchestrator) TruncateAll(ctx context.Context) ([]string, error) {
	return o.reset(ctx, domain.ModeTruncateAll, o.svc.Reset.TruncateAll)
}

// TruncateOne empties one allow-listed destination table.
func (o *Orchestrator) TruncateOne(ctx context.Context, table string) error {
	_, err := o.reset(ctx, domain.ModeTruncateOne, func(ctx context.Context) ([]string, error) {
		return []string{table}, o.svc.Reset.TruncateOne(ctx, table)
	})
	return err
}

func (o *Orchestrator) reset(ctx context.Context, mode domain.RunMode, fn func(context.Context) ([]string, error)) ([]string, error) {
	id, release, err := o.acquire(mode)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	tables, err := fn(domain.WithRunID(ctx, id))
	if err != nil {
		o.logger.Error("run failed", "run_id", id, "mode", mode, "error", err)
		return tables, err
	}
	o.logger.Info("run finished", "run_id", id, "mode", mode, "tables", len(tables), "elapsed", time.Since(start))
	return tables, nil
}

// run wraps fn with the run guard, a run id and the summary log line. The
// summary is returned even when fn fails so callers can report progress.
func (o *Orchestrator) run(ctx context.Context, mode domain.RunMode, fn func(context.Context, *domain.RunSummary) error) (*domain.RunSummary, error) {
	id, release, err := o.acquire(mode)
	if err != nil {
		return nil, err
	}
	defer release()

	sum := &domain.RunSummary{RunID: id, Mode: mode, StartedAt: time.Now().UTC(), Results: []domain.SyncResult{}}
	logger := o.logger.With("run_id", id, "mode", mode)
	logger.Info("run started")

	err = fn(domain.WithRunID(ctx, id), sum)
	sum.Elapsed = time.Since(sum.StartedAt)
	if err != nil {
		logger.Error("run failed", "tables", len(sum.Results), "elapsed", sum.Elapsed, "error", err)
		return sum, err
	}

	level := slog.LevelInfo
	if sum.Partial() {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "run finished",
		"tables", len(sum.Results),
		"rows_read", sum.RowsRead,
		"rows_written", sum.RowsWritten,
		"rows_failed", sum.RowsFailed,
		"tables_failed", sum.Failed,
		"tables_incomplete", sum.Incomplete,
		"tables_skipped", sum.Skipped,
		"elapsed", sum.Elapsed)
	return sum, nil
}

func (o *Orchestrator) provision(ctx context.Context, tables []domain.TableDescriptor, sum *domain.RunSummary) error {
	for _, d := range tables {
		start := time.Now()
		if err := o.svc.Provision.ProvisionTable(ctx, d); err != nil {
			sum.Add(domain.SyncResult{
				TableName: d.TableName,
				Status:    domain.TableFailed,
				Errors:    []domain.RowError{{Message: err.Error()}},
				Elapsed:   time.Since(start),
			})
			return err
		}
		sum.Add(domain.SyncResult{TableName: d.TableName, Status: domain.TableCompleted, Errors: []domain.RowError{}, Elapsed: time.Since(start)})
	}
	return nil
}

func (o *Orchestrator) syncTables(ctx context.Context, catalog []domain.TableDescriptor, allow domain.AllowList, sum *domain.RunSummary) error {
	for _, d := range catalog {
		res, err := o.svc.Pipeline.SyncTable(ctx, d, allow)
		if err != nil {
			return err
		}
		sum.Add(res)
	}
	return nil
}

// recordMissing adds a skipped result for every requested table the source
// does not have.
func (o *Orchestrator) recordMissing(catalog []domain.TableDescriptor, allow domain.AllowList, sum *domain.RunSummary) {
	if allow.All() {
		return
	}
	present := make(map[string]bool, len(catalog))
	for _, d := range catalog {
		present[d.TableName] = true
	}
	for _, name := range allow.Names() {
		if !present[name] {
			sum.Add(domain.SyncResult{
				TableName:  name,
				Status:     domain.TableSkipped,
				SkipReason: "table not present in source",
				Errors:     []domain.RowError{},
			})
		}
	}
}
