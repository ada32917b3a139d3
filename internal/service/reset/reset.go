// Package reset implements the destructive administrative operations on the
// destination schema: drop everything, truncate everything, truncate one.
package reset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"erpsync/internal/ddl"
	"erpsync/internal/domain"
)

// TableLister lists the destination base tables.
type TableLister interface {
	ListTables(ctx context.Context) ([]string, error)
}

// ResetService drops or empties destination tables.
//
//nolint:revive // Name chosen for clarity across package boundaries
type ResetService struct {
	dest        domain.DestinationConnector
	tables      TableLister
	truncatable domain.AllowList
	timeout     time.Duration
	logger      *slog.Logger
}

// NewResetService creates a new ResetService. truncatable restricts
// TruncateOne; the bulk operations are not restricted by it.
func NewResetService(dest domain.DestinationConnector, tables TableLister, truncatable domain.AllowList,
	timeout time.Duration, logger *slog.Logger) *ResetService {
	return &ResetService{
		dest:        dest,
		tables:      tables,
		truncatable: truncatable,
		timeout:     timeout,
		logger:      logger.With("component", "reset"),
	}
}

// DropAll drops every base table of the destination schema with CASCADE and
// returns the dropped names. The first failure aborts the operation.
func (s *ResetService) DropAll(ctx context.Context) ([]string, error) {
	names, err := s.tables.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	dropped := make([]string, 0, len(names))
	for _, name := range names {
		stmt, err := ddl.DropTableIfExists(ddl.DefaultSchema, name)
		if err != nil {
			return dropped, domain.ErrValidation("table %s: %v", name, err)
		}
		if err := s.exec(ctx, s.dest, stmt); err != nil {
			s.logger.Error("drop aborted", "table", name, "dropped", len(dropped), "error", err)
			return dropped, fmt.Errorf("drop table %s: %w", name, err)
		}
		dropped = append(dropped, name)
	}
	s.logger.Info("destination tables dropped", "tables", len(dropped))
	return dropped, nil
}

// TruncateAll empties every base table and restarts identity sequences in a
// single transaction with constraints deferred. On failure nothing is
// truncated.
func (s *ResetService) TruncateAll(ctx context.Context) ([]string, error) {
	names, err := s.tables.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	stmts := make([]string, 0, len(names))
	for _, name := range names {
		stmt, err := ddl.Truncate(ddl.DefaultSchema, name)
		if err != nil {
			return nil, domain.ErrValidation("table %s: %v", name, err)
		}
		stmts = append(stmts, stmt)
	}

	tx, err := s.dest.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin truncate: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := s.exec(ctx, tx, ddl.DeferConstraints); err != nil {
		return nil, fmt.Errorf("defer constraints: %w", err)
	}
	for i, stmt := range stmts {
		if err := s.exec(ctx, tx, stmt); err != nil {
			s.logger.Error("truncate rolled back", "table", names[i], "error", err)
			return nil, fmt.Errorf("truncate table %s: %w", names[i], err)
		}
	}
	if err := s.exec(ctx, tx, ddl.RestoreConstraints); err != nil {
		return nil, fmt.Errorf("restore constraints: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit truncate: %w", err)
	}
	s.logger.Info("destination tables truncated", "tables", len(names))
	return names, nil
}

// TruncateOne empties a single table. Tables outside the truncatable
// allow-list are rejected with ForbiddenOperationError before anything runs.
func (s *ResetService) TruncateOne(ctx context.Context, table string) error {
	if err := ddl.ValidateIdentifier(table); err != nil {
		return domain.ErrValidation("invalid table name: %v", err)
	}
	if !s.truncatable.Allows(table) {
		s.logger.Warn("truncate rejected", "table", table)
		return &domain.ForbiddenOperationError{Table: table}
	}
	stmt, err := ddl.Truncate(ddl.DefaultSchema, table)
	if err != nil {
		return domain.ErrValidation("table %s: %v", table, err)
	}
	if err := s.exec(ctx, s.dest, stmt); err != nil {
		return fmt.Errorf("truncate table %s: %w", table, err)
	}
	s.logger.Info("destination table truncated", "table", table)
	return nil
}

func (s *ResetService) exec(ctx context.Context, e domain.Execer, stmt string) error {
	qctx, cancel := domain.WithQueryTimeout(ctx, s.timeout)
	defer cancel()
	return e.Exec(qctx, stmt)
}
