// Package reconcile reads the live column layout of destination tables.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"erpsync/internal/ddl"
	"erpsync/internal/domain"
)

// Querier runs read-only queries against the destination.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) ([]domain.Record, error)
}

// ReconcileService answers which columns a destination table has right now.
//
//nolint:revive // Name chosen for clarity across package boundaries
type ReconcileService struct {
	dest         Querier
	schema       string
	queryTimeout time.Duration
	logger       *slog.Logger
}

// NewReconcileService creates a new ReconcileService for the public schema.
func NewReconcileService(dest Querier, queryTimeout time.Duration, logger *slog.Logger) *ReconcileService {
	return &ReconcileService{
		dest:         dest,
		schema:       ddl.DefaultSchema,
		queryTimeout: queryTimeout,
		logger:       logger.With("component", "reconcile"),
	}
}

// ExistingColumns returns the column names of table. A table that does not
// exist yields an empty set, not an error.
func (s *ReconcileService) ExistingColumns(ctx context.Context, table string) (domain.ColumnSet, error) {
	if err := ddl.ValidateIdentifier(table); err != nil {
		return nil, domain.ErrValidation("invalid table name: %v", err)
	}
	qctx, cancel := domain.WithQueryTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.dest.Query(qctx, ddl.ExistingColumnsQuery, s.schema, table)
	if err != nil {
		return nil, fmt.Errorf("existing columns of %s: %w", table, err)
	}
	set := make(domain.ColumnSet, len(rows))
	for _, r := range rows {
		if len(r.Values) > 0 {
			set[fmt.Sprint(r.Values[0])] = struct{}{}
		}
	}
	if len(set) == 0 {
		s.logger.Debug("destination table has no columns", "table", table)
	}
	return set, nil
}

// ListTables returns the base tables of the destination schema.
func (s *ReconcileService) ListTables(ctx context.Context) ([]string, error) {
	qctx, cancel := domain.WithQueryTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.dest.Query(qctx, ddl.ListTablesQuery, s.schema)
	if err != nil {
		return nil, fmt.Errorf("list destination tables: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if len(r.Values) > 0 {
			names = append(names, fmt.Sprint(r.Values[0]))
		}
	}
	return names, nil
}
