// Package provision creates destination tables from the source catalog.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"erpsync/internal/ddl"
	"erpsync/internal/domain"
)

// ColumnMapper resolves destination column definitions for a table.
type ColumnMapper interface {
	MapColumns(d domain.TableDescriptor) ([]ddl.ColumnDef, error)
}

// ProvisionService issues CREATE TABLE IF NOT EXISTS for catalog tables.
// Existing tables are never altered.
//
//nolint:revive // Name chosen for clarity across package boundaries
type ProvisionService struct {
	mapper       ColumnMapper
	dest         domain.Execer
	loadMode     domain.LoadMode
	queryTimeout time.Duration
	logger       *slog.Logger
}

// NewProvisionService creates a new ProvisionService.
func NewProvisionService(mapper ColumnMapper, dest domain.Execer, loadMode domain.LoadMode,
	queryTimeout time.Duration, logger *slog.Logger) *ProvisionService {
	return &ProvisionService{
		mapper:       mapper,
		dest:         dest,
		loadMode:     loadMode,
		queryTimeout: queryTimeout,
		logger:       logger.With("component", "provision"),
	}
}

// ProvisionTable creates the destination table for d if it does not exist.
// In upsert mode the source primary key is declared so ON CONFLICT has a
// target.
func (s *ProvisionService) ProvisionTable(ctx context.Context, d domain.TableDescriptor) error {
	defs, err := s.mapper.MapColumns(d)
	if err != nil {
		return err
	}
	var key []string
	if s.loadMode == domain.LoadUpsert {
		key = d.PrimaryKey()
	}
	stmt, err := ddl.CreateTableIfNotExists(d.TableName, defs, key)
	if err != nil {
		return domain.ErrValidation("table %s: %v", d.TableName, err)
	}

	qctx, cancel := domain.WithQueryTimeout(ctx, s.queryTimeout)
	defer cancel()
	if err := s.dest.Exec(qctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", d.TableName, err)
	}
	s.logger.Debug("table provisioned", "table", d.TableName, "columns", len(defs))
	return nil
}

// ProvisionAll provisions every table in order and stops at the first
// failure: a missing table makes later loads meaningless.
func (s *ProvisionService) ProvisionAll(ctx context.Context, tables []domain.TableDescriptor) error {
	start := time.Now()
	for i, d := range tables {
		if err := s.ProvisionTable(ctx, d); err != nil {
			s.logger.Error("provisioning aborted", "table", d.TableName, "provisioned", i, "error", err)
			return err
		}
	}
	s.logger.Info("schema provisioned", "tables", len(tables), "elapsed", time.Since(start))
	return nil
}
