// Package app provides application-level wiring and dependency injection
// for erpsync: connectors are built once and handed to every service.
package app

import (
	"context"
	"log/slog"

	"erpsync/internal/config"
	"erpsync/internal/destination/postgres"
	"erpsync/internal/domain"
	"erpsync/internal/service/catalog"
	"erpsync/internal/service/orchestrator"
	"erpsync/internal/service/pipeline"
	"erpsync/internal/service/provision"
	"erpsync/internal/service/reconcile"
	"erpsync/internal/service/reset"
	"erpsync/internal/source/mssql"
)

// Deps holds the external dependencies the app cannot create itself in
// tests: the two connectors, config and the logger.
type Deps struct {
	Cfg         *config.Config
	Source      domain.SourceConnector
	Destination domain.DestinationConnector
	Logger      *slog.Logger
}

// Services groups the service pointers the CLI and the HTTP router need.
type Services struct {
	Catalog   *catalog.CatalogService
	Provision *provision.ProvisionService
	Reconcile *reconcile.ReconcileService
	Pipeline  *pipeline.PipelineService
	Reset     *reset.ResetService
}

// App holds the fully-wired application.
type App struct {
	Services     Services
	Orchestrator *orchestrator.Orchestrator

	deps Deps
}

// New wires every service from the provided deps.
func New(deps Deps) *App {
	cfg := deps.Cfg
	logger := deps.Logger

	catalogSvc := catalog.NewCatalogService(deps.Source, cfg.Source.Schema, logger)
	reconcileSvc := reconcile.NewReconcileService(deps.Destination, cfg.QueryTimeout, logger)
	provisionSvc := provision.NewProvisionService(catalogSvc, deps.Destination, cfg.LoadMode, cfg.QueryTimeout, logger)
	pipelineSvc := pipeline.NewPipelineService(deps.Source, deps.Destination, reconcileSvc, pipeline.Options{
		LoadMode:          cfg.LoadMode,
		TableTransactions: cfg.TableTransactions,
		QueryTimeout:      cfg.QueryTimeout,
	}, logger)
	resetSvc := reset.NewResetService(deps.Destination, reconcileSvc, cfg.TruncatableAllowList(), cfg.QueryTimeout, logger)

	orch := orchestrator.New(orchestrator.Services{
		Catalog:   catalogSvc,
		Provision: provisionSvc,
		Pipeline:  pipelineSvc,
		Columns:   reconcileSvc,
		Reset:     resetSvc,
	}, cfg.SyncAllowList(), logger)

	return &App{
		Services: Services{
			Catalog:   catalogSvc,
			Provision: provisionSvc,
			Reconcile: reconcileSvc,
			Pipeline:  pipelineSvc,
			Reset:     resetSvc,
		},
		Orchestrator: orch,
		deps:         deps,
	}
}

// Open builds both connectors from cfg and wires the app. Neither connector
// touches the network until first use.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	src, err := mssql.New(mssql.Config{
		Host:           cfg.Source.Host,
		Port:           cfg.Source.Port,
		Instance:       cfg.Source.Instance,
		Database:       cfg.Source.Database,
		User:           cfg.Source.User,
		Password:       cfg.Source.Password,
		Encrypt:        cfg.Source.Encrypt,
		ConnectRetries: cfg.Source.ConnectRetries,
	}, logger)
	if err != nil {
		return nil, err
	}

	dest, err := postgres.Open(ctx, postgres.Config{
		Host:     cfg.Destination.Host,
		Port:     cfg.Destination.Port,
		Database: cfg.Destination.Database,
		User:     cfg.Destination.User,
		Password: cfg.Destination.Password,
		SSLMode:  cfg.Destination.SSLMode,
		PoolSize: cfg.Destination.PoolSize,
	}, logger)
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	return New(Deps{Cfg: cfg, Source: src, Destination: dest, Logger: logger}), nil
}

// Close releases both connectors. It is called once at process shutdown.
func (a *App) Close() error {
	a.deps.Destination.Close()
	return a.deps.Source.Close()
}
