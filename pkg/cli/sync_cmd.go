package cli

import (
	"context"

	"github.com/spf13/cobra"

	"erpsync/internal/api"
	"erpsync/internal/domain"
)

func newTablesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List source base tables with their column type mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withEngine(cmd, func(engine api.Engine) error {
				tables, err := engine.ListSourceTables(cmd.Context())
				if err != nil {
					return err
				}
				return printSourceTables(cmd.OutOrStdout(), e.output, tables)
			})
		},
	}
}

func newProvisionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create missing destination tables from the source catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runSummary(cmd, func(ctx context.Context, engine api.Engine) (*domain.RunSummary, error) {
				return engine.ProvisionSchema(ctx)
			})
		},
	}
}

func newSyncCmd(e *env) *cobra.Command {
	var tables []string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy rows for selected tables",
		Long:  "Copy rows for the tables named by --tables. Without --tables the configured sync allow-list (SYNC_TABLES) is used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runSummary(cmd, func(ctx context.Context, engine api.Engine) (*domain.RunSummary, error) {
				return engine.SyncSelected(ctx, tables)
			})
		},
	}
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "Comma-separated table names")
	return cmd
}

func newSyncAllCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-all",
		Short: "Copy rows for every source table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runSummary(cmd, func(ctx context.Context, engine api.Engine) (*domain.RunSummary, error) {
				return engine.SyncAll(ctx)
			})
		},
	}
}

func newFullSyncCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "full-sync",
		Short: "Provision the destination schema, then copy every table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runSummary(cmd, func(ctx context.Context, engine api.Engine) (*domain.RunSummary, error) {
				return engine.FullSync(ctx)
			})
		},
	}
}

func newColumnsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <table>",
		Short: "List the columns a destination table currently has",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEngine(cmd, func(engine api.Engine) error {
				cols, err := engine.ExistingColumns(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printNames(cmd.OutOrStdout(), e.output, "column", cols)
			})
		},
	}
}

// runSummary prints whatever summary a run produced, including the partial
// one that accompanies a fatal error.
func (e *env) runSummary(cmd *cobra.Command, fn func(context.Context, api.Engine) (*domain.RunSummary, error)) error {
	return e.withEngine(cmd, func(engine api.Engine) error {
		sum, err := fn(cmd.Context(), engine)
		if sum != nil {
			if perr := printSummary(cmd.OutOrStdout(), e.output, sum); perr != nil && err == nil {
				return perr
			}
		}
		return err
	})
}
