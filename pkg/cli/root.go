// Package cli implements the erpsync command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"erpsync/internal/api"
	"erpsync/internal/app"
	"erpsync/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// skipConfigAnnotation marks commands that run without loading configuration.
const skipConfigAnnotation = "erpsync/skip-config"

// engineOpener builds the engine for one command and returns its closer.
type engineOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (api.Engine, func() error, error)

func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (api.Engine, func() error, error) {
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a.Orchestrator, a.Close, nil
}

// env carries the resolved settings and injectable collaborators shared by
// every subcommand.
type env struct {
	open       engineOpener
	stdin      io.Reader
	isTerminal func() bool

	output  string
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
}

// Execute runs the CLI.
func Execute() int {
	e := &env{
		open:       openApp,
		stdin:      os.Stdin,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
	return run(context.Background(), e, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, e *env, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(e)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if e.output == "json" {
			_ = PrintJSON(stdout, map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "erpsync",
		Short:         "Replicate a legacy ERP database into PostgreSQL",
		Long:          "erpsync mirrors the base tables of a SQL Server ERP schema into PostgreSQL: it provisions tables, copies rows and runs reset operations.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(e.output); err != nil {
				return err
			}
			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}
			if err := config.LoadDotEnv(e.envFile); err != nil {
				return fmt.Errorf("load %s: %w", e.envFile, err)
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			slog.SetDefault(e.logger)
			for _, w := range cfg.Warnings {
				e.logger.Warn("configuration", "warning", w)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&e.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&e.envFile, "env-file", ".env", "Path to a .env file loaded before the environment")

	rootCmd.AddCommand(newTablesCmd(e))
	rootCmd.AddCommand(newProvisionCmd(e))
	rootCmd.AddCommand(newSyncCmd(e))
	rootCmd.AddCommand(newSyncAllCmd(e))
	rootCmd.AddCommand(newFullSyncCmd(e))
	rootCmd.AddCommand(newColumnsCmd(e))
	rootCmd.AddCommand(newDropAllCmd(e))
	rootCmd.AddCommand(newTruncateAllCmd(e))
	rootCmd.AddCommand(newTruncateCmd(e))
	rootCmd.AddCommand(newServeCmd(e))
	rootCmd.AddCommand(newVersionCmd(e))

	return rootCmd
}

// withEngine opens the engine for the duration of fn.
func (e *env) withEngine(cmd *cobra.Command, fn func(api.Engine) error) error {
	engine, closeFn, err := e.open(cmd.Context(), e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			e.logger.Warn("close connectors", "error", cerr)
		}
	}()
	return fn(engine)
}

func validateOutputFormat(output string) error {
	if output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}
