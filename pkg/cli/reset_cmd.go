package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"erpsync/internal/api"
)

func newDropAllCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop-all",
		Short: "Drop every table in the destination schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runReset(cmd, yes, "drop every destination table", func(ctx context.Context, engine api.Engine) ([]string, error) {
				return engine.DropAll(ctx)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newTruncateAllCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "truncate-all",
		Short: "Empty every table in the destination schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.runReset(cmd, yes, "truncate every destination table", func(ctx context.Context, engine api.Engine) ([]string, error) {
				return engine.TruncateAll(ctx)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func newTruncateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "truncate <table>",
		Short: "Empty one allow-listed destination table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEngine(cmd, func(engine api.Engine) error {
				if err := engine.TruncateOne(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printNames(cmd.OutOrStdout(), e.output, "truncated", []string{args[0]})
			})
		},
	}
}

func (e *env) runReset(cmd *cobra.Command, yes bool, action string, fn func(context.Context, api.Engine) ([]string, error)) error {
	if !yes {
		ok, err := e.confirm(cmd, action)
		if err != nil {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "aborted")
			return nil
		}
	}
	return e.withEngine(cmd, func(engine api.Engine) error {
		tables, err := fn(cmd.Context(), engine)
		if err != nil {
			return err
		}
		return printNames(cmd.OutOrStdout(), e.output, "table", tables)
	})
}

// confirm asks on the terminal. Non-interactive callers must pass --yes.
func (e *env) confirm(cmd *cobra.Command, action string) (bool, error) {
	if !e.isTerminal() {
		return false, fmt.Errorf("refusing to %s without --yes when stdin is not a terminal", action)
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "This will %s in %q. Type 'yes' to continue: ", action, e.cfg.Destination.Database)
	line, err := bufio.NewReader(e.stdin).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	return strings.EqualFold(strings.TrimSpace(line), "yes"), nil
}
