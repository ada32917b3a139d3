package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"erpsync/internal/api"
	"erpsync/internal/middleware"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(e *env) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP operations console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = e.cfg.ListenAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return e.withEngine(cmd, func(engine api.Engine) error {
				return serve(ctx, e, engine, listen)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default LISTEN_ADDR)")
	return cmd
}

func serve(ctx context.Context, e *env, engine api.Engine, addr string) error {
	logger := e.logger.With("component", "server")
	handler := api.NewRouter(ctx, api.NewHandler(engine, e.logger), api.RouterOptions{
		APIKey: e.cfg.APIKey,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: e.cfg.RateLimitRPS,
			Burst:             e.cfg.RateLimitBurst,
		},
		CORSAllowedOrigins: e.cfg.CORSAllowedOrigins,
	}, e.logger)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP console listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
