package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/querygate/internal/api"
	"github.com/stupiduntilnot/querygate/internal/config"
	"github.com/stupiduntilnot/querygate/internal/db"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.Log.Level, opts.verbose)
			a, err := openApp(cfg, logger, "server")
			if err != nil {
				return err
			}
			defer a.Close()

			if !opts.verbose {
				gin.SetMode(gin.ReleaseMode)
			}
			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           api.NewRouter(a.agent, a.store, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()
			if _, err := db.LogEvent(a.database, nil, db.EventServerStarted, map[string]any{"addr": cfg.Server.Addr}); err != nil {
				logger.Warn("failed to log server.started", "err", err)
			}
			logger.Info("querygate listening", "addr", cfg.Server.Addr, "provider", cfg.LLM.Provider, "mode", cfg.Context.Mode)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
