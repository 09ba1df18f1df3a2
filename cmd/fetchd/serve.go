package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/DanielPopoola/fetchcache/internal/interfaces/rest/handlers"
	"github.com/DanielPopoola/fetchcache/internal/interfaces/rest/middleware"
	"github.com/DanielPopoola/fetchcache/internal/metrics"
	"github.com/DanielPopoola/fetchcache/internal/worker"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP sidecar.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}

			logger.Info("starting fetchd",
				"port", cfg.Server.Port,
				"base_url", cfg.Client.BaseURL,
				"store", cfg.Store.Driver,
				"connectivity", cfg.Connectivity.Mode,
				"log_level", cfg.Logger.Level,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			m := metrics.New()
			monitor := worker.NewConnectivityMonitor(newProber(cfg.Connectivity), cfg.Connectivity.Interval, m, logger)

			a, err := newApp(ctx, cfg, monitor, m, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			h := handlers.NewHandlers(a.service, monitor, logger)

			mux := http.NewServeMux()
			h.RegisterRoutes(mux)
			mux.Handle("GET /metrics", m.Handler())

			handler := middleware.Recovery(logger)(mux)
			handler = middleware.Logging(logger)(handler)
			handler = middleware.Timeout(cfg.Server.WriteTimeout)(handler)

			server := &http.Server{
				Addr:         "0.0.0.0:" + cfg.Server.Port,
				Handler:      handler,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}

			workerCtx, cancelWorkers := context.WithCancel(ctx)
			defer cancelWorkers()
			go monitor.Start(workerCtx)

			serverErr := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
				close(serverErr)
			}()

			select {
			case err := <-serverErr:
				if err != nil {
					logger.Error("server error", "error", err)
					return err
				}
			case <-ctx.Done():
			}

			logger.Info("shutting down server...")
			cancelWorkers()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("server forced to shutdown", "error", err)
			}

			logger.Info("server exited")
			return nil
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port, overrides FETCHD_SERVER__PORT")
	return cmd
}
