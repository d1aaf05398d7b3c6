package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"context"

	"github.com/spf13/cobra"

	"github.com/noema/noema/internal/config"
	"github.com/noema/noema/internal/drivers/storage"
	"github.com/noema/noema/internal/httpapi"
	"github.com/noema/noema/internal/logging"
)

func newServeCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP and WebSocket facade",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, err := logging.New(debug)
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			defer log.Sync()

			store, err := storage.Open(cfg.Storage.Path, log)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			srv := httpapi.NewServerWithConfig(store, log, cfg.Storage.SnapshotDir, cfg.Guardrails)
			router := srv.Router(cfg.HTTP.EnableCORS, cfg.HTTP.RateLimit)

			addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
			httpServer := &http.Server{
				Addr:         addr,
				Handler:      router,
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				log.Infow("serving", "addr", addr)
				errc <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
			case <-ctx.Done():
				log.Infow("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
				time.Sleep(50 * time.Millisecond)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable development logging")
	return cmd
}
