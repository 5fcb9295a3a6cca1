package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/scipunch/newsdesk/api"
	"github.com/scipunch/newsdesk/config"
)

const shutdownTimeout = 10 * time.Second

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the aggregated feeds over HTTP",
	Long: `Serve runs a load cycle on every tick of server.refresh_cron and exposes
the last result over a JSON API. Edits of the config file are picked up
by the next cycle without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, flagConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	go func() {
		if err := config.Watch(ctx, a.cfgPath, a.holder.Store); err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		}
	}()

	addr := flagAddr
	if addr == "" {
		addr = a.holder.Load().Server.Addr
	}

	if os.Getenv("DEBUG") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(api.NewServer(a.agg, a.scheduler, a.holder)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.scheduler.Start()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", "error", err)
	}
	a.scheduler.Stop(shutdownCtx)
	return nil
}
