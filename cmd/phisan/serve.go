package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	phisanhttp "github.com/fyrsmithlabs/phisan/internal/http"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sanitization HTTP API",
	Long: `Start the HTTP server. Endpoints:

  GET  /health
  GET  /metrics
  POST /api/v1/sanitize
  POST /api/v1/sanitize/batch

The server shuts down gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: withApp(runServe),
}

func runServe(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
	sc := a.cfg.Server
	srv, err := phisanhttp.NewServer(a.pipeline, a.logger, &phisanhttp.Config{
		Host:     sc.Host,
		Port:     sc.Port,
		MaxBatch: sc.MaxBatch,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info(context.Background(), "shutdown signal received",
		zap.Duration("timeout", sc.ShutdownTimeout.Duration()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
