package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/volume/internal/httpserver"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local bridge for a rendering surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve()
		},
	}
}

func serve() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// A missing identity only disables server mirroring.
	go func() {
		if _, err := a.session.EnsureUser(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("failed to establish user identity", "error", err)
		}
	}()

	// Warm every feed in the background so the first screen is ready.
	for _, agg := range a.aggregators {
		go func() {
			if err := agg.FetchInitial(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warn("initial feed fetch failed", "content_type", agg.ContentType(), "error", err)
			}
		}()
	}

	server := httpserver.NewServer(a.cfg, a.session, a.aggregators, a.logger)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	a.logger.Info("bridge started", "port", a.cfg.Port, "store", a.cfg.Store)

	select {
	case sig := <-sigCh:
		a.logger.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("error shutting down http server", "error", err)
	}
	return nil
}
