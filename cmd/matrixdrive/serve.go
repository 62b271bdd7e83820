package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bgricker/matrixdrive/internal/api"
	"github.com/bgricker/matrixdrive/internal/ctxlog"
	"github.com/bgricker/matrixdrive/internal/history"
	"github.com/bgricker/matrixdrive/internal/metrics"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run history and metrics over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	addr := cfg.API.Addr
	if flagAddr, err := cmd.Flags().GetString("addr"); err == nil && flagAddr != "" {
		addr = flagAddr
	}

	logger := newLogger(cfg, cmd)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, logger)

	path := cfg.History.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	store, err := history.New(path)
	if err != nil {
		return err
	}
	defer store.Close()

	recorder := metrics.NewRecorder(nil)
	server := api.NewServer(addr, store, recorder.Registry())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", addr)
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down status server")
	return server.Shutdown(shutdownCtx)
}
