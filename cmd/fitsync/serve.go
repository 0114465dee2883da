package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hyperengineering/fitsync/internal/api"
	"github.com/hyperengineering/fitsync/internal/config"
	"github.com/hyperengineering/fitsync/internal/query"
	"github.com/hyperengineering/fitsync/internal/worker"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local API and the periodic sync worker",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	logger, logCloser := newLogger(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)
	slog.Info("logger initialized", "component", "main", "level", cfg.Log.Level)

	// 4. Store, cache, remote, orchestrator
	eng, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}

	// 5. Initialize HTTP router
	handler := api.NewHandler(eng.store, query.New(eng.store, eng.cache), eng.orch, eng.ident, cfg.Auth.LocalToken, Version)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	// 6. Workers
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "sync-coordinator", worker.NewSyncCoordinator(eng.orch, cfg.Sync.Interval.Std()).Run)

	// 7. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "component", "main", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "component", "main", "error", err)
			cancel()
		}
	}()

	// 8. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated", "component", "main")

	// 9. Graceful shutdown: drain requests, wait for workers, close store
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "component", "main", "error", err)
	}
	wg.Wait()
	eng.Close()

	slog.Info("shutdown complete", "component", "main")
	return nil
}
