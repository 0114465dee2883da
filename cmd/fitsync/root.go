package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hyperengineering/fitsync/internal/cache"
	"github.com/hyperengineering/fitsync/internal/config"
	"github.com/hyperengineering/fitsync/internal/identity"
	"github.com/hyperengineering/fitsync/internal/remote"
	"github.com/hyperengineering/fitsync/internal/store"
	fitsync "github.com/hyperengineering/fitsync/internal/sync"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:          "fitsync",
	Short:        "fitsync - offline-first sync engine for the training app",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(backupCmd)
}

// engine is everything a command needs to read the local database and sync it.
type engine struct {
	cfg    *config.Config
	store  *store.SQLiteStore
	cache  *cache.Cache
	ident  *identity.Static
	orch   *fitsync.Orchestrator
	closer func()
}

// openEngine wires config → store → cache → remote → orchestrator.
func openEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	c := cache.New(cfg.Cache.DefaultTTL.Std())

	st, err := store.NewSQLiteStore(cfg.Database.Path, store.WithInvalidator(c))
	if err != nil {
		return nil, err
	}
	slog.Info("store initialized", "component", "main", "path", cfg.Database.Path)

	ident := identity.NewStatic(cfg.Auth.UserID, cfg.Auth.AccessToken)

	rc, closeRemote, err := newRemote(ctx, cfg, ident)
	if err != nil {
		st.Close()
		return nil, err
	}
	slog.Info("remote initialized", "component", "main", "kind", cfg.Remote.Kind)

	policy, err := store.ParseConflictPolicy(cfg.Sync.ConflictPolicy)
	if err != nil {
		closeRemote()
		st.Close()
		return nil, err
	}

	overlap := cfg.Sync.PullOverlap.Std()
	if overlap == 0 {
		overlap = -1
	}
	orch := fitsync.New(st, rc, ident, fitsync.Options{
		CallTimeout:        cfg.Remote.CallTimeout.Std(),
		PullPageSize:       cfg.Sync.PullPageSize,
		PullOverlap:        overlap,
		Policy:             policy,
		TriggerMinInterval: cfg.Sync.TriggerMinInterval.Std(),
	})

	return &engine{
		cfg:   cfg,
		store: st,
		cache: c,
		ident: ident,
		orch:  orch,
		closer: func() {
			closeRemote()
			if err := st.Close(); err != nil {
				slog.Error("store close error", "component", "main", "error", err)
			}
		},
	}, nil
}

func (e *engine) Close() { e.closer() }

// newRemote builds the configured backend and the func that releases it.
func newRemote(ctx context.Context, cfg *config.Config, ident identity.Provider) (remote.Client, func(), error) {
	switch cfg.Remote.Kind {
	case config.RemoteHTTP:
		return remote.NewHTTPClient(remote.HTTPConfig{
			BaseURL:    cfg.Remote.URL,
			APIKey:     cfg.Remote.APIKey,
			MaxRetries: uint64(cfg.Remote.MaxRetries),
		}, ident), func() {}, nil
	case config.RemotePostgres:
		pg, err := remote.NewPostgresClient(ctx, cfg.Remote.DSN, ident)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case config.RemoteMemory:
		return remote.NewMemory(nil).As(cfg.Auth.UserID), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown remote kind %q", cfg.Remote.Kind)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "component", "main", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "component", "main", "worker", name)
	}()
}
