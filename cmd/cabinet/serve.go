package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cabinet-dev/cabinet/internal/cache"
	"github.com/cabinet-dev/cabinet/internal/config"
	"github.com/cabinet-dev/cabinet/internal/loader"
	"github.com/cabinet-dev/cabinet/internal/record"
	"github.com/cabinet-dev/cabinet/internal/registry"
	"github.com/cabinet-dev/cabinet/internal/store"
	"github.com/cabinet-dev/cabinet/internal/watch"
	"github.com/cabinet-dev/cabinet/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load definitions and serve the record API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := registry.New()
	if err := reloadRegistry(cfg.DefinitionsRoot, reg, logger); err != nil {
		return err
	}

	st, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []record.Option{
		record.WithLogger(logger),
		record.WithMaxPageSize(cfg.Query.MaxPageSize),
		record.WithSnapshotDefault(cfg.Snapshots.EnabledDefault),
	}
	if cfg.Snapshots.FailureFatal {
		opts = append(opts, record.WithSnapshotFailureFatal())
	}
	if cfg.Cache.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisURL})
		opts = append(opts, record.WithCache(cache.New(client, cfg.Cache.TTL, logger)))
	}
	service := record.NewService(reg, st, opts...)

	if cfg.Watch.Enabled {
		watcher, err := watch.New(cfg.DefinitionsRoot, func() error {
			return reloadRegistry(cfg.DefinitionsRoot, reg, logger)
		}, logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	auth := web.NewAuthService(cfg.Server.JWTSecret)
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           web.NewServer(service, auth, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", zap.String("addr", cfg.Server.Addr()))
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}

// reloadRegistry builds a complete snapshot off to the side and swaps it in.
// Load errors are diagnostics, never fatal to startup.
func reloadRegistry(root string, reg *registry.Registry, logger *zap.Logger) error {
	result, err := loader.New(logger).Load(root)
	if err != nil {
		return err
	}

	builder := registry.NewBuilder()
	for _, c := range result.Collections {
		if err := builder.AddCollection(c); err != nil {
			logger.Warn("collection rejected", zap.String("name", c.Name), zap.Error(err))
		}
	}
	for _, a := range result.Actions {
		if err := builder.AddAction(a); err != nil {
			logger.Warn("action rejected", zap.String("name", a.Name), zap.Error(err))
		}
	}
	reg.Install(builder.Snapshot())
	logger.Info("registry installed", zap.Uint64("generation", reg.Generation()))
	return nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil

	case "postgres", "sqlite3":
		db, err := sql.Open(cfg.Database.Driver, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		var dialect store.Dialect = store.PostgresDialect{}
		if cfg.Database.Driver == "sqlite3" {
			dialect = store.SQLiteDialect{}
		}
		s := store.NewSQLStore(db, dialect)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver: %s", cfg.Database.Driver)
	}
}
