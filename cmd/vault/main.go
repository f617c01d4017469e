package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/vault/internal/api"
	"github.com/mtlprog/vault/internal/config"
	"github.com/mtlprog/vault/internal/database"
	"github.com/mtlprog/vault/internal/dex"
	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/event"
	"github.com/mtlprog/vault/internal/export"
	"github.com/mtlprog/vault/internal/ledger"
	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/poolstats"
	"github.com/mtlprog/vault/internal/rebalance"
	"github.com/mtlprog/vault/internal/remote"
	"github.com/mtlprog/vault/internal/snapshot"
	"github.com/mtlprog/vault/internal/strategy"
	"github.com/mtlprog/vault/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not found, using process environment")
	}

	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:           "vault",
		Usage:          "strategy vault accounting and rebalancing service",
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and background workers",
				Action: func(c *cli.Context) error {
					return serve(c.Context, cfg)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply pending database migrations and exit",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "list pending migrations without applying them"},
				},
				Action: func(c *cli.Context) error {
					return migrate(c.Context, cfg, c.Bool("dry-run"))
				},
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("vault exited with error", "error", err)
		os.Exit(1)
	}
}

func migrationsDir() (fs.FS, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	return sub, nil
}

func migrate(ctx context.Context, cfg config.Config, dryRun bool) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	if dryRun {
		pending, err := database.PendingMigrations(ctx, db, dir)
		if err != nil {
			return err
		}
		for _, file := range pending {
			fmt.Println(file)
		}
		return nil
	}
	return database.RunMigrations(ctx, db, dir)
}

// stores holds the persistence backends chosen by DATABASE_URL.
type stores struct {
	pools      pool.Repository
	strategies strategy.Repository
	events     event.Store
	metrics    poolstats.Repository
	snapshots  snapshot.Repository
}

func memoryStores() stores {
	return stores{
		pools:      pool.NewMemoryRepository(),
		strategies: strategy.NewMemoryRepository(),
		events:     event.NewMemoryStore(),
		metrics:    poolstats.NewMemoryRepository(),
		snapshots:  snapshot.NewMemoryRepository(),
	}
}

func pgStores(db *pgxpool.Pool) stores {
	return stores{
		pools:      pool.NewPgRepository(db),
		strategies: strategy.NewPgRepository(db),
		events:     event.NewPgStore(db),
		metrics:    poolstats.NewPgRepository(db),
		snapshots:  snapshot.NewPgRepository(db),
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	var st stores
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, state is kept in memory and lost on exit")
		st = memoryStores()
	} else {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		dir, err := migrationsDir()
		if err != nil {
			return err
		}
		if err := database.RunMigrations(ctx, db, dir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		st = pgStores(db)
	}

	vault := domain.Account(cfg.VaultAccount)
	newRemote := func(url string) *remote.Client {
		return remote.NewClient(url, cfg.RemoteRetryMax, cfg.RemoteRetryBaseDelay)
	}

	var lg strategy.Ledger
	if cfg.LedgerURL == "" {
		slog.Warn("LEDGER_URL not set, using the in-memory sandbox ledger")
		lg = ledger.NewMemory(vault)
	} else {
		lg = ledger.NewClient(newRemote(cfg.LedgerURL), vault)
	}

	sandbox := dex.NewSimulated(30)
	adapters := map[pool.Provider]dex.Adapter{pool.KongSwap: sandbox, pool.ICPSwap: sandbox}
	for provider, url := range map[pool.Provider]string{pool.KongSwap: cfg.KongSwapURL, pool.ICPSwap: cfg.ICPSwapURL} {
		if url == "" {
			slog.Warn("DEX URL not set, using the simulated provider", "provider", provider)
			continue
		}
		adapters[provider] = dex.NewClient(newRemote(url))
	}

	registry := pool.NewRegistry(st.pools)

	var source poolstats.Source
	if cfg.PoolStatsURL != "" {
		source = poolstats.NewClient(newRemote(cfg.PoolStatsURL))
	} else {
		slog.Warn("POOL_STATS_URL not set, pools are ranked without metrics")
	}
	stats := poolstats.NewService(source, st.metrics, registry, poolstats.DefaultWindow)

	profile, err := rebalance.ParseProfile(cfg.RebalanceProfile)
	if err != nil {
		profile = rebalance.Balanced
	}
	policy := rebalance.NewPolicy(stats, profile)

	engine := strategy.NewEngine(st.strategies, registry, lg, dex.NewRouter(adapters), st.events, policy,
		strategy.WithAdapterTimeout(cfg.AdapterTimeout))
	registry.SetUsageChecker(engine)

	defs, err := strategy.Catalog()
	if err != nil {
		return err
	}
	if err := engine.Seed(ctx, defs); err != nil {
		return fmt.Errorf("seeding strategies: %w", err)
	}

	snapshots := snapshot.NewService(engine, st.snapshots)

	var hook worker.AfterSnapshotHook
	if cfg.GoogleSheetsID != "" && cfg.GoogleCredentials != "" {
		writer, err := export.NewSheetsWriter(ctx, cfg.GoogleSheetsID, cfg.GoogleCredentials)
		if err != nil {
			return fmt.Errorf("creating sheets writer: %w", err)
		}
		hook = export.NewService(st.snapshots, writer)
	}

	// Start workers
	go worker.NewMetricsWorker(stats, cfg.MetricsInterval).Run(ctx)
	go worker.NewRebalanceWorker(engine, cfg.RebalanceInterval).Run(ctx)
	go worker.NewSnapshotWorker(snapshots, cfg.SnapshotInterval, hook).Run(ctx)

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, admin endpoints are unprotected")
	}

	srv := api.NewServer(cfg.HTTPPort, api.NewHandler(engine, registry, st.events, snapshots), cfg.AdminAPIKey)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	slog.Info("shutdown complete")
	return nil
}
