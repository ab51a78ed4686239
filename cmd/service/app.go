// cmd/service/app.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"unsafe-stats/internal/api"
	"unsafe-stats/internal/cache"
	"unsafe-stats/internal/catalog"
	"unsafe-stats/internal/config"
	"unsafe-stats/internal/database"
	"unsafe-stats/internal/errlog"
	"unsafe-stats/internal/extractor"
	"unsafe-stats/internal/github"
	"unsafe-stats/internal/refresher"
	"unsafe-stats/internal/stats"
)

const shutdownTimeout = 10 * time.Second

// app holds the process-wide resources shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	store  *database.Store

	shutdownTelemetry func()
}

// bootstrap loads configuration, builds the logger and connects to the database.
func bootstrap(ctx context.Context) (*app, error) {
	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Initialize structured logger
	logger := config.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("Configuration loaded successfully")

	shutdownTelemetry, err := config.SetupTelemetry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	// 3. Initialize database connection
	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		shutdownTelemetry()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		shutdownTelemetry()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	logger.Info("Database connection established")

	return &app{
		cfg:               cfg,
		logger:            logger,
		pool:              pool,
		store:             database.NewStore(pool),
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
	a.shutdownTelemetry()
}

func (a *app) migrateUp() error {
	m, err := database.NewMigrator(a.pool)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	a.logger.Info("Database migrations applied successfully")
	return nil
}

// services are the components built on top of storage and cache.
type services struct {
	errlog    *errlog.Logger
	stats     *stats.Service
	refresher *refresher.Refresher
	importer  *catalog.Importer
}

func newServices(cfg *config.Config, logger *slog.Logger, store *database.Store, c cache.Cache, ext refresher.Extractor) (*services, error) {
	errLog := errlog.New(store, cfg.ErrorLogDir, logger)
	statsService := stats.NewService(stats.NewReader(store), c, errLog, logger)

	r, err := refresher.NewRefresher(store, ext, statsService, errLog, logger, cfg.RefreshConcurrency, cfg.RefreshInterval)
	if err != nil {
		return nil, err
	}

	importer := catalog.NewImporter(store, github.NewClient(cfg.GithubToken, logger), logger)

	return &services{
		errlog:    errLog,
		stats:     statsService,
		refresher: r,
		importer:  importer,
	}, nil
}

func (s *services) router(cfg *config.Config, logger *slog.Logger, store *database.Store) http.Handler {
	return api.NewRouter(api.Dependencies{
		DB:             store,
		Stats:          s.stats,
		Refresher:      s.refresher,
		Importer:       s.importer,
		ErrLog:         s.errlog,
		Logger:         logger,
		CatalogFile:    cfg.CatalogFile,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
}

func newExtractor(cfg *config.Config, logger *slog.Logger) *extractor.Extractor {
	return extractor.New(cfg.WorkDir, logger, extractor.WithTimeout(cfg.ExtractTimeout))
}

func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cache.RedisCache, error) {
	rc, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to configure cache: %w", err)
	}
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to reach cache: %w", err)
	}
	logger.Info("Cache connection established")
	return rc, nil
}

func runServe(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.migrateUp(); err != nil {
		return err
	}

	rc, err := openCache(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer rc.Close()

	svc, err := newServices(a.cfg, a.logger, a.store, rc, newExtractor(a.cfg, a.logger))
	if err != nil {
		return fmt.Errorf("failed to create services: %w", err)
	}

	// Start the scheduled refresh in a separate goroutine
	go svc.refresher.Start(ctx)

	srv := &http.Server{
		Addr:              a.cfg.ServerAddr,
		Handler:           svc.router(a.cfg, a.logger, a.store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	a.logger.Info("Shutdown signal received. Exiting.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrate(ctx context.Context, up bool) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if up {
		return a.migrateUp()
	}
	m, err := database.NewMigrator(a.pool)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil {
		return fmt.Errorf("failed to roll back database migrations: %w", err)
	}
	a.logger.Info("Database migrations rolled back")
	return nil
}

func runRefresh(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rc, err := openCache(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer rc.Close()

	svc, err := newServices(a.cfg, a.logger, a.store, rc, newExtractor(a.cfg, a.logger))
	if err != nil {
		return fmt.Errorf("failed to create services: %w", err)
	}
	return svc.refresher.RefreshAll(ctx)
}

type importOptions struct {
	file   string
	github bool
	query  string
	limit  int
}

func runImport(ctx context.Context, opts importOptions) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	importer := catalog.NewImporter(a.store, github.NewClient(a.cfg.GithubToken, a.logger), a.logger)

	var res catalog.ImportResult
	if opts.github {
		res, err = importer.ImportGitHub(ctx, opts.query, opts.limit)
	} else {
		file := opts.file
		if file == "" {
			file = a.cfg.CatalogFile
		}
		res, err = importer.ImportFile(ctx, file)
	}
	if err != nil {
		return err
	}
	fmt.Printf("imported=%d skipped=%d malformed=%d\n", res.Imported, res.Skipped, res.Malformed)
	return nil
}
