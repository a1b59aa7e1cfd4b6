package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/config"
	"github.com/ekaya-inc/apiary-engine/pkg/database"
	"github.com/ekaya-inc/apiary-engine/pkg/genetics"
	"github.com/ekaya-inc/apiary-engine/pkg/handlers"
	"github.com/ekaya-inc/apiary-engine/pkg/logging"
	"github.com/ekaya-inc/apiary-engine/pkg/metrics"
	"github.com/ekaya-inc/apiary-engine/pkg/middleware"
	"github.com/ekaya-inc/apiary-engine/pkg/names"
	"github.com/ekaya-inc/apiary-engine/pkg/notify"
	"github.com/ekaya-inc/apiary-engine/pkg/relay"
	"github.com/ekaya-inc/apiary-engine/pkg/repositories"
	"github.com/ekaya-inc/apiary-engine/pkg/retry"
	"github.com/ekaya-inc/apiary-engine/pkg/services"
)

// engine is the wired application shared by every command that touches
// the database.
type engine struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *database.DB
	closers []func()

	catalog   *genetics.Catalog
	metrics   *metrics.Metrics
	hub       *relay.Hub
	bees      services.BeeService
	hives     services.HiveService
	market    services.MarketService
	discovery services.DiscoveryService
	tick      services.TickService
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFile(path, Version)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// connect opens the database, retrying while it comes up.
func connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	logger.Info("Connecting to database",
		zap.String("dsn", logging.SanitizeConnectionString(cfg.Database.ConnectionString())))

	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

func newEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*engine, error) {
	e := &engine{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		hub:     relay.NewHub(cfg.Relay.Buffer, logger),
	}

	catalog, err := loadCatalog(cfg.Game.CatalogPath)
	if err != nil {
		return nil, err
	}
	e.catalog = catalog

	namer := names.Default()
	if cfg.Game.NamesPath != "" {
		if namer, err = names.Load(cfg.Game.NamesPath); err != nil {
			return nil, fmt.Errorf("load names: %w", err)
		}
	}

	db, err := connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	e.db = db
	e.closers = append(e.closers, db.Close)

	if err := database.RunMigrations(db.SQLDB(), cfg.MigrationsPath, logger); err != nil {
		e.Close()
		return nil, err
	}

	notifier, err := e.newNotifier(ctx)
	if err != nil {
		e.Close()
		return nil, err
	}

	scoper := database.NewScopeProvider(db)
	beeRepo := repositories.NewBeeRepository()
	hiveRepo := repositories.NewHiveRepository()
	invRepo := repositories.NewInventoryRepository()
	comboRepo := repositories.NewCombinationRepository()
	dice := genetics.NewLockedDice(0, 0)

	e.bees = services.NewBeeService(scoper, beeRepo, hiveRepo, comboRepo, invRepo, catalog, namer, dice, e.metrics, logger)
	e.hives = services.NewHiveService(scoper, hiveRepo, beeRepo, invRepo, logger)
	e.market = services.NewMarketService(scoper, invRepo, catalog, logger)
	e.discovery = services.NewDiscoveryService(scoper, comboRepo, catalog, logger)
	e.tick = services.NewTickService(scoper, beeRepo, hiveRepo, invRepo, e.bees, catalog, dice, notifier, e.metrics, logger)
	return e, nil
}

// newNotifier fans notifications out to relay subscribers and to Redis
// when it is configured, or to the log otherwise.
func (e *engine) newNotifier(ctx context.Context) (notify.Notifier, error) {
	if !e.cfg.Redis.IsConfigured() {
		e.logger.Info("Redis not configured, logging notifications instead")
		return notify.Multi{notify.NewLogNotifier(e.logger), e.hub}, nil
	}

	client, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*redis.Client, error) {
		return database.NewRedisClient(ctx, &e.cfg.Redis)
	})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, func() { _ = client.Close() })
	e.logger.Info("Publishing notifications to Redis",
		zap.String("addr", e.cfg.Redis.Addr()),
		zap.String("channel", e.cfg.Game.NotificationChannel))
	return notify.Multi{notify.NewRedisNotifier(client, e.cfg.Game.NotificationChannel, e.logger), e.hub}, nil
}

// Close releases connections in reverse order of acquisition.
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func (e *engine) routes() http.Handler {
	mux := http.NewServeMux()
	handlers.NewHealthHandler(e.cfg, e.db, e.metrics.Handler(), e.logger).RegisterRoutes(mux)
	handlers.NewBeeHandler(e.bees, e.logger).RegisterRoutes(mux)
	handlers.NewHiveHandler(e.hives, e.logger).RegisterRoutes(mux)
	handlers.NewMarketHandler(e.market, e.catalog, e.logger).RegisterRoutes(mux)
	handlers.NewDiscoveryHandler(e.discovery, e.catalog, e.logger).RegisterRoutes(mux)
	handlers.NewEventsHandler(e.hub, e.cfg.Relay.OriginPatterns, e.logger).RegisterRoutes(mux)

	var h http.Handler = mux
	h = middleware.RequestMetrics(e.metrics)(h)
	h = middleware.RequestLogger(e.logger.Named("http"))(h)
	h = middleware.Recoverer(e.logger)(h)
	return h
}

func runServe(ctx context.Context, configPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	e, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	if cfg.Tick.Enabled {
		e.tick.RunScheduler(ctx, cfg.Tick.Interval())
	} else {
		logger.Info("Tick scheduler disabled")
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           e.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting apiary-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.Int("catalog_types", len(e.catalog.All())))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runMigrate(ctx context.Context, configPath string, rollbackSteps int) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if rollbackSteps > 0 {
		return database.RollbackMigrations(db.SQLDB(), cfg.MigrationsPath, rollbackSteps, logger)
	}
	return database.RunMigrations(db.SQLDB(), cfg.MigrationsPath, logger)
}

func runTicks(ctx context.Context, configPath string, count int) error {
	if count < 1 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	e, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	for i := 0; i < count; i++ {
		report, err := e.tick.Tick(ctx)
		if err != nil {
			return fmt.Errorf("tick %d: %w", i+1, err)
		}
		logger.Info("Tick complete",
			zap.Int("tick", i+1),
			zap.Int("aged", report.Aged),
			zap.Int("produced", report.Produced),
			zap.Int("deaths", report.Deaths),
			zap.Int("broods", report.Broods))
	}
	return nil
}

func runCatalog(configPath, file string, asJSON bool) error {
	path := file
	if path == "" {
		if cfg, err := config.LoadFile(configPath, Version); err == nil {
			path = cfg.Game.CatalogPath
		}
	}

	catalog, err := loadCatalog(path)
	if err != nil {
		return err
	}

	resp := handlers.BuildCatalogResponse(catalog)
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Println("TYPES")
	for _, t := range resp.Types {
		fmt.Printf("  %-14s %-8s rank %-2d %s comb\n", t.Name, t.Variant, t.Rank, t.Comb)
	}
	fmt.Println("COMBINATIONS")
	for _, c := range resp.Combinations {
		fmt.Printf("  %s x %s -> %s\n", c.Left, c.Right, strings.Join(c.Results, ", "))
	}
	return nil
}

func loadCatalog(path string) (*genetics.Catalog, error) {
	if path == "" {
		return genetics.NewDefaultCatalog()
	}
	def, err := genetics.LoadDefinition(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	catalog, err := genetics.NewCatalog(def)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return catalog, nil
}
