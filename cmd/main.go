package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/pairup/internal/adapters/http/api"
	"github.com/okian/pairup/internal/adapters/http/swagger"
	"github.com/okian/pairup/internal/adapters/storage"
	"github.com/okian/pairup/internal/adapters/storage/postgres"
	"github.com/okian/pairup/internal/adapters/storage/sqlite"
	"github.com/okian/pairup/internal/adapters/ws"
	app "github.com/okian/pairup/internal/app"
	"github.com/okian/pairup/internal/config"
	"github.com/okian/pairup/pkg/logger"
	"github.com/okian/pairup/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// HTTP server timeout constants. There is no write timeout because /ws
// connections are long-lived.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// The logger may not be available yet.
		_, _ = os.Stderr.WriteString("pairupd: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Configure(
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
		metrics.WithRefreshInterval(cfg.MetricsRefreshInterval),
	)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	svc, err := newService(cfg, store)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to create service: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	srv := newHTTPServer(ctx, cfg, svc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		startMetricsUpdaters(gctx, svc, metrics.RefreshInterval())
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if err := svc.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("service stop: %w", err))
		}
		log.Info(shutdownCtx, "server stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}

// openStore builds the profile and session backend named by the config.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, nil
	case config.StorePostgres:
		st, err := postgres.Open(ctx, postgres.Config{
			DSN:     cfg.PostgresDSN,
			Migrate: cfg.PostgresMigrate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return st, nil
	default:
		return storage.NewMemoryStore(), nil
	}
}

func newService(cfg *config.Config, store storage.Store) (*app.Service, error) {
	return app.New(
		app.WithLogger(logger.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithSendBuffer(cfg.SendBuffer),
		app.WithScorer(cfg.Scorer, cfg.SkillWeight, cfg.AvailabilityWeight),
		app.WithThreshold(cfg.AutoMatchThreshold),
		app.WithMatchListLimit(cfg.MatchListLimit),
		app.WithSweep(cfg.SweepInterval, cfg.QueueTTL),
		app.WithLeaveOnDisconnect(cfg.LeaveOnDisconnect),
		app.WithStore(store),
		app.WithPersistTimeout(cfg.PersistTimeout),
	)
}

// newMux registers the docs, operator API and WebSocket routes.
func newMux(ctx context.Context, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	wsHandler := ws.NewHandler(svc.Hub(), svc, ws.WithDeduper(svc.Deduper()))
	api.NewServer(svc, svc).Register(ctx, mux, wsHandler)
	return mux
}

func newHTTPServer(ctx context.Context, cfg *config.Config, svc *app.Service) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startMetricsUpdaters refreshes system and service gauges every interval
// until ctx ends.
func startMetricsUpdaters(ctx context.Context, svc *app.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats, err := svc.GetStats(ctx)
	if err != nil {
		logger.Get().Warn(ctx, "failed to read service stats", logger.Error(err))
	}
	metrics.UpdatePoolSize(stats.QueueSize)
	metrics.UpdateConnectedClients(stats.Connected)
	metrics.UpdateCommandQueueDepth(stats.PendingCommands)
	metrics.UpdateWorkerCount(stats.WorkerCount)
}
