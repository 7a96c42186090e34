package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace_backend/internal/auth"
	authrepo "marketplace_backend/internal/auth/repository"
	"marketplace_backend/internal/events"
	apphttp "marketplace_backend/internal/http"
	"marketplace_backend/internal/http/router"
	"marketplace_backend/internal/realtime"
	"marketplace_backend/internal/scheduler"
	"marketplace_backend/internal/tracking"
	"marketplace_backend/platform/config"
	"marketplace_backend/platform/db"
	"marketplace_backend/platform/logger"
	"marketplace_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 3, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Realtime Core
	// ========================================================================

	var hub *realtime.Hub
	metrics := realtime.NewMetrics(func() realtime.Stats { return hub.Stats() })
	hub = realtime.NewHub(realtime.Observers{realtime.NewLogObserver(log), metrics})

	g, gctx := errgroup.WithContext(ctx)

	var out realtime.Broadcaster = hub
	var broadcasts scheduler.BroadcastScheduler
	if cfg.IsRedisEnabled() {
		rdb, err := scheduler.NewRedisClient(cfg)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			panic("failed to connect to redis: " + err.Error())
		}
		defer func() { _ = rdb.Close() }()

		relay := realtime.NewRelay(rdb, cfg.GetRelayChannel(), hub, log)
		hub.SetFanout(relay)
		out = relay
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil {
				log.Error("realtime relay stopped; broadcasts stay local", "error", err)
				hub.SetFanout(hub)
			}
			return nil
		})

		client, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize broadcast scheduler client", "error", err)
		} else {
			defer func() { _ = client.Close() }()
			broadcasts = client
		}
		log.Info("redis relay enabled", "channel", cfg.GetRelayChannel())
	} else {
		log.Warn("REDIS_URL not configured; realtime relay and scheduled broadcasts disabled")
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	realtimeModule := realtime.NewModule(hub, out, metrics, realtime.SocketConfigFrom(cfg), log)
	realtimeModule.RegisterHandlers(eventBus)

	authModule := auth.NewModule(authrepo.New(pool), cfg, eventBus, val, log)
	trackingModule := tracking.NewModule(eventBus, realtimeModule.Broadcaster(), broadcasts, realtimeModule, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: db.NewPoolAdapter(pool),
		Users:  authModule.Users(),
		Modules: []apphttp.Module{
			realtimeModule,
			authModule,
			trackingModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Hijacked sockets are not tracked by Shutdown.
		closed := hub.CloseAll()
		log.Info("realtime connections closed", "count", closed)

		err := srv.Shutdown(shutdownCtx)
		eventBus.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%s: %w", name, lastErr)
}
