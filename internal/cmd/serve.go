package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/memyselfandm/chronicle/internal/batcher"
	"github.com/memyselfandm/chronicle/internal/config"
	"github.com/memyselfandm/chronicle/internal/feed"
	"github.com/memyselfandm/chronicle/internal/logging"
	"github.com/memyselfandm/chronicle/internal/normalizer"
	"github.com/memyselfandm/chronicle/internal/ratelimit"
	"github.com/memyselfandm/chronicle/internal/server"
	"github.com/memyselfandm/chronicle/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collector service",
	Long:  "Start the HTTP collector, the batching engine, the live feed and the durable store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return runServe(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cfg *config.Config) error {
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(logger.Logger)

	logger.Info("starting chronicled",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.Duration("batch_window", cfg.Batcher.Window),
		slog.Int("max_batch_size", cfg.Batcher.MaxBatchSize),
	)

	// Rate limiter
	var limiter ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rl, err := ratelimit.NewRedisRateLimiter(
			cfg.RateLimit.RedisURL,
			cfg.RateLimit.Requests,
			cfg.RateLimit.Window,
			false,
		)
		if err != nil {
			logger.Warn("rate limiter unavailable, continuing without it",
				logging.FieldError, err.Error())
			limiter = &ratelimit.NoOpRateLimiter{}
		} else {
			limiter = rl
			logger.Info("rate limiting enabled",
				slog.Int("requests", cfg.RateLimit.Requests),
				slog.Duration("window", cfg.RateLimit.Window))
		}
	} else {
		limiter = &ratelimit.NoOpRateLimiter{}
		logger.Info("rate limiting disabled")
	}
	defer limiter.Close()

	// Durable store
	var repo *store.Repository
	var readyCheck func(ctx context.Context) error
	if cfg.Postgres.Enabled {
		connString := cfg.Postgres.ConnString()

		m, err := migrate.New("file://"+cfg.Postgres.MigrationsPath, connString)
		if err != nil {
			return fmt.Errorf("failed to init migrations: %w", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("database migrations applied")

		repo, err = store.NewRepository(context.Background(), connString)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer repo.Close()
		readyCheck = repo.Ping
		logger.Info("durable store connected",
			slog.String("host", cfg.Postgres.Host),
			slog.String("database", cfg.Postgres.Database))
	} else {
		logger.Info("durable store disabled, events held in memory only")
	}

	// Batching engine and its subscribers
	engine, err := batcher.New(cfg.Batcher.Engine(), logger)
	if err != nil {
		return fmt.Errorf("failed to start batcher: %w", err)
	}

	feedStore := feed.New(cfg.Feed.MaxEvents)
	feedStore.Attach(engine)

	if repo != nil {
		store.NewSink(repo, logger).Attach(engine)
	}

	// HTTP surface
	router := server.NewRouter(
		server.NewHookHandler(engine, normalizer.Default(), limiter, logger),
		server.NewFeedHandler(feedStore),
		server.NewStreamHandler(engine, logger),
		server.NewHealthHandler(engine, readyCheck),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collector listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	// Stop accepting producers first, then flush the engine so the final
	// batch reaches the feed and the durable store before the pool closes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced server shutdown", logging.FieldError, err.Error())
	}

	engine.Destroy()

	logger.Info("chronicled stopped")
	return nil
}
