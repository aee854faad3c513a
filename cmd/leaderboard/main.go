package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/hackathon-leaderboard/internal/admin"
	"github.com/terra-clan/hackathon-leaderboard/internal/api"
	"github.com/terra-clan/hackathon-leaderboard/internal/catalog"
	"github.com/terra-clan/hackathon-leaderboard/internal/changefeed"
	"github.com/terra-clan/hackathon-leaderboard/internal/config"
	"github.com/terra-clan/hackathon-leaderboard/internal/health"
	"github.com/terra-clan/hackathon-leaderboard/internal/livesync"
	"github.com/terra-clan/hackathon-leaderboard/internal/storage"
	"github.com/terra-clan/hackathon-leaderboard/migrations"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("starting leaderboard",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"change_feed", cfg.ChangeFeed.Driver,
	)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Initialize database repository
	repo, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		slog.Error("failed to create database repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("database connected successfully")

	// Run database migrations
	var migrationFS fs.FS = migrations.FS
	if cfg.Database.MigrationsDir != "" {
		migrationFS = os.DirFS(cfg.Database.MigrationsDir)
	}
	if err := storage.RunMigrations(initCtx, repo.Pool(), migrationFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed badge catalog
	badges := catalog.NewLoader()
	if err := badges.LoadFromDir(cfg.Catalog.Dir); err != nil {
		slog.Warn("failed to load badge catalog", "dir", cfg.Catalog.Dir, "error", err)
	} else if err := badges.Seed(initCtx, repo); err != nil {
		slog.Error("failed to seed badge catalog", "error", err)
		os.Exit(1)
	}

	checks := health.NewRegistry(2 * time.Second)
	checks.Register("postgres", health.CheckerFunc(repo.Ping))

	// Change feed
	feed, publisher, closeFeed, err := newChangeFeed(initCtx, cfg, logger, checks)
	if err != nil {
		slog.Error("failed to create change feed", "error", err)
		os.Exit(1)
	}
	defer closeFeed()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Live leaderboard
	controller := livesync.NewController(repo, feed,
		livesync.WithLogger(logger.With("component", "livesync")),
		livesync.WithMetrics(livesync.NewMetrics(registry)),
	)
	if err := controller.Start(initCtx); err != nil {
		var subErr *livesync.SubscriptionError
		if !errors.As(err, &subErr) {
			slog.Error("failed to load leaderboard", "error", err)
			os.Exit(1)
		}
		slog.Warn("serving static leaderboard, live updates unavailable", "error", err)
	}
	checks.Register("live_sync", health.CheckerFunc(func(ctx context.Context) error {
		if snap := controller.Snapshot(); !snap.Live {
			if snap.Error != "" {
				return fmt.Errorf("live updates disabled: %s", snap.Error)
			}
			return errors.New("live updates disabled")
		}
		return nil
	}))

	// Setup HTTP server
	server := api.NewServer(cfg.Server, cfg.RateLimit, api.Dependencies{
		Leaderboard: controller,
		Teams:       livesync.NewDetailReader(repo),
		Admin:       admin.NewService(repo, publisher, logger.With("component", "admin")),
		Clients:     repo,
		Health:      checks,
		Gatherer:    registry,
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Closes WebSocket listeners so streams end before the server drains
	controller.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("leaderboard stopped")
}

// newChangeFeed builds the configured feed. The publisher is nil for the
// postgres driver because triggers announce every write.
func newChangeFeed(ctx context.Context, cfg *config.Config, logger *slog.Logger, checks *health.Registry) (changefeed.Feed, changefeed.Publisher, func(), error) {
	feedLogger := logger.With("component", "changefeed", "driver", cfg.ChangeFeed.Driver)

	switch cfg.ChangeFeed.Driver {
	case config.FeedRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		feed := changefeed.NewRedisFeed(client, feedLogger)
		checks.Register("redis", feed)
		return feed, feed, func() { client.Close() }, nil

	case config.FeedLocal:
		feed := changefeed.NewLocalFeed()
		return feed, feed, func() { feed.Close() }, nil

	default:
		feed := changefeed.NewPostgresFeed(changefeed.PostgresConfig{
			DSN:                  cfg.Database.DSN,
			MinReconnectInterval: cfg.ChangeFeed.MinReconnectInterval,
			MaxReconnectInterval: cfg.ChangeFeed.MaxReconnectInterval,
			ConnectTimeout:       cfg.ChangeFeed.ConnectTimeout,
		}, feedLogger)
		return feed, nil, func() {}, nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
