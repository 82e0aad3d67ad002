package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hostelcart/internal/api"
	"hostelcart/internal/backend"
	"hostelcart/internal/config"
	"hostelcart/internal/domain"
	"hostelcart/internal/events"
	"hostelcart/internal/journal"
	"hostelcart/internal/logging"
	"hostelcart/internal/metrics"
	"hostelcart/internal/repository"
	"hostelcart/internal/session"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	submissionJournal, err := journal.Open(cfg.Journal.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("journal_path", cfg.Journal.Path).Msg("init journal")
		return err
	}
	defer submissionJournal.Close()

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	backendClient := backend.New(cfg.Backend, logger)
	if redisClient != nil {
		backendClient.UseRedisCache(redisClient, time.Duration(cfg.Backend.AvailabilityCacheTTL)*time.Second)
	}

	snapshots := initSnapshots(cfg, redisClient, logger)
	bus := events.NewBus()

	sessions := session.NewManager(session.Deps{
		Fetcher:   backendClient,
		Quoter:    backendClient,
		Creator:   backendClient,
		Journal:   submissionJournal,
		Snapshots: snapshots,
		Bus:       bus,
		Logger:    logger,
	})

	httpServer := api.NewHTTPServer(cfg.API, sessions, cfg.Rooms, backendClient, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, logger)
	go pruneLoop(ctx, sessions, time.Duration(cfg.Session.TTLSeconds)*time.Second)

	return startServer(ctx, httpServer, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, &logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initSnapshots(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.SnapshotRepository {
	memory := repository.NewMemorySnapshotRepository()
	if redisClient == nil {
		return memory
	}

	ttl := time.Duration(cfg.Session.SnapshotTTLSeconds) * time.Second
	primary := repository.NewRedisSnapshotRepository(redisClient, ttl)
	return repository.NewFailoverSnapshotRepository(primary, memory, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.API.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.API.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func pruneLoop(ctx context.Context, sessions *session.Manager, ttl time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.PruneIdle(ttl)
		}
	}
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
