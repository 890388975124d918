package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"shortener/internal/config"
	"shortener/internal/health"
	"shortener/internal/ratelimit"
	"shortener/internal/server"
	"shortener/internal/shortcode"
	"shortener/internal/storage"
	"shortener/internal/storage/memory"
	"shortener/internal/storage/redis"
	"shortener/internal/telemetry"
	"shortener/internal/urls"
	"shortener/pkg/metrics"
)

var (
	configFile = flag.String("config", "configs/shortener.yaml", "config file path")
	logLevel   = flag.String("log-level", "info", "log level")
	watch      = flag.Bool("watch", true, "reload rate-limit rules when the config file changes")
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	flag.Parse()

	setupLogging(*logLevel)

	if err := run(); err != nil {
		slog.Error("shortener failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewLoader(*configFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instanceID := uuid.NewString()
	logger := slog.Default().With("instance", instanceID)

	m := metrics.New()

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down telemetry", "error", err)
		}
	}()

	store, storeName, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	allocator := shortcode.New(store,
		shortcode.WithLength(cfg.Shortcode.Length),
		shortcode.WithMaxRetries(cfg.Shortcode.MaxRetries),
		shortcode.WithStoreTimeout(cfg.Storage.Timeout),
		shortcode.WithLogger(logger),
		shortcode.WithMetrics(m),
	)
	space := allocator.Stats()
	logger.Debug("Short code space",
		"alphabet", space.CharactersAvailable,
		"combinations", space.PossibleCombinations[cfg.Shortcode.Length],
	)
	svc := urls.NewService(store, allocator,
		urls.WithTTL(cfg.URLs.TTL),
		urls.WithStoreTimeout(cfg.Storage.Timeout),
		urls.WithLogger(logger),
		urls.WithMetrics(m),
	)

	limiter, err := newLimiter(cfg, store, logger, m)
	if err != nil {
		return err
	}

	checker := health.NewChecker(m)
	checker.RegisterCheck(storeName, health.StoreCheck(store, 2*time.Second))

	deps := server.Dependencies{
		URLs:      svc,
		Health:    health.NewHandler(checker, version, instanceID),
		Limiter:   limiter,
		ValidCode: allocator.IsValid,
		Metrics:   m,
		Gatherer:  prometheus.DefaultGatherer,
		Logger:    logger,
	}
	if cfg.Telemetry.Enabled {
		tm, err := tel.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to create telemetry metrics: %w", err)
		}
		deps.Telemetry = telemetry.NewMiddleware(tel, tm)
	}

	srv, err := server.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	if *watch && limiter != nil {
		if w := startWatcher(limiter, logger); w != nil {
			defer w.Stop()
		}
	}

	logger.Info("Shortener started",
		"addr", cfg.Server.Address(),
		"store", storeName,
		"baseUrl", cfg.Server.BaseURL,
		"version", version,
	)

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	return srv.Stop(context.Background())
}

// openStore connects the configured key-value store
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.KeyValueStore, string, error) {
	storeConfig := &storage.Config{
		Prefix:          cfg.Storage.Prefix,
		CleanupInterval: time.Minute,
		MaxEntries:      cfg.Storage.MaxEntries,
	}

	switch cfg.Storage.Type {
	case "memory":
		logger.Warn("Using in-process memory store; limits and codes are not shared between instances")
		return memory.NewStore(storeConfig), "memory", nil
	case "redis":
		store, err := redis.Connect(ctx, cfg.Storage.Redis, storeConfig, logger)
		if err != nil {
			return nil, "", err
		}
		return store, "redis", nil
	default:
		return nil, "", fmt.Errorf("unknown storage type: %q", cfg.Storage.Type)
	}
}

// newLimiter builds the admission middleware, or nil when rate limiting is off
func newLimiter(cfg *config.Config, store storage.KeyValueStore, logger *slog.Logger, m *metrics.Metrics) (*ratelimit.Middleware, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}

	rules, err := cfg.RateLimit.RuleSet()
	if err != nil {
		return nil, err
	}

	opts := []ratelimit.Option{
		ratelimit.WithStoreTimeout(cfg.Storage.Timeout),
		ratelimit.WithIdleTTL(cfg.RateLimit.IdleTTL),
		ratelimit.WithAtomicIncrement(cfg.RateLimit.AtomicIncrement),
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(m),
	}
	if cfg.RateLimit.Lock.Enabled {
		opts = append(opts, ratelimit.WithLock(cfg.RateLimit.Lock.Wait, cfg.RateLimit.Lock.TTL))
	}

	return ratelimit.NewMiddleware(
		ratelimit.NewFixedWindow(store, opts...),
		ratelimit.NewTokenBucket(store, opts...),
		rules,
		logger,
	), nil
}

// startWatcher swaps in new rate-limit rules whenever the config file changes.
// Failing to watch is not fatal.
func startWatcher(limiter *ratelimit.Middleware, logger *slog.Logger) *config.Watcher {
	w, err := config.NewWatcher(*configFile, &config.WatcherConfig{
		DebounceDuration: 500 * time.Millisecond,
		Apply: func(rules *ratelimit.RuleSet) error {
			limiter.SetRules(rules)
			return nil
		},
	}, logger)
	if err != nil {
		logger.Warn("Config hot reload disabled", "error", err)
		return nil
	}
	w.Start()
	return w
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func setupLogging(level string) {
	lvl, ok := logLevels[strings.ToLower(level)]
	if !ok {
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})))
}
