package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"shortener/internal/config"
	"shortener/internal/storage"
	"shortener/pkg/errors"
	tlsutil "shortener/pkg/tls"
)

// Options converts the Redis configuration into go-redis options, filling
// pool and timeout defaults.
func Options(cfg *config.Redis) (*redis.UniversalOptions, error) {
	if cfg == nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "Redis configuration is nil")
	}

	host, port := cfg.Host, cfg.Port
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 6379
	}
	maxActive := cfg.MaxActive
	if maxActive == 0 {
		maxActive = 100
	}
	maxIdle := cfg.MaxIdle
	if maxIdle == 0 {
		maxIdle = 10
	}

	opts := &redis.UniversalOptions{
		Password: cfg.Password,
		DB:       cfg.DB,

		// Pool settings
		PoolSize:     maxActive,
		MinIdleConns: maxIdle,

		// Timeouts
		DialTimeout:  seconds(cfg.ConnectTimeout, 10),
		ReadTimeout:  seconds(cfg.ReadTimeout, 5),
		WriteTimeout: seconds(cfg.WriteTimeout, 5),
	}

	if cfg.IdleTimeout > 0 {
		opts.ConnMaxIdleTime = time.Duration(cfg.IdleTimeout) * time.Second
	}

	switch {
	case cfg.Cluster:
		if len(cfg.ClusterNodes) == 0 {
			return nil, errors.NewError(errors.ErrorTypeConfiguration, "No cluster nodes specified")
		}
		opts.Addrs = cfg.ClusterNodes
	case cfg.Sentinel:
		if len(cfg.SentinelNodes) == 0 || cfg.MasterName == "" {
			return nil, errors.NewError(errors.ErrorTypeConfiguration, "Sentinel requires nodes and a master name")
		}
		opts.Addrs = cfg.SentinelNodes
		opts.MasterName = cfg.MasterName
	default:
		opts.Addrs = []string{config.Redis{Host: host, Port: port}.Address()}
	}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := tlsutil.ClientConfig(cfg.TLS.Options())
		if err != nil {
			return nil, errors.NewError(errors.ErrorTypeConfiguration, "failed to load Redis TLS configuration").WithCause(err)
		}
		opts.TLSConfig = tlsConfig
	}

	return opts, nil
}

// NewClient creates the go-redis client matching the configured topology
func NewClient(cfg *config.Redis) (redis.UniversalClient, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, opts), nil
}

func newClient(cfg *config.Redis, opts *redis.UniversalOptions) redis.UniversalClient {
	switch {
	case cfg.Cluster:
		return redis.NewClusterClient(opts.Cluster())
	case cfg.Sentinel:
		return redis.NewFailoverClient(opts.Failover())
	default:
		return redis.NewClient(opts.Simple())
	}
}

// Connect creates a client, verifies connectivity and wraps it in a Store
func Connect(ctx context.Context, cfg *config.Redis, storeConfig *storage.Config, logger *slog.Logger) (*Store, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	client := newClient(cfg, opts)

	pingCtx, cancel := context.WithTimeout(ctx, seconds(cfg.ConnectTimeout, 10))
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.NewError(errors.ErrorTypeUnavailable, "failed to connect to Redis").WithCause(err)
	}

	if logger != nil {
		logger.Info("Connected to Redis",
			"addrs", opts.Addrs,
			"cluster", cfg.Cluster,
			"sentinel", cfg.Sentinel,
			"db", cfg.DB,
		)
	}

	return NewStore(NewClientAdapter(client), storeConfig), nil
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}
